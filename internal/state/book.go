// Package state holds an in-memory copy of one user's records, kept
// current by collection updates.
package state

import (
	"fmt"
	"sync"

	"github.com/hrk-pass/household-account-book/internal/ledger"
	"github.com/hrk-pass/household-account-book/internal/models"
)

// Update carries the full current contents of one collection.
type Update struct {
	Collection models.Collection `json:"collection"`
	Records    any               `json:"records"`
}

func ExpensesUpdate(expenses []models.Expense) Update {
	return Update{Collection: models.CollectionExpenses, Records: nonNil(expenses)}
}

func CategoriesUpdate(categories []models.Category) Update {
	return Update{Collection: models.CollectionCategories, Records: nonNil(categories)}
}

func MealPrepsUpdate(mealPreps []models.MealPrep) Update {
	return Update{Collection: models.CollectionMealPreps, Records: nonNil(mealPreps)}
}

func MealLogsUpdate(mealLogs []models.MealLog) Update {
	return Update{Collection: models.CollectionMealLogs, Records: nonNil(mealLogs)}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Snapshot is a read-only copy of a Book.
type Snapshot struct {
	Expenses   []models.Expense  `json:"expenses"`
	Categories []models.Category `json:"categories"`
	MealPreps  []models.MealPrep `json:"mealPreps"`
	MealLogs   []models.MealLog  `json:"mealLogs"`
}

// View is a snapshot together with the records that can still be
// consumed.
type View struct {
	Snapshot
	AvailableIngredients []models.Expense  `json:"availableIngredients"`
	AvailableMealPreps   []models.MealPrep `json:"availableMealPreps"`
}

// Book owns one user's records. Apply is its only mutation entry point;
// readers get copies.
type Book struct {
	mu     sync.RWMutex
	snap   Snapshot
	loaded map[models.Collection]bool
}

// NewBook creates an empty Book
func NewBook() *Book {
	return &Book{loaded: make(map[models.Collection]bool)}
}

// Apply replaces one collection with the records of u.
func (b *Book) Apply(u Update) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch records := u.Records.(type) {
	case []models.Expense:
		if u.Collection != models.CollectionExpenses {
			return mismatch(u)
		}
		b.snap.Expenses = cloneExpenses(records)
	case []models.Category:
		if u.Collection != models.CollectionCategories {
			return mismatch(u)
		}
		b.snap.Categories = append([]models.Category{}, records...)
	case []models.MealPrep:
		if u.Collection != models.CollectionMealPreps {
			return mismatch(u)
		}
		b.snap.MealPreps = cloneMealPreps(records)
	case []models.MealLog:
		if u.Collection != models.CollectionMealLogs {
			return mismatch(u)
		}
		b.snap.MealLogs = cloneMealLogs(records)
	default:
		return mismatch(u)
	}

	b.loaded[u.Collection] = true
	return nil
}

func mismatch(u Update) error {
	return fmt.Errorf("%w: %T is not a %s update", models.ErrInvalidInput, u.Records, u.Collection)
}

// Loaded reports whether c has received at least one update.
func (b *Book) Loaded(c models.Collection) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.loaded[c]
}

// Snapshot returns a deep copy of every collection.
func (b *Book) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return Snapshot{
		Expenses:   cloneExpenses(b.snap.Expenses),
		Categories: append([]models.Category{}, b.snap.Categories...),
		MealPreps:  cloneMealPreps(b.snap.MealPreps),
		MealLogs:   cloneMealLogs(b.snap.MealLogs),
	}
}

// Updates returns the loaded collections as updates, in delivery order.
func (b *Book) Updates() []Update {
	snap := b.Snapshot()

	b.mu.RLock()
	defer b.mu.RUnlock()

	var updates []Update
	for _, c := range models.AllCollections {
		if !b.loaded[c] {
			continue
		}
		switch c {
		case models.CollectionExpenses:
			updates = append(updates, ExpensesUpdate(snap.Expenses))
		case models.CollectionCategories:
			updates = append(updates, CategoriesUpdate(snap.Categories))
		case models.CollectionMealPreps:
			updates = append(updates, MealPrepsUpdate(snap.MealPreps))
		case models.CollectionMealLogs:
			updates = append(updates, MealLogsUpdate(snap.MealLogs))
		}
	}
	return updates
}

// AvailableIngredients returns the ingredients that can still be used.
func (b *Book) AvailableIngredients() []models.Expense {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return cloneExpenses(ledger.AvailableIngredients(b.snap.Expenses))
}

// AvailableMealPreps returns the meal preps that can still be eaten.
func (b *Book) AvailableMealPreps() []models.MealPrep {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return cloneMealPreps(ledger.AvailableMealPreps(b.snap.MealPreps))
}

func cloneExpenses(in []models.Expense) []models.Expense {
	out := make([]models.Expense, len(in))
	copy(out, in)
	for i := range out {
		if out[i].CategoryID != nil {
			id := *out[i].CategoryID
			out[i].CategoryID = &id
		}
	}
	return out
}

func cloneMealPreps(in []models.MealPrep) []models.MealPrep {
	out := make([]models.MealPrep, len(in))
	copy(out, in)
	for i := range out {
		out[i].Ingredients = append([]string(nil), in[i].Ingredients...)
		if in[i].IngredientConsumption != nil {
			m := make(map[string]int, len(in[i].IngredientConsumption))
			for k, v := range in[i].IngredientConsumption {
				m[k] = v
			}
			out[i].IngredientConsumption = m
		}
	}
	return out
}

func cloneMealLogs(in []models.MealLog) []models.MealLog {
	out := make([]models.MealLog, len(in))
	copy(out, in)
	for i := range out {
		out[i].Ingredients = append([]models.MealLogIngredient(nil), in[i].Ingredients...)
		out[i].MealPrepItems = append([]string(nil), in[i].MealPrepItems...)
	}
	return out
}

// View returns a copy of every collection with the availability lists
// derived from that same copy.
func (b *Book) View() View {
	snap := b.Snapshot()
	return View{
		Snapshot:             snap,
		AvailableIngredients: nonNil(ledger.AvailableIngredients(snap.Expenses)),
		AvailableMealPreps:   nonNil(ledger.AvailableMealPreps(snap.MealPreps)),
	}
}
