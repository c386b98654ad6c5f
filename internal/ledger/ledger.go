// Package ledger keeps the consumption rates of ingredients and meal-prep
// batches. It debits rates when something is eaten or cooked and credits
// them back when the consuming record is deleted.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/hrk-pass/household-account-book/internal/models"
	"go.uber.org/zap"
)

// Kind is the type of record an adjustment targets.
type Kind string

const (
	KindIngredient Kind = "ingredient"
	KindMealPrep   Kind = "mealPrep"
)

// Store is the part of the record store the ledger writes through.
// Both methods must read, apply fn and write back atomically with respect
// to other writers of the same record, and return models.ErrNotFound when
// the record does not exist. AdjustMealPrepRate must also store
// isUsed = IsUsed(after).
type Store interface {
	AdjustIngredientRate(ctx context.Context, userID, ingredientID string, fn RateFunc) (Change, error)
	AdjustMealPrepRate(ctx context.Context, userID, mealPrepID string, fn RateFunc) (Change, error)
}

// Adjustment moves the rate of one record by Percent.
type Adjustment struct {
	TargetID string
	Percent  int
}

// Outcome is the result of one adjustment within a batch.
type Outcome struct {
	Kind     Kind
	TargetID string
	Change
	Skipped bool // target did not exist
	Err     error
}

// BatchResult holds the outcome of every adjustment of one event, in the
// order the adjustments were given.
type BatchResult struct {
	Outcomes []Outcome
}

// Merge appends the outcomes of other.
func (b BatchResult) Merge(other BatchResult) BatchResult {
	out := make([]Outcome, 0, len(b.Outcomes)+len(other.Outcomes))
	out = append(out, b.Outcomes...)
	out = append(out, other.Outcomes...)
	return BatchResult{Outcomes: out}
}

// Failed returns the outcomes whose write failed.
func (b BatchResult) Failed() []Outcome {
	var failed []Outcome
	for _, o := range b.Outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}

// Applied returns the delta written for every target that existed and was
// updated, keyed by target id.
func (b BatchResult) Applied(kind Kind) map[string]int {
	applied := make(map[string]int)
	for _, o := range b.Outcomes {
		if o.Kind != kind || o.Skipped || o.Err != nil {
			continue
		}
		applied[o.TargetID] = o.Delta()
	}
	return applied
}

// Err returns a *PartialFailureError when any adjustment failed.
func (b BatchResult) Err() error {
	if len(b.Failed()) == 0 {
		return nil
	}
	return &PartialFailureError{Result: b}
}

// PartialFailureError reports a batch in which some writes failed. The
// writes that succeeded stay applied.
type PartialFailureError struct {
	Result BatchResult
}

func (e *PartialFailureError) Error() string {
	failed := e.Result.Failed()
	parts := make([]string, 0, len(failed))
	for _, o := range failed {
		parts = append(parts, fmt.Sprintf("%s %s: %v", o.Kind, o.TargetID, o.Err))
	}
	return fmt.Sprintf("%d of %d consumption updates failed: %s",
		len(failed), len(e.Result.Outcomes), strings.Join(parts, "; "))
}

func (e *PartialFailureError) Unwrap() error {
	return models.ErrPartialFailure
}

// Option configures a Ledger
type Option func(*Ledger)

// WithMealPrepCreditStep sets the flat credit applied to a meal prep when
// a meal log that ate from it is deleted.
func WithMealPrepCreditStep(step int) Option {
	return func(l *Ledger) {
		if step >= 0 {
			l.mealPrepCreditStep = step
		}
	}
}

// WithLegacyIngredientCreditStep sets the flat credit used for meal-log
// ingredients that have no recorded used rate.
func WithLegacyIngredientCreditStep(step int) Option {
	return func(l *Ledger) {
		if step >= 0 {
			l.legacyIngredientCreditStep = step
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// Ledger applies consumption debits and credits through a Store.
type Ledger struct {
	store                      Store
	mealPrepCreditStep         int
	legacyIngredientCreditStep int
	logger                     *zap.Logger
}

// New creates a Ledger
func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:                      store,
		mealPrepCreditStep:         DefaultMealPrepCreditStep,
		legacyIngredientCreditStep: DefaultLegacyIngredientCreditStep,
		logger:                     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Adjustments turns a target → percent map into a validated, id-ordered
// list. Percents must be non-negative and ids non-empty. Ids that are
// equal after trimming are merged by summing their percents.
func Adjustments(percents map[string]int) ([]Adjustment, error) {
	merged := make(map[string]int, len(percents))
	for id, pct := range percents {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, fmt.Errorf("%w: empty target id", models.ErrInvalidInput)
		}
		if pct < 0 {
			return nil, fmt.Errorf("%w: negative percent %d for %s", models.ErrInvalidInput, pct, id)
		}
		merged[id] = addPercent(merged[id], pct)
	}

	adjustments := make([]Adjustment, 0, len(merged))
	for id, pct := range merged {
		adjustments = append(adjustments, Adjustment{TargetID: id, Percent: pct})
	}
	sort.Slice(adjustments, func(i, j int) bool {
		return adjustments[i].TargetID < adjustments[j].TargetID
	})
	return adjustments, nil
}

// addPercent sums two non-negative percents, saturating at math.MaxInt.
func addPercent(a, b int) int {
	if b > math.MaxInt-a {
		return math.MaxInt
	}
	return a + b
}

// Debit raises the rate of every target by its percent, capped at 100.
// Missing targets are skipped. The writes of one batch are issued
// concurrently; failures are reported per item and nothing is rolled back.
func (l *Ledger) Debit(ctx context.Context, userID string, kind Kind, adjustments []Adjustment) BatchResult {
	return l.apply(ctx, userID, kind, adjustments, DebitBy)
}

// Credit lowers the rate of every target by its percent, floored at 0.
func (l *Ledger) Credit(ctx context.Context, userID string, kind Kind, adjustments []Adjustment) BatchResult {
	return l.apply(ctx, userID, kind, adjustments, CreditBy)
}

func (l *Ledger) apply(
	ctx context.Context,
	userID string,
	kind Kind,
	adjustments []Adjustment,
	rateFn func(int) RateFunc,
) BatchResult {
	outcomes := make([]Outcome, len(adjustments))
	var wg sync.WaitGroup

	for i, adj := range adjustments {
		wg.Add(1)
		go func(i int, adj Adjustment) {
			defer wg.Done()

			outcome := Outcome{Kind: kind, TargetID: adj.TargetID}
			change, err := l.adjust(ctx, userID, kind, adj.TargetID, rateFn(adj.Percent))
			switch {
			case errors.Is(err, models.ErrNotFound):
				outcome.Skipped = true
				l.logger.Debug("consumption target missing, skipped",
					zap.String("kind", string(kind)), zap.String("id", adj.TargetID))
			case err != nil:
				outcome.Err = err
				l.logger.Warn("consumption update failed",
					zap.String("kind", string(kind)), zap.String("id", adj.TargetID), zap.Error(err))
			default:
				outcome.Change = change
			}
			outcomes[i] = outcome
		}(i, adj)
	}

	wg.Wait()
	return BatchResult{Outcomes: outcomes}
}

func (l *Ledger) adjust(ctx context.Context, userID string, kind Kind, id string, fn RateFunc) (Change, error) {
	if err := ctx.Err(); err != nil {
		return Change{}, err
	}
	switch kind {
	case KindIngredient:
		return l.store.AdjustIngredientRate(ctx, userID, id, fn)
	case KindMealPrep:
		return l.store.AdjustMealPrepRate(ctx, userID, id, fn)
	default:
		return Change{}, fmt.Errorf("unknown consumption kind %q", kind)
	}
}

// MealPrepReversal returns the ingredient credits that undo the debit a
// meal prep applied when it was made. Batches that recorded their debit
// reverse exactly. Legacy batches credit min(current, batch rate) per
// ingredient, which is what crediting the batch rate with a floor of 0
// does.
func (l *Ledger) MealPrepReversal(mp models.MealPrep) []Adjustment {
	var credits []Adjustment
	if len(mp.IngredientConsumption) > 0 {
		for _, id := range mp.Ingredients {
			if pct := mp.IngredientConsumption[id]; pct > 0 {
				credits = append(credits, Adjustment{TargetID: id, Percent: pct})
			}
		}
		return credits
	}

	if mp.ConsumptionRate <= 0 {
		return nil
	}
	for _, id := range mp.Ingredients {
		credits = append(credits, Adjustment{TargetID: id, Percent: mp.ConsumptionRate})
	}
	return credits
}

// MealLogReversal returns the ingredient and meal-prep credits that undo a
// meal log.
func (l *Ledger) MealLogReversal(log models.MealLog) (ingredients, mealPreps []Adjustment) {
	for _, ing := range log.Ingredients {
		pct := ing.UsedRate
		if ing.Legacy {
			pct = l.legacyIngredientCreditStep
		}
		if pct > 0 {
			ingredients = append(ingredients, Adjustment{TargetID: ing.IngredientID, Percent: pct})
		}
	}
	if l.mealPrepCreditStep > 0 {
		for _, id := range log.MealPrepItems {
			mealPreps = append(mealPreps, Adjustment{TargetID: id, Percent: l.mealPrepCreditStep})
		}
	}
	return ingredients, mealPreps
}
