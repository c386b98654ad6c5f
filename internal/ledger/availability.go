package ledger

import (
	"sort"

	"github.com/hrk-pass/household-account-book/internal/models"
)

// AvailableIngredients returns the ingredient expenses that are not fully
// consumed, ordered by description.
func AvailableIngredients(expenses []models.Expense) []models.Expense {
	available := make([]models.Expense, 0, len(expenses))
	for _, e := range expenses {
		if e.SubCategory.IsIngredient() && !IsUsed(e.ConsumptionRate) {
			available = append(available, e)
		}
	}
	sort.SliceStable(available, func(i, j int) bool {
		return available[i].Description < available[j].Description
	})
	return available
}

// AvailableMealPreps returns the meal preps that are not fully eaten,
// keeping the input order.
func AvailableMealPreps(mealPreps []models.MealPrep) []models.MealPrep {
	available := make([]models.MealPrep, 0, len(mealPreps))
	for _, mp := range mealPreps {
		if !IsUsed(mp.ConsumptionRate) {
			available = append(available, mp)
		}
	}
	return available
}
