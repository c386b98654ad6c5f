package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User represents a user in the system
type User struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Name      string    `db:"name" json:"name"`
	Password  string    `db:"password" json:"-"` // Password hash, not returned in JSON
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Category groups expenses for reporting
type Category struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"-"`
	Name      string    `db:"name" json:"name"`
	Color     string    `db:"color" json:"color"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// SubCategory tags a kitchen expense
type SubCategory string

const (
	SubCategoryIngredient SubCategory = "Ingredient"
	SubCategorySeasoning  SubCategory = "Seasoning"
	SubCategoryConsumable SubCategory = "Consumable"
	SubCategoryOther      SubCategory = "Other"

	// SubCategoryLegacyIngredient is how older records spell "Ingredient".
	SubCategoryLegacyIngredient SubCategory = "食材"
)

// IsIngredient reports whether the sub-category marks a food ingredient.
func (s SubCategory) IsIngredient() bool {
	return s == SubCategoryIngredient || s == SubCategoryLegacyIngredient
}

// Valid reports whether s is empty or one of the known sub-categories.
func (s SubCategory) Valid() bool {
	switch s {
	case "", SubCategoryIngredient, SubCategorySeasoning, SubCategoryConsumable, SubCategoryOther, SubCategoryLegacyIngredient:
		return true
	}
	return false
}

// Expense is a single household expense. Expenses tagged as ingredients
// carry a consumption rate that only the ledger changes.
type Expense struct {
	ID              string          `db:"id" json:"id"`
	UserID          string          `db:"user_id" json:"-"`
	Date            string          `db:"date" json:"date"` // YYYY-MM-DD
	Amount          decimal.Decimal `db:"amount" json:"amount"`
	Description     string          `db:"description" json:"description"`
	CategoryID      *string         `db:"category_id" json:"category,omitempty"`
	SubCategory     SubCategory     `db:"sub_category" json:"subCategory,omitempty"`
	ConsumptionRate int             `db:"consumption_rate" json:"consumptionRate"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updatedAt"`
}

// MealPrep is a batch dish made from ingredients and eaten over time.
type MealPrep struct {
	ID              string    `db:"id" json:"id"`
	UserID          string    `db:"user_id" json:"-"`
	Name            string    `db:"name" json:"name"`
	Date            string    `db:"date" json:"date"`
	ConsumptionRate int       `db:"consumption_rate" json:"consumptionRate"`
	IsUsed          bool      `db:"is_used" json:"isUsed"`
	Notes           string    `db:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`

	Ingredients []string `db:"-" json:"ingredients"`
	// IngredientConsumption records the percent debited from each
	// ingredient when the batch was made. Empty for legacy batches.
	IngredientConsumption map[string]int `db:"-" json:"ingredientConsumption,omitempty"`
}

// MealType is the slot of a logged meal
type MealType string

const (
	MealTypeBreakfast MealType = "Breakfast"
	MealTypeLunch     MealType = "Lunch"
	MealTypeDinner    MealType = "Dinner"
	MealTypeSnack     MealType = "Snack"
)

// Valid reports whether m is one of the four meal types.
func (m MealType) Valid() bool {
	switch m {
	case MealTypeBreakfast, MealTypeLunch, MealTypeDinner, MealTypeSnack:
		return true
	}
	return false
}

// MealLogIngredient is the share of one ingredient eaten in a meal.
type MealLogIngredient struct {
	IngredientID string `json:"ingredientId"`
	UsedRate     int    `json:"usedRate"`
	// Legacy is set for rows written before the exact rate was stored.
	Legacy bool `json:"legacy,omitempty"`
}

// MealLog is one meal event
type MealLog struct {
	ID            string              `db:"id" json:"id"`
	UserID        string              `db:"user_id" json:"-"`
	Date          string              `db:"date" json:"date"`
	MealType      MealType            `db:"meal_type" json:"mealType"`
	Notes         string              `db:"notes" json:"notes,omitempty"`
	CreatedAt     time.Time           `db:"created_at" json:"createdAt"`
	Ingredients   []MealLogIngredient `db:"-" json:"ingredients"`
	MealPrepItems []string            `db:"-" json:"mealPrepItems,omitempty"`
}

// Collection names a per-user record collection that clients subscribe to.
type Collection string

const (
	CollectionExpenses   Collection = "expenses"
	CollectionCategories Collection = "categories"
	CollectionMealPreps  Collection = "mealPreps"
	CollectionMealLogs   Collection = "mealLogs"
)

// AllCollections lists every collection in delivery order.
var AllCollections = []Collection{
	CollectionCategories,
	CollectionExpenses,
	CollectionMealPreps,
	CollectionMealLogs,
}
