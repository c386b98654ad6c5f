package repository

import (
	"context"

	"github.com/hrk-pass/household-account-book/internal/ledger"
	"github.com/hrk-pass/household-account-book/internal/models"
)

// Repository interface defines the methods that any repository implementation must satisfy.
// Every record method is scoped by user id; rows of other users are invisible.
type Repository interface {
	// User operations
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)

	// Category operations
	CreateCategory(ctx context.Context, category *models.Category) error
	UpdateCategory(ctx context.Context, category *models.Category) error
	DeleteCategory(ctx context.Context, userID, categoryID string) error
	ListCategories(ctx context.Context, userID string) ([]models.Category, error)

	// Expense operations
	CreateExpense(ctx context.Context, expense *models.Expense) error
	UpdateExpense(ctx context.Context, expense *models.Expense) error
	DeleteExpense(ctx context.Context, userID, expenseID string) error
	GetExpense(ctx context.Context, userID, expenseID string) (*models.Expense, error)
	ListExpenses(ctx context.Context, userID string) ([]models.Expense, error)

	// Meal-prep operations
	CreateMealPrep(ctx context.Context, mealPrep *models.MealPrep) error
	GetMealPrep(ctx context.Context, userID, mealPrepID string) (*models.MealPrep, error)
	ListMealPreps(ctx context.Context, userID string) ([]models.MealPrep, error)
	UpdateMealPrep(ctx context.Context, mealPrep *models.MealPrep) error
	DeleteMealPrep(ctx context.Context, userID, mealPrepID string) error

	// Meal-log operations
	CreateMealLog(ctx context.Context, mealLog *models.MealLog) error
	GetMealLog(ctx context.Context, userID, mealLogID string) (*models.MealLog, error)
	ListMealLogs(ctx context.Context, userID string) ([]models.MealLog, error)
	UpdateMealLog(ctx context.Context, mealLog *models.MealLog) error
	DeleteMealLog(ctx context.Context, userID, mealLogID string) error

	// Consumption rate updates
	ledger.Store
}
