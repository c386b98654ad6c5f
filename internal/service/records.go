package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/hrk-pass/household-account-book/internal/ledger"
	"github.com/hrk-pass/household-account-book/internal/models"
	"github.com/hrk-pass/household-account-book/internal/report"
	"github.com/hrk-pass/household-account-book/internal/state"
)

// defaultCategories are created the first time a user lists categories
// and has none.
var defaultCategories = []models.CategoryRequest{
	{Name: "食費", Color: "#FF6B6B"},
	{Name: "交通費", Color: "#4ECDC4"},
	{Name: "娯楽", Color: "#45B7D1"},
	{Name: "日用品", Color: "#96CEB4"},
	{Name: "kitchen", Color: "#FF8C69"},
	{Name: "その他", Color: "#FCEA2B"},
}

// Category methods
func (s *DefaultService) ListCategories(ctx context.Context, userID string) ([]models.Category, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}

	categories, err := s.repo.ListCategories(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing categories: %w", err)
	}
	if len(categories) > 0 {
		return categories, nil
	}

	for _, def := range defaultCategories {
		category := &models.Category{UserID: userID, Name: def.Name, Color: def.Color}
		if err := s.repo.CreateCategory(ctx, category); err != nil {
			return nil, fmt.Errorf("error creating default categories: %w", err)
		}
		categories = append(categories, *category)
	}
	s.notify(ctx, userID, models.CollectionCategories)
	return categories, nil
}

func (s *DefaultService) CreateCategory(ctx context.Context, userID string, req models.CategoryRequest) (*models.Category, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	name, err := validateCategory(req)
	if err != nil {
		return nil, err
	}

	category := &models.Category{UserID: userID, Name: name, Color: req.Color}
	if err := s.repo.CreateCategory(ctx, category); err != nil {
		return nil, fmt.Errorf("error creating category: %w", err)
	}

	s.notify(ctx, userID, models.CollectionCategories)
	return category, nil
}

func (s *DefaultService) UpdateCategory(
	ctx context.Context,
	userID string,
	categoryID string,
	req models.CategoryRequest,
) (*models.Category, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	name, err := validateCategory(req)
	if err != nil {
		return nil, err
	}

	category := &models.Category{ID: categoryID, UserID: userID, Name: name, Color: req.Color}
	if err := s.repo.UpdateCategory(ctx, category); err != nil {
		return nil, fmt.Errorf("error updating category: %w", err)
	}

	s.notify(ctx, userID, models.CollectionCategories)
	return category, nil
}

func (s *DefaultService) DeleteCategory(ctx context.Context, userID, categoryID string) error {
	if err := requireUser(userID); err != nil {
		return err
	}

	if err := s.repo.DeleteCategory(ctx, userID, categoryID); err != nil {
		return fmt.Errorf("error deleting category: %w", err)
	}

	s.notify(ctx, userID, models.CollectionCategories)
	return nil
}

func validateCategory(req models.CategoryRequest) (string, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return "", invalid("category name is required")
	}
	if req.Color == "" {
		return "", invalid("category color is required")
	}
	return name, nil
}

// Expense methods
func (s *DefaultService) ListExpenses(ctx context.Context, userID string) ([]models.Expense, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}

	expenses, err := s.repo.ListExpenses(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing expenses: %w", err)
	}
	return expenses, nil
}

func (s *DefaultService) GetExpense(ctx context.Context, userID, expenseID string) (*models.Expense, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}

	expense, err := s.repo.GetExpense(ctx, userID, expenseID)
	if err != nil {
		return nil, fmt.Errorf("error getting expense: %w", err)
	}
	if expense == nil {
		return nil, fmt.Errorf("expense %s: %w", expenseID, models.ErrNotFound)
	}
	return expense, nil
}

func (s *DefaultService) CreateExpense(ctx context.Context, userID string, req models.ExpenseRequest) (*models.Expense, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}

	expense := &models.Expense{UserID: userID}
	if err := applyExpenseRequest(expense, req); err != nil {
		return nil, err
	}

	if err := s.repo.CreateExpense(ctx, expense); err != nil {
		return nil, fmt.Errorf("error creating expense: %w", err)
	}

	s.notify(ctx, userID, models.CollectionExpenses)
	return expense, nil
}

// UpdateExpense replaces the editable fields of an expense. The
// consumption rate is kept as the ledger left it.
func (s *DefaultService) UpdateExpense(
	ctx context.Context,
	userID string,
	expenseID string,
	req models.ExpenseRequest,
) (*models.Expense, error) {
	expense, err := s.GetExpense(ctx, userID, expenseID)
	if err != nil {
		return nil, err
	}
	if err := applyExpenseRequest(expense, req); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateExpense(ctx, expense); err != nil {
		return nil, fmt.Errorf("error updating expense: %w", err)
	}

	s.notify(ctx, userID, models.CollectionExpenses)
	return expense, nil
}

func (s *DefaultService) DeleteExpense(ctx context.Context, userID, expenseID string) error {
	if err := requireUser(userID); err != nil {
		return err
	}

	if err := s.repo.DeleteExpense(ctx, userID, expenseID); err != nil {
		return fmt.Errorf("error deleting expense: %w", err)
	}

	s.notify(ctx, userID, models.CollectionExpenses)
	return nil
}

func applyExpenseRequest(expense *models.Expense, req models.ExpenseRequest) error {
	if _, err := report.ParseDate(req.Date); err != nil {
		return err
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		return invalid("description is required")
	}
	if req.Amount.IsNegative() {
		return invalid("amount must not be negative")
	}
	if !req.SubCategory.Valid() {
		return invalid("unknown sub-category %q", req.SubCategory)
	}

	expense.Date = req.Date
	expense.Amount = req.Amount
	expense.Description = description
	expense.SubCategory = req.SubCategory
	expense.CategoryID = nil
	if req.CategoryID != nil && *req.CategoryID != "" {
		id := *req.CategoryID
		expense.CategoryID = &id
	}
	return nil
}

// Availability
func (s *DefaultService) AvailableIngredients(ctx context.Context, userID string) ([]models.Expense, error) {
	expenses, err := s.ListExpenses(ctx, userID)
	if err != nil {
		return nil, err
	}
	return ledger.AvailableIngredients(expenses), nil
}

func (s *DefaultService) AvailableMealPreps(ctx context.Context, userID string) ([]models.MealPrep, error) {
	mealPreps, err := s.ListMealPreps(ctx, userID)
	if err != nil {
		return nil, err
	}
	return ledger.AvailableMealPreps(mealPreps), nil
}

// State loads every collection of the user into a state.Book and returns
// its view.
func (s *DefaultService) State(ctx context.Context, userID string) (*state.View, error) {
	categories, err := s.ListCategories(ctx, userID)
	if err != nil {
		return nil, err
	}
	expenses, err := s.repo.ListExpenses(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing expenses: %w", err)
	}
	mealPreps, err := s.repo.ListMealPreps(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing meal preps: %w", err)
	}
	mealLogs, err := s.repo.ListMealLogs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing meal logs: %w", err)
	}

	book := state.NewBook()
	for _, u := range []state.Update{
		state.ExpensesUpdate(expenses),
		state.CategoriesUpdate(categories),
		state.MealPrepsUpdate(mealPreps),
		state.MealLogsUpdate(mealLogs),
	} {
		if err := book.Apply(u); err != nil {
			return nil, err
		}
	}

	view := book.View()
	return &view, nil
}

// Reports
func (s *DefaultService) MonthlyReport(ctx context.Context, userID, month string) (*report.MonthlySummary, error) {
	expenses, categories, err := s.reportInput(ctx, userID)
	if err != nil {
		return nil, err
	}
	return report.Monthly(expenses, categories, month)
}

func (s *DefaultService) WeeklyReport(ctx context.Context, userID, start string) (*report.WeeklySummary, error) {
	expenses, categories, err := s.reportInput(ctx, userID)
	if err != nil {
		return nil, err
	}
	return report.Weekly(expenses, categories, start)
}

func (s *DefaultService) DailyReport(ctx context.Context, userID, month string) (*report.DailySummary, error) {
	if _, err := report.ParseMonth(month); err != nil {
		return nil, err
	}
	expenses, err := s.ListExpenses(ctx, userID)
	if err != nil {
		return nil, err
	}
	return report.Daily(expenses, month)
}

func (s *DefaultService) reportInput(ctx context.Context, userID string) ([]models.Expense, []models.Category, error) {
	expenses, err := s.ListExpenses(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	categories, err := s.repo.ListCategories(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("error listing categories: %w", err)
	}
	return expenses, categories, nil
}
