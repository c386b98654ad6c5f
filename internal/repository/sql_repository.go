package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hrk-pass/household-account-book/internal/ledger"
	"github.com/hrk-pass/household-account-book/internal/models"
	"github.com/jmoiron/sqlx"
)

// maxRateAttempts bounds the compare-and-swap loop of a rate update.
const maxRateAttempts = 8

// SQLRepository implements the Repository interface on PostgreSQL or SQLite.
// Queries use ? placeholders and are rebound for the driver in use.
type SQLRepository struct {
	db *sqlx.DB
}

// NewSQLRepository creates a new SQL repository
func NewSQLRepository(db *sqlx.DB) *SQLRepository {
	return &SQLRepository{
		db: db,
	}
}

func (r *SQLRepository) q(query string) string {
	return r.db.Rebind(query)
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// User repository methods
func (r *SQLRepository) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, email, name, password, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	// Generate a new UUID if not provided
	if user.ID == "" {
		user.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, r.q(query),
		user.ID, user.Email, user.Name, user.Password, user.CreatedAt, user.UpdatedAt)

	return err
}

func (r *SQLRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, r.q(`SELECT * FROM users WHERE email = ?`), email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // User not found
		}
		return nil, err
	}

	return &user, nil
}

func (r *SQLRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, r.q(`SELECT * FROM users WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // User not found
		}
		return nil, err
	}

	return &user, nil
}

// Category repository methods
func (r *SQLRepository) CreateCategory(ctx context.Context, category *models.Category) error {
	if category.ID == "" {
		category.ID = uuid.New().String()
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, r.q(`
		INSERT INTO categories (id, user_id, name, color, created_at)
		VALUES (?, ?, ?, ?, ?)
	`), category.ID, category.UserID, category.Name, category.Color, category.CreatedAt)
	return err
}

func (r *SQLRepository) UpdateCategory(ctx context.Context, category *models.Category) error {
	res, err := r.db.ExecContext(ctx, r.q(`
		UPDATE categories SET name = ?, color = ? WHERE id = ? AND user_id = ?
	`), category.Name, category.Color, category.ID, category.UserID)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (r *SQLRepository) DeleteCategory(ctx context.Context, userID, categoryID string) error {
	res, err := r.db.ExecContext(ctx, r.q(`DELETE FROM categories WHERE id = ? AND user_id = ?`), categoryID, userID)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (r *SQLRepository) ListCategories(ctx context.Context, userID string) ([]models.Category, error) {
	categories := []models.Category{}
	err := r.db.SelectContext(ctx, &categories,
		r.q(`SELECT * FROM categories WHERE user_id = ? ORDER BY created_at ASC, name ASC`), userID)
	if err != nil {
		return nil, err
	}
	return categories, nil
}

// Expense repository methods
func (r *SQLRepository) CreateExpense(ctx context.Context, expense *models.Expense) error {
	if expense.ID == "" {
		expense.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	expense.CreatedAt = now
	expense.UpdatedAt = now
	expense.ConsumptionRate = ledger.Clamp(expense.ConsumptionRate)

	_, err := r.db.ExecContext(ctx, r.q(`
		INSERT INTO expenses (id, user_id, date, amount, description, category_id, sub_category,
			consumption_rate, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), expense.ID, expense.UserID, expense.Date, expense.Amount, expense.Description, expense.CategoryID,
		string(expense.SubCategory), expense.ConsumptionRate, expense.CreatedAt, expense.UpdatedAt)
	return err
}

// UpdateExpense replaces the user-editable fields of an expense. The
// consumption rate is left alone; AdjustIngredientRate owns it.
func (r *SQLRepository) UpdateExpense(ctx context.Context, expense *models.Expense) error {
	expense.UpdatedAt = time.Now().UTC()

	res, err := r.db.ExecContext(ctx, r.q(`
		UPDATE expenses
		SET date = ?, amount = ?, description = ?, category_id = ?, sub_category = ?, updated_at = ?
		WHERE id = ? AND user_id = ?
	`), expense.Date, expense.Amount, expense.Description, expense.CategoryID, string(expense.SubCategory),
		expense.UpdatedAt, expense.ID, expense.UserID)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (r *SQLRepository) DeleteExpense(ctx context.Context, userID, expenseID string) error {
	res, err := r.db.ExecContext(ctx, r.q(`DELETE FROM expenses WHERE id = ? AND user_id = ?`), expenseID, userID)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (r *SQLRepository) GetExpense(ctx context.Context, userID, expenseID string) (*models.Expense, error) {
	var expense models.Expense
	err := r.db.GetContext(ctx, &expense,
		r.q(`SELECT * FROM expenses WHERE id = ? AND user_id = ?`), expenseID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &expense, nil
}

func (r *SQLRepository) ListExpenses(ctx context.Context, userID string) ([]models.Expense, error) {
	expenses := []models.Expense{}
	err := r.db.SelectContext(ctx, &expenses,
		r.q(`SELECT * FROM expenses WHERE user_id = ? ORDER BY date DESC, created_at DESC`), userID)
	if err != nil {
		return nil, err
	}
	return expenses, nil
}

// AdjustIngredientRate applies fn to the consumption rate of an expense.
func (r *SQLRepository) AdjustIngredientRate(
	ctx context.Context,
	userID string,
	ingredientID string,
	fn ledger.RateFunc,
) (ledger.Change, error) {
	return r.swapRate(ctx, userID, ingredientID, fn,
		`SELECT consumption_rate FROM expenses WHERE id = ? AND user_id = ?`,
		func(current, next int) (sql.Result, error) {
			return r.db.ExecContext(ctx, r.q(`
				UPDATE expenses SET consumption_rate = ?, updated_at = ?
				WHERE id = ? AND user_id = ? AND consumption_rate = ?
			`), next, time.Now().UTC(), ingredientID, userID, current)
		})
}

// AdjustMealPrepRate applies fn to the consumption rate of a meal prep and
// keeps is_used in step with it.
func (r *SQLRepository) AdjustMealPrepRate(
	ctx context.Context,
	userID string,
	mealPrepID string,
	fn ledger.RateFunc,
) (ledger.Change, error) {
	return r.swapRate(ctx, userID, mealPrepID, fn,
		`SELECT consumption_rate FROM meal_preps WHERE id = ? AND user_id = ?`,
		func(current, next int) (sql.Result, error) {
			return r.db.ExecContext(ctx, r.q(`
				UPDATE meal_preps SET consumption_rate = ?, is_used = ?
				WHERE id = ? AND user_id = ? AND consumption_rate = ?
			`), next, ledger.IsUsed(next), mealPrepID, userID, current)
		})
}

// swapRate is a compare-and-swap loop: the write only lands if the rate is
// still the one fn was computed from, so concurrent writers cannot lose
// each other's updates.
func (r *SQLRepository) swapRate(
	ctx context.Context,
	userID string,
	id string,
	fn ledger.RateFunc,
	selectQuery string,
	write func(current, next int) (sql.Result, error),
) (ledger.Change, error) {
	for attempt := 0; attempt < maxRateAttempts; attempt++ {
		var current int
		err := r.db.GetContext(ctx, &current, r.q(selectQuery), id, userID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ledger.Change{}, models.ErrNotFound
			}
			return ledger.Change{}, err
		}

		next := ledger.Clamp(fn(current))
		res, err := write(current, next)
		if err != nil {
			return ledger.Change{}, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return ledger.Change{}, err
		}
		if n == 1 {
			return ledger.Change{Before: current, After: next}, nil
		}
	}

	return ledger.Change{}, fmt.Errorf("%w: consumption rate of %s kept changing", models.ErrConflict, id)
}
