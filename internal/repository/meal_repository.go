package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/hrk-pass/household-account-book/internal/models"
)

type mealPrepIngredientRow struct {
	MealPrepID   string        `db:"meal_prep_id"`
	IngredientID string        `db:"ingredient_id"`
	Position     int           `db:"position"`
	ConsumedRate sql.NullInt64 `db:"consumed_rate"`
}

type mealLogIngredientRow struct {
	MealLogID    string        `db:"meal_log_id"`
	IngredientID string        `db:"ingredient_id"`
	Position     int           `db:"position"`
	UsedRate     sql.NullInt64 `db:"used_rate"`
}

type mealLogMealPrepRow struct {
	MealLogID  string `db:"meal_log_id"`
	MealPrepID string `db:"meal_prep_id"`
	Position   int    `db:"position"`
}

// Meal-prep repository methods

// CreateMealPrep stores the batch together with the debit it applied to
// each ingredient. The debit snapshot is never written again.
func (r *SQLRepository) CreateMealPrep(ctx context.Context, mealPrep *models.MealPrep) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if mealPrep.ID == "" {
		mealPrep.ID = uuid.New().String()
	}
	mealPrep.CreatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO meal_preps (id, user_id, name, date, consumption_rate, is_used, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`), mealPrep.ID, mealPrep.UserID, mealPrep.Name, mealPrep.Date, mealPrep.ConsumptionRate,
		mealPrep.IsUsed, mealPrep.Notes, mealPrep.CreatedAt)
	if err != nil {
		return err
	}

	recorded := len(mealPrep.IngredientConsumption) > 0
	for i, ingredientID := range mealPrep.Ingredients {
		var consumed sql.NullInt64
		if recorded {
			consumed = sql.NullInt64{Int64: int64(mealPrep.IngredientConsumption[ingredientID]), Valid: true}
		}
		_, err = tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO meal_prep_ingredients (meal_prep_id, ingredient_id, position, consumed_rate)
			VALUES (?, ?, ?, ?)
		`), mealPrep.ID, ingredientID, i, consumed)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *SQLRepository) GetMealPrep(ctx context.Context, userID, mealPrepID string) (*models.MealPrep, error) {
	var mealPrep models.MealPrep
	err := r.db.GetContext(ctx, &mealPrep,
		r.q(`SELECT * FROM meal_preps WHERE id = ? AND user_id = ?`), mealPrepID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	var rows []mealPrepIngredientRow
	err = r.db.SelectContext(ctx, &rows, r.q(`
		SELECT * FROM meal_prep_ingredients WHERE meal_prep_id = ? ORDER BY position ASC
	`), mealPrepID)
	if err != nil {
		return nil, err
	}

	attachMealPrepIngredients(&mealPrep, rows)
	return &mealPrep, nil
}

func (r *SQLRepository) ListMealPreps(ctx context.Context, userID string) ([]models.MealPrep, error) {
	mealPreps := []models.MealPrep{}
	err := r.db.SelectContext(ctx, &mealPreps,
		r.q(`SELECT * FROM meal_preps WHERE user_id = ? ORDER BY date DESC, created_at DESC`), userID)
	if err != nil {
		return nil, err
	}

	var rows []mealPrepIngredientRow
	err = r.db.SelectContext(ctx, &rows, r.q(`
		SELECT mpi.* FROM meal_prep_ingredients mpi
		JOIN meal_preps mp ON mp.id = mpi.meal_prep_id
		WHERE mp.user_id = ?
		ORDER BY mpi.meal_prep_id ASC, mpi.position ASC
	`), userID)
	if err != nil {
		return nil, err
	}

	byPrep := make(map[string][]mealPrepIngredientRow)
	for _, row := range rows {
		byPrep[row.MealPrepID] = append(byPrep[row.MealPrepID], row)
	}
	for i := range mealPreps {
		attachMealPrepIngredients(&mealPreps[i], byPrep[mealPreps[i].ID])
	}

	return mealPreps, nil
}

func attachMealPrepIngredients(mealPrep *models.MealPrep, rows []mealPrepIngredientRow) {
	mealPrep.Ingredients = make([]string, 0, len(rows))
	for _, row := range rows {
		mealPrep.Ingredients = append(mealPrep.Ingredients, row.IngredientID)
		if row.ConsumedRate.Valid {
			if mealPrep.IngredientConsumption == nil {
				mealPrep.IngredientConsumption = make(map[string]int)
			}
			mealPrep.IngredientConsumption[row.IngredientID] = int(row.ConsumedRate.Int64)
		}
	}
}

// UpdateMealPrep writes the descriptive fields only. The rate is owned by
// AdjustMealPrepRate and the ingredient snapshot is immutable.
func (r *SQLRepository) UpdateMealPrep(ctx context.Context, mealPrep *models.MealPrep) error {
	res, err := r.db.ExecContext(ctx, r.q(`
		UPDATE meal_preps SET name = ?, date = ?, notes = ? WHERE id = ? AND user_id = ?
	`), mealPrep.Name, mealPrep.Date, mealPrep.Notes, mealPrep.ID, mealPrep.UserID)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (r *SQLRepository) DeleteMealPrep(ctx context.Context, userID, mealPrepID string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	// Delete the ingredient snapshot first (due to foreign key constraint)
	_, err = tx.ExecContext(ctx, tx.Rebind(`
		DELETE FROM meal_prep_ingredients
		WHERE meal_prep_id IN (SELECT id FROM meal_preps WHERE id = ? AND user_id = ?)
	`), mealPrepID, userID)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM meal_preps WHERE id = ? AND user_id = ?`), mealPrepID, userID)
	if err != nil {
		return err
	}
	if err = checkAffected(res); err != nil {
		return err
	}

	return tx.Commit()
}

// Meal-log repository methods
func (r *SQLRepository) CreateMealLog(ctx context.Context, mealLog *models.MealLog) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if mealLog.ID == "" {
		mealLog.ID = uuid.New().String()
	}
	mealLog.CreatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO meal_logs (id, user_id, date, meal_type, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), mealLog.ID, mealLog.UserID, mealLog.Date, string(mealLog.MealType), mealLog.Notes, mealLog.CreatedAt)
	if err != nil {
		return err
	}

	for i, ing := range mealLog.Ingredients {
		used := sql.NullInt64{Int64: int64(ing.UsedRate), Valid: !ing.Legacy}
		_, err = tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO meal_log_ingredients (meal_log_id, ingredient_id, position, used_rate)
			VALUES (?, ?, ?, ?)
		`), mealLog.ID, ing.IngredientID, i, used)
		if err != nil {
			return err
		}
	}

	for i, mealPrepID := range mealLog.MealPrepItems {
		_, err = tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO meal_log_meal_preps (meal_log_id, meal_prep_id, position)
			VALUES (?, ?, ?)
		`), mealLog.ID, mealPrepID, i)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *SQLRepository) GetMealLog(ctx context.Context, userID, mealLogID string) (*models.MealLog, error) {
	var mealLog models.MealLog
	err := r.db.GetContext(ctx, &mealLog,
		r.q(`SELECT * FROM meal_logs WHERE id = ? AND user_id = ?`), mealLogID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	var ingredients []mealLogIngredientRow
	err = r.db.SelectContext(ctx, &ingredients, r.q(`
		SELECT * FROM meal_log_ingredients WHERE meal_log_id = ? ORDER BY position ASC
	`), mealLogID)
	if err != nil {
		return nil, err
	}

	var preps []mealLogMealPrepRow
	err = r.db.SelectContext(ctx, &preps, r.q(`
		SELECT * FROM meal_log_meal_preps WHERE meal_log_id = ? ORDER BY position ASC
	`), mealLogID)
	if err != nil {
		return nil, err
	}

	attachMealLogItems(&mealLog, ingredients, preps)
	return &mealLog, nil
}

func (r *SQLRepository) ListMealLogs(ctx context.Context, userID string) ([]models.MealLog, error) {
	mealLogs := []models.MealLog{}
	err := r.db.SelectContext(ctx, &mealLogs,
		r.q(`SELECT * FROM meal_logs WHERE user_id = ? ORDER BY date DESC, created_at DESC`), userID)
	if err != nil {
		return nil, err
	}

	var ingredients []mealLogIngredientRow
	err = r.db.SelectContext(ctx, &ingredients, r.q(`
		SELECT mli.* FROM meal_log_ingredients mli
		JOIN meal_logs ml ON ml.id = mli.meal_log_id
		WHERE ml.user_id = ?
		ORDER BY mli.meal_log_id ASC, mli.position ASC
	`), userID)
	if err != nil {
		return nil, err
	}

	var preps []mealLogMealPrepRow
	err = r.db.SelectContext(ctx, &preps, r.q(`
		SELECT mlp.* FROM meal_log_meal_preps mlp
		JOIN meal_logs ml ON ml.id = mlp.meal_log_id
		WHERE ml.user_id = ?
		ORDER BY mlp.meal_log_id ASC, mlp.position ASC
	`), userID)
	if err != nil {
		return nil, err
	}

	ingredientsByLog := make(map[string][]mealLogIngredientRow)
	for _, row := range ingredients {
		ingredientsByLog[row.MealLogID] = append(ingredientsByLog[row.MealLogID], row)
	}
	prepsByLog := make(map[string][]mealLogMealPrepRow)
	for _, row := range preps {
		prepsByLog[row.MealLogID] = append(prepsByLog[row.MealLogID], row)
	}
	for i := range mealLogs {
		attachMealLogItems(&mealLogs[i], ingredientsByLog[mealLogs[i].ID], prepsByLog[mealLogs[i].ID])
	}

	return mealLogs, nil
}

func attachMealLogItems(mealLog *models.MealLog, ingredients []mealLogIngredientRow, preps []mealLogMealPrepRow) {
	mealLog.Ingredients = make([]models.MealLogIngredient, 0, len(ingredients))
	for _, row := range ingredients {
		mealLog.Ingredients = append(mealLog.Ingredients, models.MealLogIngredient{
			IngredientID: row.IngredientID,
			UsedRate:     int(row.UsedRate.Int64),
			Legacy:       !row.UsedRate.Valid,
		})
	}
	for _, row := range preps {
		mealLog.MealPrepItems = append(mealLog.MealPrepItems, row.MealPrepID)
	}
}

func (r *SQLRepository) UpdateMealLog(ctx context.Context, mealLog *models.MealLog) error {
	res, err := r.db.ExecContext(ctx, r.q(`
		UPDATE meal_logs SET date = ?, meal_type = ?, notes = ? WHERE id = ? AND user_id = ?
	`), mealLog.Date, string(mealLog.MealType), mealLog.Notes, mealLog.ID, mealLog.UserID)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (r *SQLRepository) DeleteMealLog(ctx context.Context, userID, mealLogID string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	owned := `IN (SELECT id FROM meal_logs WHERE id = ? AND user_id = ?)`
	_, err = tx.ExecContext(ctx, tx.Rebind(`DELETE FROM meal_log_ingredients WHERE meal_log_id `+owned), mealLogID, userID)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, tx.Rebind(`DELETE FROM meal_log_meal_preps WHERE meal_log_id `+owned), mealLogID, userID)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM meal_logs WHERE id = ? AND user_id = ?`), mealLogID, userID)
	if err != nil {
		return err
	}
	if err = checkAffected(res); err != nil {
		return err
	}

	return tx.Commit()
}
