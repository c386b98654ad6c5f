package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hrk-pass/household-account-book/internal/ledger"
	"github.com/hrk-pass/household-account-book/internal/models"
	"github.com/hrk-pass/household-account-book/internal/report"
	"go.uber.org/zap"
)

// Meal-prep methods

// CreateMealPrep debits every listed ingredient by its percent and stores
// the batch with the debit that was actually applied. When some debits
// fail the successful ones stay applied and no batch is stored.
func (s *DefaultService) CreateMealPrep(
	ctx context.Context,
	userID string,
	req models.CreateMealPrepRequest,
) (*models.MealPrep, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, invalid("meal prep name is required")
	}
	if _, err := report.ParseDate(req.Date); err != nil {
		return nil, err
	}
	if len(req.ConsumptionUpdates) == 0 {
		return nil, invalid("a meal prep needs at least one ingredient")
	}
	debits, err := ledger.Adjustments(req.ConsumptionUpdates)
	if err != nil {
		return nil, err
	}

	result := s.ledger.Debit(ctx, userID, ledger.KindIngredient, debits)
	s.notify(ctx, userID, models.CollectionExpenses)
	if err := result.Err(); err != nil {
		s.logger.Warn("meal prep not saved", zap.String("userId", userID), zap.Error(err))
		return nil, err
	}

	applied := result.Applied(ledger.KindIngredient)
	mealPrep := &models.MealPrep{
		UserID:                userID,
		Name:                  name,
		Date:                  req.Date,
		Notes:                 req.Notes,
		Ingredients:           []string{},
		IngredientConsumption: map[string]int{},
	}
	for _, d := range debits {
		if delta, ok := applied[d.TargetID]; ok {
			mealPrep.Ingredients = append(mealPrep.Ingredients, d.TargetID)
			mealPrep.IngredientConsumption[d.TargetID] = delta
		}
	}

	if err := s.repo.CreateMealPrep(ctx, mealPrep); err != nil {
		return nil, fmt.Errorf("error creating meal prep: %w", err)
	}

	s.notify(ctx, userID, models.CollectionMealPreps)
	return mealPrep, nil
}

func (s *DefaultService) GetMealPrep(ctx context.Context, userID, mealPrepID string) (*models.MealPrep, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}

	mealPrep, err := s.repo.GetMealPrep(ctx, userID, mealPrepID)
	if err != nil {
		return nil, fmt.Errorf("error getting meal prep: %w", err)
	}
	if mealPrep == nil {
		return nil, fmt.Errorf("meal prep %s: %w", mealPrepID, models.ErrNotFound)
	}
	return mealPrep, nil
}

func (s *DefaultService) ListMealPreps(ctx context.Context, userID string) ([]models.MealPrep, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}

	mealPreps, err := s.repo.ListMealPreps(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing meal preps: %w", err)
	}
	return mealPreps, nil
}

// UpdateMealPrep edits the name, date and notes of a batch.
func (s *DefaultService) UpdateMealPrep(
	ctx context.Context,
	userID string,
	mealPrepID string,
	req models.UpdateMealPrepRequest,
) (*models.MealPrep, error) {
	mealPrep, err := s.GetMealPrep(ctx, userID, mealPrepID)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, invalid("meal prep name is required")
	}
	if _, err := report.ParseDate(req.Date); err != nil {
		return nil, err
	}
	mealPrep.Name = name
	mealPrep.Date = req.Date
	mealPrep.Notes = req.Notes

	if err := s.repo.UpdateMealPrep(ctx, mealPrep); err != nil {
		return nil, fmt.Errorf("error updating meal prep: %w", err)
	}

	s.notify(ctx, userID, models.CollectionMealPreps)
	return mealPrep, nil
}

// DeleteMealPrep deletes the batch and then credits its ingredients back.
// Only the caller whose delete removed the row applies the credits, so a
// batch is reversed at most once. Failed credits are reported through the
// returned *ledger.PartialFailureError.
func (s *DefaultService) DeleteMealPrep(ctx context.Context, userID, mealPrepID string) error {
	mealPrep, err := s.GetMealPrep(ctx, userID, mealPrepID)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteMealPrep(ctx, userID, mealPrepID); err != nil {
		return fmt.Errorf("error deleting meal prep %s: %w", mealPrepID, err)
	}

	// the row is gone; the credits must not be dropped by a cancelled request
	creditCtx := context.WithoutCancel(ctx)
	result := s.ledger.Credit(creditCtx, userID, ledger.KindIngredient, s.ledger.MealPrepReversal(*mealPrep))

	s.notify(creditCtx, userID, models.CollectionExpenses, models.CollectionMealPreps)
	return result.Err()
}

// Meal-log methods

// LogMeal debits the eaten ingredients and meal preps and stores the meal
// with the rates that were actually applied.
func (s *DefaultService) LogMeal(ctx context.Context, userID string, req models.CreateMealLogRequest) (*models.MealLog, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if _, err := report.ParseDate(req.Date); err != nil {
		return nil, err
	}
	if !req.MealType.Valid() {
		return nil, invalid("unknown meal type %q", req.MealType)
	}
	if len(req.Ingredients) == 0 && len(req.MealPreps) == 0 {
		return nil, invalid("a meal needs at least one ingredient or meal prep")
	}
	ingredientDebits, err := ledger.Adjustments(req.Ingredients)
	if err != nil {
		return nil, err
	}
	mealPrepDebits, err := ledger.Adjustments(req.MealPreps)
	if err != nil {
		return nil, err
	}

	result := s.applyBoth(ctx, userID, s.ledger.Debit, ingredientDebits, mealPrepDebits)
	s.notify(ctx, userID, models.CollectionExpenses, models.CollectionMealPreps)
	if err := result.Err(); err != nil {
		s.logger.Warn("meal log not saved", zap.String("userId", userID), zap.Error(err))
		return nil, err
	}

	mealLog := &models.MealLog{
		UserID:        userID,
		Date:          req.Date,
		MealType:      req.MealType,
		Notes:         req.Notes,
		Ingredients:   []models.MealLogIngredient{},
		MealPrepItems: []string{},
	}
	usedRates := result.Applied(ledger.KindIngredient)
	for _, d := range ingredientDebits {
		if used, ok := usedRates[d.TargetID]; ok {
			mealLog.Ingredients = append(mealLog.Ingredients, models.MealLogIngredient{
				IngredientID: d.TargetID,
				UsedRate:     used,
			})
		}
	}
	eaten := result.Applied(ledger.KindMealPrep)
	for _, d := range mealPrepDebits {
		if _, ok := eaten[d.TargetID]; ok {
			mealLog.MealPrepItems = append(mealLog.MealPrepItems, d.TargetID)
		}
	}

	if err := s.repo.CreateMealLog(ctx, mealLog); err != nil {
		return nil, fmt.Errorf("error creating meal log: %w", err)
	}

	s.notify(ctx, userID, models.CollectionMealLogs)
	return mealLog, nil
}

func (s *DefaultService) GetMealLog(ctx context.Context, userID, mealLogID string) (*models.MealLog, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}

	mealLog, err := s.repo.GetMealLog(ctx, userID, mealLogID)
	if err != nil {
		return nil, fmt.Errorf("error getting meal log: %w", err)
	}
	if mealLog == nil {
		return nil, fmt.Errorf("meal log %s: %w", mealLogID, models.ErrNotFound)
	}
	return mealLog, nil
}

// ListMealLogs returns the meal history, newest first, narrowed by filter.
func (s *DefaultService) ListMealLogs(
	ctx context.Context,
	userID string,
	filter models.MealLogFilter,
) ([]models.MealLog, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if filter.MealType != "" && !filter.MealType.Valid() {
		return nil, invalid("unknown meal type %q", filter.MealType)
	}
	if filter.Date != "" {
		if _, err := report.ParseDate(filter.Date); err != nil {
			return nil, err
		}
	}

	mealLogs, err := s.repo.ListMealLogs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing meal logs: %w", err)
	}

	filtered := mealLogs[:0]
	for _, log := range mealLogs {
		if filter.MealType != "" && log.MealType != filter.MealType {
			continue
		}
		if filter.Date != "" && log.Date != filter.Date {
			continue
		}
		filtered = append(filtered, log)
	}
	return filtered, nil
}

// UpdateMealLog edits the date, meal type and notes of a meal. What the
// meal consumed stays as recorded.
func (s *DefaultService) UpdateMealLog(
	ctx context.Context,
	userID string,
	mealLogID string,
	req models.UpdateMealLogRequest,
) (*models.MealLog, error) {
	mealLog, err := s.GetMealLog(ctx, userID, mealLogID)
	if err != nil {
		return nil, err
	}
	if _, err := report.ParseDate(req.Date); err != nil {
		return nil, err
	}
	if !req.MealType.Valid() {
		return nil, invalid("unknown meal type %q", req.MealType)
	}
	mealLog.Date = req.Date
	mealLog.MealType = req.MealType
	mealLog.Notes = req.Notes

	if err := s.repo.UpdateMealLog(ctx, mealLog); err != nil {
		return nil, fmt.Errorf("error updating meal log: %w", err)
	}

	s.notify(ctx, userID, models.CollectionMealLogs)
	return mealLog, nil
}

// DeleteMealLog deletes the meal and then credits back what it consumed,
// once, for the caller whose delete removed the row.
func (s *DefaultService) DeleteMealLog(ctx context.Context, userID, mealLogID string) error {
	mealLog, err := s.GetMealLog(ctx, userID, mealLogID)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteMealLog(ctx, userID, mealLogID); err != nil {
		return fmt.Errorf("error deleting meal log %s: %w", mealLogID, err)
	}

	creditCtx := context.WithoutCancel(ctx)
	ingredientCredits, mealPrepCredits := s.ledger.MealLogReversal(*mealLog)
	result := s.applyBoth(creditCtx, userID, s.ledger.Credit, ingredientCredits, mealPrepCredits)

	s.notify(creditCtx, userID, models.CollectionExpenses, models.CollectionMealPreps, models.CollectionMealLogs)
	return result.Err()
}

type batchFunc func(ctx context.Context, userID string, kind ledger.Kind, adjustments []ledger.Adjustment) ledger.BatchResult

// applyBoth runs the ingredient and meal-prep batches of one event
// concurrently and merges their outcomes.
func (s *DefaultService) applyBoth(
	ctx context.Context,
	userID string,
	fn batchFunc,
	ingredients []ledger.Adjustment,
	mealPreps []ledger.Adjustment,
) ledger.BatchResult {
	var ingredientResult, mealPrepResult ledger.BatchResult
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		ingredientResult = fn(ctx, userID, ledger.KindIngredient, ingredients)
	}()
	go func() {
		defer wg.Done()
		mealPrepResult = fn(ctx, userID, ledger.KindMealPrep, mealPreps)
	}()
	wg.Wait()

	return ingredientResult.Merge(mealPrepResult)
}
