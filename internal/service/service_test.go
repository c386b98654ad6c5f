package service_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hrk-pass/household-account-book/internal/config"
	"github.com/hrk-pass/household-account-book/internal/ledger"
	"github.com/hrk-pass/household-account-book/internal/models"
	"github.com/hrk-pass/household-account-book/internal/repository"
	"github.com/hrk-pass/household-account-book/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyRepo fails rate updates of the listed ids. When gate is set, every
// meal-prep and meal-log read waits until all gated readers have read.
type flakyRepo struct {
	*repository.SQLRepository
	failIDs map[string]bool
	gate    *sync.WaitGroup
}

func (r *flakyRepo) GetMealPrep(ctx context.Context, userID, id string) (*models.MealPrep, error) {
	mp, err := r.SQLRepository.GetMealPrep(ctx, userID, id)
	r.wait()
	return mp, err
}

func (r *flakyRepo) GetMealLog(ctx context.Context, userID, id string) (*models.MealLog, error) {
	log, err := r.SQLRepository.GetMealLog(ctx, userID, id)
	r.wait()
	return log, err
}

func (r *flakyRepo) wait() {
	if r.gate != nil {
		r.gate.Done()
		r.gate.Wait()
	}
}

func (r *flakyRepo) AdjustIngredientRate(ctx context.Context, userID, id string, fn ledger.RateFunc) (ledger.Change, error) {
	if r.failIDs[id] {
		return ledger.Change{}, errors.New("write rejected")
	}
	return r.SQLRepository.AdjustIngredientRate(ctx, userID, id, fn)
}

type recordingNotifier struct {
	mu        sync.Mutex
	published []models.Collection
}

func (n *recordingNotifier) Publish(_ context.Context, _ string, collections ...models.Collection) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.published = append(n.published, collections...)
	return nil
}

func (n *recordingNotifier) has(c models.Collection) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, p := range n.published {
		if p == c {
			return true
		}
	}
	return false
}

type testEnv struct {
	svc      service.Service
	repo     *flakyRepo
	notifier *recordingNotifier
	userID   string
}

func setup(t *testing.T) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Database.Driver = config.DriverSQLite
	cfg.Database.Path = filepath.Join(t.TempDir(), "household.db")
	db, err := config.SetupDatabase(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := &flakyRepo{SQLRepository: repository.NewSQLRepository(db), failIDs: map[string]bool{}}
	notifier := &recordingNotifier{}
	svc := service.NewDefaultService(repo, "test-secret",
		service.WithLedger(ledger.New(repo)),
		service.WithNotifier(notifier),
	)

	resp, err := svc.SignUp(context.Background(), models.SignUpRequest{
		Email: "cook@example.com", Password: "password123", Name: "Cook",
	})
	require.NoError(t, err)

	return &testEnv{svc: svc, repo: repo, notifier: notifier, userID: resp.UserID}
}

func (e *testEnv) ingredient(t *testing.T, desc string) string {
	t.Helper()
	exp, err := e.svc.CreateExpense(context.Background(), e.userID, models.ExpenseRequest{
		Date:        "2025-06-01",
		Amount:      decimal.NewFromInt(300),
		Description: desc,
		SubCategory: models.SubCategoryIngredient,
	})
	require.NoError(t, err)
	return exp.ID
}

func (e *testEnv) rate(t *testing.T, id string) int {
	t.Helper()
	exp, err := e.svc.GetExpense(context.Background(), e.userID, id)
	require.NoError(t, err)
	return exp.ConsumptionRate
}

func (e *testEnv) mealPrepRate(t *testing.T, id string) (int, bool) {
	t.Helper()
	mp, err := e.svc.GetMealPrep(context.Background(), e.userID, id)
	require.NoError(t, err)
	return mp.ConsumptionRate, mp.IsUsed
}

func TestEndToEndScenario(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	a := env.ingredient(t, "Chicken")

	mp, err := env.svc.CreateMealPrep(ctx, env.userID, models.CreateMealPrepRequest{
		Name: "Curry", Date: "2025-06-02", ConsumptionUpdates: map[string]int{a: 60},
	})
	require.NoError(t, err)
	assert.Equal(t, 60, env.rate(t, a))
	assert.Equal(t, map[string]int{a: 60}, mp.IngredientConsumption)

	log, err := env.svc.LogMeal(ctx, env.userID, models.CreateMealLogRequest{
		Date: "2025-06-03", MealType: models.MealTypeDinner, MealPreps: map[string]int{mp.ID: 50},
	})
	require.NoError(t, err)
	rate, used := env.mealPrepRate(t, mp.ID)
	assert.Equal(t, 50, rate)
	assert.False(t, used)

	require.NoError(t, env.svc.DeleteMealLog(ctx, env.userID, log.ID))
	rate, _ = env.mealPrepRate(t, mp.ID)
	assert.Equal(t, 40, rate)

	require.NoError(t, env.svc.DeleteMealPrep(ctx, env.userID, mp.ID))
	assert.Equal(t, 0, env.rate(t, a))

	_, err = env.svc.GetMealPrep(ctx, env.userID, mp.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.True(t, env.notifier.has(models.CollectionMealLogs))
}

func TestCreateMealPrepRecordsAppliedDebit(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	a := env.ingredient(t, "Onion")
	b := env.ingredient(t, "Carrot")

	_, err := env.svc.CreateMealPrep(ctx, env.userID, models.CreateMealPrepRequest{
		Name: "Soup", Date: "2025-06-02", ConsumptionUpdates: map[string]int{a: 70},
	})
	require.NoError(t, err)

	mp, err := env.svc.CreateMealPrep(ctx, env.userID, models.CreateMealPrepRequest{
		Name: "Stew", Date: "2025-06-03", ConsumptionUpdates: map[string]int{a: 50, b: 20, "missing": 10},
	})
	require.NoError(t, err)
	assert.Equal(t, 100, env.rate(t, a))
	assert.ElementsMatch(t, []string{a, b}, mp.Ingredients)
	assert.Equal(t, 30, mp.IngredientConsumption[a])
	assert.Equal(t, 20, mp.IngredientConsumption[b])

	// deleting the second batch restores exactly what it took
	require.NoError(t, env.svc.DeleteMealPrep(ctx, env.userID, mp.ID))
	assert.Equal(t, 70, env.rate(t, a))
	assert.Equal(t, 0, env.rate(t, b))
}

func TestAvailability(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	a := env.ingredient(t, "Tofu")
	b := env.ingredient(t, "Leek")
	_, err := env.svc.CreateExpense(ctx, env.userID, models.ExpenseRequest{
		Date: "2025-06-01", Amount: decimal.NewFromInt(100), Description: "Soap",
		SubCategory: models.SubCategoryConsumable,
	})
	require.NoError(t, err)

	mp, err := env.svc.CreateMealPrep(ctx, env.userID, models.CreateMealPrepRequest{
		Name: "Miso", Date: "2025-06-02", ConsumptionUpdates: map[string]int{a: 100},
	})
	require.NoError(t, err)

	ings, err := env.svc.AvailableIngredients(ctx, env.userID)
	require.NoError(t, err)
	require.Len(t, ings, 1)
	assert.Equal(t, b, ings[0].ID)

	_, err = env.svc.LogMeal(ctx, env.userID, models.CreateMealLogRequest{
		Date: "2025-06-03", MealType: models.MealTypeLunch, MealPreps: map[string]int{mp.ID: 100},
	})
	require.NoError(t, err)
	rate, used := env.mealPrepRate(t, mp.ID)
	assert.Equal(t, 100, rate)
	assert.True(t, used)

	preps, err := env.svc.AvailableMealPreps(ctx, env.userID)
	require.NoError(t, err)
	assert.Empty(t, preps)
}

func TestLogMealRoundTrip(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	a := env.ingredient(t, "Egg")

	log, err := env.svc.LogMeal(ctx, env.userID, models.CreateMealLogRequest{
		Date: "2025-06-03", MealType: models.MealTypeBreakfast, Ingredients: map[string]int{a: 25},
	})
	require.NoError(t, err)
	assert.Equal(t, []models.MealLogIngredient{{IngredientID: a, UsedRate: 25}}, log.Ingredients)
	assert.Equal(t, 25, env.rate(t, a))

	require.NoError(t, env.svc.DeleteMealLog(ctx, env.userID, log.ID))
	assert.Equal(t, 0, env.rate(t, a))
}

func TestPartialFailureLeavesAppliedDebitsAndSavesNothing(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	a := env.ingredient(t, "Pork")
	b := env.ingredient(t, "Cabbage")
	env.repo.failIDs[b] = true

	_, err := env.svc.CreateMealPrep(ctx, env.userID, models.CreateMealPrepRequest{
		Name: "Gyoza", Date: "2025-06-02", ConsumptionUpdates: map[string]int{a: 40, b: 40},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrPartialFailure)

	var pf *ledger.PartialFailureError
	require.ErrorAs(t, err, &pf)
	require.Len(t, pf.Result.Failed(), 1)
	assert.Equal(t, b, pf.Result.Failed()[0].TargetID)

	assert.Equal(t, 40, env.rate(t, a))
	preps, err := env.svc.ListMealPreps(ctx, env.userID)
	require.NoError(t, err)
	assert.Empty(t, preps)
}

func TestDeleteReportsFailedCreditsButDeletes(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	a := env.ingredient(t, "Beef")

	mp, err := env.svc.CreateMealPrep(ctx, env.userID, models.CreateMealPrepRequest{
		Name: "Bolognese", Date: "2025-06-02", ConsumptionUpdates: map[string]int{a: 50},
	})
	require.NoError(t, err)

	env.repo.failIDs[a] = true
	err = env.svc.DeleteMealPrep(ctx, env.userID, mp.ID)
	assert.ErrorIs(t, err, models.ErrPartialFailure)

	_, err = env.svc.GetMealPrep(ctx, env.userID, mp.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Equal(t, 50, env.rate(t, a))
}

// deleteTwice runs del from two goroutines that both read the record
// before either deletes it.
func deleteTwice(env *testEnv, del func() error) []error {
	gate := &sync.WaitGroup{}
	gate.Add(2)
	env.repo.gate = gate

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = del()
		}(i)
	}
	wg.Wait()
	env.repo.gate = nil
	return errs
}

func assertDeletedOnce(t *testing.T, errs []error) {
	t.Helper()
	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, models.ErrNotFound)
	}
	assert.Equal(t, 1, succeeded)
}

func TestConcurrentDeletesCreditOnce(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	a := env.ingredient(t, "Pumpkin")

	_, err := env.svc.CreateMealPrep(ctx, env.userID, models.CreateMealPrepRequest{
		Name: "Soup", Date: "2025-06-02", ConsumptionUpdates: map[string]int{a: 30},
	})
	require.NoError(t, err)
	mp, err := env.svc.CreateMealPrep(ctx, env.userID, models.CreateMealPrepRequest{
		Name: "Tempura", Date: "2025-06-03", ConsumptionUpdates: map[string]int{a: 30},
	})
	require.NoError(t, err)
	log, err := env.svc.LogMeal(ctx, env.userID, models.CreateMealLogRequest{
		Date: "2025-06-04", MealType: models.MealTypeLunch, Ingredients: map[string]int{a: 10},
	})
	require.NoError(t, err)
	require.Equal(t, 70, env.rate(t, a))

	errs := deleteTwice(env, func() error { return env.svc.DeleteMealLog(ctx, env.userID, log.ID) })
	assertDeletedOnce(t, errs)
	assert.Equal(t, 60, env.rate(t, a))

	errs = deleteTwice(env, func() error { return env.svc.DeleteMealPrep(ctx, env.userID, mp.ID) })
	assertDeletedOnce(t, errs)
	assert.Equal(t, 30, env.rate(t, a))
}

func TestValidation(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	a := env.ingredient(t, "Rice")

	_, err := env.svc.CreateMealPrep(ctx, env.userID, models.CreateMealPrepRequest{
		Name: "Onigiri", Date: "2025-06-02", ConsumptionUpdates: map[string]int{a: -5},
	})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	assert.Equal(t, 0, env.rate(t, a))

	_, err = env.svc.CreateMealPrep(ctx, env.userID, models.CreateMealPrepRequest{
		Name: " ", Date: "2025-06-02", ConsumptionUpdates: map[string]int{a: 5},
	})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = env.svc.LogMeal(ctx, env.userID, models.CreateMealLogRequest{
		Date: "2025-06-02", MealType: "Brunch", Ingredients: map[string]int{a: 5},
	})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = env.svc.CreateExpense(ctx, env.userID, models.ExpenseRequest{
		Date: "06/02/2025", Amount: decimal.NewFromInt(1), Description: "x",
	})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestUnauthenticated(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	_, err := env.svc.ListExpenses(ctx, "")
	assert.ErrorIs(t, err, models.ErrUnauthenticated)
	_, err = env.svc.CreateMealPrep(ctx, "", models.CreateMealPrepRequest{Name: "x", Date: "2025-06-01"})
	assert.ErrorIs(t, err, models.ErrUnauthenticated)
	_, err = env.svc.LogMeal(ctx, "", models.CreateMealLogRequest{})
	assert.ErrorIs(t, err, models.ErrUnauthenticated)
	assert.ErrorIs(t, env.svc.DeleteMealLog(ctx, "", "id"), models.ErrUnauthenticated)
	assert.ErrorIs(t, env.svc.DeleteMealPrep(ctx, "", "id"), models.ErrUnauthenticated)
}

func TestDefaultCategoriesAndReports(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	categories, err := env.svc.ListCategories(ctx, env.userID)
	require.NoError(t, err)
	require.Len(t, categories, 6)

	again, err := env.svc.ListCategories(ctx, env.userID)
	require.NoError(t, err)
	assert.Len(t, again, 6)

	food := categories[0].ID
	_, err = env.svc.CreateExpense(ctx, env.userID, models.ExpenseRequest{
		Date: "2025-06-10", Amount: decimal.NewFromInt(800), Description: "Lunch", CategoryID: &food,
	})
	require.NoError(t, err)

	monthly, err := env.svc.MonthlyReport(ctx, env.userID, "2025-06")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(800).Equal(monthly.Total))
	require.Len(t, monthly.Categories, 1)
	assert.Equal(t, categories[0].Name, monthly.Categories[0].Name)

	_, err = env.svc.DailyReport(ctx, env.userID, "2025-13")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestAuth(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	_, err := env.svc.SignUp(ctx, models.SignUpRequest{Email: "cook@example.com", Password: "password123", Name: "Again"})
	assert.ErrorIs(t, err, models.ErrConflict)

	resp, err := env.svc.Login(ctx, models.LoginRequest{Email: "cook@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, env.userID, resp.UserID)

	_, err = env.svc.Login(ctx, models.LoginRequest{Email: "cook@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, models.ErrUnauthenticated)
}
