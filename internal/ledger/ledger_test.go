package ledger_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/hrk-pass/household-account-book/internal/ledger"
	"github.com/hrk-pass/household-account-book/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu          sync.Mutex
	ingredients map[string]int
	mealPreps   map[string]int
	used        map[string]bool
	failIDs     map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		ingredients: map[string]int{},
		mealPreps:   map[string]int{},
		used:        map[string]bool{},
		failIDs:     map[string]bool{},
	}
}

var errBoom = errors.New("store unavailable")

func (s *memStore) AdjustIngredientRate(_ context.Context, _ string, id string, fn ledger.RateFunc) (ledger.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failIDs[id] {
		return ledger.Change{}, errBoom
	}
	cur, ok := s.ingredients[id]
	if !ok {
		return ledger.Change{}, models.ErrNotFound
	}
	next := fn(cur)
	s.ingredients[id] = next
	return ledger.Change{Before: cur, After: next}, nil
}

func (s *memStore) AdjustMealPrepRate(_ context.Context, _ string, id string, fn ledger.RateFunc) (ledger.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failIDs[id] {
		return ledger.Change{}, errBoom
	}
	cur, ok := s.mealPreps[id]
	if !ok {
		return ledger.Change{}, models.ErrNotFound
	}
	next := fn(cur)
	s.mealPreps[id] = next
	s.used[id] = ledger.IsUsed(next)
	return ledger.Change{Before: cur, After: next}, nil
}

func TestRateHelpers(t *testing.T) {
	assert.Equal(t, 100, ledger.Debit(95, 20))
	assert.Equal(t, 0, ledger.Credit(5, 10))
	assert.Equal(t, 40, ledger.Debit(40, -10), "debit never lowers")
	assert.Equal(t, 40, ledger.Credit(40, -10), "credit never raises")
	assert.Equal(t, 0, ledger.Clamp(-3))
	assert.Equal(t, 100, ledger.Clamp(130))
	assert.True(t, ledger.IsUsed(100))
	assert.False(t, ledger.IsUsed(99))
}

func TestHugePercentsSaturate(t *testing.T) {
	assert.Equal(t, 100, ledger.Debit(50, math.MaxInt-10))
	assert.Equal(t, 100, ledger.Debit(0, math.MaxInt))
	assert.Equal(t, 0, ledger.Credit(50, math.MaxInt))
	assert.Equal(t, 0, ledger.Credit(100, math.MaxInt))

	adjs, err := ledger.Adjustments(map[string]int{"a": math.MaxInt, " a": math.MaxInt})
	require.NoError(t, err)
	assert.Equal(t, []ledger.Adjustment{{TargetID: "a", Percent: math.MaxInt}}, adjs)

	store := newMemStore()
	store.ingredients["a"] = 50
	res := ledger.New(store).Debit(context.Background(), "u1", ledger.KindIngredient, adjs)
	require.NoError(t, res.Err())
	assert.Equal(t, 100, store.ingredients["a"])
	assert.Equal(t, map[string]int{"a": 50}, res.Applied(ledger.KindIngredient))
}

func TestAdjustmentsValidation(t *testing.T) {
	adjs, err := ledger.Adjustments(map[string]int{"b": 10, "a": 0})
	require.NoError(t, err)
	assert.Equal(t, []ledger.Adjustment{{TargetID: "a", Percent: 0}, {TargetID: "b", Percent: 10}}, adjs)

	_, err = ledger.Adjustments(map[string]int{"a": -10})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = ledger.Adjustments(map[string]int{" ": 10})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	adjs, err = ledger.Adjustments(map[string]int{"a": 10, " a ": 5})
	require.NoError(t, err)
	assert.Equal(t, []ledger.Adjustment{{TargetID: "a", Percent: 15}}, adjs)
}

func TestDebitClampsAndSkipsMissing(t *testing.T) {
	store := newMemStore()
	store.ingredients["a"] = 95
	store.ingredients["b"] = 0
	l := ledger.New(store)

	res := l.Debit(context.Background(), "u1", ledger.KindIngredient, []ledger.Adjustment{
		{TargetID: "a", Percent: 20},
		{TargetID: "b", Percent: 30},
		{TargetID: "gone", Percent: 10},
	})

	require.NoError(t, res.Err())
	assert.Equal(t, 100, store.ingredients["a"])
	assert.Equal(t, 30, store.ingredients["b"])
	assert.True(t, res.Outcomes[2].Skipped)
	assert.Equal(t, map[string]int{"a": 5, "b": 30}, res.Applied(ledger.KindIngredient))
}

func TestDebitRepeatedStaysInRange(t *testing.T) {
	store := newMemStore()
	store.ingredients["a"] = 0
	l := ledger.New(store)

	for i := 0; i < 15; i++ {
		res := l.Debit(context.Background(), "u1", ledger.KindIngredient, []ledger.Adjustment{{TargetID: "a", Percent: 10}})
		require.NoError(t, res.Err())
		assert.GreaterOrEqual(t, store.ingredients["a"], 0)
		assert.LessOrEqual(t, store.ingredients["a"], 100)
	}
	assert.Equal(t, 100, store.ingredients["a"])
}

func TestCreditFloorsAtZero(t *testing.T) {
	store := newMemStore()
	store.ingredients["a"] = 5
	l := ledger.New(store)

	res := l.Credit(context.Background(), "u1", ledger.KindIngredient, []ledger.Adjustment{{TargetID: "a", Percent: 10}})
	require.NoError(t, res.Err())
	assert.Equal(t, 0, store.ingredients["a"])
}

func TestMealPrepIsUsedTracksRate(t *testing.T) {
	store := newMemStore()
	store.mealPreps["p"] = 80
	l := ledger.New(store)
	ctx := context.Background()

	l.Debit(ctx, "u1", ledger.KindMealPrep, []ledger.Adjustment{{TargetID: "p", Percent: 30}})
	assert.Equal(t, 100, store.mealPreps["p"])
	assert.True(t, store.used["p"])

	l.Credit(ctx, "u1", ledger.KindMealPrep, []ledger.Adjustment{{TargetID: "p", Percent: 10}})
	assert.Equal(t, 90, store.mealPreps["p"])
	assert.False(t, store.used["p"])
}

func TestPartialFailureKeepsSuccessfulWrites(t *testing.T) {
	store := newMemStore()
	store.ingredients["a"] = 10
	store.ingredients["b"] = 10
	store.failIDs["b"] = true
	l := ledger.New(store)

	res := l.Debit(context.Background(), "u1", ledger.KindIngredient, []ledger.Adjustment{
		{TargetID: "a", Percent: 20},
		{TargetID: "b", Percent: 20},
	})

	err := res.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrPartialFailure)

	var pf *ledger.PartialFailureError
	require.ErrorAs(t, err, &pf)
	require.Len(t, pf.Result.Failed(), 1)
	assert.Equal(t, "b", pf.Result.Failed()[0].TargetID)
	assert.Equal(t, 30, store.ingredients["a"])
	assert.Equal(t, 10, store.ingredients["b"])
}

func TestMealPrepReversalExact(t *testing.T) {
	store := newMemStore()
	store.ingredients["A"] = 50
	store.ingredients["B"] = 40
	l := ledger.New(store)
	ctx := context.Background()

	adjs, err := ledger.Adjustments(map[string]int{"A": 30, "B": 20})
	require.NoError(t, err)
	res := l.Debit(ctx, "u1", ledger.KindIngredient, adjs)
	require.NoError(t, res.Err())
	assert.Equal(t, 80, store.ingredients["A"])
	assert.Equal(t, 60, store.ingredients["B"])

	mp := models.MealPrep{
		Ingredients:           []string{"A", "B"},
		IngredientConsumption: res.Applied(ledger.KindIngredient),
	}
	res = l.Credit(ctx, "u1", ledger.KindIngredient, l.MealPrepReversal(mp))
	require.NoError(t, res.Err())
	assert.Equal(t, 50, store.ingredients["A"])
	assert.Equal(t, 40, store.ingredients["B"])
}

func TestMealPrepReversalLegacy(t *testing.T) {
	store := newMemStore()
	store.ingredients["A"] = 70
	store.ingredients["B"] = 25
	l := ledger.New(store)

	mp := models.MealPrep{Ingredients: []string{"A", "B"}, ConsumptionRate: 40}
	res := l.Credit(context.Background(), "u1", ledger.KindIngredient, l.MealPrepReversal(mp))
	require.NoError(t, res.Err())
	assert.Equal(t, 30, store.ingredients["A"])
	assert.Equal(t, 0, store.ingredients["B"])
}

func TestMealPrepReversalSkipsZeroEntries(t *testing.T) {
	l := ledger.New(newMemStore())
	mp := models.MealPrep{
		Ingredients:           []string{"A", "B"},
		IngredientConsumption: map[string]int{"A": 0, "B": 20},
	}
	assert.Equal(t, []ledger.Adjustment{{TargetID: "B", Percent: 20}}, l.MealPrepReversal(mp))
}

func TestMealLogReversal(t *testing.T) {
	l := ledger.New(newMemStore(), ledger.WithMealPrepCreditStep(15), ledger.WithLegacyIngredientCreditStep(10))
	log := models.MealLog{
		Ingredients: []models.MealLogIngredient{
			{IngredientID: "X", UsedRate: 20},
			{IngredientID: "Y", Legacy: true},
			{IngredientID: "Z", UsedRate: 0},
		},
		MealPrepItems: []string{"P"},
	}

	ings, preps := l.MealLogReversal(log)
	assert.Equal(t, []ledger.Adjustment{{TargetID: "X", Percent: 20}, {TargetID: "Y", Percent: 10}}, ings)
	assert.Equal(t, []ledger.Adjustment{{TargetID: "P", Percent: 15}}, preps)
}

func TestMealLogRoundTrip(t *testing.T) {
	store := newMemStore()
	store.ingredients["X"] = 0
	store.ingredients["Y"] = 0
	l := ledger.New(store)
	ctx := context.Background()

	adjs, err := ledger.Adjustments(map[string]int{"X": 20, "Y": 10})
	require.NoError(t, err)
	res := l.Debit(ctx, "u1", ledger.KindIngredient, adjs)
	require.NoError(t, res.Err())
	assert.Equal(t, 20, store.ingredients["X"])
	assert.Equal(t, 10, store.ingredients["Y"])

	log := models.MealLog{}
	for id, delta := range res.Applied(ledger.KindIngredient) {
		log.Ingredients = append(log.Ingredients, models.MealLogIngredient{IngredientID: id, UsedRate: delta})
	}
	ings, _ := l.MealLogReversal(log)
	require.NoError(t, l.Credit(ctx, "u1", ledger.KindIngredient, ings).Err())
	assert.Equal(t, 0, store.ingredients["X"])
	assert.Equal(t, 0, store.ingredients["Y"])
}

func TestCanceledContextFailsItems(t *testing.T) {
	store := newMemStore()
	store.ingredients["a"] = 10
	l := ledger.New(store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := l.Debit(ctx, "u1", ledger.KindIngredient, []ledger.Adjustment{{TargetID: "a", Percent: 10}})
	assert.ErrorIs(t, res.Err(), models.ErrPartialFailure)
	assert.ErrorIs(t, res.Failed()[0].Err, context.Canceled)
	assert.Equal(t, 10, store.ingredients["a"])
}
