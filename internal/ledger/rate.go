package ledger

const (
	MinRate = 0
	MaxRate = 100

	// DefaultMealPrepCreditStep is credited back to a meal prep for every
	// deleted meal log that ate from it. Meal logs do not record how much
	// of a batch they ate, so the reversal is approximate.
	DefaultMealPrepCreditStep = 10
	// DefaultLegacyIngredientCreditStep is credited back to an ingredient
	// of a deleted meal log that predates per-ingredient used rates.
	DefaultLegacyIngredientCreditStep = 10
)

// Clamp forces rate into [MinRate, MaxRate].
func Clamp(rate int) int {
	if rate < MinRate {
		return MinRate
	}
	if rate > MaxRate {
		return MaxRate
	}
	return rate
}

// Debit adds percent to current, capped at MaxRate. It never lowers a rate.
func Debit(current, percent int) int {
	current = Clamp(current)
	if percent <= 0 {
		return current
	}
	if percent >= MaxRate-current {
		return MaxRate
	}
	return current + percent
}

// Credit subtracts percent from current, floored at MinRate. It never
// raises a rate.
func Credit(current, percent int) int {
	current = Clamp(current)
	if percent <= 0 {
		return current
	}
	if percent >= current-MinRate {
		return MinRate
	}
	return current - percent
}

// IsUsed reports whether a rate means fully consumed.
func IsUsed(rate int) bool {
	return rate >= MaxRate
}

// RateFunc maps the stored rate to the rate to write back.
type RateFunc func(current int) int

// DebitBy returns a RateFunc that debits percent.
func DebitBy(percent int) RateFunc {
	return func(current int) int { return Debit(current, percent) }
}

// CreditBy returns a RateFunc that credits percent.
func CreditBy(percent int) RateFunc {
	return func(current int) int { return Credit(current, percent) }
}

// Change is the stored rate before and after one adjustment.
type Change struct {
	Before int
	After  int
}

// Delta is the amount actually moved by the adjustment.
func (c Change) Delta() int {
	return c.After - c.Before
}
