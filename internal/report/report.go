// Package report aggregates expenses into monthly, weekly and daily
// summaries.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hrk-pass/household-account-book/internal/models"
	"github.com/shopspring/decimal"
)

const (
	monthLayout = "2006-01"
	dateLayout  = "2006-01-02"

	UncategorizedName  = "Uncategorized"
	UncategorizedColor = "#CCCCCC"
)

var hundred = decimal.NewFromInt(100)

// CategoryTotal is the spending of one category within a period.
type CategoryTotal struct {
	CategoryID string          `json:"categoryId,omitempty"`
	Name       string          `json:"name"`
	Color      string          `json:"color"`
	Amount     decimal.Decimal `json:"amount"`
	Count      int             `json:"count"`
	Percentage decimal.Decimal `json:"percentage"`
}

type MonthlySummary struct {
	Month            string          `json:"month"`
	Total            decimal.Decimal `json:"total"`
	Count            int             `json:"count"`
	Categories       []CategoryTotal `json:"categories"`
	PreviousTotal    decimal.Decimal `json:"previousTotal"`
	Change           decimal.Decimal `json:"change"`
	ChangePercentage decimal.Decimal `json:"changePercentage"`
}

type WeeklySummary struct {
	Start      string           `json:"start"`
	End        string           `json:"end"`
	Total      decimal.Decimal  `json:"total"`
	Expenses   []models.Expense `json:"expenses"`
	Categories []CategoryTotal  `json:"categories"`
}

type DailyPoint struct {
	Date   string          `json:"date"`
	Amount decimal.Decimal `json:"amount"`
	Count  int             `json:"count"`
}

type DailySummary struct {
	Month            string          `json:"month"`
	Days             []DailyPoint    `json:"days"`
	Average          decimal.Decimal `json:"average"`
	Max              decimal.Decimal `json:"max"`
	DaysWithExpenses int             `json:"daysWithExpenses"`
}

// ParseMonth parses a YYYY-MM month.
func ParseMonth(month string) (time.Time, error) {
	t, err := time.Parse(monthLayout, month)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: month %q must be YYYY-MM", models.ErrInvalidInput, month)
	}
	return t, nil
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(date string) (time.Time, error) {
	t, err := time.Parse(dateLayout, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", models.ErrInvalidInput, date)
	}
	return t, nil
}

// Monthly summarizes the expenses dated in month and compares the total
// with the month before.
func Monthly(expenses []models.Expense, categories []models.Category, month string) (*MonthlySummary, error) {
	start, err := ParseMonth(month)
	if err != nil {
		return nil, err
	}
	previous := start.AddDate(0, -1, 0).Format(monthLayout)

	current := filter(expenses, func(e models.Expense) bool { return inMonth(e, month) })
	total := sum(current)
	previousTotal := sum(filter(expenses, func(e models.Expense) bool { return inMonth(e, previous) }))

	summary := &MonthlySummary{
		Month:            month,
		Total:            total,
		Count:            len(current),
		Categories:       breakdown(current, categories, total),
		PreviousTotal:    previousTotal,
		Change:           total.Sub(previousTotal),
		ChangePercentage: decimal.Zero,
	}
	if previousTotal.IsPositive() {
		summary.ChangePercentage = summary.Change.Div(previousTotal).Mul(hundred).Round(1)
	}
	return summary, nil
}

// Weekly lists the expenses of the seven days starting at start, newest
// first.
func Weekly(expenses []models.Expense, categories []models.Category, start string) (*WeeklySummary, error) {
	from, err := ParseDate(start)
	if err != nil {
		return nil, err
	}
	end := from.AddDate(0, 0, 6).Format(dateLayout)

	week := filter(expenses, func(e models.Expense) bool {
		return e.Date >= start && e.Date <= end
	})
	sort.SliceStable(week, func(i, j int) bool {
		return week[i].Date > week[j].Date
	})
	total := sum(week)

	return &WeeklySummary{
		Start:      start,
		End:        end,
		Total:      total,
		Expenses:   week,
		Categories: breakdown(week, categories, total),
	}, nil
}

// Daily returns one point per calendar day of month.
func Daily(expenses []models.Expense, month string) (*DailySummary, error) {
	start, err := ParseMonth(month)
	if err != nil {
		return nil, err
	}
	days := start.AddDate(0, 1, -1).Day()

	byDate := make(map[string]*DailyPoint, days)
	points := make([]DailyPoint, days)
	for i := range points {
		points[i] = DailyPoint{Date: start.AddDate(0, 0, i).Format(dateLayout), Amount: decimal.Zero}
		byDate[points[i].Date] = &points[i]
	}

	total := decimal.Zero
	for _, e := range expenses {
		p, ok := byDate[e.Date]
		if !ok {
			continue
		}
		p.Amount = p.Amount.Add(e.Amount)
		p.Count++
		total = total.Add(e.Amount)
	}

	summary := &DailySummary{
		Month:   month,
		Days:    points,
		Average: total.Div(decimal.NewFromInt(int64(days))).Round(2),
		Max:     decimal.Zero,
	}
	for _, p := range points {
		if p.Amount.GreaterThan(summary.Max) {
			summary.Max = p.Amount
		}
		if p.Count > 0 {
			summary.DaysWithExpenses++
		}
	}
	return summary, nil
}

func breakdown(expenses []models.Expense, categories []models.Category, total decimal.Decimal) []CategoryTotal {
	byID := make(map[string]models.Category, len(categories))
	for _, c := range categories {
		byID[c.ID] = c
	}

	totals := make(map[string]*CategoryTotal)
	var order []string
	for _, e := range expenses {
		// unknown or deleted categories fall into the uncategorized bucket
		key := ""
		if e.CategoryID != nil {
			if _, known := byID[*e.CategoryID]; known {
				key = *e.CategoryID
			}
		}
		ct, ok := totals[key]
		if !ok {
			ct = &CategoryTotal{Name: UncategorizedName, Color: UncategorizedColor, Amount: decimal.Zero}
			if c, known := byID[key]; known && key != "" {
				ct.CategoryID = c.ID
				ct.Name = c.Name
				ct.Color = c.Color
			}
			totals[key] = ct
			order = append(order, key)
		}
		ct.Amount = ct.Amount.Add(e.Amount)
		ct.Count++
	}

	out := make([]CategoryTotal, 0, len(order))
	for _, key := range order {
		ct := *totals[key]
		ct.Percentage = decimal.Zero
		if total.IsPositive() {
			ct.Percentage = ct.Amount.Div(total).Mul(hundred).Round(1)
		}
		out = append(out, ct)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Amount.Equal(out[j].Amount) {
			return out[i].Amount.GreaterThan(out[j].Amount)
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func inMonth(e models.Expense, month string) bool {
	return strings.HasPrefix(e.Date, month+"-")
}

func filter(expenses []models.Expense, keep func(models.Expense) bool) []models.Expense {
	out := []models.Expense{}
	for _, e := range expenses {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func sum(expenses []models.Expense) decimal.Decimal {
	total := decimal.Zero
	for _, e := range expenses {
		total = total.Add(e.Amount)
	}
	return total
}
