package matcher

import (
	"strings"
	"time"

	"deduction-matching-service/internal/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type tier struct {
	limit  float64
	points int
}

// amountTiers are checked in order; a percentage difference strictly below limit earns points
var amountTiers = []tier{
	{0.1, 38},
	{0.5, 35},
	{1, 30},
	{2, 25},
	{5, 15},
	{10, 5},
}

// dateTiers are checked in order; a day distance at or below limit earns points
var dateTiers = []tier{
	{0, 15},
	{1, 13},
	{3, 11},
	{7, 9},
	{14, 6},
	{30, 3},
}

var referenceTiers = []tier{
	{90, 10},
	{80, 7},
	{70, 4},
}

var descriptionTiers = []tier{
	{80, 9},
	{60, 7},
	{40, 5},
	{20, 3},
}

// ScoreAmount awards up to 40 points by the percentage difference between the two amounts.
// A missing or zero amount on either side scores 0.
func ScoreAmount(deduction, transaction decimal.NullDecimal) int {
	if !deduction.Valid || !transaction.Valid {
		return 0
	}
	if deduction.Decimal.IsZero() || transaction.Decimal.IsZero() {
		return 0
	}

	diff := deduction.Decimal.Sub(transaction.Decimal).Abs()
	if diff.IsZero() {
		return models.MaxAmountScore
	}

	base := decimal.Max(deduction.Decimal.Abs(), transaction.Decimal.Abs())
	percent, _ := diff.Div(base).Mul(hundred).Float64()

	for _, t := range amountTiers {
		if percent < t.limit {
			return t.points
		}
	}
	return 0
}

// ScoreCustomer awards 20 points when both trimmed customer identifiers are equal
func ScoreCustomer(deduction, transaction string) int {
	a := strings.TrimSpace(deduction)
	b := strings.TrimSpace(transaction)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return models.MaxCustomerScore
	}
	return 0
}

// ScoreDate awards up to 15 points by the distance in calendar days between the two dates
func ScoreDate(deduction, transaction *time.Time) int {
	if deduction == nil || transaction == nil || deduction.IsZero() || transaction.IsZero() {
		return 0
	}

	days := DaysBetween(*deduction, *transaction)
	for _, t := range dateTiers {
		if float64(days) <= t.limit {
			return t.points
		}
	}
	return 0
}

// DaysBetween returns the absolute number of calendar days separating a and b
func DaysBetween(a, b time.Time) int {
	hours := models.CalendarDay(a).Sub(models.CalendarDay(b)).Hours()
	if hours < 0 {
		hours = -hours
	}
	return int(hours / 24)
}

// ScoreReference awards up to 15 points for a deduction reference against a transaction number
func ScoreReference(deduction, transaction string) int {
	a := normalizeText(deduction)
	b := normalizeText(transaction)
	if a == "" || b == "" {
		return 0
	}

	if a == b {
		return models.MaxReferenceScore
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 12
	}

	similarity := EditSimilarity(a, b)
	for _, t := range referenceTiers {
		if similarity >= t.limit {
			return t.points
		}
	}
	return 0
}

// ScoreDescription awards up to 10 points for description equality or word overlap
func ScoreDescription(deduction, transaction string) int {
	a := normalizeText(deduction)
	b := normalizeText(transaction)
	if a == "" || b == "" {
		return 0
	}

	if a == b {
		return models.MaxDescriptionScore
	}

	overlap := WordOverlap(a, b)
	for _, t := range descriptionTiers {
		if overlap >= t.limit {
			return t.points
		}
	}
	return 0
}
