package matcher

import "deduction-matching-service/internal/models"

// Score is the composite score of one (deduction, transaction) pair
type Score struct {
	Total     int
	Breakdown models.ScoreBreakdown
}

// ScorePair evaluates all five factors and clamps their sum to [0,100].
// Absent values degrade the affected factor to 0; it never fails.
func ScorePair(d *models.Deduction, t *models.Transaction) Score {
	if d == nil || t == nil {
		return Score{}
	}

	breakdown := models.ScoreBreakdown{
		Amount:      ScoreAmount(d.Amount, t.NetAmount),
		Customer:    ScoreCustomer(d.CustomerID, t.CustomerID),
		Date:        ScoreDate(d.DeductionDate, t.TransactionDate),
		Reference:   ScoreReference(d.ReferenceNumber, t.TransactionNumber),
		Description: ScoreDescription(d.Description, t.Description),
	}

	return Score{
		Total:     clamp(breakdown.Sum(), 0, models.MaxTotalScore),
		Breakdown: breakdown,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
