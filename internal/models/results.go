package models

import "fmt"

// Recommendation is the action suggested for a scored match
type Recommendation string

const (
	RecommendationAutoApprove   Recommendation = "auto_approve"
	RecommendationManualReview  Recommendation = "manual_review"
	RecommendationPossibleMatch Recommendation = "possible_match"
	RecommendationNoMatch       Recommendation = "no_match"
)

// String returns the string representation of the recommendation
func (r Recommendation) String() string {
	return string(r)
}

// IsValid checks if the recommendation is one of the known values
func (r Recommendation) IsValid() bool {
	switch r {
	case RecommendationAutoApprove, RecommendationManualReview,
		RecommendationPossibleMatch, RecommendationNoMatch:
		return true
	default:
		return false
	}
}

// NeedsReview reports whether a human has to look at the match
func (r Recommendation) NeedsReview() bool {
	return r == RecommendationManualReview || r == RecommendationPossibleMatch
}

// Reasons attached to unmatched results
const (
	ReasonNoCandidates = "no candidates"
	ReasonBelowReject  = "no matches above threshold"
	reasonInvalidInput = "invalid input"
)

// InvalidInputReason formats the reason carried by a result for an unusable deduction
func InvalidInputReason(detail string) string {
	return fmt.Sprintf("%s: %s", reasonInvalidInput, detail)
}

// Factor ceilings
const (
	MaxAmountScore      = 40
	MaxCustomerScore    = 20
	MaxDateScore        = 15
	MaxReferenceScore   = 15
	MaxDescriptionScore = 10
	MaxTotalScore       = 100
)

// ScoreBreakdown holds the per-factor points of one scored candidate
type ScoreBreakdown struct {
	Amount      int `json:"amount"`
	Customer    int `json:"customer"`
	Date        int `json:"date"`
	Reference   int `json:"reference"`
	Description int `json:"description"`
}

// Sum returns the unclamped sum of the five factors
func (b ScoreBreakdown) Sum() int {
	return b.Amount + b.Customer + b.Date + b.Reference + b.Description
}

// MatchCandidate is a transaction paired with its score against one deduction
type MatchCandidate struct {
	Transaction *Transaction   `json:"transaction"`
	Score       int            `json:"score"`
	Breakdown   ScoreBreakdown `json:"breakdown"`
}

// MatchResult is the outcome of matching a single deduction
type MatchResult struct {
	DeductionID    string           `json:"deductionId,omitempty"`
	Matched        bool             `json:"matched"`
	Confidence     int              `json:"confidence"`
	TransactionID  string           `json:"transactionId,omitempty"`
	Breakdown      *ScoreBreakdown  `json:"breakdown,omitempty"`
	Recommendation Recommendation   `json:"recommendation"`
	Reason         string           `json:"reason,omitempty"`
	AllCandidates  []MatchCandidate `json:"allCandidates"`
}

// NewUnmatchedResult builds the no_match result for the given reason
func NewUnmatchedResult(deductionID, reason string) *MatchResult {
	return &MatchResult{
		DeductionID:    deductionID,
		Matched:        false,
		Confidence:     0,
		Recommendation: RecommendationNoMatch,
		Reason:         reason,
		AllCandidates:  []MatchCandidate{},
	}
}

// String returns a string representation of the result
func (r *MatchResult) String() string {
	if !r.Matched {
		return fmt.Sprintf("MatchResult{Deduction: %s, Matched: false, Reason: %s}", r.DeductionID, r.Reason)
	}
	return fmt.Sprintf("MatchResult{Deduction: %s, Transaction: %s, Confidence: %d, Recommendation: %s}",
		r.DeductionID, r.TransactionID, r.Confidence, r.Recommendation)
}

// BatchResult aggregates the results of matching many deductions against one candidate set
type BatchResult struct {
	BatchID         string         `json:"batchId"`
	Total           int            `json:"total"`
	Matched         int            `json:"matched"`
	AutoApproved    int            `json:"autoApproved"`
	NeedsReview     int            `json:"needsReview"`
	PossibleMatches int            `json:"possibleMatches"`
	Unmatched       int            `json:"unmatched"`
	Thresholds      Thresholds     `json:"thresholds"`
	Results         []*MatchResult `json:"results"`
}

// NewBatchResult tallies results, which must already be in input order
func NewBatchResult(batchID string, thresholds Thresholds, results []*MatchResult) *BatchResult {
	batch := &BatchResult{
		BatchID:    batchID,
		Total:      len(results),
		Thresholds: thresholds,
		Results:    results,
	}

	for _, r := range results {
		if !r.Matched {
			continue
		}
		batch.Matched++
		switch r.Recommendation {
		case RecommendationAutoApprove:
			batch.AutoApproved++
		case RecommendationManualReview:
			batch.NeedsReview++
		case RecommendationPossibleMatch:
			batch.PossibleMatches++
		}
	}
	batch.Unmatched = batch.Total - batch.Matched

	return batch
}

// QueueSummary counts a batch by outcome
type QueueSummary struct {
	Total        int `json:"total"`
	AutoApproved int `json:"autoApproved"`
	NeedsReview  int `json:"needsReview"`
	Unmatched    int `json:"unmatched"`
}

// ReviewQueue lists the results a human has to confirm
type ReviewQueue struct {
	Queue   []*MatchResult `json:"queue"`
	Summary QueueSummary   `json:"summary"`
}

// NewReviewQueue filters a batch down to the results that need review, keeping batch order
func NewReviewQueue(batch *BatchResult) *ReviewQueue {
	queue := make([]*MatchResult, 0)
	for _, r := range batch.Results {
		if r.Recommendation.NeedsReview() {
			queue = append(queue, r)
		}
	}

	return &ReviewQueue{
		Queue: queue,
		Summary: QueueSummary{
			Total:        batch.Total,
			AutoApproved: batch.AutoApproved,
			NeedsReview:  batch.NeedsReview,
			Unmatched:    batch.Unmatched,
		},
	}
}
