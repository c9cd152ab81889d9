package models

import "fmt"

// Default classification thresholds
const (
	DefaultAutoApprove   = 95
	DefaultRequireReview = 80
	DefaultReject        = 60
)

// Thresholds are the score boundaries used to classify a match
type Thresholds struct {
	AutoApprove   int `json:"autoApprove" mapstructure:"auto_approve"`
	RequireReview int `json:"requireReview" mapstructure:"require_review"`
	Reject        int `json:"reject" mapstructure:"reject"`
}

// DefaultThresholds returns the stock 95/80/60 configuration
func DefaultThresholds() Thresholds {
	return Thresholds{
		AutoApprove:   DefaultAutoApprove,
		RequireReview: DefaultRequireReview,
		Reject:        DefaultReject,
	}
}

// Validate checks that each threshold is within [0,100] and autoApprove >= requireReview >= reject
func (t Thresholds) Validate() error {
	if err := checkRange("autoApprove", t.AutoApprove); err != nil {
		return err
	}
	if err := checkRange("requireReview", t.RequireReview); err != nil {
		return err
	}
	if err := checkRange("reject", t.Reject); err != nil {
		return err
	}
	if t.AutoApprove < t.RequireReview {
		return fmt.Errorf("autoApprove (%d) must be >= requireReview (%d)", t.AutoApprove, t.RequireReview)
	}
	if t.RequireReview < t.Reject {
		return fmt.Errorf("requireReview (%d) must be >= reject (%d)", t.RequireReview, t.Reject)
	}
	return nil
}

// Apply returns a copy of t with the non-nil fields of u applied
func (t Thresholds) Apply(u ThresholdUpdate) Thresholds {
	if u.AutoApprove != nil {
		t.AutoApprove = *u.AutoApprove
	}
	if u.RequireReview != nil {
		t.RequireReview = *u.RequireReview
	}
	if u.Reject != nil {
		t.Reject = *u.Reject
	}
	return t
}

// Classify maps a total score to a recommendation
func (t Thresholds) Classify(score int) Recommendation {
	switch {
	case score >= t.AutoApprove:
		return RecommendationAutoApprove
	case score >= t.RequireReview:
		return RecommendationManualReview
	case score >= t.Reject:
		return RecommendationPossibleMatch
	default:
		return RecommendationNoMatch
	}
}

// String returns a string representation of the thresholds
func (t Thresholds) String() string {
	return fmt.Sprintf("Thresholds{AutoApprove: %d, RequireReview: %d, Reject: %d}",
		t.AutoApprove, t.RequireReview, t.Reject)
}

// ThresholdUpdate is a partial threshold change; nil fields keep their current value
type ThresholdUpdate struct {
	AutoApprove   *int `json:"autoApprove,omitempty"`
	RequireReview *int `json:"requireReview,omitempty"`
	Reject        *int `json:"reject,omitempty"`
}

// IsEmpty reports whether the update changes nothing
func (u ThresholdUpdate) IsEmpty() bool {
	return u.AutoApprove == nil && u.RequireReview == nil && u.Reject == nil
}

func checkRange(name string, v int) error {
	if v < 0 || v > MaxTotalScore {
		return fmt.Errorf("%s must be between 0 and %d, got %d", name, MaxTotalScore, v)
	}
	return nil
}
