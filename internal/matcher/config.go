// Package matcher provides the deduction scoring engine and its configuration.
//
// A deduction is compared with each candidate transaction on five factors, each
// awarding points up to a fixed ceiling:
//   - Amount (40): tiered by percentage difference
//   - Customer (20): exact identifier match
//   - Date (15): tiered by calendar-day distance
//   - Reference (15): equality, containment or edit-distance similarity
//   - Description (10): equality or word overlap
//
// The engine works in three stages:
//  1. Factor scoring of one (deduction, transaction) pair
//  2. Composite scoring that sums and clamps the factors to [0,100]
//  3. Selection that drops candidates below the reject floor and ranks the rest
//
// Example usage:
//
//	engine := matcher.NewMatchingEngine(matcher.DefaultMatchingConfig())
//	selection := engine.Select(deduction, candidates, thresholds.Reject)
//	if selection.Best != nil {
//		fmt.Println(selection.Best.Score, thresholds.Classify(selection.Best.Score))
//	}
package matcher

import "fmt"

// MatchingConfig holds the scoring engine's tuning parameters.
//
// Candidate scoring for one deduction runs sequentially unless the candidate list is
// at least ParallelThreshold long and CandidateConcurrency is above one. Ordering of
// the ranked output does not depend on either setting.
type MatchingConfig struct {
	// CandidateConcurrency bounds the goroutines scoring candidates of a single deduction
	CandidateConcurrency int `json:"candidate_concurrency" mapstructure:"candidate_concurrency"`

	// ParallelThreshold is the minimum candidate count before scoring fans out
	ParallelThreshold int `json:"parallel_threshold" mapstructure:"parallel_threshold"`
}

// DefaultMatchingConfig returns a configuration with sensible defaults
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		CandidateConcurrency: 1,
		ParallelThreshold:    256,
	}
}

// Validate checks if the matching configuration is valid
func (mc *MatchingConfig) Validate() error {
	if mc.CandidateConcurrency < 1 {
		return fmt.Errorf("candidate concurrency must be at least 1: %d", mc.CandidateConcurrency)
	}

	if mc.ParallelThreshold < 1 {
		return fmt.Errorf("parallel threshold must be positive: %d", mc.ParallelThreshold)
	}

	return nil
}

// Clone creates a copy of the matching configuration
func (mc *MatchingConfig) Clone() *MatchingConfig {
	if mc == nil {
		return nil
	}

	return &MatchingConfig{
		CandidateConcurrency: mc.CandidateConcurrency,
		ParallelThreshold:    mc.ParallelThreshold,
	}
}

// parallel reports whether n candidates should be scored concurrently
func (mc *MatchingConfig) parallel(n int) bool {
	return mc.CandidateConcurrency > 1 && n >= mc.ParallelThreshold
}

// String returns a human-readable description of the configuration
func (mc *MatchingConfig) String() string {
	return fmt.Sprintf("MatchingConfig{CandidateConcurrency: %d, ParallelThreshold: %d}",
		mc.CandidateConcurrency, mc.ParallelThreshold)
}
