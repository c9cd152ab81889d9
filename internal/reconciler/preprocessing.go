package reconciler

import (
	"strings"

	"deduction-matching-service/internal/models"
)

// PreprocessingConfig contains configuration for candidate preprocessing
type PreprocessingConfig struct {
	// RemoveDuplicates keeps only the first candidate for each transaction ID
	RemoveDuplicates bool `mapstructure:"remove_duplicates"`
}

// DefaultPreprocessingConfig returns a default preprocessing configuration
func DefaultPreprocessingConfig() *PreprocessingConfig {
	return &PreprocessingConfig{
		RemoveDuplicates: false,
	}
}

// CandidatePreprocessor cleans a candidate list once before it is scored
// against every deduction of a call. It never modifies the transactions themselves.
type CandidatePreprocessor struct {
	config *PreprocessingConfig
}

// PreprocessingStats contains statistics about one preprocessing pass
type PreprocessingStats struct {
	Input      int `json:"input"`
	Output     int `json:"output"`
	Nil        int `json:"nil"`
	Duplicates int `json:"duplicates"`
}

// NewCandidatePreprocessor creates a new candidate preprocessor
func NewCandidatePreprocessor(config *PreprocessingConfig) *CandidatePreprocessor {
	if config == nil {
		config = DefaultPreprocessingConfig()
	}

	return &CandidatePreprocessor{
		config: config,
	}
}

// Prepare drops nil candidates and, when configured, duplicate transaction IDs.
// Order of the remaining candidates is preserved. Candidates without an ID are never
// treated as duplicates.
func (cp *CandidatePreprocessor) Prepare(candidates []*models.Transaction) ([]*models.Transaction, PreprocessingStats) {
	stats := PreprocessingStats{Input: len(candidates)}

	seen := make(map[string]bool)
	prepared := make([]*models.Transaction, 0, len(candidates))

	for _, tx := range candidates {
		if tx == nil {
			stats.Nil++
			continue
		}

		if cp.config.RemoveDuplicates {
			if id := strings.TrimSpace(tx.ID); id != "" {
				if seen[id] {
					stats.Duplicates++
					continue
				}
				seen[id] = true
			}
		}

		prepared = append(prepared, tx)
	}

	stats.Output = len(prepared)
	return prepared, stats
}
