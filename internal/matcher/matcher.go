package matcher

import (
	"sort"

	"deduction-matching-service/internal/models"

	"github.com/sourcegraph/conc/iter"
)

// MatchingEngine scores candidate transactions against a deduction and ranks them
type MatchingEngine struct {
	Config *MatchingConfig
}

// Selection is the ranked outcome of scoring one deduction's candidates
type Selection struct {
	// Best is nil when nothing reached the reject floor
	Best *models.MatchCandidate

	// Candidates holds the survivors, best first; ties keep their input order
	Candidates []models.MatchCandidate

	// Reason explains an empty selection
	Reason string

	// Scored is the number of candidates that went through the composite scorer
	Scored int
}

// Matched reports whether a best candidate was selected
func (s *Selection) Matched() bool {
	return s.Best != nil
}

// NewMatchingEngine creates a new matching engine with the specified configuration
func NewMatchingEngine(config *MatchingConfig) *MatchingEngine {
	if config == nil {
		config = DefaultMatchingConfig()
	}

	return &MatchingEngine{
		Config: config,
	}
}

// Select scores every candidate, discards those scoring strictly below reject and
// returns the survivors sorted by score descending. Nil candidates are skipped.
func (me *MatchingEngine) Select(d *models.Deduction, candidates []*models.Transaction, reject int) *Selection {
	if len(candidates) == 0 {
		return &Selection{Reason: models.ReasonNoCandidates}
	}

	scored := me.scoreCandidates(d, candidates)

	survivors := make([]models.MatchCandidate, 0, len(scored))
	count := 0
	for _, c := range scored {
		if c.Transaction == nil {
			continue
		}
		count++
		if c.Score < reject {
			continue
		}
		survivors = append(survivors, c)
	}

	if count == 0 {
		return &Selection{Reason: models.ReasonNoCandidates}
	}
	if len(survivors) == 0 {
		return &Selection{Reason: models.ReasonBelowReject, Scored: count}
	}

	sort.SliceStable(survivors, func(i, j int) bool {
		return survivors[i].Score > survivors[j].Score
	})

	best := survivors[0]
	return &Selection{
		Best:       &best,
		Candidates: survivors,
		Scored:     count,
	}
}

// scoreCandidates returns one entry per input candidate in input order.
// Entries for nil candidates carry a nil Transaction.
func (me *MatchingEngine) scoreCandidates(d *models.Deduction, candidates []*models.Transaction) []models.MatchCandidate {
	score := func(t **models.Transaction) models.MatchCandidate {
		if *t == nil {
			return models.MatchCandidate{}
		}
		s := ScorePair(d, *t)
		return models.MatchCandidate{
			Transaction: *t,
			Score:       s.Total,
			Breakdown:   s.Breakdown,
		}
	}

	if me.Config.parallel(len(candidates)) {
		mapper := iter.Mapper[*models.Transaction, models.MatchCandidate]{
			MaxGoroutines: me.Config.CandidateConcurrency,
		}
		return mapper.Map(candidates, score)
	}

	scored := make([]models.MatchCandidate, len(candidates))
	for i := range candidates {
		scored[i] = score(&candidates[i])
	}
	return scored
}
