package reconciler

import (
	"context"
	"time"

	"github.com/sourcegraph/conc/pool"

	"deduction-matching-service/internal/models"
	"deduction-matching-service/internal/store"
	"deduction-matching-service/pkg/errors"
	"deduction-matching-service/pkg/logger"
)

// CandidateWindowSlack widens a deduction date window when loading candidates.
// Transactions further apart than this earn no date points.
const CandidateWindowSlack = 30 * 24 * time.Hour

// Runner loads a matching run from a Source and hands it to the MatchingService
type Runner struct {
	service *MatchingService
	source  store.Source
	logger  logger.Logger
}

// NewRunner creates a runner over source
func NewRunner(service *MatchingService, source store.Source) *Runner {
	return &Runner{
		service: service,
		source:  source,
		logger:  logger.GetGlobalLogger().WithComponent("runner"),
	}
}

// Run loads the deductions selected by filter and their candidates, then runs a batch
func (r *Runner) Run(ctx context.Context, filter store.Filter) (*models.BatchResult, error) {
	deductions, candidates, err := r.Load(ctx, filter)
	if err != nil {
		return nil, err
	}
	return r.service.BatchMatch(ctx, deductions, candidates)
}

// ReviewQueue loads like Run and returns only the results that need review
func (r *Runner) ReviewQueue(ctx context.Context, filter store.Filter) (*models.ReviewQueue, error) {
	deductions, candidates, err := r.Load(ctx, filter)
	if err != nil {
		return nil, err
	}
	return r.service.ReviewQueue(ctx, deductions, candidates)
}

// Load fetches deductions and candidates concurrently
func (r *Runner) Load(ctx context.Context, filter store.Filter) ([]*models.Deduction, []*models.Transaction, error) {
	if err := filter.Validate(); err != nil {
		return nil, nil, err
	}

	var (
		deductions []*models.Deduction
		candidates []*models.Transaction
	)
	candidateFilter := CandidateFilter(filter)
	start := time.Now()

	p := pool.New().WithContext(ctx).WithCancelOnError()
	p.Go(func(ctx context.Context) error {
		var err error
		deductions, err = r.source.Deductions(ctx, filter)
		if err != nil {
			return errors.MatchingError(errors.CodeSourceFailed, "load deductions", err)
		}
		return nil
	})
	p.Go(func(ctx context.Context) error {
		var err error
		candidates, err = r.source.Candidates(ctx, candidateFilter)
		if err != nil {
			return errors.MatchingError(errors.CodeSourceFailed, "load candidates", err)
		}
		return nil
	})

	if err := p.Wait(); err != nil {
		r.logger.WithError(err).WithField("filter", filter.String()).Error("Loading matching run failed")
		return nil, nil, err
	}

	r.logger.WithFields(logger.Fields{
		"filter":     filter.String(),
		"deductions": len(deductions),
		"candidates": len(candidates),
		"duration":   time.Since(start).String(),
	}).Info("Loaded matching run")

	return deductions, candidates, nil
}

// CandidateFilter derives the candidate query from a deduction filter. Customer
// and dates are scored factors, so the customer restriction is dropped, the date
// window is widened by CandidateWindowSlack and undated candidates stay in. The
// limit applies to deductions only.
func CandidateFilter(filter store.Filter) store.Filter {
	var out store.Filter
	if filter.From != nil {
		from := filter.From.Add(-CandidateWindowSlack)
		out.From = &from
	}
	if filter.To != nil {
		to := filter.To.Add(CandidateWindowSlack)
		out.To = &to
	}
	out.IncludeUndated = out.From != nil || out.To != nil
	return out
}
