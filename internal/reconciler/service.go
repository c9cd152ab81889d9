// Package reconciler provides the public entry point of the deduction matching engine.
//
// The MatchingService classifies matches into recommendations, runs batches of
// deductions against a shared candidate set, builds review queues and owns the
// runtime-updatable threshold configuration.
//
// Example usage:
//
//	service, err := reconciler.NewMatchingService(reconciler.DefaultConfig())
//	if err != nil {
//		return err
//	}
//
//	batch, err := service.BatchMatch(ctx, deductions, candidates)
//	if err != nil {
//		return err
//	}
//	fmt.Printf("%d of %d matched\n", batch.Matched, batch.Total)
package reconciler

import (
	"context"
	"sync"
	"time"

	"deduction-matching-service/internal/matcher"
	"deduction-matching-service/internal/models"
	"deduction-matching-service/pkg/errors"
	"deduction-matching-service/pkg/logger"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
)

// MatchingService matches deductions against candidate transactions.
// It is safe for concurrent use; each top-level call reads one threshold snapshot.
type MatchingService struct {
	engine       *matcher.MatchingEngine
	preprocessor *CandidatePreprocessor
	config       *Config
	logger       logger.Logger

	thresholds models.Thresholds
	mu         sync.RWMutex

	newBatchID func() string
}

// NewMatchingService creates a new matching service
func NewMatchingService(config *Config) (*MatchingService, error) {
	if config == nil {
		config = DefaultConfig()
	}
	config = config.Clone()

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"matching_service",
			config.Thresholds.String(),
			err,
		)
	}

	if config.Matching == nil {
		config.Matching = matcher.DefaultMatchingConfig()
	}

	log := logger.GetGlobalLogger().WithComponent("matching_service")
	log.WithFields(logger.Fields{
		"thresholds":      config.Thresholds.String(),
		"max_concurrency": config.MaxConcurrency,
	}).Debug("Creating matching service")

	return &MatchingService{
		engine:       matcher.NewMatchingEngine(config.Matching),
		preprocessor: NewCandidatePreprocessor(config.Preprocessing),
		config:       config,
		logger:       log,
		thresholds:   config.Thresholds,
		newBatchID:   uuid.NewString,
	}, nil
}

// SetLogger replaces the service logger
func (s *MatchingService) SetLogger(l logger.Logger) {
	if l != nil {
		s.logger = l.WithComponent("matching_service")
	}
}

// Thresholds returns the current threshold configuration
func (s *MatchingService) Thresholds() models.Thresholds {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.thresholds
}

// UpdateThresholds merges the supplied fields into the current configuration.
// If the merged configuration violates its range or ordering invariant the update is
// rejected with CodeInvariantViolation and the previous configuration stays in effect.
func (s *MatchingService) UpdateThresholds(update models.ThresholdUpdate) (models.Thresholds, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.thresholds.Apply(update)
	if err := next.Validate(); err != nil {
		s.logger.WithError(err).WithField("rejected", next.String()).Warn("Threshold update rejected")
		return s.thresholds, errors.ConfigurationError(
			errors.CodeInvariantViolation,
			"thresholds",
			next.String(),
			err,
		).WithContext("current", s.thresholds.String())
	}

	s.thresholds = next
	s.logger.WithField("thresholds", next.String()).Info("Thresholds updated")
	return next, nil
}

// ResetThresholds restores the configured starting thresholds
func (s *MatchingService) ResetThresholds() models.Thresholds {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.thresholds = s.config.Thresholds
	s.logger.WithField("thresholds", s.thresholds.String()).Info("Thresholds reset")
	return s.thresholds
}

// MatchDeduction scores candidates against a single deduction and classifies the best match.
// Unusable input yields an unmatched result rather than an error.
func (s *MatchingService) MatchDeduction(deduction *models.Deduction, candidates []*models.Transaction) *models.MatchResult {
	thresholds := s.Thresholds()
	prepared, _ := s.preprocessor.Prepare(candidates)
	return s.match(deduction, prepared, thresholds)
}

// BatchMatch matches every deduction against the same candidate set.
// Results keep the order of deductions. A failing deduction never aborts the batch;
// only cancellation of ctx does, in which case the error wraps ctx.Err().
func (s *MatchingService) BatchMatch(ctx context.Context, deductions []*models.Deduction, candidates []*models.Transaction) (*models.BatchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.MatchingError(errors.CodeCancelled, "batch match", err)
	}

	thresholds := s.Thresholds()
	prepared, stats := s.preprocessor.Prepare(candidates)
	batchID := s.newBatchID()

	log := s.logger.WithFields(logger.Fields{
		"batch_id":   batchID,
		"deductions": len(deductions),
		"candidates": stats.Output,
	})
	log.WithFields(logger.Fields{
		"nil_candidates":       stats.Nil,
		"duplicate_candidates": stats.Duplicates,
	}).Debug("Starting batch match")

	var tracker *logger.ProgressTracker
	if s.config.ProgressReporting {
		tracker = logger.NewProgressTracker(logger.ProgressConfig{
			Operation: "batch_match",
			Total:     int64(len(deductions)),
			Logger:    s.logger,
		})
	}

	start := time.Now()
	results := make([]*models.MatchResult, len(deductions))

	p := pool.New().
		WithContext(ctx).
		WithMaxGoroutines(s.config.MaxConcurrency).
		WithFirstError()

	for i, deduction := range deductions {
		i, deduction := i, deduction
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = s.match(deduction, prepared, thresholds)
			if tracker != nil {
				tracker.Increment()
			}
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		if tracker != nil {
			tracker.CompleteWithError(err)
		}
		log.WithError(err).Warn("Batch match cancelled")
		return nil, errors.MatchingError(errors.CodeCancelled, "batch match", err).
			WithContext("batch_id", batchID)
	}

	batch := models.NewBatchResult(batchID, thresholds, results)

	if tracker != nil {
		tracker.Complete()
	}
	log.WithFields(logger.Fields{
		"matched":       batch.Matched,
		"auto_approved": batch.AutoApproved,
		"needs_review":  batch.NeedsReview,
		"unmatched":     batch.Unmatched,
		"duration":      time.Since(start).String(),
	}).Info("Batch match completed")

	return batch, nil
}

// ReviewQueue runs a batch and keeps the results that need a human decision
func (s *MatchingService) ReviewQueue(ctx context.Context, deductions []*models.Deduction, candidates []*models.Transaction) (*models.ReviewQueue, error) {
	batch, err := s.BatchMatch(ctx, deductions, candidates)
	if err != nil {
		return nil, err
	}
	return models.NewReviewQueue(batch), nil
}

func (s *MatchingService) match(deduction *models.Deduction, candidates []*models.Transaction, thresholds models.Thresholds) *models.MatchResult {
	if err := deduction.Validate(); err != nil {
		id := ""
		if deduction != nil {
			id = deduction.ID
		}
		s.logger.WithField("deduction_id", id).WithError(err).Debug("Skipping invalid deduction")
		return models.NewUnmatchedResult(id, models.InvalidInputReason(err.Error()))
	}

	selection := s.engine.Select(deduction, candidates, thresholds.Reject)
	if !selection.Matched() {
		return models.NewUnmatchedResult(deduction.ID, selection.Reason)
	}

	best := selection.Best
	breakdown := best.Breakdown
	return &models.MatchResult{
		DeductionID:    deduction.ID,
		Matched:        true,
		Confidence:     best.Score,
		TransactionID:  best.Transaction.ID,
		Breakdown:      &breakdown,
		Recommendation: thresholds.Classify(best.Score),
		AllCandidates:  selection.Candidates,
	}
}
