package reconciliation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/internal/platform/tracing"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
)

// RunEventEmitter publishes run lifecycle events
type RunEventEmitter interface {
	ReconciliationCompleted(ctx context.Context, batchID string, metrics models.ReconciliationMetrics) error
}

// Service drives a reconciliation run through matching, conflict resolution,
// record building, and metrics aggregation. It owns the observable run
// state; a failed run sets the error and leaves the previous run's records
// untouched.
type Service struct {
	logger  ectologger.Logger
	matcher *matching.Matcher
	builder *Builder
	emitter RunEventEmitter

	mu    sync.RWMutex
	state models.RunState
}

// NewService creates a reconciliation service. Logger and emitter may be nil.
func NewService(logger ectologger.Logger, matcher *matching.Matcher, builder *Builder, emitter RunEventEmitter) *Service {
	return &Service{
		logger:  logger,
		matcher: matcher,
		builder: builder,
		emitter: emitter,
		state: models.RunState{
			Records:     []models.ReconciliationRecord{},
			CurrentStep: models.RunStepIdle,
		},
	}
}

// State returns a snapshot of the current run state
func (s *Service) State() models.RunState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state
	snapshot.Records = make([]models.ReconciliationRecord, len(s.state.Records))
	copy(snapshot.Records, s.state.Records)
	return snapshot
}

// StartReconciliation runs the full pipeline over the supplied data and
// rules, replacing the run state's records on success. A zero threshold
// uses the default of 80.
func (s *Service) StartReconciliation(ctx context.Context, sourceData, targetData []map[string]any, rules []models.MatchingRule, threshold float64) (models.RunState, error) {
	ctx, span := tracing.StartSpan(ctx, "reconciliation.Service.StartReconciliation")
	defer span.End()

	if threshold <= 0 {
		threshold = matching.DefaultThreshold
	}

	s.mu.Lock()
	if s.state.IsProcessing {
		s.mu.Unlock()
		return s.State(), fmt.Errorf("a reconciliation run is already in progress")
	}
	previous := s.state
	s.state.IsProcessing = true
	s.state.CurrentStep = models.RunStepMatching
	s.state.Progress = 10
	s.state.Error = ""
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.WithContext(ctx).WithFields(map[string]any{
			"source_count": len(sourceData),
			"target_count": len(targetData),
			"rule_count":   len(rules),
			"threshold":    threshold,
		}).Info("Starting reconciliation run")
	}

	runErr := s.run(ctx, sourceData, targetData, rules, threshold, previous)
	if runErr != nil && s.logger != nil {
		s.logger.WithContext(ctx).WithError(runErr).Error("Reconciliation run failed")
	}

	return s.State(), runErr
}

// run executes the pipeline, restoring the previous run's records if any
// stage panics.
func (s *Service) run(ctx context.Context, sourceData, targetData []map[string]any, rules []models.MatchingRule, threshold float64, previous models.RunState) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reconciliation run aborted: %v", r)
			s.mu.Lock()
			s.state = previous
			s.state.IsProcessing = false
			s.state.Error = err.Error()
			s.mu.Unlock()
		}
	}()

	started := time.Now().UTC()

	candidates := s.matcher.FindMatches(sourceData, targetData, rules, threshold)
	s.setProgress(models.RunStepScoring, 40)

	matches := s.matcher.ResolveConflicts(candidates)
	s.setProgress(models.RunStepScoring, 60)

	records := s.builder.BuildRecords(sourceData, targetData, matches, started)
	s.setProgress(models.RunStepScoring, 80)

	metrics := CalculateMetrics(records, time.Since(started))

	s.mu.Lock()
	s.state.Records = records
	s.state.Metrics = metrics
	s.state.IsProcessing = false
	s.state.CurrentStep = models.RunStepComplete
	s.state.Progress = 100
	s.mu.Unlock()

	if s.emitter != nil && len(records) > 0 {
		if emitErr := s.emitter.ReconciliationCompleted(ctx, records[0].BatchID, metrics); emitErr != nil && s.logger != nil {
			s.logger.WithContext(ctx).WithError(emitErr).Warn("Failed to publish reconciliation completed event")
		}
	}

	return nil
}

func (s *Service) setProgress(step models.RunStep, progress float64) {
	s.mu.Lock()
	s.state.CurrentStep = step
	s.state.Progress = progress
	s.mu.Unlock()
}
