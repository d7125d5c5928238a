// Package processor handles incoming reconciliation batch messages. This is
// the ingestion layer - it runs the matching pipeline over each batch and
// materializes the resulting records.
package processor

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"

	platformctx "github.com/Ramsey-B/fern/internal/platform/context"
	"github.com/Ramsey-B/fern/internal/platform/tracing"
	"github.com/Ramsey-B/fern/internal/repositories/matchingrule"
	"github.com/Ramsey-B/fern/internal/repositories/reconrecord"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/reconciliation"
)

// Processor handles reconciliation batch processing
type Processor struct {
	logger     ectologger.Logger
	ruleRepo   *matchingrule.Repository
	recordRepo *reconrecord.Repository
	service    *reconciliation.Service
	graphRepo  *graph.RecordGraph // nil when the graph store is disabled
}

// NewProcessor creates a new batch processor
func NewProcessor(
	logger ectologger.Logger,
	ruleRepo *matchingrule.Repository,
	recordRepo *reconrecord.Repository,
	service *reconciliation.Service,
	graphRepo *graph.RecordGraph,
) *Processor {
	return &Processor{
		logger:     logger,
		ruleRepo:   ruleRepo,
		recordRepo: recordRepo,
		service:    service,
		graphRepo:  graphRepo,
	}
}

// HandleMessage processes a single incoming Kafka message
func (p *Processor) HandleMessage(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.HandleMessage")
	defer span.End()

	if msg.BatchMessage == nil || !msg.IsBatchMessage() {
		p.logger.WithContext(ctx).WithFields(map[string]any{
			"topic": msg.Topic,
			"key":   msg.Key,
		}).Debug("Skipping non-batch message")
		return nil
	}

	batch := msg.BatchMessage
	tenantID := msg.GetTenantID()
	if tenantID == "" {
		p.logger.WithContext(ctx).Warn("Batch message missing tenant id, skipping")
		return nil
	}
	ctx = platformctx.SetTenantID(ctx, tenantID)

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":    tenantID,
		"batch_ref":    msg.GetBatchRef(),
		"source_count": len(batch.Source),
		"target_count": len(batch.Target),
	})

	rules := batch.Rules
	if len(rules) == 0 {
		stored, err := p.ruleRepo.ListApplied(ctx, tenantID)
		if err != nil {
			log.WithError(err).Error("Failed to load matching rules")
			return err
		}
		rules = stored
	}
	if len(rules) == 0 {
		log.Warn("No applied matching rules, skipping batch")
		return nil
	}

	state, err := p.service.StartReconciliation(ctx, batch.Source, batch.Target, rules, batch.Threshold)
	if err != nil {
		log.WithError(err).Error("Reconciliation run failed")
		return err
	}

	for i := range state.Records {
		state.Records[i].TenantID = tenantID
	}

	if err := p.recordRepo.CreateBatch(ctx, state.Records); err != nil {
		log.WithError(err).Error("Failed to persist reconciliation records")
		return err
	}

	if p.graphRepo != nil {
		if err := p.graphRepo.StoreRun(ctx, tenantID, state.Records); err != nil {
			// Graph storage is best-effort; records are already durable
			log.WithError(err).Warn("Failed to store records in graph")
		}
	}

	log.WithFields(map[string]any{
		"record_count": len(state.Records),
		"matched":      state.Metrics.MatchedRecords,
		"match_rate":   fmt.Sprintf("%.1f", state.Metrics.MatchRate),
	}).Info("Processed reconciliation batch")

	return nil
}
