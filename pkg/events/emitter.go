// Package events handles event emission for reconciliation lifecycle changes
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	platformctx "github.com/Ramsey-B/fern/internal/platform/context"
	"github.com/Ramsey-B/fern/internal/platform/tracing"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Emitter publishes reconciliation events to Kafka. It satisfies the run and
// record emitter interfaces consumed by the reconciliation service and the
// resolution workflow. A nil *Emitter is valid and drops every event, so
// callers without a Kafka pipeline can pass one through unchecked.
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// ReconciliationCompleted emits a reconciliation.completed event
func (e *Emitter) ReconciliationCompleted(ctx context.Context, batchID string, metrics models.ReconciliationMetrics) error {
	if e == nil {
		return nil
	}
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.ReconciliationCompleted")
	defer span.End()

	tenantID := platformctx.GetTenantID(ctx)
	payload := ReconciliationCompletedEvent{
		BaseEvent: NewBaseEvent(EventTypeReconciliationCompleted, tenantID),
		BatchID:   batchID,
		Metrics:   metrics,
	}
	data, _ := json.Marshal(payload)

	event := &kafka.ReconciliationEvent{
		EventType: string(EventTypeReconciliationCompleted),
		TenantID:  tenantID,
		BatchID:   batchID,
		Data:      data,
	}

	if err := e.producer.PublishReconciliationEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit reconciliation.completed event")
		return err
	}

	return nil
}

// ReconciliationFailed emits a reconciliation.failed event
func (e *Emitter) ReconciliationFailed(ctx context.Context, batchID string, runErr error) error {
	if e == nil {
		return nil
	}
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.ReconciliationFailed")
	defer span.End()

	tenantID := platformctx.GetTenantID(ctx)
	payload := ReconciliationFailedEvent{
		BaseEvent: NewBaseEvent(EventTypeReconciliationFailed, tenantID),
		BatchID:   batchID,
		Error:     runErr.Error(),
	}
	data, _ := json.Marshal(payload)

	event := &kafka.ReconciliationEvent{
		EventType: string(EventTypeReconciliationFailed),
		TenantID:  tenantID,
		BatchID:   batchID,
		Data:      data,
	}

	if err := e.producer.PublishReconciliationEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit reconciliation.failed event")
		return err
	}

	return nil
}

// RecordResolved emits a record.resolved or record.escalated event
func (e *Emitter) RecordResolved(ctx context.Context, record models.ReconciliationRecord) error {
	if e == nil {
		return nil
	}
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.RecordResolved")
	defer span.End()

	eventType := EventTypeRecordResolved
	if record.Status == models.RecordStatusEscalated {
		eventType = EventTypeRecordEscalated
	}

	tenantID := record.TenantID
	if tenantID == "" {
		tenantID = platformctx.GetTenantID(ctx)
	}

	payload := RecordResolvedEvent{
		BaseEvent: NewBaseEvent(eventType, tenantID),
		RecordID:  record.ID,
		BatchID:   record.BatchID,
		Status:    record.Status,
	}
	if record.Resolution != nil {
		payload.ResolutionStatus = record.Resolution.Status
		payload.Resolution = record.Resolution.Resolution
	}
	data, _ := json.Marshal(payload)

	event := &kafka.RecordEvent{
		EventType: string(eventType),
		TenantID:  tenantID,
		RecordID:  record.ID,
		BatchID:   record.BatchID,
		Status:    string(record.Status),
		Data:      data,
	}

	if err := e.producer.PublishRecordEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit record resolution event")
		return err
	}

	return nil
}

// RuleUpdated emits a rule.updated event
func (e *Emitter) RuleUpdated(ctx context.Context, tenantID string, ruleID string, action string) error {
	if e == nil {
		return nil
	}
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.RuleUpdated")
	defer span.End()

	payload := RuleUpdatedEvent{
		BaseEvent: NewBaseEvent(EventTypeRuleUpdated, tenantID),
		RuleID:    ruleID,
		Action:    action,
	}
	data, _ := json.Marshal(payload)

	event := &kafka.ReconciliationEvent{
		EventType: string(EventTypeRuleUpdated),
		TenantID:  tenantID,
		BatchID:   ruleID, // keyed by rule for ordering
		Data:      data,
	}

	if err := e.producer.PublishReconciliationEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit rule.updated event")
		return err
	}

	return nil
}
