package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/models"
)

// EventType defines the type of event
type EventType string

const (
	// Run events
	EventTypeReconciliationStarted   EventType = "reconciliation.started"
	EventTypeReconciliationCompleted EventType = "reconciliation.completed"
	EventTypeReconciliationFailed    EventType = "reconciliation.failed"

	// Record events
	EventTypeRecordResolved  EventType = "record.resolved"
	EventTypeRecordEscalated EventType = "record.escalated"

	// Rule events
	EventTypeRuleUpdated EventType = "rule.updated"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventType     EventType `json:"event_type"`
	SchemaVersion string    `json:"schema_version"`
	TenantID      string    `json:"tenant_id"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// ReconciliationCompletedEvent is emitted when a run finishes
type ReconciliationCompletedEvent struct {
	BaseEvent
	BatchID string                       `json:"batch_id"`
	Metrics models.ReconciliationMetrics `json:"metrics"`
}

// ReconciliationFailedEvent is emitted when a run aborts with an error
type ReconciliationFailedEvent struct {
	BaseEvent
	BatchID string `json:"batch_id,omitempty"`
	Error   string `json:"error"`
}

// RecordResolvedEvent is emitted when a record leaves the pending state
type RecordResolvedEvent struct {
	BaseEvent
	RecordID         string                  `json:"record_id"`
	BatchID          string                  `json:"batch_id"`
	Status           models.RecordStatus     `json:"status"`
	ResolutionStatus models.ResolutionStatus `json:"resolution_status"`
	Resolution       string                  `json:"resolution,omitempty"`
}

// RuleUpdatedEvent is emitted when the rule set changes
type RuleUpdatedEvent struct {
	BaseEvent
	RuleID string `json:"rule_id"`
	Action string `json:"action"` // created, updated, deleted, toggled
}

// NewBaseEvent creates a base event with common fields
func NewBaseEvent(eventType EventType, tenantID string) BaseEvent {
	return BaseEvent{
		EventType:     eventType,
		SchemaVersion: SchemaVersion,
		TenantID:      tenantID,
		Timestamp:     time.Now().UTC(),
		CorrelationID: uuid.New().String(),
	}
}
