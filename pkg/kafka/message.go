package kafka

import (
	"encoding/json"
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
)

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	// Trace context (extracted from Kafka headers)
	TraceParent string
	TraceState  string

	// Parsed content
	BatchMessage *BatchMessage
}

// BatchMessage is an inbound reconciliation batch: two datasets to reconcile
// against each other, plus optional rules overriding the stored rule set for
// this run only.
type BatchMessage struct {
	Type      string                `json:"type"` // "reconciliation.batch"
	TenantID  string                `json:"tenant_id"`
	BatchRef  string                `json:"batch_ref,omitempty"`
	Source    []map[string]any      `json:"source"`
	Target    []map[string]any      `json:"target"`
	Rules     []models.MatchingRule `json:"rules,omitempty"`
	Threshold float64               `json:"threshold,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
}

// ParseBatchMessage parses the message value as a reconciliation batch
func (m *IncomingMessage) ParseBatchMessage() error {
	var msg BatchMessage
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		return err
	}
	m.BatchMessage = &msg
	return nil
}

// IsBatchMessage checks whether the message carries a reconciliation batch
func (m *IncomingMessage) IsBatchMessage() bool {
	if msgType := m.Headers["type"]; msgType == "reconciliation.batch" {
		return true
	}

	var msg BatchMessage
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		return false
	}
	return msg.Type == "reconciliation.batch"
}

// GetTenantID returns the tenant ID from the batch message
func (m *IncomingMessage) GetTenantID() string {
	if m.BatchMessage != nil && m.BatchMessage.TenantID != "" {
		return m.BatchMessage.TenantID
	}
	// Fallback to header
	return m.Headers["tenant_id"]
}

// GetBatchRef returns the caller-supplied batch reference, or the message key
func (m *IncomingMessage) GetBatchRef() string {
	if m.BatchMessage != nil && m.BatchMessage.BatchRef != "" {
		return m.BatchMessage.BatchRef
	}
	return m.Key
}
