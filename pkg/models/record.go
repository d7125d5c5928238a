package models

import (
	"time"
)

// RecordStatus is the reconciliation status of a record
type RecordStatus string

const (
	RecordStatusMatched     RecordStatus = "matched"
	RecordStatusUnmatched   RecordStatus = "unmatched"
	RecordStatusDiscrepancy RecordStatus = "discrepancy"
	RecordStatusPending     RecordStatus = "pending"
	RecordStatusResolved    RecordStatus = "resolved"
	RecordStatusEscalated   RecordStatus = "escalated"
)

// RiskLevel buckets match confidence for review prioritization
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// ResolutionStatus is the human-adjudicated outcome state
type ResolutionStatus string

const (
	ResolutionStatusPending   ResolutionStatus = "pending"
	ResolutionStatusApproved  ResolutionStatus = "approved"
	ResolutionStatusRejected  ResolutionStatus = "rejected"
	ResolutionStatusEscalated ResolutionStatus = "escalated"
)

// ResolutionAction is a requested transition on a pending resolution
type ResolutionAction string

const (
	ResolutionActionApprove  ResolutionAction = "approve"
	ResolutionActionReject   ResolutionAction = "reject"
	ResolutionActionEscalate ResolutionAction = "escalate"
)

// RecordSource is one side of a reconciliation record. Two sources compose a
// matched pair; an unmatched record carries exactly one.
type RecordSource struct {
	ID          string         `json:"id"`
	SystemID    string         `json:"system_id"`
	SystemName  string         `json:"system_name"`
	RecordID    string         `json:"record_id"`
	Data        map[string]any `json:"data"`
	Timestamp   time.Time      `json:"timestamp"`
	Confidence  float64        `json:"confidence"` // 0-100 source data quality
	Fingerprint string         `json:"fingerprint,omitempty"`
}

// AuditEntry records a single action taken against a record
type AuditEntry struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	UserID    string    `json:"user_id,omitempty"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RecordMetadata carries bookkeeping for a reconciliation record
type RecordMetadata struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"`
	Tags      []string  `json:"tags,omitempty"`
	Priority  int       `json:"priority"`
}

// Resolution is the human-adjudicated outcome applied to a record.
// ResolvedAt is set iff Status != pending.
type Resolution struct {
	Status     ResolutionStatus `json:"status"`
	ResolvedAt *time.Time       `json:"resolved_at,omitempty"`
	Resolution string           `json:"resolution,omitempty"`
	Comments   []string         `json:"comments,omitempty"`
	AssignedTo *string          `json:"assigned_to,omitempty"`
	AssignedAt *time.Time       `json:"assigned_at,omitempty"`
}

// RecordRelationship links two reconciliation records
type RecordRelationship struct {
	ID           string `json:"id"`
	TargetID     string `json:"target_id"`
	Relationship string `json:"relationship"`
}

// ReconciliationRecord is the materialized outcome for a matched pair or an
// unmatched record. Sources are immutable; status, resolution, and the audit
// trail are mutated only by the resolution workflow after creation. Records
// are never deleted, only superseded by a new run under a new batch id.
type ReconciliationRecord struct {
	ID               string               `json:"id" db:"id"`
	TenantID         string               `json:"tenant_id" db:"tenant_id"`
	ReconciliationID string               `json:"reconciliation_id" db:"reconciliation_id"`
	BatchID          string               `json:"batch_id" db:"batch_id"`
	Sources          []RecordSource       `json:"sources" db:"-"`
	Status           RecordStatus         `json:"status" db:"status"`
	Confidence       float64              `json:"confidence" db:"confidence"` // 0-100
	MatchingRules    []string             `json:"matching_rules" db:"-"`
	MatchScore       float64              `json:"match_score" db:"match_score"` // 0-100
	RiskLevel        RiskLevel            `json:"risk_level" db:"risk_level"`
	AuditTrail       []AuditEntry         `json:"audit_trail" db:"-"`
	Metadata         RecordMetadata       `json:"metadata" db:"-"`
	Relationships    []RecordRelationship `json:"relationships,omitempty" db:"-"`
	Resolution       *Resolution          `json:"resolution,omitempty" db:"-"`
}

// RecordListResponse is a paginated list of reconciliation records
type RecordListResponse struct {
	Items      []ReconciliationRecord `json:"items"`
	TotalCount int                    `json:"total_count"`
	Page       int                    `json:"page"`
	PageSize   int                    `json:"page_size"`
}

// ResolveRequest is the request to resolve a single record
type ResolveRequest struct {
	Action  ResolutionAction `json:"action" validate:"required,oneof=approve reject escalate"`
	Comment string           `json:"comment,omitempty"`
}

// BulkResolveRequest is the request to resolve many records at once
type BulkResolveRequest struct {
	IDs     []string         `json:"ids" validate:"required,min=1"`
	Action  ResolutionAction `json:"action" validate:"required,oneof=approve reject escalate"`
	Comment string           `json:"comment,omitempty"`
}
