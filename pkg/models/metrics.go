package models

import (
	"time"
)

// ReconciliationMetrics summarizes a record set. Derived on demand, never
// persisted independently of the records it summarizes.
type ReconciliationMetrics struct {
	TotalRecords       int           `json:"total_records"`
	MatchedRecords     int           `json:"matched_records"`
	UnmatchedRecords   int           `json:"unmatched_records"`
	DiscrepancyRecords int           `json:"discrepancy_records"`
	PendingResolution  int           `json:"pending_resolution"`
	ResolvedRecords    int           `json:"resolved_records"`
	EscalatedRecords   int           `json:"escalated_records"`
	AverageConfidence  float64       `json:"average_confidence"` // Mean over records with confidence > 0
	MatchRate          float64       `json:"match_rate"`         // matched / total * 100
	ProcessingTime     time.Duration `json:"processing_time"`
	LastUpdated        time.Time     `json:"last_updated"`
}

// RunStep is the current phase of a reconciliation run
type RunStep string

const (
	RunStepIdle     RunStep = "idle"
	RunStepMatching RunStep = "matching"
	RunStepScoring  RunStep = "scoring"
	RunStepComplete RunStep = "complete"
)

// RunState is the observable state of a reconciliation run
type RunState struct {
	Records      []ReconciliationRecord `json:"records"`
	Metrics      ReconciliationMetrics  `json:"metrics"`
	IsProcessing bool                   `json:"is_processing"`
	Progress     float64                `json:"progress"` // 0-100
	CurrentStep  RunStep                `json:"current_step"`
	Error        string                 `json:"error,omitempty"`
}
