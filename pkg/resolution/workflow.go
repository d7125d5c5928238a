// Package resolution implements the human review state machine over
// reconciliation records
package resolution

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/models"
)

// RecordEventEmitter publishes record resolution events
type RecordEventEmitter interface {
	RecordResolved(ctx context.Context, record models.ReconciliationRecord) error
}

// Workflow owns a mutable record set and is the only supported mutation path
// for record status, resolution, and audit trail. Operations on unknown ids
// are silent no-ops. Per-record writes are atomic under one lock; bulk
// resolution runs asynchronously and applies all its transitions in a single
// critical section.
type Workflow struct {
	mu       sync.RWMutex
	records  map[string]*models.ReconciliationRecord
	order    []string
	selected map[string]bool

	bulkAction     models.ResolutionAction
	bulkInProgress atomic.Bool

	emitter RecordEventEmitter
}

// NewWorkflow creates a workflow over the given records. Emitter may be nil.
func NewWorkflow(records []models.ReconciliationRecord, emitter RecordEventEmitter) *Workflow {
	w := &Workflow{
		records:  make(map[string]*models.ReconciliationRecord, len(records)),
		selected: make(map[string]bool),
		emitter:  emitter,
	}
	w.Load(records)
	return w
}

// Load replaces the workflow's record set, clearing any selection
func (w *Workflow) Load(records []models.ReconciliationRecord) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.records = make(map[string]*models.ReconciliationRecord, len(records))
	w.order = make([]string, 0, len(records))
	w.selected = make(map[string]bool)

	for i := range records {
		record := records[i]
		if record.Resolution == nil {
			record.Resolution = &models.Resolution{Status: models.ResolutionStatusPending}
		}
		w.records[record.ID] = &record
		w.order = append(w.order, record.ID)
	}
}

// Resolve applies a single approve/reject/escalate transition. The record
// leaves the pending selection set and its audit trail records the action.
func (w *Workflow) Resolve(ctx context.Context, id string, action models.ResolutionAction, comment string) {
	w.mu.Lock()
	record, ok := w.records[id]
	if !ok {
		w.mu.Unlock()
		return
	}
	w.applyLocked(record, action, comment)
	delete(w.selected, id)
	resolved := *record
	w.mu.Unlock()

	if w.emitter != nil {
		_ = w.emitter.RecordResolved(ctx, resolved)
	}
}

// applyLocked performs the transition; callers hold the write lock
func (w *Workflow) applyLocked(record *models.ReconciliationRecord, action models.ResolutionAction, comment string) {
	now := time.Now().UTC()

	switch action {
	case models.ResolutionActionApprove:
		record.Resolution.Status = models.ResolutionStatusApproved
		record.Status = models.RecordStatusResolved
	case models.ResolutionActionReject:
		record.Resolution.Status = models.ResolutionStatusRejected
		record.Status = models.RecordStatusResolved
	case models.ResolutionActionEscalate:
		record.Resolution.Status = models.ResolutionStatusEscalated
		record.Status = models.RecordStatusEscalated
	default:
		return
	}

	record.Resolution.ResolvedAt = &now
	// reason is the reviewer's comment, falling back to the action name
	record.Resolution.Resolution = comment
	if record.Resolution.Resolution == "" {
		record.Resolution.Resolution = string(action)
	}
	if comment != "" {
		record.Resolution.Comments = append(record.Resolution.Comments, comment)
	}

	record.AuditTrail = append(record.AuditTrail, models.AuditEntry{
		ID:        uuid.New().String(),
		Action:    string(action),
		Details:   comment,
		Timestamp: now,
	})
	record.Metadata.UpdatedAt = now
	record.Metadata.Version++
}

// BulkResolve applies the same transition to many records on a background
// goroutine. All transitions land in one critical section, so from the
// caller's view the batch is all-or-nothing. The returned channel closes
// when the batch completes; a context cancelled before application starts
// aborts the whole batch.
func (w *Workflow) BulkResolve(ctx context.Context, ids []string, action models.ResolutionAction, comment string) (<-chan struct{}, error) {
	if !w.bulkInProgress.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("a bulk resolution is already in progress")
	}

	done := make(chan struct{})
	go func() {
		defer w.bulkInProgress.Store(false)
		defer close(done)

		select {
		case <-ctx.Done():
			return
		default:
		}

		w.mu.Lock()
		var resolved []models.ReconciliationRecord
		for _, id := range ids {
			record, ok := w.records[id]
			if !ok {
				continue
			}
			w.applyLocked(record, action, comment)
			delete(w.selected, id)
			resolved = append(resolved, *record)
		}
		w.mu.Unlock()

		if w.emitter != nil {
			for _, record := range resolved {
				_ = w.emitter.RecordResolved(ctx, record)
			}
		}
	}()

	return done, nil
}

// BulkInProgress reports whether a bulk resolution is currently running
func (w *Workflow) BulkInProgress() bool {
	return w.bulkInProgress.Load()
}

// AddComment appends a comment without changing resolution status
func (w *Workflow) AddComment(id, comment string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	record, ok := w.records[id]
	if !ok {
		return
	}

	now := time.Now().UTC()
	record.Resolution.Comments = append(record.Resolution.Comments, comment)
	record.AuditTrail = append(record.AuditTrail, models.AuditEntry{
		ID:        uuid.New().String(),
		Action:    "comment",
		Details:   comment,
		Timestamp: now,
	})
	record.Metadata.UpdatedAt = now
}

// Assign assigns a record to a reviewer without changing status
func (w *Workflow) Assign(id, userID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	record, ok := w.records[id]
	if !ok {
		return
	}

	now := time.Now().UTC()
	record.Resolution.AssignedTo = &userID
	record.Resolution.AssignedAt = &now
	record.AuditTrail = append(record.AuditTrail, models.AuditEntry{
		ID:        uuid.New().String(),
		Action:    "assign",
		UserID:    userID,
		Timestamp: now,
	})
	record.Metadata.UpdatedAt = now
}

// Escalate is shorthand for an escalate resolution
func (w *Workflow) Escalate(ctx context.Context, id, comment string) {
	w.Resolve(ctx, id, models.ResolutionActionEscalate, comment)
}

// Select adds a record to the pending selection set
func (w *Workflow) Select(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.records[id]; ok {
		w.selected[id] = true
	}
}

// SelectAll selects every record still pending resolution
func (w *Workflow) SelectAll() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for id, record := range w.records {
		if record.Resolution.Status == models.ResolutionStatusPending {
			w.selected[id] = true
		}
	}
}

// DeselectAll clears the selection set
func (w *Workflow) DeselectAll() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.selected = make(map[string]bool)
}

// Selected returns the ids in the selection set, in record order
func (w *Workflow) Selected() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	ids := make([]string, 0, len(w.selected))
	for _, id := range w.order {
		if w.selected[id] {
			ids = append(ids, id)
		}
	}
	return ids
}

// SetBulkAction stores the action a subsequent bulk resolution should apply
func (w *Workflow) SetBulkAction(action models.ResolutionAction) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.bulkAction = action
}

// BulkAction returns the stored bulk action
func (w *Workflow) BulkAction() models.ResolutionAction {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return w.bulkAction
}

// GetByID returns a copy of the record with the given id, or nil
func (w *Workflow) GetByID(id string) *models.ReconciliationRecord {
	w.mu.RLock()
	defer w.mu.RUnlock()

	record, ok := w.records[id]
	if !ok {
		return nil
	}
	copied := *record
	return &copied
}

// PendingIDs returns the ids of records still pending resolution
func (w *Workflow) PendingIDs() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	ids := make([]string, 0, len(w.order))
	for _, id := range w.order {
		if w.records[id].Resolution.Status == models.ResolutionStatusPending {
			ids = append(ids, id)
		}
	}
	return ids
}

// ByPriority returns records with the given metadata priority, in order
func (w *Workflow) ByPriority(priority int) []models.ReconciliationRecord {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var result []models.ReconciliationRecord
	for _, id := range w.order {
		if w.records[id].Metadata.Priority == priority {
			result = append(result, *w.records[id])
		}
	}
	return result
}

// ByRisk returns records with the given risk level, in order
func (w *Workflow) ByRisk(risk models.RiskLevel) []models.ReconciliationRecord {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var result []models.ReconciliationRecord
	for _, id := range w.order {
		if w.records[id].RiskLevel == risk {
			result = append(result, *w.records[id])
		}
	}
	return result
}

// Records returns copies of all records in order
func (w *Workflow) Records() []models.ReconciliationRecord {
	w.mu.RLock()
	defer w.mu.RUnlock()

	result := make([]models.ReconciliationRecord, 0, len(w.order))
	for _, id := range w.order {
		result = append(result, *w.records[id])
	}
	return result
}

// ExportResolved serializes every non-pending record as JSON
func (w *Workflow) ExportResolved() ([]byte, error) {
	w.mu.RLock()
	var resolved []models.ReconciliationRecord
	for _, id := range w.order {
		if w.records[id].Resolution.Status != models.ResolutionStatusPending {
			resolved = append(resolved, *w.records[id])
		}
	}
	w.mu.RUnlock()

	return json.MarshalIndent(resolved, "", "  ")
}
