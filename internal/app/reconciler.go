package app

import (
	"context"
	"fmt"

	"quiz-sync-service/internal/domain"
)

// ItemStatus classifies the outcome of one pushed record.
type ItemStatus string

const (
	ItemAccepted      ItemStatus = "accepted"
	ItemRejectedStale ItemStatus = "rejected_stale"
	ItemDuplicate     ItemStatus = "duplicate"
	ItemFailed        ItemStatus = "failed"
)

// SessionOutcome reports what happened to one pushed session.
type SessionOutcome struct {
	SessionID string           `json:"session_id"`
	Status    ItemStatus       `json:"status"`
	Conflict  *domain.Conflict `json:"conflict,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// ResultOutcome reports what happened to one pushed result.
type ResultOutcome struct {
	ResultID string     `json:"result_id"`
	Status   ItemStatus `json:"status"`
	Error    string     `json:"error,omitempty"`
}

// BatchOutcome is the complete accounting for one push batch. Clients use it
// to prune their local pending queue precisely instead of re-sending blindly.
type BatchOutcome struct {
	Sessions      []SessionOutcome `json:"sessions"`
	Results       []ResultOutcome  `json:"results"`
	Accepted      int              `json:"accepted"`
	RejectedStale int              `json:"rejected_stale"`
	Duplicates    int              `json:"duplicates"`
	Failed        int              `json:"failed"`
}

// HasConflicts reports whether any session was rejected as stale.
func (o BatchOutcome) HasConflicts() bool { return o.RejectedStale > 0 }

// Applied reports whether any record actually changed stored state.
func (o BatchOutcome) Applied() bool { return o.Accepted > 0 }

// BatchReconciler drives the conflict resolver across a push batch. Every item
// is attempted independently: a storage error or validation failure on one
// record never aborts the rest of the batch.
type BatchReconciler struct {
	store RecordStore
}

func NewBatchReconciler(store RecordStore) *BatchReconciler {
	return &BatchReconciler{store: store}
}

// Reconcile processes pushed sessions then results. Sessions go first so a
// result whose session arrives in the same batch can satisfy its reference.
// Client-supplied owner fields are ignored; every write is scoped to owner.
func (r *BatchReconciler) Reconcile(ctx context.Context, owner string, sessions []domain.QuizSession, results []domain.QuizResult) BatchOutcome {
	outcome := BatchOutcome{
		Sessions: make([]SessionOutcome, 0, len(sessions)),
		Results:  make([]ResultOutcome, 0, len(results)),
	}

	for _, incoming := range sessions {
		outcome.record(r.reconcileSession(ctx, owner, incoming))
	}
	for _, incoming := range results {
		outcome.recordResult(r.reconcileResult(ctx, owner, incoming))
	}
	return outcome
}

func (r *BatchReconciler) reconcileSession(ctx context.Context, owner string, incoming domain.QuizSession) SessionOutcome {
	if err := validateSession(incoming); err != nil {
		return SessionOutcome{SessionID: incoming.SessionID, Status: ItemFailed, Error: err.Error()}
	}
	incoming.OwnerID = owner

	existing, found, err := r.store.GetSession(ctx, incoming.SessionID)
	if err != nil {
		return SessionOutcome{SessionID: incoming.SessionID, Status: ItemFailed, Error: err.Error()}
	}

	var existingPtr *domain.QuizSession
	if found {
		if existing.OwnerID != owner {
			return SessionOutcome{SessionID: incoming.SessionID, Status: ItemFailed, Error: domain.ErrNotOwner.Error()}
		}
		existingPtr = &existing
	}

	res := Resolve(incoming, existingPtr)
	if res.Decision == DecisionRejectStale {
		return SessionOutcome{SessionID: incoming.SessionID, Status: ItemRejectedStale, Conflict: res.Conflict}
	}

	// completed_at is set exactly once, on the transition into completed.
	if found && existing.CompletedAt != nil {
		incoming.CompletedAt = existing.CompletedAt
	} else if incoming.Status == domain.StatusCompleted && incoming.CompletedAt == nil {
		at := incoming.UpdatedAt
		incoming.CompletedAt = &at
	}

	if err := r.store.UpsertSession(ctx, incoming); err != nil {
		return SessionOutcome{SessionID: incoming.SessionID, Status: ItemFailed, Error: err.Error()}
	}
	return SessionOutcome{SessionID: incoming.SessionID, Status: ItemAccepted}
}

func (r *BatchReconciler) reconcileResult(ctx context.Context, owner string, incoming domain.QuizResult) ResultOutcome {
	if err := validateResult(incoming); err != nil {
		return ResultOutcome{ResultID: incoming.ResultID, Status: ItemFailed, Error: err.Error()}
	}
	incoming.OwnerID = owner

	inserted, err := r.store.InsertResultIfAbsent(ctx, incoming)
	if err != nil {
		return ResultOutcome{ResultID: incoming.ResultID, Status: ItemFailed, Error: err.Error()}
	}
	if !inserted {
		return ResultOutcome{ResultID: incoming.ResultID, Status: ItemDuplicate}
	}
	return ResultOutcome{ResultID: incoming.ResultID, Status: ItemAccepted}
}

func (o *BatchOutcome) record(so SessionOutcome) {
	o.Sessions = append(o.Sessions, so)
	o.count(so.Status)
}

func (o *BatchOutcome) recordResult(ro ResultOutcome) {
	o.Results = append(o.Results, ro)
	o.count(ro.Status)
}

func (o *BatchOutcome) count(s ItemStatus) {
	switch s {
	case ItemAccepted:
		o.Accepted++
	case ItemRejectedStale:
		o.RejectedStale++
	case ItemDuplicate:
		o.Duplicates++
	case ItemFailed:
		o.Failed++
	}
}

func validateSession(s domain.QuizSession) error {
	if s.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	if !s.Status.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidStatus, s.Status)
	}
	if s.Score < 0 || s.Score > 100 {
		return fmt.Errorf("score %d out of range [0,100]", s.Score)
	}
	if s.TimeSpent < 0 {
		return fmt.Errorf("time_spent must be >= 0")
	}
	if s.StartedAt.IsZero() {
		return fmt.Errorf("started_at is required")
	}
	if s.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}
	return nil
}

func validateResult(r domain.QuizResult) error {
	if r.ResultID == "" {
		return fmt.Errorf("result_id is required")
	}
	if r.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	if r.SelectedAnswer < 0 {
		return fmt.Errorf("selected_answer must be >= 0")
	}
	if r.TimeTaken < 0 {
		return fmt.Errorf("time_taken must be >= 0")
	}
	if r.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	return nil
}
