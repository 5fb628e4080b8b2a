package app

import "quiz-sync-service/internal/domain"

// Decision is the outcome of comparing an incoming session write against the
// stored copy.
type Decision int

const (
	// DecisionAccept means the incoming write replaces the stored record.
	DecisionAccept Decision = iota
	// DecisionRejectStale means the stored record is kept and the incoming
	// write is dropped.
	DecisionRejectStale
)

// Resolution carries the decision plus, for rejections, the conflicting pair.
type Resolution struct {
	Decision Decision
	Conflict *domain.Conflict
}

// Resolve applies last-write-wins by device-assigned updated_at. Pure function,
// no I/O.
//
// Equal timestamps are treated as stale so that replaying an unmodified record
// is a guaranteed no-op: a client that crashed mid-sync can resubmit its whole
// batch and every already-applied item resolves to RejectStale harmlessly.
func Resolve(incoming domain.QuizSession, existing *domain.QuizSession) Resolution {
	if existing == nil {
		return Resolution{Decision: DecisionAccept}
	}
	if incoming.UpdatedAt.After(existing.UpdatedAt) {
		return Resolution{Decision: DecisionAccept}
	}
	return Resolution{
		Decision: DecisionRejectStale,
		Conflict: &domain.Conflict{
			SessionID:  incoming.SessionID,
			Incoming:   incoming,
			Existing:   *existing,
			Resolution: domain.ResolutionServerWins,
		},
	}
}
