package app

import (
	"context"
	"time"

	"quiz-sync-service/internal/domain"
)

// Delta is the slice of server-side changes a client has not seen yet.
type Delta struct {
	Sessions        []domain.QuizSession `json:"quiz_sessions"`
	Results         []domain.QuizResult  `json:"quiz_results"`
	ServerTimestamp time.Time            `json:"server_timestamp"`
}

// DeltaProvider computes changes after a client-supplied watermark.
type DeltaProvider struct {
	store RecordStore
	now   func() time.Time
}

func NewDeltaProvider(store RecordStore) *DeltaProvider {
	return &DeltaProvider{store: store, now: time.Now}
}

// Compute returns sessions updated and results created strictly after the
// watermark, each capped at limit and ordered by timestamp then id.
//
// ServerTimestamp is captured before the queries run. The client adopts it as
// its next watermark, so it must not land after any record a concurrent writer
// might commit mid-query; capturing it first means the worst case is re-seeing
// a record on the next pull, never skipping one.
func (d *DeltaProvider) Compute(ctx context.Context, owner string, watermark time.Time, limit int) (Delta, error) {
	serverNow := d.now().UTC()

	sessions, err := d.store.ListSessionsUpdatedAfter(ctx, owner, watermark, limit)
	if err != nil {
		return Delta{}, err
	}
	results, err := d.store.ListResultsCreatedAfter(ctx, owner, watermark, limit)
	if err != nil {
		return Delta{}, err
	}

	if sessions == nil {
		sessions = []domain.QuizSession{}
	}
	if results == nil {
		results = []domain.QuizResult{}
	}
	return Delta{Sessions: sessions, Results: results, ServerTimestamp: serverNow}, nil
}
