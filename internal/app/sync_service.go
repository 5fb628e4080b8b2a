package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"quiz-sync-service/internal/domain"
)

// RecordStore abstracts durable storage for synced quiz records (in-memory,
// Postgres, etc). It is the only component that touches storage; it performs
// no retries and returns storage errors unmodified.
type RecordStore interface {
	GetSession(ctx context.Context, sessionID string) (domain.QuizSession, bool, error)
	GetResult(ctx context.Context, resultID string) (domain.QuizResult, bool, error)
	// UpsertSession inserts, or atomically replaces the stored record when the
	// incoming write carries the same owner and a strictly newer updated_at.
	// Both checks must happen inside a single conditional write so concurrent
	// upserts to one session ID linearize at the store; a record never changes
	// hands no matter how the upper layers race.
	UpsertSession(ctx context.Context, s domain.QuizSession) error
	// InsertResultIfAbsent inserts and reports whether it did. An existing
	// result ID yields (false, nil); results are never updated.
	InsertResultIfAbsent(ctx context.Context, r domain.QuizResult) (bool, error)
	ListSessionsUpdatedAfter(ctx context.Context, owner string, ts time.Time, limit int) ([]domain.QuizSession, error)
	ListResultsCreatedAfter(ctx context.Context, owner string, ts time.Time, limit int) ([]domain.QuizResult, error)
	ListSessions(ctx context.Context, owner string, f SessionFilter) ([]domain.QuizSession, error)
	SessionStats(ctx context.Context, owner string) (domain.ProgressStats, error)
}

// StatsProvider serves aggregate progress stats, typically behind a TTL cache.
type StatsProvider interface {
	Stats(ctx context.Context, owner string) (domain.ProgressStats, error)
	Invalidate(ctx context.Context, owner string)
}

// SessionFilter narrows the read-only progress view. Fields translate to
// parameterized query conditions; there is no free-form filtering.
type SessionFilter struct {
	Category string
	Limit    int
	Offset   int
}

// Limits bounds one sync call. Oversized batches are rejected wholesale
// before any storage access.
type Limits struct {
	MaxSessions int
	MaxResults  int
	DeltaLimit  int
}

// DefaultLimits mirrors the mobile client's upload batching.
func DefaultLimits() Limits {
	return Limits{MaxSessions: 100, MaxResults: 1000, DeltaLimit: 500}
}

// SyncRequest is one device's combined push + pull.
type SyncRequest struct {
	QuizSessions []domain.QuizSession `json:"quiz_sessions"`
	QuizResults  []domain.QuizResult  `json:"quiz_results"`
	LastSyncAt   time.Time            `json:"last_sync_at"`
	ForceSync    bool                 `json:"force_sync,omitempty"`
}

// SyncResponse carries the per-item accounting plus the delta the client needs
// to catch up.
type SyncResponse struct {
	SyncResults       BatchOutcome `json:"sync_results"`
	ServerData        Delta        `json:"server_data"`
	ConflictsResolved bool         `json:"conflicts_resolved"`
}

// SessionUpdate is the allow-listed partial update for PUT. Nil fields are
// left untouched; anything outside this set is rejected at decode time.
type SessionUpdate struct {
	Status          *domain.SessionStatus `json:"status,omitempty"`
	CurrentQuestion *int                  `json:"current_question,omitempty"`
	Score           *int                  `json:"score,omitempty"`
	TimeSpent       *int                  `json:"time_spent,omitempty"`
	Metadata        map[string]any        `json:"metadata,omitempty"`
}

// SyncService is the public entry point for progress synchronization. Each
// call is stateless and safe to repeat: pushes are idempotent by construction
// and pulls never mutate.
type SyncService struct {
	store      RecordStore
	reconciler *BatchReconciler
	delta      *DeltaProvider
	stats      StatsProvider
	hub        *Hub
	limits     Limits
}

func NewSyncService(store RecordStore, stats StatsProvider, hub *Hub, limits Limits) *SyncService {
	if limits.MaxSessions <= 0 || limits.MaxResults <= 0 || limits.DeltaLimit <= 0 {
		limits = DefaultLimits()
	}
	return &SyncService{
		store:      store,
		reconciler: NewBatchReconciler(store),
		delta:      NewDeltaProvider(store),
		stats:      stats,
		hub:        hub,
		limits:     limits,
	}
}

// Sync reconciles the pushed batch, then computes the pull delta, within one
// logical request. force_sync requests a full snapshot pull (the watermark is
// ignored); the push conflict policy is unchanged.
func (s *SyncService) Sync(ctx context.Context, owner string, req SyncRequest) (SyncResponse, error) {
	if len(req.QuizSessions) > s.limits.MaxSessions {
		return SyncResponse{}, fmt.Errorf("%w: %d sessions (max %d)",
			domain.ErrBatchTooLarge, len(req.QuizSessions), s.limits.MaxSessions)
	}
	if len(req.QuizResults) > s.limits.MaxResults {
		return SyncResponse{}, fmt.Errorf("%w: %d results (max %d)",
			domain.ErrBatchTooLarge, len(req.QuizResults), s.limits.MaxResults)
	}

	outcome := s.reconciler.Reconcile(ctx, owner, req.QuizSessions, req.QuizResults)

	watermark := req.LastSyncAt
	if req.ForceSync {
		watermark = time.Time{}
	}
	delta, err := s.delta.Compute(ctx, owner, watermark, s.limits.DeltaLimit)
	if err != nil {
		return SyncResponse{}, err
	}

	if outcome.Applied() {
		s.afterWrite(ctx, owner, NoticePushApplied)
	}
	log.Printf("sync owner=%s pushed=%d/%d accepted=%d stale=%d dup=%d failed=%d delta=%d/%d",
		owner, len(req.QuizSessions), len(req.QuizResults),
		outcome.Accepted, outcome.RejectedStale, outcome.Duplicates, outcome.Failed,
		len(delta.Sessions), len(delta.Results))

	return SyncResponse{
		SyncResults:       outcome,
		ServerData:        delta,
		ConflictsResolved: outcome.HasConflicts(),
	}, nil
}

// ListProgress serves the read-only paginated view of an owner's sessions.
func (s *SyncService) ListProgress(ctx context.Context, owner string, f SessionFilter, includeStats bool) ([]domain.QuizSession, *domain.ProgressStats, error) {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > s.limits.DeltaLimit {
		f.Limit = s.limits.DeltaLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	sessions, err := s.store.ListSessions(ctx, owner, f)
	if err != nil {
		return nil, nil, err
	}
	if sessions == nil {
		sessions = []domain.QuizSession{}
	}
	if !includeStats {
		return sessions, nil, nil
	}
	stats, err := s.stats.Stats(ctx, owner)
	if err != nil {
		return nil, nil, err
	}
	return sessions, &stats, nil
}

// UpdateSession applies an allow-listed partial update to one session. The
// server assigns updated_at, keeping it strictly after the stored value so the
// write passes the store's newer-than guard and syncing devices pick it up.
func (s *SyncService) UpdateSession(ctx context.Context, owner, sessionID string, upd SessionUpdate) (domain.QuizSession, error) {
	existing, found, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.QuizSession{}, err
	}
	if !found {
		return domain.QuizSession{}, domain.ErrSessionNotFound
	}
	if existing.OwnerID != owner {
		return domain.QuizSession{}, domain.ErrNotOwner
	}

	if upd.Status != nil {
		if !upd.Status.Valid() {
			return domain.QuizSession{}, fmt.Errorf("%w: %q", domain.ErrInvalidStatus, *upd.Status)
		}
		existing.Status = *upd.Status
	}
	if upd.CurrentQuestion != nil {
		existing.CurrentQuestion = *upd.CurrentQuestion
	}
	if upd.Score != nil {
		if *upd.Score < 0 || *upd.Score > 100 {
			return domain.QuizSession{}, fmt.Errorf("%w: score %d out of range [0,100]", domain.ErrValidation, *upd.Score)
		}
		existing.Score = *upd.Score
	}
	if upd.TimeSpent != nil {
		if *upd.TimeSpent < 0 {
			return domain.QuizSession{}, fmt.Errorf("%w: time_spent must be >= 0", domain.ErrValidation)
		}
		existing.TimeSpent = *upd.TimeSpent
	}
	if upd.Metadata != nil {
		existing.Metadata = upd.Metadata
	}

	now := time.Now().UTC()
	if !now.After(existing.UpdatedAt) {
		now = existing.UpdatedAt.Add(time.Millisecond)
	}
	existing.UpdatedAt = now
	if existing.Status == domain.StatusCompleted && existing.CompletedAt == nil {
		existing.CompletedAt = &now
	}

	if err := s.store.UpsertSession(ctx, existing); err != nil {
		return domain.QuizSession{}, err
	}
	s.afterWrite(ctx, owner, NoticeSessionUpdated)
	return existing, nil
}

func (s *SyncService) afterWrite(ctx context.Context, owner, reason string) {
	if s.stats != nil {
		s.stats.Invalidate(ctx, owner)
	}
	if s.hub != nil {
		s.hub.Publish(owner, reason)
	}
}
