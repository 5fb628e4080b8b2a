package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"quiz-sync-service/internal/app"
	"quiz-sync-service/internal/domain"
)

// RecordStore is an in-memory implementation of app.RecordStore, used for
// tests and database-less runs. The conditional upsert happens under one lock,
// matching the single-statement guarantee of the Postgres store.
type RecordStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.QuizSession
	results  map[string]domain.QuizResult
}

func NewRecordStore() *RecordStore {
	return &RecordStore{
		sessions: make(map[string]domain.QuizSession),
		results:  make(map[string]domain.QuizResult),
	}
}

func (s *RecordStore) GetSession(_ context.Context, sessionID string) (domain.QuizSession, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.QuizSession{}, false, nil
	}
	return copySession(session), true, nil
}

func (s *RecordStore) GetResult(_ context.Context, resultID string) (domain.QuizResult, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.results[resultID]
	return result, ok, nil
}

func (s *RecordStore) UpsertSession(_ context.Context, session domain.QuizSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[session.SessionID]; ok {
		// Writes never cross owners and never replace an equally new copy;
		// both checks sit inside the same locked section as the write.
		if existing.OwnerID != session.OwnerID {
			return nil
		}
		if !session.UpdatedAt.After(existing.UpdatedAt) {
			return nil
		}
	}
	s.sessions[session.SessionID] = copySession(session)
	return nil
}

func (s *RecordStore) InsertResultIfAbsent(_ context.Context, result domain.QuizResult) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.results[result.ResultID]; ok {
		return false, nil
	}
	if _, ok := s.sessions[result.SessionID]; !ok {
		return false, fmt.Errorf("insert result %s: %w", result.ResultID, domain.ErrSessionNotFound)
	}
	s.results[result.ResultID] = result
	return true, nil
}

func (s *RecordStore) ListSessionsUpdatedAfter(_ context.Context, owner string, ts time.Time, limit int) ([]domain.QuizSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := make([]domain.QuizSession, 0)
	for _, session := range s.sessions {
		if session.OwnerID == owner && session.UpdatedAt.After(ts) {
			matched = append(matched, copySession(session))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].UpdatedAt.Equal(matched[j].UpdatedAt) {
			return matched[i].UpdatedAt.Before(matched[j].UpdatedAt)
		}
		return matched[i].SessionID < matched[j].SessionID
	})
	return clip(matched, limit), nil
}

func (s *RecordStore) ListResultsCreatedAfter(_ context.Context, owner string, ts time.Time, limit int) ([]domain.QuizResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := make([]domain.QuizResult, 0)
	for _, result := range s.results {
		if result.OwnerID == owner && result.CreatedAt.After(ts) {
			matched = append(matched, result)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].ResultID < matched[j].ResultID
	})
	return clip(matched, limit), nil
}

func (s *RecordStore) ListSessions(_ context.Context, owner string, f app.SessionFilter) ([]domain.QuizSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := make([]domain.QuizSession, 0)
	for _, session := range s.sessions {
		if session.OwnerID != owner {
			continue
		}
		if f.Category != "" && session.Category != f.Category {
			continue
		}
		matched = append(matched, copySession(session))
	}
	// Most recent first; the progress view is a history screen.
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].UpdatedAt.Equal(matched[j].UpdatedAt) {
			return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
		}
		return matched[i].SessionID < matched[j].SessionID
	})
	if f.Offset >= len(matched) {
		return []domain.QuizSession{}, nil
	}
	matched = matched[f.Offset:]
	return clip(matched, f.Limit), nil
}

func (s *RecordStore) SessionStats(_ context.Context, owner string) (domain.ProgressStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := domain.ProgressStats{}
	scoreSum := 0
	for _, session := range s.sessions {
		if session.OwnerID != owner {
			continue
		}
		stats.TotalSessions++
		stats.TotalTimeSpent += session.TimeSpent
		if session.Status == domain.StatusCompleted {
			stats.CompletedSessions++
			scoreSum += session.Score
		}
	}
	if stats.CompletedSessions > 0 {
		stats.AverageScore = float64(scoreSum) / float64(stats.CompletedSessions)
	}
	for _, result := range s.results {
		if result.OwnerID != owner {
			continue
		}
		stats.TotalAnswers++
		if result.IsCorrect {
			stats.CorrectAnswers++
		}
	}
	return stats, nil
}

func copySession(s domain.QuizSession) domain.QuizSession {
	out := s
	if s.CompletedAt != nil {
		at := *s.CompletedAt
		out.CompletedAt = &at
	}
	if s.Metadata != nil {
		meta := make(map[string]any, len(s.Metadata))
		for k, v := range s.Metadata {
			meta[k] = v
		}
		out.Metadata = meta
	}
	return out
}

func clip[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
