package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"quiz-sync-service/internal/app"
	"quiz-sync-service/internal/domain"
)

func TestUpsertSessionKeepsNewerCopy(t *testing.T) {
	ctx := context.Background()
	store := NewRecordStore()

	base := testSession("s1", "u1", time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC))
	base.Status = domain.StatusCompleted
	if err := store.UpsertSession(ctx, base); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	stale := testSession("s1", "u1", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	stale.Status = domain.StatusStarted
	if err := store.UpsertSession(ctx, stale); err != nil {
		t.Fatalf("stale upsert: %v", err)
	}

	stored, found, err := store.GetSession(ctx, "s1")
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if stored.Status != domain.StatusCompleted {
		t.Fatalf("stale write must lose inside the store, got %s", stored.Status)
	}
}

func TestUpsertSessionNeverCrossesOwners(t *testing.T) {
	ctx := context.Background()
	store := NewRecordStore()

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	original := testSession("s1", "u1", t0)
	if err := store.UpsertSession(ctx, original); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// A newer write under another owner must not take the record over.
	takeover := testSession("s1", "u2", t0.Add(time.Minute))
	takeover.Score = 1
	if err := store.UpsertSession(ctx, takeover); err != nil {
		t.Fatalf("cross-owner upsert: %v", err)
	}

	stored, found, err := store.GetSession(ctx, "s1")
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if stored.OwnerID != "u1" || stored.Score != original.Score {
		t.Fatalf("record changed hands, got owner=%q score=%d", stored.OwnerID, stored.Score)
	}
}

func TestInsertResultIfAbsentIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewRecordStore()

	session := testSession("s1", "u1", time.Now().UTC())
	if err := store.UpsertSession(ctx, session); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	result := testResult("r1", "s1", "u1", time.Now().UTC())
	inserted, err := store.InsertResultIfAbsent(ctx, result)
	if err != nil || !inserted {
		t.Fatalf("first insert: inserted=%v err=%v", inserted, err)
	}

	result.SelectedAnswer = 99
	inserted, err = store.InsertResultIfAbsent(ctx, result)
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if inserted {
		t.Fatalf("duplicate result must not insert")
	}

	stored, _, _ := store.GetResult(ctx, "r1")
	if stored.SelectedAnswer == 99 {
		t.Fatalf("duplicate insert must not mutate the stored record")
	}
}

func TestInsertResultRequiresSession(t *testing.T) {
	ctx := context.Background()
	store := NewRecordStore()

	_, err := store.InsertResultIfAbsent(ctx, testResult("r1", "missing", "u1", time.Now().UTC()))
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session reference error, got %v", err)
	}
}

func TestListSessionsUpdatedAfterOrdering(t *testing.T) {
	ctx := context.Background()
	store := NewRecordStore()

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	// s-b and s-a tie on timestamp; id breaks the tie.
	for _, s := range []domain.QuizSession{
		testSession("s-c", "u1", t0.Add(2*time.Minute)),
		testSession("s-b", "u1", t0.Add(time.Minute)),
		testSession("s-a", "u1", t0.Add(time.Minute)),
		testSession("s-old", "u1", t0.Add(-time.Hour)),
		testSession("s-other", "u2", t0.Add(time.Minute)),
	} {
		if err := store.UpsertSession(ctx, s); err != nil {
			t.Fatalf("upsert %s: %v", s.SessionID, err)
		}
	}

	sessions, err := store.ListSessionsUpdatedAfter(ctx, "u1", t0, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	got := make([]string, 0, len(sessions))
	for _, s := range sessions {
		got = append(got, s.SessionID)
	}
	want := []string{"s-a", "s-b", "s-c"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}

	limited, _ := store.ListSessionsUpdatedAfter(ctx, "u1", t0, 2)
	if len(limited) != 2 || limited[0].SessionID != "s-a" {
		t.Fatalf("limit must keep the deterministic prefix, got %+v", limited)
	}
}

func TestListSessionsFilterAndPagination(t *testing.T) {
	ctx := context.Background()
	store := NewRecordStore()

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, category := range []string{"math", "math", "science"} {
		s := testSession(string(rune('a'+i)), "u1", t0.Add(time.Duration(i)*time.Minute))
		s.Category = category
		if err := store.UpsertSession(ctx, s); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	math, err := store.ListSessions(ctx, "u1", app.SessionFilter{Category: "math", Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(math) != 2 {
		t.Fatalf("expected 2 math sessions, got %d", len(math))
	}

	page, _ := store.ListSessions(ctx, "u1", app.SessionFilter{Limit: 2, Offset: 2})
	if len(page) != 1 {
		t.Fatalf("expected offset to skip, got %d", len(page))
	}
}

func TestGetSessionReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewRecordStore()

	session := testSession("s1", "u1", time.Now().UTC())
	session.Metadata = map[string]any{"difficulty": "hard"}
	if err := store.UpsertSession(ctx, session); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	first, _, _ := store.GetSession(ctx, "s1")
	first.Metadata["difficulty"] = "tampered"

	second, _, _ := store.GetSession(ctx, "s1")
	if second.Metadata["difficulty"] != "hard" {
		t.Fatalf("callers must not be able to mutate stored state through reads")
	}
}

func testSession(id, owner string, updatedAt time.Time) domain.QuizSession {
	return domain.QuizSession{
		SessionID:      id,
		OwnerID:        owner,
		Category:       "math",
		Mode:           "practice",
		TotalQuestions: 10,
		Score:          40,
		Status:         domain.StatusInProgress,
		StartedAt:      updatedAt.Add(-time.Minute),
		UpdatedAt:      updatedAt,
	}
}

func testResult(id, sessionID, owner string, createdAt time.Time) domain.QuizResult {
	return domain.QuizResult{
		ResultID:       id,
		SessionID:      sessionID,
		OwnerID:        owner,
		QuestionID:     "q1",
		SelectedAnswer: 1,
		IsCorrect:      true,
		TimeTaken:      5,
		CreatedAt:      createdAt,
	}
}
