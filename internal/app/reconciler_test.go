package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"quiz-sync-service/internal/app"
	"quiz-sync-service/internal/domain"
	"quiz-sync-service/internal/infra/memory"
)

func TestReconcileAcceptsAndCounts(t *testing.T) {
	ctx := context.Background()
	store := memory.NewRecordStore()
	reconciler := app.NewBatchReconciler(store)

	sessions := []domain.QuizSession{
		sessionAt("s1", "2024-01-01T00:00:00Z", domain.StatusStarted),
		sessionAt("s2", "2024-01-01T00:01:00Z", domain.StatusInProgress),
	}
	results := []domain.QuizResult{
		resultFor("r1", "s1", "2024-01-01T00:00:30Z"),
	}

	outcome := reconciler.Reconcile(ctx, "u1", sessions, results)
	if outcome.Accepted != 3 || outcome.Failed != 0 {
		t.Fatalf("expected 3 accepted, got %+v", outcome)
	}
	if len(outcome.Sessions) != 2 || len(outcome.Results) != 1 {
		t.Fatalf("expected per-item outcomes, got %+v", outcome)
	}
}

func TestReconcilePerItemIsolation(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{RecordStore: memory.NewRecordStore(), failID: "s2"}
	reconciler := app.NewBatchReconciler(store)

	sessions := []domain.QuizSession{
		sessionAt("s1", "2024-01-01T00:00:00Z", domain.StatusStarted),
		sessionAt("s2", "2024-01-01T00:01:00Z", domain.StatusStarted),
		sessionAt("s3", "2024-01-01T00:02:00Z", domain.StatusStarted),
	}

	outcome := reconciler.Reconcile(ctx, "u1", sessions, nil)
	if outcome.Accepted != 2 || outcome.Failed != 1 {
		t.Fatalf("expected sibling items unaffected by one failure, got %+v", outcome)
	}
	for _, so := range outcome.Sessions {
		want := app.ItemAccepted
		if so.SessionID == "s2" {
			want = app.ItemFailed
		}
		if so.Status != want {
			t.Fatalf("session %s: expected %s, got %s", so.SessionID, want, so.Status)
		}
	}

	if _, found, _ := store.GetSession(ctx, "s3"); !found {
		t.Fatalf("expected s3 stored despite s2 failing")
	}
}

func TestReconcileValidationFailuresAreIsolated(t *testing.T) {
	ctx := context.Background()
	reconciler := app.NewBatchReconciler(memory.NewRecordStore())

	bad := sessionAt("s1", "2024-01-01T00:00:00Z", domain.StatusStarted)
	bad.Score = 250
	good := sessionAt("s2", "2024-01-01T00:00:00Z", domain.StatusStarted)

	outcome := reconciler.Reconcile(ctx, "u1", []domain.QuizSession{bad, good}, nil)
	if outcome.Failed != 1 || outcome.Accepted != 1 {
		t.Fatalf("expected one failure one accept, got %+v", outcome)
	}
	if outcome.Sessions[0].Error == "" {
		t.Fatalf("expected error detail for invalid session")
	}
}

func TestReconcileRequiresStartedAt(t *testing.T) {
	ctx := context.Background()
	store := memory.NewRecordStore()
	reconciler := app.NewBatchReconciler(store)

	bad := sessionAt("s1", "2024-01-01T00:00:00Z", domain.StatusStarted)
	bad.StartedAt = time.Time{}

	outcome := reconciler.Reconcile(ctx, "u1", []domain.QuizSession{bad}, nil)
	if outcome.Failed != 1 {
		t.Fatalf("expected zero started_at rejected, got %+v", outcome)
	}
	if _, found, _ := store.GetSession(ctx, "s1"); found {
		t.Fatalf("invalid session must not reach the store")
	}
}

func TestReconcileResultWithoutSessionFails(t *testing.T) {
	ctx := context.Background()
	reconciler := app.NewBatchReconciler(memory.NewRecordStore())

	outcome := reconciler.Reconcile(ctx, "u1", nil, []domain.QuizResult{
		resultFor("r1", "missing-session", "2024-01-01T00:00:00Z"),
	})
	if outcome.Failed != 1 {
		t.Fatalf("expected orphan result to fail, got %+v", outcome)
	}
}

func TestReconcileIgnoresClientOwner(t *testing.T) {
	ctx := context.Background()
	store := memory.NewRecordStore()
	reconciler := app.NewBatchReconciler(store)

	spoofed := sessionAt("s1", "2024-01-01T00:00:00Z", domain.StatusStarted)
	spoofed.OwnerID = "someone-else"

	reconciler.Reconcile(ctx, "u1", []domain.QuizSession{spoofed}, nil)

	stored, _, _ := store.GetSession(ctx, "s1")
	if stored.OwnerID != "u1" {
		t.Fatalf("expected write scoped to authenticated owner, got %q", stored.OwnerID)
	}
}

type failingStore struct {
	app.RecordStore
	failID string
}

func (s *failingStore) UpsertSession(ctx context.Context, session domain.QuizSession) error {
	if session.SessionID == s.failID {
		return errors.New("storage unavailable for this record")
	}
	return s.RecordStore.UpsertSession(ctx, session)
}

func resultFor(id, sessionID, createdAt string) domain.QuizResult {
	ts, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		panic(err)
	}
	return domain.QuizResult{
		ResultID:       id,
		SessionID:      sessionID,
		OwnerID:        "u1",
		QuestionID:     "q1",
		SelectedAnswer: 2,
		IsCorrect:      true,
		TimeTaken:      12,
		CreatedAt:      ts,
	}
}
