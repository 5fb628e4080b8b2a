package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"quiz-sync-service/internal/app"
	"quiz-sync-service/internal/domain"
)

// RecordStore is the Postgres implementation of app.RecordStore. Every query
// is parameterized and scoped to the owner; the session upsert carries its
// newer-than guard in the statement itself so concurrent writers to one
// session ID linearize inside Postgres rather than via read-then-write.
type RecordStore struct {
	pool *pgxpool.Pool
}

func NewRecordStore(pool *pgxpool.Pool) *RecordStore {
	return &RecordStore{pool: pool}
}

const sessionColumns = `session_id, owner_id, category, mode, total_questions, current_question,
	score, time_spent, status, started_at, completed_at, updated_at, metadata`

func (s *RecordStore) GetSession(ctx context.Context, sessionID string) (domain.QuizSession, bool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM quiz_sessions WHERE session_id=$1`, sessionID)
	session, err := scanSession(row)
	if err != nil {
		if isNoRows(err) {
			return domain.QuizSession{}, false, nil
		}
		return domain.QuizSession{}, false, fmt.Errorf("get session: %w", err)
	}
	return session, true, nil
}

func (s *RecordStore) GetResult(ctx context.Context, resultID string) (domain.QuizResult, bool, error) {
	var r domain.QuizResult
	err := s.pool.QueryRow(ctx,
		`SELECT result_id, session_id, owner_id, question_id, selected_answer, is_correct, time_taken, created_at
		 FROM quiz_results WHERE result_id=$1`, resultID).
		Scan(&r.ResultID, &r.SessionID, &r.OwnerID, &r.QuestionID, &r.SelectedAnswer, &r.IsCorrect, &r.TimeTaken, &r.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return domain.QuizResult{}, false, nil
		}
		return domain.QuizResult{}, false, fmt.Errorf("get result: %w", err)
	}
	return r, true, nil
}

func (s *RecordStore) UpsertSession(ctx context.Context, session domain.QuizSession) error {
	meta, err := marshalMetadata(session.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO quiz_sessions (`+sessionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13::jsonb)
		ON CONFLICT (session_id) DO UPDATE SET
			category=EXCLUDED.category,
			mode=EXCLUDED.mode,
			total_questions=EXCLUDED.total_questions,
			current_question=EXCLUDED.current_question,
			score=EXCLUDED.score,
			time_spent=EXCLUDED.time_spent,
			status=EXCLUDED.status,
			started_at=EXCLUDED.started_at,
			completed_at=EXCLUDED.completed_at,
			updated_at=EXCLUDED.updated_at,
			metadata=EXCLUDED.metadata
		WHERE quiz_sessions.owner_id = EXCLUDED.owner_id
		  AND quiz_sessions.updated_at < EXCLUDED.updated_at`,
		session.SessionID, session.OwnerID, session.Category, session.Mode,
		session.TotalQuestions, session.CurrentQuestion, session.Score, session.TimeSpent,
		string(session.Status), session.StartedAt, session.CompletedAt, session.UpdatedAt, meta)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func (s *RecordStore) InsertResultIfAbsent(ctx context.Context, r domain.QuizResult) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO quiz_results (result_id, session_id, owner_id, question_id, selected_answer, is_correct, time_taken, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (result_id) DO NOTHING`,
		r.ResultID, r.SessionID, r.OwnerID, r.QuestionID, r.SelectedAnswer, r.IsCorrect, r.TimeTaken, r.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert result: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *RecordStore) ListSessionsUpdatedAfter(ctx context.Context, owner string, ts time.Time, limit int) ([]domain.QuizSession, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM quiz_sessions
		 WHERE owner_id=$1 AND updated_at > $2
		 ORDER BY updated_at ASC, session_id ASC
		 LIMIT $3`, owner, ts, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions after: %w", err)
	}
	defer rows.Close()
	return collectSessions(rows)
}

func (s *RecordStore) ListResultsCreatedAfter(ctx context.Context, owner string, ts time.Time, limit int) ([]domain.QuizResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT result_id, session_id, owner_id, question_id, selected_answer, is_correct, time_taken, created_at
		 FROM quiz_results
		 WHERE owner_id=$1 AND created_at > $2
		 ORDER BY created_at ASC, result_id ASC
		 LIMIT $3`, owner, ts, limit)
	if err != nil {
		return nil, fmt.Errorf("list results after: %w", err)
	}
	defer rows.Close()

	results := make([]domain.QuizResult, 0)
	for rows.Next() {
		var r domain.QuizResult
		if err := rows.Scan(&r.ResultID, &r.SessionID, &r.OwnerID, &r.QuestionID,
			&r.SelectedAnswer, &r.IsCorrect, &r.TimeTaken, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *RecordStore) ListSessions(ctx context.Context, owner string, f app.SessionFilter) ([]domain.QuizSession, error) {
	// Conditions come only from the typed filter; every value is a parameter.
	query := `SELECT ` + sessionColumns + ` FROM quiz_sessions WHERE owner_id=$1`
	args := []interface{}{owner}
	if f.Category != "" {
		args = append(args, f.Category)
		query += fmt.Sprintf(" AND category=$%d", len(args))
	}
	query += " ORDER BY updated_at DESC, session_id ASC"
	args = append(args, f.Limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	args = append(args, f.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	return collectSessions(rows)
}

func (s *RecordStore) SessionStats(ctx context.Context, owner string) (domain.ProgressStats, error) {
	stats := domain.ProgressStats{}
	err := s.pool.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE status='completed'),
		       coalesce(avg(score) FILTER (WHERE status='completed'), 0),
		       coalesce(sum(time_spent), 0)
		FROM quiz_sessions WHERE owner_id=$1`, owner).
		Scan(&stats.TotalSessions, &stats.CompletedSessions, &stats.AverageScore, &stats.TotalTimeSpent)
	if err != nil {
		return domain.ProgressStats{}, fmt.Errorf("session stats: %w", err)
	}
	err = s.pool.QueryRow(ctx, `
		SELECT count(*), count(*) FILTER (WHERE is_correct)
		FROM quiz_results WHERE owner_id=$1`, owner).
		Scan(&stats.TotalAnswers, &stats.CorrectAnswers)
	if err != nil {
		return domain.ProgressStats{}, fmt.Errorf("result stats: %w", err)
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (domain.QuizSession, error) {
	var (
		session domain.QuizSession
		status  string
		meta    []byte
	)
	err := row.Scan(&session.SessionID, &session.OwnerID, &session.Category, &session.Mode,
		&session.TotalQuestions, &session.CurrentQuestion, &session.Score, &session.TimeSpent,
		&status, &session.StartedAt, &session.CompletedAt, &session.UpdatedAt, &meta)
	if err != nil {
		return domain.QuizSession{}, err
	}
	session.Status = domain.SessionStatus(status)
	if len(meta) > 0 && string(meta) != "{}" {
		if err := json.Unmarshal(meta, &session.Metadata); err != nil {
			return domain.QuizSession{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return session, nil
}

type sessionRows interface {
	rowScanner
	Next() bool
	Err() error
}

func collectSessions(rows sessionRows) ([]domain.QuizSession, error) {
	sessions := make([]domain.QuizSession, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func marshalMetadata(meta map[string]any) (string, error) {
	if meta == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
