package domain

import "time"

// SessionStatus is the lifecycle state of a quiz session.
type SessionStatus string

const (
	StatusStarted    SessionStatus = "started"
	StatusInProgress SessionStatus = "in_progress"
	StatusCompleted  SessionStatus = "completed"
	StatusAbandoned  SessionStatus = "abandoned"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s SessionStatus) Valid() bool {
	switch s {
	case StatusStarted, StatusInProgress, StatusCompleted, StatusAbandoned:
		return true
	}
	return false
}

// Terminal reports whether the session can no longer progress.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusAbandoned
}

// QuizSession is a device-created quiz run. The session ID is generated on the
// device and never changes; the device mutates the record offline and uploads
// it (possibly many times, possibly out of order) until it has no pending
// writes left.
type QuizSession struct {
	SessionID       string         `json:"session_id"`
	OwnerID         string         `json:"owner_id"`
	Category        string         `json:"category"`
	Mode            string         `json:"mode"`
	TotalQuestions  int            `json:"total_questions"`
	CurrentQuestion int            `json:"current_question"`
	Score           int            `json:"score"`
	TimeSpent       int            `json:"time_spent"`
	Status          SessionStatus  `json:"status"`
	StartedAt       time.Time      `json:"started_at"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	UpdatedAt       time.Time      `json:"updated_at"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// QuizResult records one answered question. Results are facts: inserted once
// per result ID, never edited.
type QuizResult struct {
	ResultID       string    `json:"result_id"`
	SessionID      string    `json:"session_id"`
	OwnerID        string    `json:"owner_id"`
	QuestionID     string    `json:"question_id"`
	SelectedAnswer int       `json:"selected_answer"`
	IsCorrect      bool      `json:"is_correct"`
	TimeTaken      int       `json:"time_taken"`
	CreatedAt      time.Time `json:"created_at"`
}

// Conflict is emitted when an incoming session write is not strictly newer
// than the stored copy. It is returned to the caller for visibility (and a
// client-side merge UI, if desired); it is never persisted.
type Conflict struct {
	SessionID  string      `json:"session_id"`
	Incoming   QuizSession `json:"incoming"`
	Existing   QuizSession `json:"existing"`
	Resolution string      `json:"resolution"`
}

// ResolutionServerWins is the only resolution currently produced: the stored
// copy is kept and the incoming write is dropped.
const ResolutionServerWins = "server_wins"

// ProgressStats aggregates an owner's synced history for the read-only
// progress view.
type ProgressStats struct {
	TotalSessions     int     `json:"total_sessions"`
	CompletedSessions int     `json:"completed_sessions"`
	TotalAnswers      int     `json:"total_answers"`
	CorrectAnswers    int     `json:"correct_answers"`
	AverageScore      float64 `json:"average_score"`
	TotalTimeSpent    int     `json:"total_time_spent"`
}
