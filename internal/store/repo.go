package store

import (
	"context"
	"encoding/json"
	"time"
)

// SnapshotVersion is the current layout of SnapshotData.
const SnapshotVersion = 1

// QueryOpts configures event queries with filtering and pagination.
type QueryOpts struct {
	Kind  string // "" = all kinds
	Limit int    // max results (0 = unlimited)
	After int64  // sequence > After
}

// SnapshotData captures one student's full state at a point in time.
type SnapshotData struct {
	Version   int                  `json:"version"`
	StudentID string               `json:"student_id"`
	Mastery   *MasterySnapshotData `json:"mastery,omitempty"`
	// Flow is the orchestrator state, including any live PP100 session.
	Flow json.RawMessage `json:"flow,omitempty"`
	// Review is the open review session, if any.
	Review json.RawMessage `json:"review,omitempty"`
}

// MasterySnapshotData holds every AtomMastery record of a student.
type MasterySnapshotData struct {
	Atoms map[string]*AtomMasteryData `json:"atoms"`
}

// AtomMasteryData is the persisted form of one student-atom record.
type AtomMasteryData struct {
	AtomID               string         `json:"atom_id"`
	State                string         `json:"state"`
	Source               string         `json:"source,omitempty"`
	LastDemonstratedAt   *string        `json:"last_demonstrated_at,omitempty"`
	CurrentDifficulty    string         `json:"current_difficulty"`
	ConsecutiveCorrect   int            `json:"consecutive_correct"`
	ConsecutiveIncorrect int            `json:"consecutive_incorrect"`
	AttemptNumber        int            `json:"attempt_number"`
	SeenQuestionIDs      []string       `json:"seen_question_ids,omitempty"`
	IntervalDays         int            `json:"interval_days"`
	NextReviewAt         *string        `json:"next_review_at,omitempty"`
	Attempts             []AttemptData  `json:"attempts,omitempty"`
	Misses               map[string]int `json:"misses,omitempty"`
	ProbePending         bool           `json:"probe_pending,omitempty"`
	Blocked              bool           `json:"blocked,omitempty"`
}

// AttemptData is the persisted form of one PP100 attempt.
type AttemptData struct {
	Number            int      `json:"number"`
	QuestionIDs       []string `json:"question_ids"`
	Outcome           string   `json:"outcome,omitempty"`
	QuestionsAnswered int      `json:"questions_answered"`
	Correct           int      `json:"correct"`
	StartedAt         string   `json:"started_at"`
	EndedAt           *string  `json:"ended_at,omitempty"`
}

// StudentState is the current, versioned state row of a student.
type StudentState struct {
	StudentID string
	Version   int64
	Data      SnapshotData
	UpdatedAt time.Time
}

// StateRepo stores the current state of each student with optimistic
// versioning.
type StateRepo interface {
	// Load returns ErrNotFound when the student has no state yet.
	Load(ctx context.Context, studentID string) (*StudentState, error)

	// Save writes data if the stored version still equals version (0 for a
	// new student) and returns the new version. A lost race is ErrConflict.
	Save(ctx context.Context, studentID string, version int64, data SnapshotData) (int64, error)

	// Students lists every known student id, sorted.
	Students(ctx context.Context) ([]string, error)
}

// Snapshot is a point-in-time capture of a student's state.
type Snapshot struct {
	Sequence  int64
	StudentID string
	Timestamp time.Time
	Data      SnapshotData
}

// SnapshotRepo manages student state history.
type SnapshotRepo interface {
	// Save stores a new snapshot and assigns its sequence.
	Save(ctx context.Context, snap *Snapshot) error

	// Latest returns the most recent snapshot, or nil if none exist.
	Latest(ctx context.Context, studentID string) (*Snapshot, error)

	// Prune deletes all but the keep most recent snapshots of a student
	// and returns how many were removed.
	Prune(ctx context.Context, studentID string, keep int) (int, error)
}

// Event kinds.
const (
	KindAnswer     = "answer"
	KindMastery    = "mastery"
	KindDiagnosis  = "diagnosis"
	KindReview     = "review"
	KindLLMRequest = "llm_request"
)

// Event is one row of the append-only log.
type Event struct {
	Sequence  int64
	StudentID string
	Kind      string
	AtomID    string
	Payload   json.RawMessage
	CreatedAt time.Time
}

// AnswerEventData records one answered question.
type AnswerEventData struct {
	StudentID  string `json:"student_id"`
	AtomID     string `json:"atom_id"`
	QuestionID string `json:"question_id"`
	Difficulty string `json:"difficulty"`
	Correct    bool   `json:"correct"`
	// Context is "pp100" or "review".
	Context   string `json:"context"`
	Attempt   int    `json:"attempt,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// MasteryEventData records a mastery state transition.
type MasteryEventData struct {
	StudentID string `json:"student_id"`
	AtomID    string `json:"atom_id"`
	FromState string `json:"from_state"`
	ToState   string `json:"to_state"`
	Trigger   string `json:"trigger"`
	Questions int    `json:"questions,omitempty"`
	Correct   int    `json:"correct,omitempty"`
}

// DiagnosisEventData records the gap list produced for a failed atom.
type DiagnosisEventData struct {
	StudentID string   `json:"student_id"`
	AtomID    string   `json:"atom_id"`
	Gaps      []string `json:"gaps"`
	Attempt   int      `json:"attempt"`
}

// ReviewEventData records one atom's result in a review session.
type ReviewEventData struct {
	StudentID    string `json:"student_id"`
	SessionID    string `json:"session_id"`
	AtomID       string `json:"atom_id"`
	Correct      int    `json:"correct"`
	Total        int    `json:"total"`
	Passed       bool   `json:"passed"`
	IntervalDays int    `json:"interval_days"`
	Probe        bool   `json:"probe,omitempty"`
}

// LLMRequestEventData captures the data for a single LLM request event.
type LLMRequestEventData struct {
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	Purpose      string `json:"purpose"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	LatencyMs    int64  `json:"latency_ms"`
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// EventRepo provides append and query access to domain events.
type EventRepo interface {
	AppendAnswerEvent(ctx context.Context, data AnswerEventData) error
	AppendMasteryEvent(ctx context.Context, data MasteryEventData) error
	AppendDiagnosisEvent(ctx context.Context, data DiagnosisEventData) error
	AppendReviewEvent(ctx context.Context, data ReviewEventData) error
	AppendLLMRequest(ctx context.Context, data LLMRequestEventData) error

	// List returns a student's events in sequence order.
	List(ctx context.Context, studentID string, opts QueryOpts) ([]Event, error)
}
