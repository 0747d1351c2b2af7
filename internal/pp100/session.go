// Package pp100 runs the PP100 mastery protocol for a single atom.
//
// A Session is a plain value. Turn functions take a Session and return the
// next one, so callers can persist it between turns and resume later.
package pp100

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/abhisek/masterypath/internal/graph"
)

// Protocol constants.
const (
	// StreakToMove is the run of same-outcome answers that moves the ladder.
	StreakToMove = 2

	// Window is how many trailing answers the mastery and failure checks inspect.
	Window = 3

	// MinHardInWindow is the number of Hard answers the mastery window needs.
	MinHardInWindow = 2

	// AccuracyCheckAfter is the answer count from which accuracy can fail a session.
	AccuracyCheckAfter = 10

	// MaxQuestions is the hard stop for one session.
	MaxQuestions = 20
)

// Outcome is the terminal result of a session. Empty while running.
type Outcome string

const (
	OutcomeNone     Outcome = ""
	OutcomeMastered Outcome = "mastered"
	OutcomeFailed   Outcome = "failed"
)

// Answer is one answered question.
type Answer struct {
	QuestionID string           `json:"question_id"`
	Difficulty graph.Difficulty `json:"difficulty"`
	Correct    bool             `json:"correct"`
	At         time.Time        `json:"at"`
}

// Session is the full state of one PP100 attempt.
type Session struct {
	// ID identifies the session in event logs.
	ID string `json:"id"`

	// AtomID is the atom under assessment.
	AtomID string `json:"atom_id"`

	// Attempt is 1 or 2.
	Attempt int `json:"attempt"`

	// Difficulty is the current ladder level.
	Difficulty graph.Difficulty `json:"difficulty"`

	ConsecutiveCorrect   int `json:"consecutive_correct"`
	ConsecutiveIncorrect int `json:"consecutive_incorrect"`

	// Excluded holds question ids used by earlier attempts, sorted.
	Excluded []string `json:"excluded,omitempty"`

	// Answers is the ordered answer history of this attempt.
	Answers []Answer `json:"answers,omitempty"`

	// Pending is the question presented and not yet answered.
	Pending *graph.Question `json:"pending,omitempty"`

	Outcome   Outcome   `json:"outcome,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// NewSession starts an attempt at Easy. excluded lists question ids that
// this attempt must never present.
func NewSession(atomID string, attempt int, excluded []string, now time.Time) Session {
	ex := slices.Clone(excluded)
	slices.Sort(ex)
	ex = slices.Compact(ex)
	return Session{
		ID:         uuid.NewString(),
		AtomID:     atomID,
		Attempt:    attempt,
		Difficulty: graph.Easy,
		Excluded:   ex,
		StartedAt:  now,
	}
}

// Done reports whether the session reached an outcome.
func (s Session) Done() bool {
	return s.Outcome != OutcomeNone
}

// Answered returns the number of answered questions.
func (s Session) Answered() int {
	return len(s.Answers)
}

// Correct returns the number of correct answers.
func (s Session) Correct() int {
	n := 0
	for _, a := range s.Answers {
		if a.Correct {
			n++
		}
	}
	return n
}

// Accuracy returns Correct/Answered, or 0 before the first answer.
func (s Session) Accuracy() float64 {
	if len(s.Answers) == 0 {
		return 0
	}
	return float64(s.Correct()) / float64(len(s.Answers))
}

// SeenIDs returns the distinct question ids answered in this attempt, in
// first-seen order.
func (s Session) SeenIDs() []string {
	var out []string
	for _, a := range s.Answers {
		if !slices.Contains(out, a.QuestionID) {
			out = append(out, a.QuestionID)
		}
	}
	return out
}

// Exhausted reports whether the session failed by hitting MaxQuestions.
func (s Session) Exhausted() bool {
	return s.Outcome == OutcomeFailed && len(s.Answers) >= MaxQuestions && !failedEarly(s.Answers)
}

// failedEarly reports whether the failure rules alone would have ended the
// session at its final answer.
func failedEarly(answers []Answer) bool {
	n := len(answers)
	if n >= Window && allMatch(answers[n-Window:], false) {
		return true
	}
	return n >= AccuracyCheckAfter && belowAccuracy(answers)
}

func (s Session) excluded(id string) bool {
	_, ok := slices.BinarySearch(s.Excluded, id)
	return ok
}
