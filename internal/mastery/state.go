package mastery

import (
	"slices"
	"time"

	"github.com/abhisek/masterypath/internal/graph"
)

// State is an atom's position in the mastery lifecycle.
type State string

const (
	StateNotStarted State = "not_started"
	StateInProgress State = "in_progress"
	StateMastered   State = "mastered"
	StateFrozen     State = "frozen"
)

// Source records how an atom reached mastered.
type Source string

const (
	SourceDiagnostic Source = "diagnostic"
	SourcePP100      Source = "pp100"
)

// MaxAttempts is the lifetime PP100 attempt limit per student and atom.
const MaxAttempts = 2

// AttemptOutcome is the terminal result of one PP100 attempt.
type AttemptOutcome string

const (
	OutcomeMastered AttemptOutcome = "mastered"
	OutcomeFailed   AttemptOutcome = "failed"
)

// Attempt is one PP100 run. Attempts are append-only.
type Attempt struct {
	Number            int
	QuestionIDs       []string
	Outcome           AttemptOutcome // empty while running
	QuestionsAnswered int
	Correct           int
	StartedAt         time.Time
	EndedAt           *time.Time
}

// AtomMastery is the live state for one student and one atom.
type AtomMastery struct {
	AtomID             string
	State              State
	Source             Source
	LastDemonstratedAt *time.Time

	CurrentDifficulty    graph.Difficulty
	ConsecutiveCorrect   int
	ConsecutiveIncorrect int
	AttemptNumber        int
	// SeenQuestionIDs is scoped to the current attempt.
	SeenQuestionIDs []string

	IntervalDays int
	NextReviewAt *time.Time

	Attempts []Attempt
	// Misses counts incorrect answers per question id across attempts and reviews.
	Misses       map[string]int
	ProbePending bool
	// Blocked is set once an atom has failed every allowed attempt.
	Blocked bool
}

// LastAttempt returns the most recent attempt, or nil before the first one.
func (am *AtomMastery) LastAttempt() *Attempt {
	if len(am.Attempts) == 0 {
		return nil
	}
	return &am.Attempts[len(am.Attempts)-1]
}

// AttemptsRemaining returns how many PP100 attempts are left.
func (am *AtomMastery) AttemptsRemaining() int {
	n := MaxAttempts - am.AttemptNumber
	if n < 0 {
		return 0
	}
	return n
}

func (am *AtomMastery) clone() AtomMastery {
	out := *am
	if am.LastDemonstratedAt != nil {
		t := *am.LastDemonstratedAt
		out.LastDemonstratedAt = &t
	}
	if am.NextReviewAt != nil {
		t := *am.NextReviewAt
		out.NextReviewAt = &t
	}
	out.SeenQuestionIDs = slices.Clone(am.SeenQuestionIDs)
	out.Attempts = make([]Attempt, len(am.Attempts))
	for i, a := range am.Attempts {
		a.QuestionIDs = slices.Clone(a.QuestionIDs)
		if a.EndedAt != nil {
			t := *a.EndedAt
			a.EndedAt = &t
		}
		out.Attempts[i] = a
	}
	if am.Misses != nil {
		out.Misses = make(map[string]int, len(am.Misses))
		for k, v := range am.Misses {
			out.Misses[k] = v
		}
	}
	return out
}

// StateTransition records a mastery state change for event logging.
type StateTransition struct {
	AtomID  string
	From    State
	To      State
	Trigger string // "attempt-started", "auto-unfreeze", "pp100-mastered", "pp100-failed", "diagnostic-seed"
}
