package mastery

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/abhisek/masterypath/internal/graph"
)

// AtomLookup resolves prerequisite lists.
type AtomLookup interface {
	Atom(id string) (graph.Atom, error)
}

// Tracker holds every AtomMastery for one student. It is not safe for
// concurrent use; callers serialize turns per student.
type Tracker struct {
	atoms   AtomLookup
	records map[string]*AtomMastery
}

// NewTracker creates an empty tracker for one student.
func NewTracker(atoms AtomLookup) *Tracker {
	return &Tracker{atoms: atoms, records: make(map[string]*AtomMastery)}
}

// Init creates a not_started record for every id that has none.
func (t *Tracker) Init(ids []string) {
	for _, id := range ids {
		t.record(id)
	}
}

func (t *Tracker) record(id string) *AtomMastery {
	if am, ok := t.records[id]; ok {
		return am
	}
	am := &AtomMastery{AtomID: id, State: StateNotStarted, CurrentDifficulty: graph.Easy}
	t.records[id] = am
	return am
}

// Get returns a copy of the record for id. Unknown ids read as not_started.
func (t *Tracker) Get(id string) AtomMastery {
	if am, ok := t.records[id]; ok {
		return am.clone()
	}
	return AtomMastery{AtomID: id, State: StateNotStarted, CurrentDifficulty: graph.Easy}
}

// State returns the state of id.
func (t *Tracker) State(id string) State {
	if am, ok := t.records[id]; ok {
		return am.State
	}
	return StateNotStarted
}

// IsMastered reports whether id is mastered.
func (t *Tracker) IsMastered(id string) bool {
	return t.State(id) == StateMastered
}

// States returns the state of every tracked atom.
func (t *Tracker) States() map[string]State {
	out := make(map[string]State, len(t.records))
	for id, am := range t.records {
		out[id] = am.State
	}
	return out
}

// Mastered returns the set of mastered atom ids.
func (t *Tracker) Mastered() map[string]bool {
	out := make(map[string]bool)
	for id, am := range t.records {
		if am.State == StateMastered {
			out[id] = true
		}
	}
	return out
}

// All returns copies of every record, sorted by atom id.
func (t *Tracker) All() []AtomMastery {
	out := make([]AtomMastery, 0, len(t.records))
	for _, am := range t.records {
		out = append(out, am.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AtomID < out[j].AtomID })
	return out
}

// Clone returns a deep copy sharing only the atom lookup.
func (t *Tracker) Clone() *Tracker {
	c := NewTracker(t.atoms)
	for id, am := range t.records {
		cp := am.clone()
		c.records[id] = &cp
	}
	return c
}

// unresolvedPrerequisites returns the prerequisites of id that are not mastered.
func (t *Tracker) unresolvedPrerequisites(id string) ([]string, error) {
	a, err := t.atoms.Atom(id)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, p := range a.Prerequisites {
		if t.State(p) != StateMastered {
			out = append(out, p)
		}
	}
	return out, nil
}

// PrerequisitesMastered reports whether every prerequisite of id is mastered.
func (t *Tracker) PrerequisitesMastered(id string) bool {
	missing, err := t.unresolvedPrerequisites(id)
	return err == nil && len(missing) == 0
}

// BeginAttempt moves an atom into in_progress and opens a new PP100 attempt.
// not_started opens attempt 1. A frozen atom whose gaps are all mastered
// auto-unfreezes into attempt 2. Anything else is an InvalidTransitionError.
func (t *Tracker) BeginAttempt(id string, now time.Time) (*StateTransition, error) {
	am := t.record(id)
	invalid := func(reason string) error {
		return &InvalidTransitionError{AtomID: id, From: am.State, Action: "assess", Reason: reason}
	}

	switch am.State {
	case StateNotStarted, StateFrozen:
	default:
		return nil, invalid("atom is not awaiting assessment")
	}
	if am.Blocked {
		return nil, invalid("atom is blocked")
	}
	if am.AttemptNumber >= MaxAttempts {
		return nil, invalid("attempts exhausted")
	}

	missing, err := t.unresolvedPrerequisites(id)
	if err != nil {
		return nil, fmt.Errorf("begin attempt: %w", err)
	}
	if len(missing) > 0 {
		if am.State == StateFrozen {
			return nil, invalid(fmt.Sprintf("unresolved gaps %v", missing))
		}
		return nil, invalid(fmt.Sprintf("prerequisites not mastered %v", missing))
	}

	trigger := "attempt-started"
	if am.State == StateFrozen {
		trigger = "auto-unfreeze"
	}
	from := am.State

	am.State = StateInProgress
	am.AttemptNumber++
	am.CurrentDifficulty = graph.Easy
	am.ConsecutiveCorrect = 0
	am.ConsecutiveIncorrect = 0
	am.SeenQuestionIDs = nil
	am.Attempts = append(am.Attempts, Attempt{Number: am.AttemptNumber, StartedAt: now})

	return &StateTransition{AtomID: id, From: from, To: StateInProgress, Trigger: trigger}, nil
}

// UsedQuestionIDs returns every question id presented in earlier attempts.
func (t *Tracker) UsedQuestionIDs(id string) []string {
	am, ok := t.records[id]
	if !ok {
		return nil
	}
	var out []string
	for _, a := range am.Attempts {
		if a.Number == am.AttemptNumber && am.State == StateInProgress {
			continue
		}
		out = append(out, a.QuestionIDs...)
	}
	return out
}

// Progress mirrors the live PP100 ladder position after a turn.
type Progress struct {
	Difficulty           graph.Difficulty
	ConsecutiveCorrect   int
	ConsecutiveIncorrect int
}

// RecordAnswer appends an answered question to the running attempt and
// mirrors the ladder state.
func (t *Tracker) RecordAnswer(id, questionID string, correct bool, p Progress) error {
	am := t.record(id)
	if am.State != StateInProgress || len(am.Attempts) == 0 {
		return &InvalidTransitionError{AtomID: id, From: am.State, Action: "answer", Reason: "no running attempt"}
	}
	att := &am.Attempts[len(am.Attempts)-1]
	att.QuestionIDs = append(att.QuestionIDs, questionID)
	att.QuestionsAnswered++
	if correct {
		att.Correct++
	} else {
		if am.Misses == nil {
			am.Misses = make(map[string]int)
		}
		am.Misses[questionID]++
	}
	if !slices.Contains(am.SeenQuestionIDs, questionID) {
		am.SeenQuestionIDs = append(am.SeenQuestionIDs, questionID)
	}
	am.CurrentDifficulty = p.Difficulty
	am.ConsecutiveCorrect = p.ConsecutiveCorrect
	am.ConsecutiveIncorrect = p.ConsecutiveIncorrect
	return nil
}

// RecordMastered closes the running attempt as mastered.
func (t *Tracker) RecordMastered(id string, now time.Time) (*StateTransition, error) {
	am, err := t.closeAttempt(id, OutcomeMastered, now)
	if err != nil {
		return nil, err
	}
	am.State = StateMastered
	am.Source = SourcePP100
	ts := now
	am.LastDemonstratedAt = &ts
	return &StateTransition{AtomID: id, From: StateInProgress, To: StateMastered, Trigger: "pp100-mastered"}, nil
}

// RecordFailed closes the running attempt as failed and freezes the atom.
// The atom is blocked once no attempts remain.
func (t *Tracker) RecordFailed(id string, now time.Time) (*StateTransition, error) {
	am, err := t.closeAttempt(id, OutcomeFailed, now)
	if err != nil {
		return nil, err
	}
	am.State = StateFrozen
	if am.AttemptNumber >= MaxAttempts {
		am.Blocked = true
	}
	return &StateTransition{AtomID: id, From: StateInProgress, To: StateFrozen, Trigger: "pp100-failed"}, nil
}

func (t *Tracker) closeAttempt(id string, outcome AttemptOutcome, now time.Time) (*AtomMastery, error) {
	am := t.record(id)
	if am.State != StateInProgress || len(am.Attempts) == 0 {
		return nil, &InvalidTransitionError{AtomID: id, From: am.State, Action: "record " + string(outcome), Reason: "no running attempt"}
	}
	att := &am.Attempts[len(am.Attempts)-1]
	att.Outcome = outcome
	ended := now
	att.EndedAt = &ended
	return am, nil
}

// Seed marks an atom mastered from an external diagnostic placement.
func (t *Tracker) Seed(id string, now time.Time) (*StateTransition, error) {
	if _, err := t.atoms.Atom(id); err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	am := t.record(id)
	switch am.State {
	case StateMastered:
		return nil, nil
	case StateNotStarted:
	default:
		return nil, &InvalidTransitionError{AtomID: id, From: am.State, Action: "seed", Reason: "atom already assessed"}
	}
	am.State = StateMastered
	am.Source = SourceDiagnostic
	ts := now
	am.LastDemonstratedAt = &ts
	return &StateTransition{AtomID: id, From: StateNotStarted, To: StateMastered, Trigger: "diagnostic-seed"}, nil
}

// Block marks a frozen atom as no longer retryable.
func (t *Tracker) Block(id string) error {
	am := t.record(id)
	if am.State != StateFrozen {
		return &InvalidTransitionError{AtomID: id, From: am.State, Action: "block", Reason: "only frozen atoms can be blocked"}
	}
	am.Blocked = true
	return nil
}

// Reschedule sets the review interval and next due time of a mastered atom.
func (t *Tracker) Reschedule(id string, intervalDays int, next time.Time) error {
	am := t.record(id)
	if am.State != StateMastered {
		return &InvalidTransitionError{AtomID: id, From: am.State, Action: "schedule review", Reason: "atom is not mastered"}
	}
	am.IntervalDays = intervalDays
	n := next
	am.NextReviewAt = &n
	return nil
}

// Demonstrate records a successful review at now.
func (t *Tracker) Demonstrate(id string, now time.Time) error {
	am := t.record(id)
	if am.State != StateMastered {
		return &InvalidTransitionError{AtomID: id, From: am.State, Action: "demonstrate", Reason: "atom is not mastered"}
	}
	ts := now
	am.LastDemonstratedAt = &ts
	return nil
}

// SetProbe flags or clears a pending targeted probe.
func (t *Tracker) SetProbe(id string, pending bool) {
	t.record(id).ProbePending = pending
}

// RecordMiss counts a missed question outside PP100, for example in review.
func (t *Tracker) RecordMiss(id, questionID string) {
	am := t.record(id)
	if am.Misses == nil {
		am.Misses = make(map[string]int)
	}
	am.Misses[questionID]++
}
