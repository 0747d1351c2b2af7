package pp100

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/abhisek/masterypath/internal/graph"
)

// ErrSessionOver is returned by turn functions once an outcome is reached.
var ErrSessionOver = errors.New("pp100 session is over")

// ErrNotPending is returned when an answer does not match the pending question.
var ErrNotPending = errors.New("question is not pending")

// ContentInsufficiencyError reports an empty question pool at the difficulty
// the ladder requires. No other difficulty is ever substituted.
type ContentInsufficiencyError struct {
	AtomID     string
	Difficulty graph.Difficulty
	Attempt    int
}

func (e *ContentInsufficiencyError) Error() string {
	return fmt.Sprintf("content insufficient: atom %q has no %s questions available for attempt %d",
		e.AtomID, e.Difficulty, e.Attempt)
}

// NextQuestion selects the next question at the current difficulty. While a
// question is pending it returns that same question, so an interrupted
// session resumes where it stopped.
func NextQuestion(cat graph.Catalog, s Session) (graph.Question, Session, error) {
	if s.Done() {
		return graph.Question{}, s, ErrSessionOver
	}
	if s.Pending != nil {
		return *s.Pending, s, nil
	}

	pool, err := cat.QuestionsByDifficulty(s.AtomID, s.Difficulty)
	if err != nil {
		return graph.Question{}, s, fmt.Errorf("load %s pool for %q: %w", s.Difficulty, s.AtomID, err)
	}
	pool = slices.DeleteFunc(slices.Clone(pool), func(q graph.Question) bool {
		return s.excluded(q.ID)
	})
	if len(pool) == 0 {
		return graph.Question{}, s, &ContentInsufficiencyError{AtomID: s.AtomID, Difficulty: s.Difficulty, Attempt: s.Attempt}
	}

	q := pick(pool, s.Answers)
	s.Pending = &q
	return q, s, nil
}

// pick prefers a question not yet answered in this attempt. Otherwise it
// takes the one answered longest ago. Ties go to the lowest id.
func pick(pool []graph.Question, answers []Answer) graph.Question {
	lastSeen := make(map[string]int, len(answers))
	for i, a := range answers {
		lastSeen[a.QuestionID] = i
	}
	slices.SortFunc(pool, func(a, b graph.Question) int {
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})

	best := -1
	bestSeen := 0
	for i, q := range pool {
		seen, ok := lastSeen[q.ID]
		if !ok {
			return q
		}
		if best < 0 || seen < bestSeen {
			best, bestSeen = i, seen
		}
	}
	return pool[best]
}

// SubmitAnswer records the answer to the pending question, moves the ladder
// and evaluates the mastery and failure rules.
func SubmitAnswer(s Session, questionID string, correct bool, now time.Time) (Session, error) {
	if s.Done() {
		return s, ErrSessionOver
	}
	if s.Pending == nil || s.Pending.ID != questionID {
		return s, fmt.Errorf("answer %q: %w", questionID, ErrNotPending)
	}

	s.Answers = append(slices.Clip(s.Answers), Answer{
		QuestionID: questionID,
		Difficulty: s.Pending.Difficulty,
		Correct:    correct,
		At:         now,
	})
	s.Pending = nil
	s = step(s, correct)
	s.Outcome = evaluate(s.Answers)
	return s, nil
}

// step advances the difficulty ladder by one answer. A completed streak at
// the floor or ceiling clamps and still resets the counter.
func step(s Session, correct bool) Session {
	if correct {
		s.ConsecutiveIncorrect = 0
		s.ConsecutiveCorrect++
		if s.ConsecutiveCorrect >= StreakToMove {
			s.Difficulty = s.Difficulty.Up()
			s.ConsecutiveCorrect = 0
		}
		return s
	}
	s.ConsecutiveCorrect = 0
	s.ConsecutiveIncorrect++
	if s.ConsecutiveIncorrect >= StreakToMove {
		s.Difficulty = s.Difficulty.Down()
		s.ConsecutiveIncorrect = 0
	}
	return s
}

// evaluate applies the rules in order: mastery, failure, cap.
func evaluate(answers []Answer) Outcome {
	n := len(answers)
	if n >= Window {
		last := answers[n-Window:]
		if allMatch(last, true) && countHard(last) >= MinHardInWindow {
			return OutcomeMastered
		}
		if allMatch(last, false) {
			return OutcomeFailed
		}
	}
	if n >= AccuracyCheckAfter && belowAccuracy(answers) {
		return OutcomeFailed
	}
	if n >= MaxQuestions {
		return OutcomeFailed
	}
	return OutcomeNone
}

func allMatch(answers []Answer, correct bool) bool {
	for _, a := range answers {
		if a.Correct != correct {
			return false
		}
	}
	return true
}

func countHard(answers []Answer) int {
	n := 0
	for _, a := range answers {
		if a.Difficulty == graph.Hard {
			n++
		}
	}
	return n
}

// belowAccuracy reports accuracy under 70% in integer arithmetic.
func belowAccuracy(answers []Answer) bool {
	correct := 0
	for _, a := range answers {
		if a.Correct {
			correct++
		}
	}
	return correct*10 < len(answers)*7
}

// Responder answers presented questions, for example a simulated student.
type Responder interface {
	Respond(ctx context.Context, q graph.Question) (bool, error)
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, q graph.Question) (bool, error)

// Respond calls f.
func (f ResponderFunc) Respond(ctx context.Context, q graph.Question) (bool, error) {
	return f(ctx, q)
}

// Run drives s to an outcome, asking r for each answer. The returned session
// is always the latest state, even when an error stops the run early.
func Run(ctx context.Context, cat graph.Catalog, s Session, r Responder, now func() time.Time) (Session, error) {
	if now == nil {
		now = time.Now
	}
	for !s.Done() {
		if err := ctx.Err(); err != nil {
			return s, err
		}
		q, next, err := NextQuestion(cat, s)
		if err != nil {
			return s, err
		}
		s = next
		correct, err := r.Respond(ctx, q)
		if err != nil {
			return s, fmt.Errorf("respond to %q: %w", q.ID, err)
		}
		if s, err = SubmitAnswer(s, q.ID, correct, now()); err != nil {
			return s, err
		}
	}
	return s, nil
}
