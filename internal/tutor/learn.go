package tutor

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/abhisek/masterypath/internal/graph"
	"github.com/abhisek/masterypath/internal/lessons"
	"github.com/abhisek/masterypath/internal/plan"
	"github.com/abhisek/masterypath/internal/pp100"
	"github.com/abhisek/masterypath/internal/spacedrep"
)

// Turn is what the student should do next. Question is set while a PP100
// attempt is open.
type Turn struct {
	Step     plan.Step       `json:"step"`
	Question *graph.Question `json:"question,omitempty"`
}

// GetNextQuestion returns the pending PP100 question, or the step the
// student must take first (a lesson, or nothing when the course is done).
// Repeated calls return the same question until it is answered.
func (s *Service) GetNextQuestion(ctx context.Context, studentID string) (Turn, error) {
	var out Turn
	err := s.run(ctx, "GetNextQuestion", studentID, readWrite, func(ctx context.Context, t *turn) error {
		o := t.orchestrator(s)
		step := o.Advance()
		defer func() { t.flow = o.Flow() }()

		out.Step = step
		switch step.Phase {
		case plan.PhaseTeach:
			s.prefetch(ctx, step.AtomID)
			return nil
		case plan.PhaseAssess:
			q, err := o.NextQuestion()
			if err != nil {
				return err
			}
			out.Question = &q
		}
		return nil
	})
	return out, err
}

// SubmitAnswer records the answer to the pending PP100 question.
func (s *Service) SubmitAnswer(ctx context.Context, studentID, questionID string, correct bool) (plan.Feedback, error) {
	var fb plan.Feedback
	err := s.run(ctx, "SubmitAnswer", studentID, readWrite, func(ctx context.Context, t *turn) error {
		o := t.orchestrator(s)
		var err error
		fb, err = o.SubmitAnswer(questionID, correct)
		if err != nil {
			return err
		}
		t.flow = o.Flow()

		s.metrics.Answer("pp100", correct)
		if fb.Outcome != pp100.OutcomeNone {
			s.metrics.Outcome(string(fb.Outcome))
			t.snapshot = true
		}
		if fb.Outcome == pp100.OutcomeFailed {
			s.metrics.Diagnosis(len(fb.Gaps))
		}
		if fb.Next.Phase == plan.PhaseTeach {
			s.prefetch(ctx, fb.Next.AtomID)
		}
		return nil
	})
	return fb, err
}

// GetLesson returns the lesson for the atom the student is about to learn.
func (s *Service) GetLesson(ctx context.Context, studentID string) (*lessons.Lesson, error) {
	var atomID string
	err := s.run(ctx, "GetLesson", studentID, readWrite, func(ctx context.Context, t *turn) error {
		o := t.orchestrator(s)
		step := o.Advance()
		t.flow = o.Flow()
		if step.Phase != plan.PhaseTeach {
			return fmt.Errorf("get lesson in phase %q: %w", step.Phase, plan.ErrWrongPhase)
		}
		atomID = step.AtomID
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Generation can be slow, so the lesson is fetched outside the lock.
	if s.lessons == nil {
		return nil, fmt.Errorf("%w for atom %s", lessons.ErrNoLesson, atomID)
	}
	atom, err := s.graph.Atom(atomID)
	if err != nil {
		return nil, err
	}
	return s.lessons.Lesson(ctx, atom)
}

// CompleteLesson marks the current lesson delivered and opens the PP100
// attempt for its atom.
func (s *Service) CompleteLesson(ctx context.Context, studentID string) (plan.Step, error) {
	var step plan.Step
	err := s.run(ctx, "CompleteLesson", studentID, readWrite, func(ctx context.Context, t *turn) error {
		o := t.orchestrator(s)
		if cur := o.Advance(); cur.Phase != plan.PhaseTeach {
			t.flow = o.Flow()
			step = cur
			return fmt.Errorf("complete lesson in phase %q: %w", cur.Phase, plan.ErrWrongPhase)
		}
		var err error
		step, err = o.CompleteTeach()
		if err != nil {
			return err
		}
		t.flow = o.Flow()
		return nil
	})
	return step, err
}

// GetPlan derives the student's plan from stored state.
func (s *Service) GetPlan(ctx context.Context, studentID string) (plan.StudentPlan, error) {
	var p plan.StudentPlan
	err := s.run(ctx, "GetPlan", studentID, readOnly, func(ctx context.Context, t *turn) error {
		p = plan.Recompute(plan.Inputs{Graph: s.graph, Tracker: t.tracker, Flow: t.flow, Now: s.now()})
		return nil
	})
	return p, err
}

// SeedDiagnostic marks atomIDs mastered from an external placement and
// schedules them at the Low interval. Already mastered atoms are skipped.
// Unknown or already assessed atoms fail the whole call.
func (s *Service) SeedDiagnostic(ctx context.Context, studentID string, atomIDs []string) ([]string, error) {
	var seeded []string
	err := s.run(ctx, "SeedDiagnostic", studentID, readWrite, func(ctx context.Context, t *turn) error {
		for _, id := range atomIDs {
			if _, err := s.graph.Atom(id); err != nil {
				return err
			}
		}
		now := s.now()
		for _, id := range s.graph.IDs() {
			if !slices.Contains(atomIDs, id) {
				continue
			}
			tr, err := t.tracker.Seed(id, now)
			if err != nil {
				return err
			}
			if tr == nil {
				continue
			}
			if _, err := spacedrep.ScheduleSeed(t.tracker, id, now); err != nil {
				return err
			}
			t.rec.Transition(*tr, nil)
			seeded = append(seeded, id)
		}
		if len(seeded) > 0 {
			t.snapshot = true
			s.log.Info("diagnostic seed", zap.String("student", studentID), zap.Strings("atoms", seeded))
		}
		return nil
	})
	return seeded, err
}

type prefetcher interface {
	Prefetch(ctx context.Context, atom graph.Atom)
}

func (s *Service) prefetch(ctx context.Context, atomID string) {
	p, ok := s.lessons.(prefetcher)
	if !ok || atomID == "" {
		return
	}
	if atom, err := s.graph.Atom(atomID); err == nil {
		p.Prefetch(ctx, atom)
	}
}
