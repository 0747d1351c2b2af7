package tutor

import (
	"context"

	"go.uber.org/zap"

	"github.com/abhisek/masterypath/internal/mastery"
	"github.com/abhisek/masterypath/internal/pp100"
	"github.com/abhisek/masterypath/internal/spacedrep"
	"github.com/abhisek/masterypath/internal/store"
)

// recorder buffers a turn's events in order and appends them once the
// turn's state is saved. It implements plan.Recorder.
type recorder struct {
	studentID string
	pending   []pendingEvent
}

type pendingEvent struct {
	kind   string
	atomID string
	append func(ctx context.Context, events store.EventRepo) error
}

func newRecorder(studentID string) *recorder {
	return &recorder{studentID: studentID}
}

func (r *recorder) add(kind, atomID string, fn func(ctx context.Context, events store.EventRepo) error) {
	r.pending = append(r.pending, pendingEvent{kind: kind, atomID: atomID, append: fn})
}

func (r *recorder) Answer(s pp100.Session, a pp100.Answer) {
	data := store.AnswerEventData{
		StudentID:  r.studentID,
		AtomID:     s.AtomID,
		QuestionID: a.QuestionID,
		Difficulty: a.Difficulty.String(),
		Correct:    a.Correct,
		Context:    "pp100",
		Attempt:    s.Attempt,
		SessionID:  s.ID,
	}
	r.add(store.KindAnswer, s.AtomID, func(ctx context.Context, events store.EventRepo) error {
		return events.AppendAnswerEvent(ctx, data)
	})
}

func (r *recorder) Transition(t mastery.StateTransition, s *pp100.Session) {
	data := store.MasteryEventData{
		StudentID: r.studentID,
		AtomID:    t.AtomID,
		FromState: string(t.From),
		ToState:   string(t.To),
		Trigger:   t.Trigger,
	}
	if s != nil {
		data.Questions = s.Answered()
		data.Correct = s.Correct()
	}
	r.add(store.KindMastery, t.AtomID, func(ctx context.Context, events store.EventRepo) error {
		return events.AppendMasteryEvent(ctx, data)
	})
}

func (r *recorder) Diagnosis(atomID string, attempt int, gaps []string) {
	data := store.DiagnosisEventData{
		StudentID: r.studentID,
		AtomID:    atomID,
		Gaps:      append([]string{}, gaps...),
		Attempt:   attempt,
	}
	r.add(store.KindDiagnosis, atomID, func(ctx context.Context, events store.EventRepo) error {
		return events.AppendDiagnosisEvent(ctx, data)
	})
}

func (r *recorder) reviewAnswer(rs *spacedrep.ReviewSession, it spacedrep.Item, correct bool) {
	data := store.AnswerEventData{
		StudentID:  r.studentID,
		AtomID:     it.AtomID,
		QuestionID: it.Question.ID,
		Difficulty: it.Question.Difficulty.String(),
		Correct:    correct,
		Context:    "review",
		SessionID:  rs.ID,
	}
	r.add(store.KindAnswer, it.AtomID, func(ctx context.Context, events store.EventRepo) error {
		return events.AppendAnswerEvent(ctx, data)
	})
}

func (r *recorder) reviewResult(sessionID string, res spacedrep.Result) {
	data := store.ReviewEventData{
		StudentID:    r.studentID,
		SessionID:    sessionID,
		AtomID:       res.AtomID,
		Correct:      res.Correct,
		Total:        res.Total,
		Passed:       res.Passed,
		IntervalDays: res.IntervalDays,
		Probe:        res.Probe,
	}
	r.add(store.KindReview, res.AtomID, func(ctx context.Context, events store.EventRepo) error {
		return events.AppendReviewEvent(ctx, data)
	})
}

// flush appends every buffered event. A failed append is logged and the
// remaining events are still written.
func (r *recorder) flush(ctx context.Context, events store.EventRepo, log *zap.Logger) {
	ctx = context.WithoutCancel(ctx)
	for _, ev := range r.pending {
		if err := ev.append(ctx, events); err != nil {
			log.Warn("append event",
				zap.String("student", r.studentID),
				zap.String("kind", ev.kind),
				zap.String("atom", ev.atomID),
				zap.Error(err))
		}
	}
	r.pending = nil
}
