// Package plan drives the teach, assess and remediate loop for one student
// and derives the student's plan from current state.
package plan

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/abhisek/masterypath/internal/diagnosis"
	"github.com/abhisek/masterypath/internal/graph"
	"github.com/abhisek/masterypath/internal/mastery"
	"github.com/abhisek/masterypath/internal/pp100"
	"github.com/abhisek/masterypath/internal/priority"
	"github.com/abhisek/masterypath/internal/spacedrep"
)

// Phase is the orchestrator's position in the learning loop.
type Phase string

const (
	PhaseIdle   Phase = ""
	PhaseTeach  Phase = "teach"
	PhaseAssess Phase = "assess"
	PhaseDone   Phase = "done"
)

// ErrWrongPhase is returned when an operation does not fit the current phase.
var ErrWrongPhase = errors.New("operation not allowed in current phase")

// Frame is one open remediation: the atom that failed and the gaps that
// must be mastered before it is retried.
type Frame struct {
	FailedAtomID string   `json:"failed_atom_id"`
	Gaps         []string `json:"gaps"`
}

// Flow is the persisted orchestrator state.
type Flow struct {
	Phase  Phase  `json:"phase"`
	AtomID string `json:"atom_id,omitempty"`

	// Session is the live PP100 session while assessing.
	Session *pp100.Session `json:"session,omitempty"`

	// Frames is the remediation stack, innermost last.
	Frames []Frame `json:"frames,omitempty"`
}

func (f Flow) clone() Flow {
	out := f
	if f.Session != nil {
		s := *f.Session
		out.Session = &s
	}
	out.Frames = make([]Frame, len(f.Frames))
	for i, fr := range f.Frames {
		out.Frames[i] = Frame{FailedAtomID: fr.FailedAtomID, Gaps: slices.Clone(fr.Gaps)}
	}
	return out
}

// Step describes what the student should do now.
type Step struct {
	Phase   Phase  `json:"phase"`
	AtomID  string `json:"atom_id,omitempty"`
	Action  Action `json:"action,omitempty"`
	Attempt int    `json:"attempt,omitempty"`
	// Depth is the number of open remediation frames.
	Depth int `json:"depth"`
}

// Feedback is returned for every answered PP100 question.
type Feedback struct {
	Correct    bool             `json:"correct"`
	Difficulty graph.Difficulty `json:"difficulty"`
	Answered   int              `json:"answered"`
	Outcome    pp100.Outcome    `json:"outcome,omitempty"`
	Gaps       []string         `json:"gaps,omitempty"`
	Next       Step             `json:"next"`
}

// Recorder observes orchestrator events, typically to append them to the
// event log. Calls happen synchronously inside the student's turn.
type Recorder interface {
	Answer(s pp100.Session, a pp100.Answer)
	Transition(t mastery.StateTransition, s *pp100.Session)
	Diagnosis(atomID string, attempt int, gaps []string)
}

type nopRecorder struct{}

func (nopRecorder) Answer(pp100.Session, pp100.Answer)                 {}
func (nopRecorder) Transition(mastery.StateTransition, *pp100.Session) {}
func (nopRecorder) Diagnosis(string, int, []string)                    {}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithRecorder sets the event recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.rec = r
		}
	}
}

// Orchestrator runs the learning loop for one student. It is not safe for
// concurrent use; callers hold the student's lock for every call.
type Orchestrator struct {
	g    *graph.Graph
	tr   *mastery.Tracker
	flow Flow
	log  *zap.Logger
	now  func() time.Time
	rec  Recorder
}

// NewOrchestrator resumes a student from flow. Use a zero Flow for a new
// student; call Advance to pick the first atom.
func NewOrchestrator(g *graph.Graph, tr *mastery.Tracker, flow Flow, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		g:    g,
		tr:   tr,
		flow: flow.clone(),
		log:  zap.NewNop(),
		now:  time.Now,
		rec:  nopRecorder{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Flow returns a copy of the persisted state.
func (o *Orchestrator) Flow() Flow {
	return o.flow.clone()
}

// Tracker returns the student's tracker.
func (o *Orchestrator) Tracker() *mastery.Tracker {
	return o.tr
}

// Current describes the current step.
func (o *Orchestrator) Current() Step {
	st := Step{Phase: o.flow.Phase, AtomID: o.flow.AtomID, Depth: len(o.flow.Frames)}
	if st.AtomID != "" {
		st.Action = ActionTeach
		if o.isOpenGap(st.AtomID) {
			st.Action = ActionGapFill
		}
		st.Attempt = o.tr.Get(st.AtomID).AttemptNumber
		if o.flow.Phase == PhaseTeach {
			st.Attempt++
		}
	}
	return st
}

func (o *Orchestrator) isOpenGap(id string) bool {
	for _, fr := range o.flow.Frames {
		if slices.Contains(fr.Gaps, id) {
			return true
		}
	}
	return false
}

// Advance moves to the next atom to teach unless a teach or assess step is
// already open. Remediation frames take precedence over priority order.
func (o *Orchestrator) Advance() Step {
	switch o.flow.Phase {
	case PhaseAssess:
		return o.Current()
	case PhaseTeach:
		if o.teachable(o.flow.AtomID) {
			return o.Current()
		}
	}

	o.flow.AtomID = ""
	o.flow.Session = nil
	if id := o.nextFromFrames(); id != "" {
		o.flow.Phase, o.flow.AtomID = PhaseTeach, id
		return o.Current()
	}
	if id := priority.Next(o.g, o.tr, heldAtoms(o.flow.Frames, o.tr)...); id != "" {
		o.flow.Phase, o.flow.AtomID = PhaseTeach, id
		return o.Current()
	}
	o.flow.Phase = PhaseDone
	return o.Current()
}

func (o *Orchestrator) teachable(id string) bool {
	if id == "" {
		return false
	}
	am := o.tr.Get(id)
	switch am.State {
	case mastery.StateNotStarted:
		return true
	case mastery.StateFrozen:
		return !am.Blocked && am.AttemptsRemaining() > 0
	}
	return false
}

// nextFromFrames resolves the remediation stack from the innermost frame
// outward and returns the atom to teach, or "" once the stack is empty.
// heldAtoms lists the failed atoms of frames that still have an unmastered
// gap. They are not frozen-resolved yet.
func heldAtoms(frames []Frame, tr *mastery.Tracker) []string {
	var held []string
	for _, fr := range frames {
		for _, gap := range fr.Gaps {
			if tr.Get(gap).State != mastery.StateMastered {
				held = append(held, fr.FailedAtomID)
				break
			}
		}
	}
	return held
}

func (o *Orchestrator) nextFromFrames() string {
	for len(o.flow.Frames) > 0 {
		top := o.flow.Frames[len(o.flow.Frames)-1]

		pending, blocked := "", ""
		for _, gap := range top.Gaps {
			am := o.tr.Get(gap)
			if am.State == mastery.StateMastered {
				continue
			}
			if am.Blocked {
				blocked = gap
				break
			}
			pending = gap
			break
		}

		if blocked != "" {
			o.popFrame()
			if err := o.tr.Block(top.FailedAtomID); err != nil {
				o.log.Warn("block failed atom", zap.String("atom", top.FailedAtomID), zap.Error(err))
			}
			o.log.Info("remediation abandoned: gap blocked",
				zap.String("atom", top.FailedAtomID), zap.String("gap", blocked))
			continue
		}
		if pending != "" {
			return pending
		}

		// Every gap is mastered: retry the failed atom if it may be retried.
		o.popFrame()
		if o.teachable(top.FailedAtomID) && o.tr.PrerequisitesMastered(top.FailedAtomID) {
			return top.FailedAtomID
		}
	}
	return ""
}

// openGapsOf returns the unmastered gaps of any open frame for id.
func (o *Orchestrator) openGapsOf(id string) []string {
	var open []string
	for _, fr := range o.flow.Frames {
		if fr.FailedAtomID != id {
			continue
		}
		for _, gap := range fr.Gaps {
			if !o.tr.IsMastered(gap) && !slices.Contains(open, gap) {
				open = append(open, gap)
			}
		}
	}
	return open
}

func (o *Orchestrator) popFrame() {
	o.flow.Frames = o.flow.Frames[:len(o.flow.Frames)-1]
}

// CompleteTeach records that the lesson for the current atom was delivered
// and opens a PP100 attempt.
func (o *Orchestrator) CompleteTeach() (Step, error) {
	if o.flow.Phase != PhaseTeach {
		return o.Current(), fmt.Errorf("complete teach in phase %q: %w", o.flow.Phase, ErrWrongPhase)
	}
	id := o.flow.AtomID
	now := o.now()

	if open := o.openGapsOf(id); len(open) > 0 {
		return o.Current(), &mastery.InvalidTransitionError{
			AtomID: id,
			From:   o.tr.State(id),
			Action: "assess",
			Reason: fmt.Sprintf("unresolved gaps %v", open),
		}
	}

	tr, err := o.tr.BeginAttempt(id, now)
	if err != nil {
		return o.Current(), err
	}
	am := o.tr.Get(id)
	s := pp100.NewSession(id, am.AttemptNumber, o.tr.UsedQuestionIDs(id), now)
	o.flow.Phase = PhaseAssess
	o.flow.Session = &s
	o.rec.Transition(*tr, &s)
	o.log.Debug("attempt started", zap.String("atom", id), zap.Int("attempt", am.AttemptNumber), zap.String("trigger", tr.Trigger))
	return o.Current(), nil
}

// NextQuestion returns the question to present. It is idempotent while an
// answer is pending.
func (o *Orchestrator) NextQuestion() (graph.Question, error) {
	if o.flow.Phase != PhaseAssess || o.flow.Session == nil {
		return graph.Question{}, fmt.Errorf("next question in phase %q: %w", o.flow.Phase, ErrWrongPhase)
	}
	q, s, err := pp100.NextQuestion(o.g, *o.flow.Session)
	if err != nil {
		var cie *pp100.ContentInsufficiencyError
		if errors.As(err, &cie) {
			o.log.Error("content insufficient",
				zap.String("atom", cie.AtomID), zap.Stringer("difficulty", cie.Difficulty), zap.Int("attempt", cie.Attempt))
		}
		return graph.Question{}, err
	}
	o.flow.Session = &s
	return q, nil
}

// SubmitAnswer records the answer to the pending question. When the session
// reaches an outcome the orchestrator records it, schedules the review or
// diagnoses gaps, and advances.
func (o *Orchestrator) SubmitAnswer(questionID string, correct bool) (Feedback, error) {
	if o.flow.Phase != PhaseAssess || o.flow.Session == nil {
		return Feedback{}, fmt.Errorf("submit answer in phase %q: %w", o.flow.Phase, ErrWrongPhase)
	}
	now := o.now()
	s, err := pp100.SubmitAnswer(*o.flow.Session, questionID, correct, now)
	if err != nil {
		return Feedback{}, err
	}
	id := s.AtomID
	if err := o.tr.RecordAnswer(id, questionID, correct, mastery.Progress{
		Difficulty:           s.Difficulty,
		ConsecutiveCorrect:   s.ConsecutiveCorrect,
		ConsecutiveIncorrect: s.ConsecutiveIncorrect,
	}); err != nil {
		return Feedback{}, err
	}
	o.flow.Session = &s
	o.rec.Answer(s, s.Answers[len(s.Answers)-1])

	fb := Feedback{Correct: correct, Difficulty: s.Difficulty, Answered: s.Answered(), Outcome: s.Outcome}
	switch s.Outcome {
	case pp100.OutcomeMastered:
		if err := o.onMastered(s, now); err != nil {
			return fb, err
		}
	case pp100.OutcomeFailed:
		gaps, err := o.onFailed(s, now)
		fb.Gaps = gaps
		if err != nil {
			return fb, err
		}
	}
	fb.Next = o.Advance()
	return fb, nil
}

func (o *Orchestrator) onMastered(s pp100.Session, now time.Time) error {
	tr, err := o.tr.RecordMastered(s.AtomID, now)
	if err != nil {
		return err
	}
	o.rec.Transition(*tr, &s)
	next, err := spacedrep.ScheduleReview(o.tr, s.AtomID, spacedrep.MetricsFromCounts(s.Answered(), s.Correct()), now)
	if err != nil {
		return err
	}
	o.log.Info("atom mastered",
		zap.String("atom", s.AtomID),
		zap.Int("attempt", s.Attempt),
		zap.Int("questions", s.Answered()),
		zap.Float64("accuracy", s.Accuracy()),
		zap.Time("next_review", next))
	o.flow.Phase, o.flow.Session = PhaseIdle, nil
	return nil
}

func (o *Orchestrator) onFailed(s pp100.Session, now time.Time) ([]string, error) {
	tr, err := o.tr.RecordFailed(s.AtomID, now)
	if err != nil {
		return nil, err
	}
	o.rec.Transition(*tr, &s)
	if s.Exhausted() {
		o.log.Warn("mastery unreachable within question cap",
			zap.String("atom", s.AtomID), zap.Int("attempt", s.Attempt), zap.Int("correct", s.Correct()))
	}
	o.flow.Phase, o.flow.Session = PhaseIdle, nil

	gaps, err := diagnosis.Diagnose(o.g, s.AtomID, o.tr.States())
	if err != nil {
		var gce *diagnosis.GraphCycleError
		if errors.As(err, &gce) {
			o.log.Error("graph cycle during diagnosis", zap.Strings("path", gce.Path))
		}
		return nil, err
	}
	o.rec.Diagnosis(s.AtomID, s.Attempt, gaps)
	o.flow.Frames = append(o.flow.Frames, Frame{FailedAtomID: s.AtomID, Gaps: gaps})
	o.log.Info("atom failed",
		zap.String("atom", s.AtomID),
		zap.Int("attempt", s.Attempt),
		zap.Strings("gaps", gaps),
		zap.Bool("blocked", o.tr.Get(s.AtomID).Blocked))
	return gaps, nil
}
