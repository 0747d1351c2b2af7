// Package tutor is the per-student application service. It loads a
// student's state, runs one turn of the learning loop under the student's
// lock, persists the result and appends the turn's events.
package tutor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/abhisek/masterypath/internal/graph"
	"github.com/abhisek/masterypath/internal/lessons"
	"github.com/abhisek/masterypath/internal/lock"
	"github.com/abhisek/masterypath/internal/mastery"
	"github.com/abhisek/masterypath/internal/metrics"
	"github.com/abhisek/masterypath/internal/plan"
	"github.com/abhisek/masterypath/internal/spacedrep"
	"github.com/abhisek/masterypath/internal/store"
	"github.com/abhisek/masterypath/internal/tracing"
)

// ErrNoActiveReview is returned when a review answer or completion arrives
// without an open review session.
var ErrNoActiveReview = errors.New("no active review session")

// ErrStudentRequired is returned for an empty student id.
var ErrStudentRequired = errors.New("student id is required")

// Deps are the collaborators of a Service. Graph, States and Events are
// required; the rest fall back to no-op or in-process defaults.
type Deps struct {
	Graph     *graph.Graph
	States    store.StateRepo
	Snapshots store.SnapshotRepo
	Events    store.EventRepo
	Locker    lock.Locker
	Lessons   lessons.Provider
	Metrics   *metrics.Registry
	Log       *zap.Logger
	Review    spacedrep.Options
	Clock     func() time.Time
}

// Service runs student turns. It is safe for concurrent use; turns of the
// same student are serialized by the locker.
type Service struct {
	graph     *graph.Graph
	states    store.StateRepo
	snapshots store.SnapshotRepo
	events    store.EventRepo
	locker    lock.Locker
	lessons   lessons.Provider
	metrics   *metrics.Registry
	log       *zap.Logger
	review    spacedrep.Options
	now       func() time.Time
}

func New(d Deps) (*Service, error) {
	switch {
	case d.Graph == nil:
		return nil, errors.New("tutor: graph is required")
	case d.States == nil:
		return nil, errors.New("tutor: state repo is required")
	case d.Events == nil:
		return nil, errors.New("tutor: event repo is required")
	}
	s := &Service{
		graph:     d.Graph,
		states:    d.States,
		snapshots: d.Snapshots,
		events:    d.Events,
		locker:    d.Locker,
		lessons:   d.Lessons,
		metrics:   d.Metrics,
		log:       d.Log,
		review:    d.Review,
		now:       d.Clock,
	}
	if s.locker == nil {
		s.locker = lock.NewLocal()
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Graph returns the course the service teaches.
func (s *Service) Graph() *graph.Graph {
	return s.graph
}

// turn is one student's state for the duration of a call.
type turn struct {
	studentID string
	version   int64
	tracker   *mastery.Tracker
	flow      plan.Flow
	review    *spacedrep.ReviewSession
	rec       *recorder
	// snapshot requests a history snapshot after the state is saved.
	snapshot bool
}

func (t *turn) orchestrator(s *Service) *plan.Orchestrator {
	return plan.NewOrchestrator(s.graph, t.tracker, t.flow,
		plan.WithLogger(s.log.With(zap.String("student", t.studentID))),
		plan.WithClock(s.now),
		plan.WithRecorder(t.rec),
	)
}

type mode int

const (
	readOnly mode = iota
	readWrite
)

// run executes fn against the student's state. In readWrite mode the
// student's lock is held for the whole call and the state is saved when fn
// succeeds; nothing is saved when it fails.
func (s *Service) run(ctx context.Context, op, studentID string, m mode, fn func(ctx context.Context, t *turn) error) (err error) {
	ctx, span := tracing.Tracer().Start(ctx, "tutor."+op,
		trace.WithAttributes(attribute.String("student.id", studentID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if studentID == "" {
		return ErrStudentRequired
	}

	if m == readWrite {
		unlock, err := s.locker.Lock(ctx, "student:"+studentID)
		if err != nil {
			return fmt.Errorf("lock student %s: %w", studentID, err)
		}
		defer unlock()
	}

	t, err := s.load(ctx, studentID)
	if err != nil {
		return err
	}
	if err := fn(ctx, t); err != nil {
		return err
	}
	if m == readWrite {
		return s.save(ctx, t)
	}
	return nil
}

func (s *Service) load(ctx context.Context, studentID string) (*turn, error) {
	t := &turn{studentID: studentID, rec: newRecorder(studentID)}

	st, err := s.states.Load(ctx, studentID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		t.tracker = mastery.NewTracker(s.graph)
	case err != nil:
		return nil, err
	default:
		t.version = st.Version
		t.tracker = mastery.NewTrackerFromSnapshot(s.graph, st.Data.Mastery)
		if len(st.Data.Flow) > 0 {
			if err := json.Unmarshal(st.Data.Flow, &t.flow); err != nil {
				return nil, fmt.Errorf("decode flow of %s: %w", studentID, err)
			}
		}
		if len(st.Data.Review) > 0 {
			var rs spacedrep.ReviewSession
			if err := json.Unmarshal(st.Data.Review, &rs); err != nil {
				return nil, fmt.Errorf("decode review of %s: %w", studentID, err)
			}
			t.review = &rs
		}
	}
	t.tracker.Init(s.graph.IDs())
	return t, nil
}

func (s *Service) save(ctx context.Context, t *turn) error {
	data, err := encodeState(t)
	if err != nil {
		return err
	}
	v, err := s.states.Save(ctx, t.studentID, t.version, data)
	if err != nil {
		return fmt.Errorf("save state of %s: %w", t.studentID, err)
	}
	t.version = v

	// The turn is committed; event and snapshot failures are only logged.
	t.rec.flush(ctx, s.events, s.log)
	if t.snapshot && s.snapshots != nil {
		snap := &store.Snapshot{StudentID: t.studentID, Timestamp: s.now(), Data: data}
		if err := s.snapshots.Save(ctx, snap); err != nil {
			s.log.Warn("save snapshot", zap.String("student", t.studentID), zap.Error(err))
		}
	}
	return nil
}

func encodeState(t *turn) (store.SnapshotData, error) {
	data := store.SnapshotData{
		Version:   store.SnapshotVersion,
		StudentID: t.studentID,
		Mastery:   t.tracker.SnapshotData(),
	}
	flow, err := json.Marshal(t.flow)
	if err != nil {
		return data, fmt.Errorf("encode flow: %w", err)
	}
	data.Flow = flow
	if t.review != nil {
		review, err := json.Marshal(t.review)
		if err != nil {
			return data, fmt.Errorf("encode review: %w", err)
		}
		data.Review = review
	}
	return data, nil
}
