package lessons

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/abhisek/masterypath/internal/blob"
	"github.com/abhisek/masterypath/internal/graph"
	"github.com/abhisek/masterypath/internal/metrics"
)

// Service resolves lessons from blob storage and falls back to the
// generator, caching what it generates. Concurrent requests for the same
// atom share one lookup.
type Service struct {
	store     blob.Store
	generator Provider
	metrics   *metrics.Registry
	log       *zap.Logger
	cfg       Config

	group singleflight.Group
	wg    sync.WaitGroup
}

// NewService creates a lesson service. generator may be nil, in which
// case only stored lessons are served.
func NewService(store blob.Store, generator Provider, cfg Config, reg *metrics.Registry, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, generator: generator, cfg: cfg, metrics: reg, log: log}
}

// Lesson returns the lesson for atom. Concurrent calls for one atom share a
// single resolution, which outlives any one caller's cancellation; each
// caller still stops waiting when its own ctx is done.
func (s *Service) Lesson(ctx context.Context, atom graph.Atom) (*Lesson, error) {
	flight := context.WithoutCancel(ctx)
	ch := s.group.DoChan(atom.ID, func() (any, error) {
		return s.resolve(flight, atom)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		// Callers share the singleflight result; hand each its own copy.
		lesson := *res.Val.(*Lesson)
		return &lesson, nil
	}
}

func (s *Service) resolve(ctx context.Context, atom graph.Atom) (*Lesson, error) {
	key := blob.LessonKey(atom.ID)

	data, err := s.store.Get(ctx, key)
	switch {
	case err == nil:
		var lesson Lesson
		if err := json.Unmarshal(data, &lesson); err != nil {
			s.metrics.Lesson("error")
			return nil, fmt.Errorf("decode lesson %s: %w", key, err)
		}
		if lesson.AtomID == "" {
			lesson.AtomID = atom.ID
		}
		if lesson.Source == "" {
			lesson.Source = SourceBlob
		}
		s.metrics.Lesson("hit")
		return &lesson, nil
	case !errors.Is(err, blob.ErrNotFound):
		s.metrics.Lesson("error")
		return nil, fmt.Errorf("read lesson %s: %w", key, err)
	}

	if s.generator == nil {
		s.metrics.Lesson("miss")
		return nil, fmt.Errorf("%w for atom %s", ErrNoLesson, atom.ID)
	}

	lesson, err := s.generator.Lesson(ctx, atom)
	if err != nil {
		s.metrics.Lesson("error")
		return nil, err
	}
	s.metrics.Lesson("generated")

	encoded, err := json.Marshal(lesson)
	if err != nil {
		return nil, fmt.Errorf("encode lesson: %w", err)
	}
	if err := s.store.Put(ctx, key, encoded, "application/json"); err != nil {
		// The lesson is still usable; the next request regenerates it.
		s.log.Warn("cache generated lesson", zap.String("atom", atom.ID), zap.Error(err))
	}
	return lesson, nil
}

// Prefetch resolves the lesson for atom in the background so that a later
// Lesson call is served from storage.
func (s *Service) Prefetch(ctx context.Context, atom graph.Atom) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx := context.WithoutCancel(ctx)
		if s.cfg.PrefetchTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.cfg.PrefetchTimeout)
			defer cancel()
		}
		start := time.Now()
		if _, err := s.Lesson(ctx, atom); err != nil {
			if !errors.Is(err, ErrNoLesson) {
				s.log.Warn("prefetch lesson", zap.String("atom", atom.ID), zap.Error(err))
			}
			return
		}
		s.log.Debug("prefetched lesson", zap.String("atom", atom.ID), zap.Duration("took", time.Since(start)))
	}()
}

// Wait blocks until all prefetches have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}
