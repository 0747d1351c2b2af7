package tutor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/abhisek/masterypath/internal/mastery"
	"github.com/abhisek/masterypath/internal/spacedrep"
)

// SweepReport summarizes one pass over all students.
type SweepReport struct {
	Students int `json:"students"`
	Due      int `json:"due"`
	Probes   int `json:"probes"`
	Pruned   int `json:"pruned"`
}

// Sweep counts due reviews and pending probes across every student. It
// reads state only and never takes student locks.
func (s *Service) Sweep(ctx context.Context, concurrency int) (SweepReport, error) {
	now, start := s.now(), time.Now()
	var due, probes atomic.Int64
	n, err := s.forEachStudent(ctx, concurrency, func(ctx context.Context, studentID string) error {
		st, err := s.states.Load(ctx, studentID)
		if err != nil {
			return err
		}
		tr := mastery.NewTrackerFromSnapshot(s.graph, st.Data.Mastery)
		d := len(spacedrep.Due(tr, now))
		p := len(spacedrep.Probes(tr))
		due.Add(int64(d))
		probes.Add(int64(p))
		if d > 0 || p > 0 {
			s.log.Debug("reviews due", zap.String("student", studentID), zap.Int("due", d), zap.Int("probes", p))
		}
		return nil
	})
	rep := SweepReport{Students: n, Due: int(due.Load()), Probes: int(probes.Load())}
	took := time.Since(start)
	if err != nil {
		return rep, fmt.Errorf("review sweep: %w", err)
	}
	s.metrics.Sweep(rep.Due, took)
	s.log.Info("review sweep",
		zap.Int("students", rep.Students),
		zap.Int("due", rep.Due),
		zap.Int("probes", rep.Probes),
		zap.Duration("took", took))
	return rep, nil
}

// PruneSnapshots keeps the keep most recent snapshots of every student.
func (s *Service) PruneSnapshots(ctx context.Context, concurrency, keep int) (SweepReport, error) {
	if s.snapshots == nil || keep < 1 {
		return SweepReport{}, nil
	}
	var pruned atomic.Int64
	n, err := s.forEachStudent(ctx, concurrency, func(ctx context.Context, studentID string) error {
		removed, err := s.snapshots.Prune(ctx, studentID, keep)
		if err != nil {
			return err
		}
		pruned.Add(int64(removed))
		return nil
	})
	rep := SweepReport{Students: n, Pruned: int(pruned.Load())}
	if err != nil {
		return rep, fmt.Errorf("prune snapshots: %w", err)
	}
	if rep.Pruned > 0 {
		s.log.Info("snapshots pruned", zap.Int("students", rep.Students), zap.Int("removed", rep.Pruned))
	}
	return rep, nil
}

func (s *Service) forEachStudent(ctx context.Context, concurrency int, fn func(ctx context.Context, studentID string) error) (int, error) {
	ids, err := s.states.Students(ctx)
	if err != nil {
		return 0, err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))
	for _, id := range ids {
		g.Go(func() error {
			if err := fn(gctx, id); err != nil {
				return fmt.Errorf("student %s: %w", id, err)
			}
			return nil
		})
	}
	return len(ids), g.Wait()
}
