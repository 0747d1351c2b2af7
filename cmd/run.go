package cmd

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/abhisek/masterypath/internal/blob"
	"github.com/abhisek/masterypath/internal/config"
	"github.com/abhisek/masterypath/internal/graph"
	"github.com/abhisek/masterypath/internal/lessons"
	"github.com/abhisek/masterypath/internal/llm"
	"github.com/abhisek/masterypath/internal/lock"
	"github.com/abhisek/masterypath/internal/metrics"
	"github.com/abhisek/masterypath/internal/store"
	"github.com/abhisek/masterypath/internal/tutor"
)

// app is the set of long-lived dependencies a command works with.
type app struct {
	store   *store.Store
	graph   *graph.Graph
	metrics *metrics.Registry
	lessons *lessons.Service
	tutor   *tutor.Service

	closers []func(context.Context) error
}

type appOptions struct {
	// withLessons opens blob storage and the LLM provider.
	withLessons bool
	// sharedLock uses Redis when redis.addr is configured.
	sharedLock bool
}

// openApp opens the store, loads the course and builds the tutor service.
func openApp(ctx context.Context, opts appOptions) (*app, error) {
	a := &app{metrics: metrics.New()}

	st, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.store = st
	a.onClose(func(context.Context) error { return st.Close() })

	if a.graph, err = loadGraph(ctx, cfg); err != nil {
		a.Close(ctx)
		return nil, err
	}

	deps := tutor.Deps{
		Graph:     a.graph,
		States:    st.StateRepo(),
		Snapshots: st.SnapshotRepo(),
		Events:    st.EventRepo(),
		Metrics:   a.metrics,
		Log:       log,
		Review:    cfg.Review.Options(),
	}

	if opts.sharedLock && cfg.Redis.Addr != "" {
		r, err := lock.NewRedis(ctx, cfg.Redis, log)
		if err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.onClose(func(context.Context) error { return r.Close() })
		deps.Locker = r
		log.Info("using redis student locks", zap.String("addr", cfg.Redis.Addr))
	}

	if opts.withLessons {
		if a.lessons, err = a.openLessons(ctx); err != nil {
			a.Close(ctx)
			return nil, err
		}
		deps.Lessons = a.lessons
	}

	if a.tutor, err = tutor.New(deps); err != nil {
		a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *app) openLessons(ctx context.Context) (*lessons.Service, error) {
	bs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	provider, err := llm.NewProvider(ctx, cfg.LLM, llm.Deps{
		Log:      log,
		Events:   a.store.EventRepo(),
		Observer: a.metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("llm provider: %w", err)
	}

	var gen lessons.Provider
	if provider != nil {
		gen = lessons.NewGenerator(provider, a.graph, cfg.Lessons)
		log.Info("lesson generation enabled",
			zap.String("provider", cfg.LLM.Provider),
			zap.String("model", provider.ModelID()))
	} else {
		log.Info("lesson generation disabled; serving stored lessons only")
	}

	svc := lessons.NewService(bs, gen, cfg.Lessons, a.metrics, log)
	a.onClose(func(context.Context) error {
		svc.Wait()
		return nil
	})
	return svc, nil
}

func (a *app) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	return errors.Join(errs...)
}

// loadGraph reads the course from the configured source.
func loadGraph(ctx context.Context, c *config.Config) (*graph.Graph, error) {
	switch c.Course.Source {
	case config.CourseNeo4j:
		src, err := graph.NewNeo4jSource(ctx, c.Neo4j, c.Course.Name)
		if err != nil {
			return nil, err
		}
		defer src.Close(ctx)
		g, err := src.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("load course from neo4j: %w", err)
		}
		return g, nil
	default:
		g, err := graph.FileSource{Path: c.Course.Path}.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("load course: %w", err)
		}
		return g, nil
	}
}
