package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/abhisek/masterypath/internal/httpapi"
	"github.com/abhisek/masterypath/internal/tracing"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the review sweep",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides http.addr)")
	serveCmd.Flags().Bool("no-sweep", false, "Do not schedule the background review sweep")
}

func runServe(cmd *cobra.Command, args []string) error {
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.HTTP.Addr = addr
	}
	noSweep, _ := cmd.Flags().GetBool("no-sweep")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, version, log)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}

	a, err := openApp(ctx, appOptions{withLessons: true, sharedLock: true})
	if err != nil {
		_ = shutdownTracing(context.Background())
		return err
	}

	serviceName := ""
	if cfg.Tracing.Enabled {
		serviceName = cfg.Tracing.ServiceName
	}
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httpapi.NewRouter(httpapi.RouterConfig{
		Tutor:       a.tutor,
		Metrics:     a.metrics,
		Log:         log,
		CORSOrigins: cfg.HTTP.CORSOrigins,
		ServiceName: serviceName,
		Ping: func(c *gin.Context) error {
			return a.store.Ping(c.Request.Context())
		},
	})
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var sched *cron.Cron
	if !noSweep {
		sched = cron.New(cron.WithLocation(time.UTC))
		if _, err := sched.AddFunc(cfg.Review.Sweep, func() { sweepJob(ctx, a) }); err != nil {
			a.Close(context.Background())
			return fmt.Errorf("schedule sweep %q: %w", cfg.Review.Sweep, err)
		}
		sched.Start()
		log.Info("review sweep scheduled", zap.String("schedule", cfg.Review.Sweep))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server listening",
			zap.String("addr", cfg.HTTP.Addr),
			zap.String("course", a.graph.Name()),
			zap.Int("atoms", a.graph.Len()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()

		var errs []error
		if sched != nil {
			// Stop returns a context that is done once running jobs finish.
			select {
			case <-sched.Stop().Done():
			case <-shutdownCtx.Done():
				log.Warn("sweep still running at shutdown")
			}
		}
		errs = append(errs, srv.Shutdown(shutdownCtx))
		errs = append(errs, a.Close(shutdownCtx))
		errs = append(errs, shutdownTracing(shutdownCtx))
		return errors.Join(errs...)
	})
	return g.Wait()
}

// sweepJob runs one review sweep followed by snapshot pruning.
func sweepJob(ctx context.Context, a *app) {
	rep, err := a.tutor.Sweep(ctx, cfg.Review.Concurrency)
	if err != nil {
		log.Error("review sweep failed", zap.Error(err))
		return
	}
	log.Info("review sweep",
		zap.Int("students", rep.Students),
		zap.Int("due", rep.Due),
		zap.Int("probes", rep.Probes))

	if cfg.Review.SnapshotKeep <= 0 {
		return
	}
	pruned, err := a.tutor.PruneSnapshots(ctx, cfg.Review.Concurrency, cfg.Review.SnapshotKeep)
	if err != nil {
		log.Error("snapshot prune failed", zap.Error(err))
		return
	}
	log.Info("snapshots pruned", zap.Int("removed", pruned.Pruned))
}
