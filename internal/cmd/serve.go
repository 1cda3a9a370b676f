package cmd

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"parbuild/internal/config"
	"parbuild/internal/coordination"
	"parbuild/internal/event"
	"parbuild/internal/logging"
	"parbuild/internal/scaling"
	"parbuild/internal/store"
	"parbuild/internal/store/sqlite"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the coordinator",
	Long: `Start the coordinator: restore persisted sessions and workers, run the
worker health check and scaling monitor, and watch session workspaces
until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(cfg.Logging.File, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hubStore, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	bus := event.NewBus()
	opts := []coordination.Option{
		coordination.WithHealthCheck(
			time.Duration(cfg.Workers.HeartbeatTimeoutSeconds)*time.Second,
			time.Duration(cfg.Workers.HealthCheckIntervalSeconds)*time.Second,
		),
		coordination.WithCleanup(
			time.Duration(cfg.Session.CleanupMaxAgeHours)*time.Hour,
			time.Duration(cfg.Session.CleanupIntervalMinutes)*time.Minute,
		),
	}
	if cfg.Workers.RequeueAtBack {
		opts = append(opts, coordination.WithRequeueAtBack())
	}
	if cfg.Scaling.Enabled {
		opts = append(opts, coordination.WithScalingPolicy(scaling.NewPolicy(
			scaling.WithMinWorkers(cfg.Scaling.MinWorkers),
			scaling.WithMaxWorkers(cfg.Scaling.MaxWorkers),
			scaling.WithScaleUpThreshold(cfg.Scaling.ScaleUpThreshold),
			scaling.WithScaleDownThreshold(cfg.Scaling.ScaleDownThreshold),
			scaling.WithCooldownPeriod(time.Duration(cfg.Scaling.CooldownSeconds)*time.Second),
		)))
	}
	if cfg.Watch.Enabled {
		opts = append(opts, coordination.WithWatcher(cfg.Watch.Ignore...))
	}

	hub, err := coordination.NewHub(ctx, coordination.Config{
		Bus:    bus,
		Store:  hubStore,
		Logger: logger,
	}, opts...)
	if err != nil {
		return fmt.Errorf("create hub: %w", err)
	}

	if err := hub.Start(ctx); err != nil {
		return err
	}
	defer hub.Stop()

	if cfg.Workers.Initial > 0 {
		if _, _, err := hub.Workers().ScaleTo(ctx, cfg.Workers.Initial); err != nil {
			return fmt.Errorf("start initial workers: %w", err)
		}
	}
	logger.Info("coordinator running",
		"store", cfg.Store.Backend, "workers", cfg.Workers.Initial)

	g, gctx := errgroup.WithContext(ctx)

	// Periodic load summary for operators tailing the log.
	g.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				snap := hub.Status().Snapshot()
				logger.Info("load summary",
					"active_sessions", snap.ActiveSessions,
					"workers", len(snap.Workers),
					"queue_depth", snap.QueueDepth,
					"utilization", snap.Load.Utilization)
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return nil
	})
	return g.Wait()
}

// openStore builds the configured store backend. The returned closer is a
// no-op for the memory backend.
func openStore(cfg *config.Config, logger *logging.Logger) (coordination.Store, func(), error) {
	switch cfg.Store.Backend {
	case "memory":
		return store.NewMemory(), func() {}, nil
	default:
		st, err := sqlite.Open(cfg.Store.Path, sqlite.WithLogger(logger.WithComponent("store")))
		if err != nil {
			return nil, nil, fmt.Errorf("open store: %w", err)
		}
		return st, func() { _ = st.Close() }, nil
	}
}
