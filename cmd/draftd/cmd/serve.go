package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/motiongranted/draftengine/internal/api"
	"github.com/motiongranted/draftengine/internal/checkpoint"
	"github.com/motiongranted/draftengine/internal/config"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine: ops API, escalation and recovery loops",
	Long: `Run the long-lived engine process.

Starts the ops HTTP API, the notification delivery worker, the hold
escalation loop, and the periodic recovery sweep. Stops cleanly on
SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "",
		"listen address (overrides server.addr)")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := buildLogger(cfg)

	eng, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	shutdownTimeout, _ := time.ParseDuration(cfg.Server.ShutdownTimeout)
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	escalatorInterval, _ := time.ParseDuration(cfg.Checkpoints.EscalatorInterval)
	sweepInterval, _ := time.ParseDuration(cfg.Checkpoints.SweepInterval)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Thresholds follow config file edits without a restart.
	watchPath := cfgFile
	if watchPath == "" {
		watchPath = configFilePath()
	}
	if watchPath != "" {
		watcher, werr := config.NewWatcher(watchPath,
			func(next *config.Config) {
				eng.chain.SetCeiling(next.Lookup.MonthlyCeiling)
				logger.Info("config reloaded",
					"lookup_monthly_ceiling", next.Lookup.MonthlyCeiling)
			},
			func(err error) {
				logger.Warn("config reload rejected", "error", err)
			},
		)
		if werr != nil {
			logger.Warn("config watch unavailable", "error", werr)
		} else {
			defer func() { _ = watcher.Close() }()
		}
	}

	server := api.NewServer(eng.store, eng.executor, eng.manager,
		api.WithLogger(logger.WithComponent("api")),
		api.WithCORSOrigins(cfg.Server.CORSOrigins),
	)

	escalator := checkpoint.NewEscalator(eng.manager, eng.alerter)
	sweep := checkpoint.NewSweep(eng.store, eng.alerter, logger)

	var g errgroup.Group
	g.Go(func() error {
		return server.ListenAndServe(ctx, addr, shutdownTimeout)
	})
	g.Go(func() error {
		eng.queue.Run(ctx)
		return nil
	})
	g.Go(func() error {
		escalator.Run(ctx, escalatorInterval)
		return nil
	})
	g.Go(func() error {
		sweep.RunPeriodic(ctx, sweepInterval)
		return nil
	})

	logger.Info("draftd serving",
		"addr", addr,
		"state", cfg.State.Path,
		"escalator_interval", escalatorInterval,
		"sweep_interval", sweepInterval)

	err = g.Wait()
	logger.Info("draftd stopped")
	return err
}

// configFilePath resolves the effective config file for watching when
// no --config flag was given.
func configFilePath() string {
	loader := config.NewLoader()
	if _, err := loader.Load(); err != nil {
		return ""
	}
	return loader.ConfigFile()
}
