package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/gideonlabs/gideon/internal/agent"
	"github.com/gideonlabs/gideon/internal/config"
	"github.com/gideonlabs/gideon/internal/curation"
	"github.com/gideonlabs/gideon/internal/relay"
	"github.com/gideonlabs/gideon/internal/server"
	"github.com/gideonlabs/gideon/internal/store"
	"github.com/gideonlabs/gideon/internal/topic"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Gideon HTTP daemon",
	Long:  `Starts the store worker, the agent relay, the curation scheduler, and the HTTP API, then blocks until SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			return fmt.Errorf("config not loaded")
		}
		return runServe(cfg)
	},
}

func runServe(cfg *config.Config) error {
	catalog, err := topic.Load(cfg.Topics.CatalogPath)
	if err != nil {
		return fmt.Errorf("load topic catalog: %w", err)
	}

	storeRuntime, err := storeRuntimeConfig(cfg)
	if err != nil {
		return err
	}
	worker, err := store.NewWorker(cfg.Store.DataPath, storeRuntime)
	if err != nil {
		return fmt.Errorf("start store worker: %w", err)
	}
	worker.Start()
	defer worker.Stop()

	requestTimeout, err := config.DurationOrDefault(cfg.Agent.RequestTimeout, config.DefaultAgentRequestTimeout)
	if err != nil {
		return fmt.Errorf("parse agent request timeout: %w", err)
	}
	client := agent.NewClient(cfg.Agent.BaseURL, requestTimeout)

	var notifier relay.CurationNotifier
	var scheduler *curation.Scheduler
	if cfg.Curation.Enabled && cfg.Agent.CuratorID != "" {
		cooldown, err := config.DurationOrDefault(cfg.Curation.Cooldown, config.DefaultCurationCooldown)
		if err != nil {
			return fmt.Errorf("parse curation cooldown: %w", err)
		}
		trigger := curation.NewTrigger(client, cfg.Agent.CuratorID, curation.NewLimiter(cooldown))
		notifier = trigger

		scheduler, err = curation.NewScheduler(trigger, cfg.Curation.Schedule)
		if err != nil {
			return fmt.Errorf("invalid curation schedule %q: %w", cfg.Curation.Schedule, err)
		}
		scheduler.Start()
		defer scheduler.Stop()
	} else {
		slog.Info("Curation disabled", "enabled", cfg.Curation.Enabled, "curator_configured", cfg.Agent.CuratorID != "")
	}

	debounce, err := config.DurationOrDefault(cfg.Relay.ReasoningDebounce, config.DefaultRelayReasoningDebounce)
	if err != nil {
		return fmt.Errorf("parse reasoning debounce: %w", err)
	}
	rly := relay.New(client, worker, notifier, relay.Options{
		AgentID:           cfg.Agent.TutorID,
		AgentName:         cfg.Agent.TutorName,
		ReasoningDebounce: debounce,
		ToolResultLimit:   cfg.Relay.ToolResultLimit,
	})

	srv, err := server.New(cfg, rly, worker, catalog)
	if err != nil {
		return fmt.Errorf("configure server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	slog.Info("Gideon is up", "port", cfg.Server.Port, "tutor", cfg.Agent.TutorName, "data", cfg.Store.DataPath)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownTimeout, err := config.DurationOrDefault(cfg.Server.ShutdownTimeout, config.DefaultServerShutdownTimeout)
	if err != nil {
		shutdownTimeout = 0
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		slog.Warn("Shutdown did not complete cleanly", "error", err)
	}

	slog.Info("Gideon stopped gracefully")
	return nil
}

func storeRuntimeConfig(cfg *config.Config) (store.RuntimeConfig, error) {
	lockTimeout, err := config.DurationOrDefault(cfg.Store.LockTimeout, config.DefaultStoreLockTimeout)
	if err != nil {
		return store.RuntimeConfig{}, fmt.Errorf("parse store lock timeout: %w", err)
	}
	lockRetry, err := config.DurationOrDefault(cfg.Store.LockRetry, config.DefaultStoreLockRetry)
	if err != nil {
		return store.RuntimeConfig{}, fmt.Errorf("parse store lock retry: %w", err)
	}
	return store.RuntimeConfig{
		LockTimeout:      lockTimeout,
		LockRetry:        lockRetry,
		LockMaxRetry:     cfg.Store.LockMaxRetry,
		InboxSize:        cfg.Store.InboxSize,
		ActivityLogLimit: cfg.Store.ActivityLogLimit,
	}, nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("store.data_path", "", "data directory (default is $HOME/.gideon/data)")
	serveCmd.Flags().String("agent.tutor_id", "", "tutor agent id")
	serveCmd.Flags().String("agent.curator_id", "", "curator agent id")
}
