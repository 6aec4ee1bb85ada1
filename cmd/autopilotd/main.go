package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/autopilot/internal/api"
	"github.com/udisondev/autopilot/internal/archive"
	"github.com/udisondev/autopilot/internal/config"
	"github.com/udisondev/autopilot/internal/engine"
	"github.com/udisondev/autopilot/internal/metrics"
	"github.com/udisondev/autopilot/internal/model"
	"github.com/udisondev/autopilot/internal/oracle/sim"
	"github.com/udisondev/autopilot/internal/orchestrator"
	"github.com/udisondev/autopilot/internal/pathstore"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfgPath := config.PathFromEnv()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))
	slog.Info("autopilot starting", "config", cfgPath, "log_level", cfg.LogLevel)

	world := newSimWorld(cfg.Sim)
	store := pathstore.New(cfg.Paths.Dir)
	m := metrics.New()

	var arch *archive.Archive
	if cfg.Archive.Enabled() {
		if cfg.Archive.Driver == archive.DriverSQLite {
			if err := os.MkdirAll(filepath.Dir(cfg.Archive.DSN), 0o755); err != nil {
				return fmt.Errorf("creating archive directory: %w", err)
			}
		}
		arch, err = archive.Open(ctx, cfg.Archive.Driver, cfg.Archive.DSN)
		if err != nil {
			return fmt.Errorf("opening path archive: %w", err)
		}
		defer arch.Close()
	} else {
		slog.Info("path archive disabled")
	}

	orch := orchestrator.New(orchestrator.Deps{
		Oracle:  world,
		Actions: world,
		Store:   store,
		Archive: arch,
		Metrics: m,
		Follower: engine.FollowerConfig{
			StepInterval:  cfg.Follower.StepInterval,
			RetryInterval: cfg.Follower.RetryInterval,
			ReachRadius:   cfg.Follower.ReachRadius,
		},
		Recorder: engine.RecorderConfig{
			Interval: cfg.Recorder.Interval,
			MinStep:  cfg.Recorder.MinStep,
		},
	})

	srv, err := api.New(api.Deps{
		Orchestrator:   orch,
		Metrics:        m,
		Addr:           cfg.HTTP.Addr(),
		StatusInterval: cfg.HTTP.StatusInterval,
	})
	if err != nil {
		return fmt.Errorf("creating control api: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting privileged tick", "interval", cfg.TickInterval)
		if err := orch.RunTicker(gctx, cfg.TickInterval); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("privileged tick: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		slog.Info("starting control api", "address", cfg.HTTP.Addr())
		if err := srv.Run(gctx); err != nil {
			return fmt.Errorf("control api: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	slog.Info("autopilot stopped")
	return nil
}

// Raw kinds reported by the simulated oracle.
const (
	rawUnit       = 3
	rawPlayer     = 4
	rawGameObject = 5
)

// newSimWorld seeds the simulated oracle with the local agent and a few neighbours.
func newSimWorld(cfg config.SimConfig) *sim.World {
	w := sim.NewWorld(cfg.MoveStep)
	agent := model.EntityID(cfg.AgentID)

	w.Add(sim.Entity{ID: agent, RawKind: rawPlayer, Name: "Autopilot", Health: 100, MaxHealth: 100})
	w.Add(sim.Entity{ID: agent + 1, RawKind: rawUnit, Name: "Grey Wolf", Position: model.NewVector3(25, 10, 0), Health: 40, MaxHealth: 40})
	w.Add(sim.Entity{ID: agent + 2, RawKind: rawUnit, Name: "Grey Wolf", Position: model.NewVector3(-15, 30, 0), Health: 40, MaxHealth: 40})
	w.Add(sim.Entity{ID: agent + 3, RawKind: rawUnit, Name: "Merchant Bob", Position: model.NewVector3(120, -40, 2)})
	w.Add(sim.Entity{ID: agent + 4, RawKind: rawGameObject, Name: "Mailbox", Position: model.NewVector3(118, -35, 2)})
	w.SetLocalAgent(agent)
	return w
}

// parseLogLevel converts string log level to slog.Level.
// Defaults to Info if invalid or empty.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
