package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/smukkama/traffic-monitor/internal/app"
	"github.com/smukkama/traffic-monitor/internal/store"
	"github.com/smukkama/traffic-monitor/internal/timer"
	"github.com/smukkama/traffic-monitor/pkg/config"
)

// memoryMaxLen bounds the shared in-memory store
const memoryMaxLen = 10000

// trafficd runs the generator and the dashboard refresh loop in one process.
// Each loop owns its store connection; a loop that cannot open its store
// exits on its own while the other keeps running.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	fmt.Println("Starting Traffic Monitor...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	var mem *store.Memory
	if cfg.StoreBackend == config.BackendMemory {
		mem = store.NewMemory(memoryMaxLen)
	}

	sinks, err := app.BuildSinks(ctx, cfg, os.Stdout, logger.With("loop", "refresh"))
	if err != nil {
		log.Fatalf("Failed to set up sinks: %v", err)
	}
	defer sinks.Close()

	sched := timer.NewScheduler()
	sched.Start()
	defer sched.Stop()

	fmt.Printf("✓ Store: %s | Locations: %d | Tick: %s | Refresh: %s\n",
		cfg.StoreBackend, len(cfg.Simulator.Locations), cfg.Simulator.TickPeriod, cfg.Dashboard.RefreshInterval)
	fmt.Println("✓ Press Ctrl+C to stop")

	var g errgroup.Group

	g.Go(func() error {
		lg := logger.With("loop", "generator")
		gen, closeGen, err := app.NewGenerator(ctx, cfg, mem, lg)
		if err != nil {
			lg.Error("generator not started", "err", err)
			return nil
		}
		defer closeGen()
		return ignoreCancel(gen.Run(ctx, sched, cfg.Simulator.TickPeriod))
	})

	g.Go(func() error {
		lg := logger.With("loop", "refresh")
		st, err := app.OpenStore(ctx, cfg, mem)
		if err != nil {
			lg.Error("dashboard not started", "err", err)
			return nil
		}
		defer st.Close()
		return ignoreCancel(app.NewRefresher(cfg, st, sinks, lg).Run(ctx, sched))
	})

	if err := g.Wait(); err != nil {
		log.Printf("Loop stopped: %v", err)
	}

	fmt.Println("\nShutting down gracefully...")
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
