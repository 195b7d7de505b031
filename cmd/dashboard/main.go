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

	"github.com/smukkama/traffic-monitor/internal/app"
	"github.com/smukkama/traffic-monitor/internal/timer"
	"github.com/smukkama/traffic-monitor/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	fmt.Println("Starting Traffic Dashboard...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// frames go to stdout, so logs go to stderr
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil)).With("loop", "refresh")

	st, err := app.OpenStore(ctx, cfg, nil)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.StoreBackend, err)
	}
	defer st.Close()
	fmt.Printf("Connected to %s store\n", cfg.StoreBackend)

	sinks, err := app.BuildSinks(ctx, cfg, os.Stdout, logger)
	if err != nil {
		log.Fatalf("Failed to set up sinks: %v", err)
	}
	defer sinks.Close()

	if sinks.Feed != nil {
		fmt.Printf("✓ Frame feed on %s\n", sinks.Feed.Addr())
	}
	if cfg.Dashboard.PublishFrames {
		fmt.Printf("✓ Publishing frames to %s\n", cfg.Kafka.TopicFrames)
	}
	if sinks.Monitor != nil {
		fmt.Printf("✓ Congestion alerts to %s after %s of High\n", cfg.Kafka.TopicAlerts, cfg.Alert.HighDuration)
	}
	fmt.Printf("✓ Window: %d records | Refresh: %s\n", cfg.Dashboard.WindowSize, cfg.Dashboard.RefreshInterval)
	fmt.Println("✓ Press Ctrl+C to stop")

	sched := timer.NewScheduler()
	sched.Start()
	defer sched.Stop()

	refresher := app.NewRefresher(cfg, st, sinks, logger)
	if err := refresher.Run(ctx, sched); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("Refresh loop stopped: %v", err)
	}

	fmt.Println("\nShutting down gracefully...")
}
