package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
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

	fmt.Println("Starting Traffic Simulator...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil)).With("loop", "generator")

	gen, closeGen, err := app.NewGenerator(ctx, cfg, nil, logger)
	if err != nil {
		log.Fatalf("Failed to start generator: %v", err)
	}
	defer closeGen()

	sched := timer.NewScheduler()
	sched.Start()
	defer sched.Stop()

	fmt.Printf("\n✓ Simulating %d locations: %s\n", len(cfg.Simulator.Locations), strings.Join(cfg.Simulator.Locations, ", "))
	fmt.Printf("✓ Output: %s | Tick period: %s\n", describeOutput(cfg), cfg.Simulator.TickPeriod)
	fmt.Println("✓ Press Ctrl+C to stop")

	if err := gen.Run(ctx, sched, cfg.Simulator.TickPeriod); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("Generator stopped: %v", err)
	}

	stats := gen.Stats()
	fmt.Println("\nShutting down gracefully...")
	fmt.Printf("Ticks=%d, Records=%d, Failed=%d\n", stats.Ticks, stats.RecordsInserted, stats.FailedTicks)
}

func describeOutput(cfg *config.Config) string {
	if cfg.Simulator.Output == config.OutputKafka {
		return "kafka topic " + cfg.Kafka.TopicTelemetry
	}
	return cfg.StoreBackend + " store"
}
