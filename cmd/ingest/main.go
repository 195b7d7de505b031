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
	"time"

	"github.com/smukkama/traffic-monitor/internal/app"
	"github.com/smukkama/traffic-monitor/internal/queue"
	"github.com/smukkama/traffic-monitor/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.StoreBackend == config.BackendMemory {
		log.Fatalf("STORE_BACKEND=memory cannot be shared with the dashboard process")
	}

	fmt.Println("Starting Telemetry Ingest Service...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil)).With("service", "ingest")

	st, err := app.OpenStore(ctx, cfg, nil)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.StoreBackend, err)
	}
	defer st.Close()
	fmt.Printf("Connected to %s store\n", cfg.StoreBackend)

	if err := queue.CreateTopic(ctx, cfg.Kafka.Brokers, cfg.Kafka.TopicTelemetry, cfg.Kafka.NumPartitions, 1); err != nil {
		fmt.Printf("Note: Topic creation failed: %v\n", err)
	}

	consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicTelemetry, "ingest-group")
	defer consumer.Close()
	fmt.Println("Kafka consumer created (registering with broker...)")

	relay := queue.NewRelay(consumer, st, logger)

	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cs := consumer.Stats()
				rs := relay.Stats()
				fmt.Printf("Consumer stats: Messages=%d, Errors=%d | Batches inserted=%d, rejected=%d, failed=%d\n",
					cs.Messages, cs.Errors, rs.BatchesInserted, rs.BatchesRejected, rs.BatchesFailed)
			}
		}
	}()

	fmt.Println("\n✓ Telemetry Ingest Service is running")
	fmt.Printf("✓ Consuming %s into %s\n", cfg.Kafka.TopicTelemetry, cfg.StoreBackend)
	fmt.Println("✓ Press Ctrl+C to stop")

	if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("Relay stopped: %v", err)
	}

	fmt.Println("\nShutting down gracefully...")
}
