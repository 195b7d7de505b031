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

	"github.com/smukkama/traffic-monitor/internal/notification"
	"github.com/smukkama/traffic-monitor/internal/queue"
	"github.com/smukkama/traffic-monitor/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	fmt.Println("Starting Congestion Notifier...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil)).With("service", "notifier")

	notifier := notification.NewEmailNotifier(&cfg.SMTP, logger)
	if err := notifier.TestConnection(); err != nil {
		fmt.Printf("Note: %v (alerts will be logged only)\n", err)
	}

	consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicAlerts, "notifier-group")
	defer consumer.Close()
	fmt.Println("Kafka consumer initialized")

	fmt.Println("\n✓ Congestion Notifier is running")
	fmt.Println("✓ Press Ctrl+C to stop")

	dispatcher := notification.NewDispatcher(consumer, notifier, logger)
	if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("Dispatcher stopped: %v", err)
	}

	stats := dispatcher.Stats()
	fmt.Printf("Alerts sent=%d, malformed=%d, dropped=%d\n", stats.Sent, stats.Malformed, stats.Dropped)
	fmt.Println("\nShutting down gracefully...")
}
