// Package app wires configured backends and sinks for the binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"

	"github.com/redis/go-redis/v9"

	"github.com/smukkama/traffic-monitor/internal/aggregation"
	"github.com/smukkama/traffic-monitor/internal/alerting"
	"github.com/smukkama/traffic-monitor/internal/connection"
	"github.com/smukkama/traffic-monitor/internal/dashboard"
	"github.com/smukkama/traffic-monitor/internal/database"
	"github.com/smukkama/traffic-monitor/internal/generator"
	"github.com/smukkama/traffic-monitor/internal/mongostore"
	"github.com/smukkama/traffic-monitor/internal/queue"
	"github.com/smukkama/traffic-monitor/internal/redisstore"
	"github.com/smukkama/traffic-monitor/internal/server"
	"github.com/smukkama/traffic-monitor/internal/store"
	"github.com/smukkama/traffic-monitor/internal/timer"
	"github.com/smukkama/traffic-monitor/pkg/config"
)

// FrameKey is the Kafka key frames are published under
const FrameKey = "dashboard"

// shared lets several loops use one in-memory store without closing it
type shared struct {
	*store.Memory
}

func (shared) Close() error { return nil }

// NewRedisClient creates a Redis client from cfg
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// OpenStore opens the configured backend. For the memory backend mem is
// returned when non-nil so both loops of one process see the same records.
func OpenStore(ctx context.Context, cfg *config.Config, mem *store.Memory) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := database.Connect(cfg.Database.ConnectionString())
		if err != nil {
			return nil, err
		}
		if err := db.RunMigrations(ctx, cfg.Database.MigrationsDir); err != nil {
			db.Close()
			return nil, err
		}
		return db, nil

	case config.BackendRedis:
		client := NewRedisClient(cfg.Redis)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		return redisstore.New(client, cfg.Redis.StoreKey, cfg.Redis.MaxLen), nil

	case config.BackendMongo:
		st, err := mongostore.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Collection)
		if err != nil {
			return nil, err
		}
		return st, nil

	case config.BackendMemory:
		if mem != nil {
			return shared{mem}, nil
		}
		return store.NewMemory(0), nil
	}

	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

// NewGenerator builds the simulator loop. Batches go to Kafka when the
// simulator output is kafka, otherwise straight to the store. The returned
// close function releases whatever was opened.
func NewGenerator(ctx context.Context, cfg *config.Config, mem *store.Memory, logger *slog.Logger) (*generator.Generator, func() error, error) {
	var (
		writer  store.Writer
		closeFn func() error
	)

	switch cfg.Simulator.Output {
	case config.OutputKafka:
		if err := queue.CreateTopic(ctx, cfg.Kafka.Brokers, cfg.Kafka.TopicTelemetry, cfg.Kafka.NumPartitions, 1); err != nil {
			logger.Warn("could not create telemetry topic", "topic", cfg.Kafka.TopicTelemetry, "err", err)
		}
		producer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicTelemetry)
		writer = queue.NewBatchPublisher(producer)
		closeFn = producer.Close

	default:
		st, err := OpenStore(ctx, cfg, mem)
		if err != nil {
			return nil, nil, err
		}
		writer = st
		closeFn = st.Close
	}

	opts := []generator.Option{generator.WithLogger(logger)}
	if cfg.Simulator.Seed != 0 {
		opts = append(opts, generator.WithRand(rand.New(rand.NewPCG(cfg.Simulator.Seed, cfg.Simulator.Seed))))
	}

	gen, err := generator.New(writer, cfg.Simulator.Locations, opts...)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return gen, closeFn, nil
}

// Sinks is the composed presentation sink plus what it owns
type Sinks struct {
	dashboard.MultiSink
	Feed    *server.FeedServer
	Monitor *alerting.Monitor

	closers []func() error
}

// Close stops the feed and releases producers and clients
func (s *Sinks) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BuildSinks composes the sinks enabled in cfg. Console output goes to out.
func BuildSinks(ctx context.Context, cfg *config.Config, out io.Writer, logger *slog.Logger) (*Sinks, error) {
	sinks := &Sinks{}

	if cfg.Dashboard.Console {
		sinks.MultiSink = append(sinks.MultiSink, dashboard.NewConsoleSink(out))
	}

	if cfg.Feed.Enabled {
		sched := timer.NewScheduler()
		sched.Start()
		sinks.closers = append(sinks.closers, func() error { sched.Stop(); return nil })

		feedCfg := cfg.Feed
		feed := server.NewFeedServer(&feedCfg, connection.NewRegistry(cfg.Feed.MaxConnections), sched, logger)
		if err := feed.Start(); err != nil {
			sinks.Close()
			return nil, err
		}
		sinks.closers = append(sinks.closers, func() error { feed.Stop(); return nil })
		sinks.Feed = feed
		sinks.MultiSink = append(sinks.MultiSink, feed)
	}

	if cfg.Dashboard.PublishFrames {
		producer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicFrames)
		sinks.closers = append(sinks.closers, producer.Close)
		sinks.MultiSink = append(sinks.MultiSink, queue.NewFrameSink(producer, FrameKey))
	}

	if cfg.Alert.Enabled {
		client := NewRedisClient(cfg.Redis)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			sinks.Close()
			return nil, fmt.Errorf("failed to connect to Redis for alert state: %w", err)
		}
		sinks.closers = append(sinks.closers, client.Close)

		producer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicAlerts)
		sinks.closers = append(sinks.closers, producer.Close)

		sinks.Monitor = alerting.NewMonitor(alerting.NewStateStore(client), producer, cfg.Alert.HighDuration, logger)
		sinks.MultiSink = append(sinks.MultiSink, sinks.Monitor)
	}

	return sinks, nil
}

// NewRefresher builds the dashboard loop over reader
func NewRefresher(cfg *config.Config, reader store.Reader, sink dashboard.Sink, logger *slog.Logger) *dashboard.Refresher {
	agg := aggregation.Aggregator{
		Locations: cfg.Simulator.Locations,
		Bucket:    cfg.Dashboard.FlowBucket,
	}
	return dashboard.NewRefresher(
		dashboard.NewFetcher(reader, cfg.Dashboard.WindowSize),
		agg,
		sink,
		dashboard.RefresherConfig{
			RefreshInterval: cfg.Dashboard.RefreshInterval,
			WaitInterval:    cfg.Dashboard.WaitInterval,
			Frame:           dashboard.FrameOptions{SpeedThreshold: cfg.Dashboard.SpeedThreshold},
			Logger:          logger,
		},
	)
}
