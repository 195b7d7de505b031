package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Synchronous writes flush after this long rather than the writer's 1s default,
// so a tick is on the topic well inside its period.
const writeBatchTimeout = 10 * time.Millisecond

// messageWriter is the part of *kafka.Writer the producer uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes keyed messages to one topic. Messages sharing a key land
// on the same partition, so per-location alerts and per-batch telemetry keep order.
type Producer struct {
	topic  string
	writer messageWriter
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		topic: topic,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			BatchTimeout:           writeBatchTimeout,
			AllowAutoTopicCreation: true,
		},
	}
}

// Publish writes one message and waits for the broker ack
func (p *Producer) Publish(ctx context.Context, key string, value []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: value})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.topic, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// Consumer reads one topic as a member of a consumer group. Offsets are only
// committed through Commit.
type Consumer struct {
	reader *kafka.Reader
}

// ConsumerStats is the subset of reader statistics the services report
type ConsumerStats struct {
	Messages   int64
	Errors     int64
	Rebalances int64
	Lag        int64
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     brokers,
			Topic:       topic,
			GroupID:     groupID,
			MaxBytes:    10e6,
			StartOffset: kafka.LastOffset,
		}),
	}
}

// Consume blocks for the next message without committing it
func (c *Consumer) Consume(ctx context.Context) (kafka.Message, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to fetch message: %w", err)
	}
	return msg, nil
}

func (c *Consumer) Commit(ctx context.Context, msg kafka.Message) error {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to commit offset %d: %w", msg.Offset, err)
	}
	return nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// Stats returns counters accumulated since the previous call
func (c *Consumer) Stats() ConsumerStats {
	s := c.reader.Stats()
	return ConsumerStats{
		Messages:   s.Messages,
		Errors:     s.Errors,
		Rebalances: s.Rebalances,
		Lag:        s.Lag,
	}
}

// topicCreator is the part of *kafka.Client CreateTopic uses
type topicCreator interface {
	CreateTopics(ctx context.Context, req *kafka.CreateTopicsRequest) (*kafka.CreateTopicsResponse, error)
}

// CreateTopic creates topic on the cluster. A topic that already exists is
// not an error.
func CreateTopic(ctx context.Context, brokers []string, topic string, numPartitions, replicationFactor int) error {
	client := &kafka.Client{Addr: kafka.TCP(brokers...), Timeout: 10 * time.Second}
	return createTopic(ctx, client, topic, numPartitions, replicationFactor)
}

func createTopic(ctx context.Context, client topicCreator, topic string, numPartitions, replicationFactor int) error {
	resp, err := client.CreateTopics(ctx, &kafka.CreateTopicsRequest{
		Topics: []kafka.TopicConfig{{
			Topic:             topic,
			NumPartitions:     numPartitions,
			ReplicationFactor: replicationFactor,
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to create topic %s: %w", topic, err)
	}
	if err := resp.Errors[topic]; err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("failed to create topic %s: %w", topic, err)
	}
	return nil
}
