package redisstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/smukkama/traffic-monitor/internal/traffic"
)

// DefaultKey is the sorted set holding records
const DefaultKey = "traffic:records"

// Store keeps records in a Redis sorted set scored by timestamp
type Store struct {
	redis  *redis.Client
	key    string
	maxLen int64
}

// New creates a store on key. maxLen bounds the set; 0 keeps everything.
func New(client *redis.Client, key string, maxLen int) *Store {
	if key == "" {
		key = DefaultKey
	}
	return &Store{redis: client, key: key, maxLen: int64(maxLen)}
}

// InsertBatch adds the batch in one MULTI/EXEC transaction
func (s *Store) InsertBatch(ctx context.Context, records []traffic.Record) error {
	if len(records) == 0 {
		return nil
	}

	members := make([]redis.Z, 0, len(records))
	for i := range records {
		data, err := json.Marshal(&records[i])
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		members = append(members, redis.Z{
			Score:  float64(records[i].Timestamp.UnixMicro()),
			Member: data,
		})
	}

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, s.key, members...)
		if s.maxLen > 0 {
			// Drop the oldest entries beyond maxLen
			pipe.ZRemRangeByRank(ctx, s.key, 0, -(s.maxLen + 1))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to insert batch in Redis: %w", err)
	}
	return nil
}

// QueryRecent returns up to limit records, newest first
func (s *Store) QueryRecent(ctx context.Context, limit int) ([]traffic.Record, error) {
	if limit <= 0 {
		return []traffic.Record{}, nil
	}

	data, err := s.redis.ZRevRange(ctx, s.key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query Redis: %w", err)
	}

	records := make([]traffic.Record, 0, len(data))
	for _, member := range data {
		var r traffic.Record
		if err := json.Unmarshal([]byte(member), &r); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record: %w", err)
		}
		records = append(records, r)
	}
	return records, nil
}

// Close closes the underlying client
func (s *Store) Close() error {
	return s.redis.Close()
}
