package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smukkama/traffic-monitor/internal/traffic"
)

var t0 = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, maxLen int) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := New(client, "", maxLen)
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func tick(ts time.Time, batchID string, locations ...string) []traffic.Record {
	out := make([]traffic.Record, 0, len(locations))
	for _, loc := range locations {
		out = append(out, traffic.Record{
			BatchID:         batchID,
			Timestamp:       ts,
			Location:        loc,
			VehicleCount:    60,
			AvgSpeed:        30,
			CongestionLevel: traffic.CongestionModerate,
			SensorID:        traffic.SensorID(loc, 123),
		})
	}
	return out
}

func TestStore_EmptyQuery(t *testing.T) {
	s, _ := newTestStore(t, 0)

	records, err := s.QueryRecent(context.Background(), 500)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStore_InsertAndQueryNewestFirst(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t, 0)

	require.NoError(t, s.InsertBatch(ctx, tick(t0, "b1", "A", "B")))
	require.NoError(t, s.InsertBatch(ctx, tick(t0.Add(3*time.Second), "b2", "A", "B")))

	members, err := mr.ZMembers(DefaultKey)
	require.NoError(t, err)
	assert.Len(t, members, 4)

	records, err := s.QueryRecent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "b2", records[0].BatchID)
	assert.Equal(t, "b2", records[1].BatchID)
	assert.Equal(t, "b1", records[2].BatchID)
	assert.True(t, records[0].Timestamp.Equal(t0.Add(3*time.Second)))
	assert.Equal(t, traffic.CongestionModerate, records[0].CongestionLevel)
}

func TestStore_MaxLenTrimsOldest(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t, 3)

	require.NoError(t, s.InsertBatch(ctx, tick(t0, "b1", "A", "B")))
	require.NoError(t, s.InsertBatch(ctx, tick(t0.Add(time.Second), "b2", "A", "B")))

	members, err := mr.ZMembers(DefaultKey)
	require.NoError(t, err)
	assert.Len(t, members, 3)

	records, err := s.QueryRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "b1", records[2].BatchID)
}

func TestStore_Unavailable(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t, 0)
	mr.Close()

	assert.Error(t, s.InsertBatch(ctx, tick(t0, "b1", "A")))
	_, err := s.QueryRecent(ctx, 10)
	assert.Error(t, err)
}
