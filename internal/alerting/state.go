package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// State is the congestion alert state of one location
type State struct {
	Status          string    `json:"status"` // CLEAR, PENDING, ALARMING
	BreachStartTime time.Time `json:"breach_start_time"`
	LastChecked     time.Time `json:"last_checked"`
	SensorID        string    `json:"sensor_id,omitempty"`
	VehicleCount    int       `json:"vehicle_count"`
	AvgSpeed        int       `json:"avg_speed"`
}

const (
	StatusClear    = "CLEAR"
	StatusPending  = "PENDING"
	StatusAlarming = "ALARMING"
)

const (
	keyPrefix = "congestion_state:"

	// DefaultStateTTL expires states of locations that stopped reporting
	DefaultStateTTL = 7 * 24 * time.Hour
)

// StateStore keeps per-location states in Redis
type StateStore struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewStateStore creates a state store
func NewStateStore(client *redis.Client) *StateStore {
	return &StateStore{redis: client, ttl: DefaultStateTTL}
}

func stateKey(location string) string {
	return keyPrefix + location
}

// Get returns the state for location, CLEAR if none is stored
func (s *StateStore) Get(ctx context.Context, location string) (*State, error) {
	data, err := s.redis.Get(ctx, stateKey(location)).Result()
	if err == redis.Nil {
		return &State{Status: StatusClear}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get state from Redis: %w", err)
	}

	var state State
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return &state, nil
}

// Set saves the state for location
func (s *StateStore) Set(ctx context.Context, location string, state *State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := s.redis.Set(ctx, stateKey(location), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set state in Redis: %w", err)
	}
	return nil
}

// Delete returns location to CLEAR
func (s *StateStore) Delete(ctx context.Context, location string) error {
	return s.redis.Del(ctx, stateKey(location)).Err()
}

// All returns every stored state keyed by location
func (s *StateStore) All(ctx context.Context) (map[string]*State, error) {
	states := make(map[string]*State)

	iter := s.redis.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := s.redis.Get(ctx, key).Result()
		if err != nil {
			continue
		}

		var state State
		if err := json.Unmarshal([]byte(data), &state); err != nil {
			continue
		}
		states[strings.TrimPrefix(key, keyPrefix)] = &state
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan states: %w", err)
	}

	return states, nil
}
