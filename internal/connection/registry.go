package connection

import (
	"fmt"
	"net"
	"sort"
	"sync"
	"time"
)

// writeTimeout bounds a single frame write to a slow subscriber
const writeTimeout = 5 * time.Second

// Subscriber is a feed client that completed the subscribe handshake
type Subscriber struct {
	ID          string
	Client      string
	ConnectedAt time.Time
	Conn        net.Conn

	mu        sync.RWMutex
	lastHeard time.Time
	sent      int64

	writeMu sync.Mutex
}

// Touch records activity from the subscriber
func (s *Subscriber) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastHeard = time.Now()
}

// LastHeard returns the last activity timestamp
func (s *Subscriber) LastHeard() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastHeard
}

// Sent returns the number of lines delivered
func (s *Subscriber) Sent() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sent
}

// Send writes one newline-terminated line. Writes from the broadcast and the
// connection handler are serialized.
func (s *Subscriber) Send(line []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := s.Conn.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write to %s: %w", s.ID, err)
	}

	s.mu.Lock()
	s.sent++
	s.mu.Unlock()
	return nil
}

// Registry tracks subscribed feed clients
type Registry struct {
	subscribers map[string]*Subscriber // key: subscriber id
	byClient    map[string][]string    // key: client name, value: []subscriber id
	mu          sync.RWMutex
	maxSubs     int
}

// NewRegistry creates a registry admitting at most maxSubscribers
func NewRegistry(maxSubscribers int) *Registry {
	return &Registry{
		subscribers: make(map[string]*Subscriber),
		byClient:    make(map[string][]string),
		maxSubs:     maxSubscribers,
	}
}

// Register adds a subscriber
func (r *Registry) Register(id, client string, conn net.Conn) (*Subscriber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.subscribers) >= r.maxSubs {
		return nil, ErrMaxSubscribersReached
	}
	if _, exists := r.subscribers[id]; exists {
		return nil, fmt.Errorf("subscriber %s already registered", id)
	}

	now := time.Now()
	sub := &Subscriber{
		ID:          id,
		Client:      client,
		ConnectedAt: now,
		Conn:        conn,
		lastHeard:   now,
	}

	r.subscribers[id] = sub
	r.byClient[client] = append(r.byClient[client], id)

	return sub, nil
}

// Unregister removes a subscriber
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, exists := r.subscribers[id]
	if !exists {
		return ErrUnknownSubscriber
	}

	ids := r.byClient[sub.Client]
	for i, other := range ids {
		if other == id {
			r.byClient[sub.Client] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(r.byClient[sub.Client]) == 0 {
		delete(r.byClient, sub.Client)
	}

	delete(r.subscribers, id)
	return nil
}

// Get returns a subscriber by id
func (r *Registry) Get(id string) (*Subscriber, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, exists := r.subscribers[id]
	return sub, exists
}

// ByClient returns the subscriber ids registered under a client name
func (r *Registry) ByClient(client string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, len(r.byClient[client]))
	copy(ids, r.byClient[client])
	return ids
}

// Touch records activity for a subscriber
func (r *Registry) Touch(id string) error {
	r.mu.RLock()
	sub, exists := r.subscribers[id]
	r.mu.RUnlock()

	if !exists {
		return ErrUnknownSubscriber
	}
	sub.Touch()
	return nil
}

// Inactive returns ids of subscribers not heard from within timeout
func (r *Registry) Inactive(timeout time.Duration) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now()
	var inactive []string
	for id, sub := range r.subscribers {
		if now.Sub(sub.LastHeard()) > timeout {
			inactive = append(inactive, id)
		}
	}
	sort.Strings(inactive)
	return inactive
}

// Snapshot returns the current subscribers
func (r *Registry) Snapshot() []*Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := make([]*Subscriber, 0, len(r.subscribers))
	for _, sub := range r.subscribers {
		subs = append(subs, sub)
	}
	return subs
}

// Count returns the number of subscribers
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscribers)
}

// Stats returns registry statistics
func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return RegistryStats{
		Subscribers:    len(r.subscribers),
		UniqueClients:  len(r.byClient),
		MaxSubscribers: r.maxSubs,
	}
}

// RegistryStats contains registry statistics
type RegistryStats struct {
	Subscribers    int
	UniqueClients  int
	MaxSubscribers int
}

var (
	ErrMaxSubscribersReached = &RegistryError{"maximum subscribers reached"}
	ErrUnknownSubscriber     = &RegistryError{"subscriber not found"}
)

// RegistryError represents a registry error
type RegistryError struct {
	msg string
}

func (e *RegistryError) Error() string {
	return e.msg
}
