package connection

import (
	"bytes"
	"errors"
	"net"
	"sync"
	"testing"
	"time"
)

type mockAddr struct{}

func (m *mockAddr) Network() string { return "tcp" }
func (m *mockAddr) String() string  { return "127.0.0.1:0" }

type mockConn struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	writeErr error
}

func (m *mockConn) Read(b []byte) (n int, err error) { return 0, nil }
func (m *mockConn) Write(b []byte) (n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	return m.buf.Write(b)
}
func (m *mockConn) Close() error                       { return nil }
func (m *mockConn) LocalAddr() net.Addr                { return &mockAddr{} }
func (m *mockConn) RemoteAddr() net.Addr               { return &mockAddr{} }
func (m *mockConn) SetDeadline(t time.Time) error      { return nil }
func (m *mockConn) SetReadDeadline(t time.Time) error  { return nil }
func (m *mockConn) SetWriteDeadline(t time.Time) error { return nil }

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry(10)

	sub, err := r.Register("sub1", "wallboard", &mockConn{})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if sub.Client != "wallboard" {
		t.Errorf("Expected client wallboard, got %s", sub.Client)
	}

	if r.Count() != 1 {
		t.Errorf("Expected 1 subscriber, got %d", r.Count())
	}

	if _, exists := r.Get("sub1"); !exists {
		t.Fatal("Subscriber not found")
	}

	if _, err := r.Register("sub1", "wallboard", &mockConn{}); err == nil {
		t.Error("Expected duplicate id to be rejected")
	}
}

func TestRegistry_RegisterMaxSubscribers(t *testing.T) {
	r := NewRegistry(2)

	r.Register("sub1", "wallboard", &mockConn{})
	r.Register("sub2", "ops-laptop", &mockConn{})

	_, err := r.Register("sub3", "kiosk", &mockConn{})
	if err != ErrMaxSubscribersReached {
		t.Errorf("Expected ErrMaxSubscribersReached, got %v", err)
	}
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry(10)

	r.Register("sub1", "wallboard", &mockConn{})
	r.Register("sub2", "wallboard", &mockConn{})

	if err := r.Unregister("sub1"); err != nil {
		t.Fatalf("Unregister failed: %v", err)
	}
	if r.Count() != 1 {
		t.Errorf("Expected 1 subscriber, got %d", r.Count())
	}
	if ids := r.ByClient("wallboard"); len(ids) != 1 || ids[0] != "sub2" {
		t.Errorf("Expected [sub2] for wallboard, got %v", ids)
	}

	if err := r.Unregister("sub1"); err != ErrUnknownSubscriber {
		t.Errorf("Expected ErrUnknownSubscriber, got %v", err)
	}

	r.Unregister("sub2")
	if stats := r.Stats(); stats.UniqueClients != 0 {
		t.Errorf("Expected empty client index, got %d", stats.UniqueClients)
	}
}

func TestRegistry_Touch(t *testing.T) {
	r := NewRegistry(10)
	sub, _ := r.Register("sub1", "wallboard", &mockConn{})
	first := sub.LastHeard()

	time.Sleep(10 * time.Millisecond)

	if err := r.Touch("sub1"); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}
	if !sub.LastHeard().After(first) {
		t.Error("LastHeard was not updated")
	}

	if err := r.Touch("missing"); err != ErrUnknownSubscriber {
		t.Errorf("Expected ErrUnknownSubscriber, got %v", err)
	}
}

func TestRegistry_Inactive(t *testing.T) {
	r := NewRegistry(10)

	sub1, _ := r.Register("sub1", "wallboard", &mockConn{})
	r.Register("sub2", "kiosk", &mockConn{})

	sub1.mu.Lock()
	sub1.lastHeard = time.Now().Add(-5 * time.Minute)
	sub1.mu.Unlock()

	inactive := r.Inactive(2 * time.Minute)
	if len(inactive) != 1 {
		t.Fatalf("Expected 1 inactive subscriber, got %d", len(inactive))
	}
	if inactive[0] != "sub1" {
		t.Errorf("Expected sub1 to be inactive, got %s", inactive[0])
	}
}

func TestSubscriber_Send(t *testing.T) {
	r := NewRegistry(10)
	conn := &mockConn{}
	sub, _ := r.Register("sub1", "wallboard", conn)

	if err := sub.Send([]byte(`{"type":"frame"}`)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if got := conn.buf.String(); got != "{\"type\":\"frame\"}\n" {
		t.Errorf("Unexpected line %q", got)
	}
	if sub.Sent() != 1 {
		t.Errorf("Expected 1 sent, got %d", sub.Sent())
	}

	conn.writeErr = errors.New("broken pipe")
	if err := sub.Send([]byte("x")); err == nil {
		t.Error("Expected write error")
	}
	if sub.Sent() != 1 {
		t.Errorf("Failed write must not count, got %d", sub.Sent())
	}
}

func TestRegistry_Stats(t *testing.T) {
	r := NewRegistry(100)

	r.Register("sub1", "wallboard", &mockConn{})
	r.Register("sub2", "wallboard", &mockConn{})
	r.Register("sub3", "kiosk", &mockConn{})

	stats := r.Stats()
	if stats.Subscribers != 3 {
		t.Errorf("Expected 3 subscribers, got %d", stats.Subscribers)
	}
	if stats.UniqueClients != 2 {
		t.Errorf("Expected 2 unique clients, got %d", stats.UniqueClients)
	}
	if stats.MaxSubscribers != 100 {
		t.Errorf("Expected max 100, got %d", stats.MaxSubscribers)
	}
	if len(r.Snapshot()) != 3 {
		t.Errorf("Expected snapshot of 3")
	}
}
