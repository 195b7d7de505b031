package server

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smukkama/traffic-monitor/internal/connection"
	"github.com/smukkama/traffic-monitor/internal/dashboard"
	"github.com/smukkama/traffic-monitor/internal/protocol"
	"github.com/smukkama/traffic-monitor/internal/timer"
	"github.com/smukkama/traffic-monitor/pkg/config"
)

// readPoll bounds each blocking read so handlers notice Stop
const readPoll = 30 * time.Second

// FeedServer streams dashboard frames to TCP subscribers as JSON lines.
// A client sends a subscribe message, receives an ack and then every frame.
type FeedServer struct {
	config    *config.FeedConfig
	registry  *connection.Registry
	scheduler *timer.Scheduler
	logger    *slog.Logger
	listener  net.Listener

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}

	wg     sync.WaitGroup
	stopCh chan struct{}
	once   sync.Once
}

// NewFeedServer creates a feed server. scheduler drives inactivity timeouts
// and must be started by the caller.
func NewFeedServer(cfg *config.FeedConfig, registry *connection.Registry, scheduler *timer.Scheduler, logger *slog.Logger) *FeedServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &FeedServer{
		config:    cfg,
		registry:  registry,
		scheduler: scheduler,
		logger:    logger,
		conns:     make(map[net.Conn]struct{}),
		stopCh:    make(chan struct{}),
	}
}

// Start starts listening
func (s *FeedServer) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start feed server: %w", err)
	}

	s.listener = listener
	s.logger.Info("feed server listening", "addr", listener.Addr().String())

	s.wg.Add(1)
	go s.acceptConnections()

	return nil
}

// Addr returns the bound address, nil before Start
func (s *FeedServer) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and every connection, then waits for handlers
func (s *FeedServer) Stop() {
	s.once.Do(func() {
		close(s.stopCh)

		if s.listener != nil {
			s.listener.Close()
		}

		s.connsMu.Lock()
		for conn := range s.conns {
			conn.Close()
		}
		s.connsMu.Unlock()

		s.wg.Wait()
		s.logger.Info("feed server stopped")
	})
}

// Render broadcasts frame to every subscriber. A subscriber that cannot keep
// up is disconnected; the frame still counts as rendered.
func (s *FeedServer) Render(ctx context.Context, frame dashboard.Frame) error {
	data, err := protocol.EncodeFrame(frame)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}

	for _, sub := range s.registry.Snapshot() {
		if err := sub.Send(data); err != nil {
			s.logger.Warn("dropping subscriber", "id", sub.ID, "client", sub.Client, "err", err)
			sub.Conn.Close()
		}
	}
	return nil
}

func (s *FeedServer) acceptConnections() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
				s.logger.Error("failed to accept connection", "err", err)
				continue
			}
		}

		if s.registry.Count() >= s.config.MaxConnections {
			s.logger.Warn("maximum subscribers reached, rejecting connection", "remote", conn.RemoteAddr().String())
			conn.Close()
			continue
		}

		s.track(conn)
		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *FeedServer) track(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	s.conns[conn] = struct{}{}
}

func (s *FeedServer) untrack(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	delete(s.conns, conn)
}

func (s *FeedServer) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer s.untrack(conn)
	defer conn.Close()

	id := uuid.New().String()
	log := s.logger.With("id", id, "remote", conn.RemoteAddr().String())

	conn.SetReadDeadline(time.Now().Add(s.config.IdentifyTimeout))

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		log.Debug("no subscribe message", "err", err)
		return
	}

	msg, err := protocol.ParseMessage([]byte(line))
	if err != nil {
		log.Debug("invalid subscribe message", "err", err)
		s.sendError(conn)
		return
	}

	subscribe, ok := msg.(*protocol.SubscribeMessage)
	if !ok {
		log.Debug("expected subscribe message", "got", fmt.Sprintf("%T", msg))
		s.sendError(conn)
		return
	}

	sub, err := s.registry.Register(id, subscribe.Client, conn)
	if err != nil {
		log.Warn("failed to register subscriber", "err", err)
		s.sendError(conn)
		return
	}
	defer s.registry.Unregister(id)

	if err := s.send(sub, protocol.NewAckMessage(protocol.AckStatusSubscribed)); err != nil {
		log.Debug("failed to send ack", "err", err)
		return
	}
	log.Info("subscriber joined", "client", subscribe.Client)

	timerID := "inactivity-" + id
	defer s.scheduler.Cancel(timerID)
	s.scheduleInactivityTimer(timerID, sub)

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(readPoll))
		line, err := reader.ReadString('\n')
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			log.Info("subscriber left", "client", sub.Client, "frames", sub.Sent(), "err", err)
			return
		}

		msg, err := protocol.ParseMessage([]byte(line))
		if err != nil {
			log.Debug("ignoring message", "err", err)
			continue
		}

		switch msg.(type) {
		case *protocol.KeepaliveMessage:
			if err := s.send(sub, protocol.NewAckMessage(protocol.AckStatusAlive)); err != nil {
				log.Debug("failed to send keepalive ack", "err", err)
			}
		default:
			log.Debug("unexpected message", "got", fmt.Sprintf("%T", msg))
			continue
		}

		sub.Touch()
		s.scheduleInactivityTimer(timerID, sub)
	}
}

func (s *FeedServer) send(sub *connection.Subscriber, msg interface{}) error {
	data, err := protocol.EncodeMessage(msg)
	if err != nil {
		return err
	}
	return sub.Send(data)
}

func (s *FeedServer) sendError(conn net.Conn) {
	data, err := protocol.EncodeMessage(protocol.NewAckMessage(protocol.AckStatusError))
	if err != nil {
		return
	}
	conn.SetWriteDeadline(time.Now().Add(time.Second))
	conn.Write(append(data, '\n'))
}

func (s *FeedServer) scheduleInactivityTimer(timerID string, sub *connection.Subscriber) {
	expiryAt := time.Now().Add(s.config.InactivityTimeout)

	callback := func() {
		s.logger.Info("inactivity timeout", "id", sub.ID, "client", sub.Client)
		// the handler's read fails and unregisters
		sub.Conn.Close()
	}

	if err := s.scheduler.Schedule(timerID, expiryAt, callback); err != nil {
		s.logger.Warn("failed to schedule inactivity timer", "id", sub.ID, "err", err)
	}
}
