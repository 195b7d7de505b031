package server

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smukkama/traffic-monitor/internal/connection"
	"github.com/smukkama/traffic-monitor/internal/dashboard"
	"github.com/smukkama/traffic-monitor/internal/protocol"
	"github.com/smukkama/traffic-monitor/internal/timer"
	"github.com/smukkama/traffic-monitor/pkg/config"
)

func startFeed(t *testing.T, cfg config.FeedConfig) (*FeedServer, *connection.Registry) {
	t.Helper()

	sched := timer.NewScheduler()
	sched.Start()
	registry := connection.NewRegistry(cfg.MaxConnections)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv := NewFeedServer(&cfg, registry, sched, logger)
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		srv.Stop()
		sched.Stop()
	})
	return srv, registry
}

func defaultFeedConfig() config.FeedConfig {
	return config.FeedConfig{
		Port:              0,
		MaxConnections:    10,
		IdentifyTimeout:   time.Second,
		InactivityTimeout: time.Minute,
	}
}

type client struct {
	conn   net.Conn
	reader *bufio.Reader
}

func dial(t *testing.T, srv *FeedServer) *client {
	t.Helper()
	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &client{conn: conn, reader: bufio.NewReader(conn)}
}

func (c *client) send(t *testing.T, line string) {
	t.Helper()
	_, err := c.conn.Write([]byte(line + "\n"))
	require.NoError(t, err)
}

func (c *client) read(t *testing.T) []byte {
	t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := c.reader.ReadBytes('\n')
	require.NoError(t, err)
	return line
}

func (c *client) subscribe(t *testing.T, name string) {
	t.Helper()
	c.send(t, `{"type":"subscribe","client":"`+name+`"}`)
	assert.JSONEq(t, `{"type":"ack","status":"subscribed"}`, string(c.read(t)))
}

func TestFeedServer_SubscribeAndReceiveFrames(t *testing.T) {
	srv, registry := startFeed(t, defaultFeedConfig())

	c1 := dial(t, srv)
	c1.subscribe(t, "wallboard")
	c2 := dial(t, srv)
	c2.subscribe(t, "kiosk")
	assert.Equal(t, 2, registry.Count())

	frame := dashboard.Frame{Status: "08:30:15", WindowSize: 3}
	require.NoError(t, srv.Render(context.Background(), frame))

	for _, c := range []*client{c1, c2} {
		msg, err := protocol.DecodeFrame(c.read(t))
		require.NoError(t, err)
		assert.Equal(t, protocol.MsgTypeFrame, msg.Type)
		assert.Equal(t, "08:30:15", msg.Frame.Status)
	}
}

func TestFeedServer_Keepalive(t *testing.T) {
	srv, _ := startFeed(t, defaultFeedConfig())

	c := dial(t, srv)
	c.subscribe(t, "wallboard")

	c.send(t, `{"type":"keepalive"}`)
	assert.JSONEq(t, `{"type":"ack","status":"alive"}`, string(c.read(t)))
}

func TestFeedServer_RejectsBadHandshake(t *testing.T) {
	srv, registry := startFeed(t, defaultFeedConfig())

	c := dial(t, srv)
	c.send(t, `{"type":"keepalive"}`)
	assert.JSONEq(t, `{"type":"ack","status":"error"}`, string(c.read(t)))

	_, err := c.reader.ReadBytes('\n')
	assert.Error(t, err, "connection should be closed")
	assert.Equal(t, 0, registry.Count())
}

func TestFeedServer_InactivityTimeout(t *testing.T) {
	cfg := defaultFeedConfig()
	cfg.InactivityTimeout = 100 * time.Millisecond
	srv, registry := startFeed(t, cfg)

	c := dial(t, srv)
	c.subscribe(t, "wallboard")

	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := c.reader.ReadBytes('\n')
	assert.ErrorIs(t, err, io.EOF)

	require.Eventually(t, func() bool { return registry.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestFeedServer_RenderWithoutSubscribers(t *testing.T) {
	srv, _ := startFeed(t, defaultFeedConfig())
	assert.NoError(t, srv.Render(context.Background(), dashboard.WaitingFrame("", dashboard.FrameOptions{})))
}
