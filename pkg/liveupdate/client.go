// Package liveupdate subscribes to the clinic dashboard feed: visit status
// changes and red-flag alerts pushed over a WebSocket.
package liveupdate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/vai-intake/pkg/core"
	"github.com/vango-go/vai-intake/pkg/metrics"
)

const (
	defaultPingInterval   = 30 * time.Second
	defaultReconnectDelay = 3 * time.Second
	defaultDialTimeout    = 15 * time.Second
	defaultEventBuffer    = 64
)

// ErrAlreadyRunning is returned when Run is called more than once.
var ErrAlreadyRunning = errors.New("liveupdate: client already running")

// Config configures a Client.
type Config struct {
	// URL is the WebSocket base, e.g. wss://api.example.com.
	URL      string
	ClinicID string
	Token    string

	PingInterval   time.Duration
	ReconnectDelay time.Duration
	EventBuffer    int
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records connection state and event counts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithDialer overrides the WebSocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// Client is a reconnecting subscriber to one clinic's feed.
type Client struct {
	cfg     Config
	dialer  *websocket.Dialer
	logger  *slog.Logger
	metrics *metrics.Metrics

	events  chan Event
	running atomic.Bool
}

// New validates cfg and returns a Client. When cfg.ClinicID is empty it
// is read from the token's clinic_id claim.
func New(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, core.NewInvalidRequestError("live update url is required")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return nil, core.NewInvalidRequestError(fmt.Sprintf("live update url %q must use ws or wss", cfg.URL))
	}
	if cfg.ClinicID == "" {
		id, err := ClinicIDFromToken(cfg.Token)
		if err != nil {
			return nil, err
		}
		cfg.ClinicID = id
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}

	c := &Client{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: defaultDialTimeout},
		logger: slog.Default(),
		events: make(chan Event, cfg.EventBuffer),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "liveupdate", "clinic_id", cfg.ClinicID)
	return c, nil
}

// ClinicID returns the clinic the client subscribes to.
func (c *Client) ClinicID() string { return c.cfg.ClinicID }

// Endpoint returns the feed URL including the token query.
func (c *Client) Endpoint() string {
	endpoint := strings.TrimRight(c.cfg.URL, "/") + "/ws/" + url.PathEscape(c.cfg.ClinicID)
	if c.cfg.Token != "" {
		endpoint += "?token=" + url.QueryEscape(c.cfg.Token)
	}
	return endpoint
}

// Events yields feed events. The channel is closed when Run returns.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Run connects and keeps the subscription alive until ctx is done,
// reconnecting after ReconnectDelay whenever the connection drops.
func (c *Client) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(c.events)

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			c.metrics.RecordLiveUpdateReconnect()
		}
		err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		c.logger.Warn("live update connection lost", "error", err, "retry_in", c.cfg.ReconnectDelay)
		c.emit(&DisconnectedEvent{Err: err})

		t := time.NewTimer(c.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

// session runs one connection until it fails or ctx is done.
func (c *Client) session(ctx context.Context) error {
	conn, resp, err := c.dialer.DialContext(ctx, c.Endpoint(), nil)
	if err != nil {
		c.metrics.RecordError("liveupdate", "dial")
		if resp != nil {
			return fmt.Errorf("dial live update (status %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("dial live update: %w", err)
	}

	c.logger.Info("live update connected")
	c.metrics.SetLiveUpdateConnected(true)
	c.emit(&ConnectedEvent{ClinicID: c.cfg.ClinicID})

	var writeMu sync.Mutex
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			writeMu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			writeMu.Unlock()
			_ = conn.Close()
		case <-stop:
		}
	}()
	go func() {
		defer wg.Done()
		c.pingLoop(conn, &writeMu, stop)
	}()

	err = c.readLoop(conn)

	close(stop)
	_ = conn.Close()
	wg.Wait()
	c.metrics.SetLiveUpdateConnected(false)
	return err
}

func (c *Client) pingLoop(conn *websocket.Conn, writeMu *sync.Mutex, stop <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			writeMu.Lock()
			err := conn.WriteMessage(websocket.TextMessage, []byte("ping"))
			writeMu.Unlock()
			if err != nil {
				// The read loop observes the broken connection.
				_ = conn.Close()
				return
			}
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return fmt.Errorf("live update closed by server: %w", err)
			}
			return err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		event, err := decodeEvent(data)
		if err != nil {
			c.logger.Debug("dropping malformed live update frame", "error", err)
			c.metrics.RecordError("liveupdate", "decode")
			continue
		}
		if _, ok := event.(*PongEvent); ok {
			continue
		}
		c.metrics.RecordLiveUpdateEvent(event.EventType())
		c.emit(event)
	}
}

func (c *Client) emit(event Event) {
	select {
	case c.events <- event:
	default:
		c.logger.Warn("live update event dropped", "type", event.EventType())
	}
}
