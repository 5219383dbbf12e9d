package transport

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// ClientConfig configures the companion's dialer.
type ClientConfig struct {
	// URL of the primary's sync endpoint, e.g. ws://phone.local:8787/sync
	URL string

	// ReconnectInterval between dial attempts (default: 5s)
	ReconnectInterval time.Duration

	// DialTimeout bounds each attempt (default: 10s)
	DialTimeout time.Duration

	Logger *log.Logger
}

// Client is the companion's side of the link. Run keeps it connected.
type Client struct {
	cfg ClientConfig

	mu      sync.RWMutex
	handler Handler
	peer    *peerConn

	logger *log.Logger
}

var _ Session = (*Client)(nil)

// NewClient creates a dialer for cfg.URL.
func NewClient(cfg ClientConfig) *Client {
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = 5 * time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[transport] ", log.LstdFlags)
	}
	return &Client{cfg: cfg, logger: cfg.Logger}
}

// SetHandler implements Session.
func (c *Client) SetHandler(h Handler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

func (c *Client) currentHandler() Handler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handler
}

// Reachable implements Session.
func (c *Client) Reachable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.peer != nil
}

// Send implements Session.
func (c *Client) Send(ctx context.Context, msg *Message) (*Message, error) {
	c.mu.RLock()
	peer := c.peer
	c.mu.RUnlock()

	if peer == nil {
		return nil, ErrUnreachable
	}
	return peer.send(ctx, msg)
}

// Run dials the primary and serves the connection, redialing after every
// failure, until ctx is cancelled. It always returns nil.
func (c *Client) Run(ctx context.Context) error {
	for {
		if err := c.connectOnce(ctx); err != nil && ctx.Err() == nil {
			c.logger.Printf("Connection to %s failed: %v", c.cfg.URL, err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.cfg.ReconnectInterval):
		}
	}
}

func (c *Client) connectOnce(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	conn, _, err := websocket.Dial(dialCtx, c.cfg.URL, nil)
	cancel()
	if err != nil {
		return err
	}

	peer := newPeerConn(conn, c.currentHandler, c.logger)
	c.mu.Lock()
	c.peer = peer
	c.mu.Unlock()

	c.logger.Printf("Connected to %s", c.cfg.URL)
	if h := c.currentHandler(); h != nil {
		h.SessionActivated()
		h.ReachabilityChanged(true)
	}

	err = peer.readLoop(ctx)

	c.mu.Lock()
	c.peer = nil
	c.mu.Unlock()

	if h := c.currentHandler(); h != nil {
		h.ReachabilityChanged(false)
	}
	return err
}
