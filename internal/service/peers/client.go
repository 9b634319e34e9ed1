package peers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"ArbPull/pkg/logger"

	"github.com/gorilla/websocket"
)

// Static reports a fixed peer count.
type Static int

func (s Static) PeerCount(context.Context) int { return int(s) }

type peerMessage struct {
	Type   string `json:"type"`
	Active int    `json:"active"`
	TS     int64  `json:"ts"` // unix seconds
}

// Client follows the replication mesh peer-count stream over WebSocket and
// serves the last value it saw.
type Client struct {
	url            string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *logger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	count     atomic.Int64
	updatedAt atomic.Int64
	connected atomic.Bool
}

func NewClient(url string, reconnectDelay, pingInterval time.Duration, log *logger.Logger) *Client {
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}
	if pingInterval <= 0 {
		pingInterval = 20 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Client{url: url, reconnectDelay: reconnectDelay, pingInterval: pingInterval, log: log}
}

// PeerCount returns the last reported active-peer count.
func (c *Client) PeerCount(context.Context) int { return int(c.count.Load()) }

// UpdatedAt returns when the count was last refreshed.
func (c *Client) UpdatedAt() time.Time {
	v := c.updatedAt.Load()
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(0, v)
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool { return c.connected.Load() }

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("peers connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.connected.Store(true)
	c.log.Info("peers: connected", logger.String("url", c.url))
	return nil
}

// Run connects and reads until ctx is done, reconnecting after errors.
func (c *Client) Run(ctx context.Context) {
	for {
		if err := c.Connect(ctx); err != nil {
			c.log.Warn("peers: connect failed", logger.Error(err))
		} else if err := c.read(ctx); err != nil && ctx.Err() == nil {
			c.log.Warn("peers: stream closed", logger.Error(err))
		}
		_ = c.Close()

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.reconnectDelay):
		}
	}
}

func (c *Client) read(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	done := make(chan struct{})
	defer close(done)

	// ping loop; closing the conn on cancel unblocks ReadMessage
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-ticker.C:
				c.mu.Lock()
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
				c.mu.Unlock()
			}
		}
	}()

	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("peers read: %w", err)
		}
		var m peerMessage
		if err := json.Unmarshal(b, &m); err != nil {
			// ignore non-peer frames
			continue
		}
		if m.Type != "peers" || m.Active < 0 {
			continue
		}
		c.count.Store(int64(m.Active))
		c.updatedAt.Store(time.Now().UnixNano())
		c.log.Debug("peers: count updated", logger.Int("active", m.Active))
	}
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.connected.Store(false)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}
