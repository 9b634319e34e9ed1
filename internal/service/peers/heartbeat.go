package peers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"ArbPull/pkg/logger"
)

// Publisher sends keyed messages to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

type heartbeat struct {
	Instance string `json:"instance"`
	TS       int64  `json:"ts"` // unix millis
}

// Heartbeats counts engine instances announcing themselves on a shared
// topic. Each instance publishes its own beat and counts the others seen
// inside the window.
type Heartbeats struct {
	topic  string
	self   string
	window time.Duration
	pub    Publisher
	now    func() time.Time
	log    *logger.Logger

	mu   sync.Mutex
	seen map[string]time.Time
}

func NewHeartbeats(pub Publisher, topic, self string, window time.Duration, log *logger.Logger) *Heartbeats {
	if window <= 0 {
		window = 90 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Heartbeats{
		topic:  topic,
		self:   self,
		window: window,
		pub:    pub,
		now:    time.Now,
		log:    log,
		seen:   make(map[string]time.Time),
	}
}

func (h *Heartbeats) Topic() string { return h.topic }

// Handle records a beat from another instance. Own beats and beats older
// than the window are ignored.
func (h *Heartbeats) Handle(_ context.Context, _, value []byte) error {
	var hb heartbeat
	if err := json.Unmarshal(value, &hb); err != nil {
		return fmt.Errorf("decode heartbeat: %w", err)
	}
	if hb.Instance == "" || hb.Instance == h.self {
		return nil
	}
	now := h.now()
	if hb.TS > 0 && now.Sub(time.UnixMilli(hb.TS)) > h.window {
		return nil
	}
	h.mu.Lock()
	h.seen[hb.Instance] = now
	h.mu.Unlock()
	return nil
}

// PeerCount returns the number of other instances heard from inside the window.
func (h *Heartbeats) PeerCount(context.Context) int {
	cutoff := h.now().Add(-h.window)
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, at := range h.seen {
		if at.Before(cutoff) {
			delete(h.seen, id)
		}
	}
	return len(h.seen)
}

// Beat publishes this instance's heartbeat.
func (h *Heartbeats) Beat(ctx context.Context) error {
	hb := heartbeat{Instance: h.self, TS: h.now().UnixMilli()}
	if err := h.pub.Publish(ctx, h.topic, []byte(h.self), hb); err != nil {
		return fmt.Errorf("publish heartbeat: %w", err)
	}
	return nil
}

// Run beats every interval until ctx is done.
func (h *Heartbeats) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = h.window / 3
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := h.Beat(ctx); err != nil && ctx.Err() == nil {
			h.log.Warn("peers: heartbeat failed", logger.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
