package logger

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	topics  []string
	batches [][]AggregatedLogEntry
}

func (c *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics = append(c.topics, topic)
	c.batches = append(c.batches, payload.([]AggregatedLogEntry))
	return nil
}

func (c *capturePublisher) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.batches)
}

func TestCollectorAggregatesRepeats(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf)
	pub := &capturePublisher{}
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, Topic: "arbpull.errors", Publisher: pub})

	for i := 0; i < 3; i++ {
		l.Error("rpc unreachable", String("chain", "base"))
	}
	l.Error("rpc unreachable", String("chain", "arbitrum"))
	l.Warn("slow endpoint")
	assert.Equal(t, 2, l.collector.Load().Pending())

	l.RemoveCollector()
	require.Equal(t, 1, pub.count())
	assert.Equal(t, "arbpull.errors", pub.topics[0])

	counts := map[interface{}]int{}
	for _, e := range pub.batches[0] {
		assert.Equal(t, "error", e.Level)
		counts[e.Fields["chain"]] = e.Count
	}
	assert.Equal(t, map[interface{}]int{"base": 3, "arbitrum": 1}, counts)
	assert.Contains(t, buf.String(), "slow endpoint")
}

func TestCollectorFlushesAtThreshold(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Publisher: pub})
	defer c.Close()

	c.AddLog("error", "a", nil, "x.go:1")
	assert.Equal(t, 0, pub.count())
	c.AddLog("error", "b", nil, "x.go:2")
	require.Eventually(t, func() bool { return pub.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, c.Pending())
}

func TestEntryKeyIgnoresFieldOrder(t *testing.T) {
	a := entryKey("error", "m", map[string]interface{}{"x": 1, "y": "z"}, "c")
	b := entryKey("error", "m", map[string]interface{}{"y": "z", "x": 1}, "c")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, entryKey("error", "m", map[string]interface{}{"x": 2, "y": "z"}, "c"))
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(&Config{Level: "loud", Output: "stdout"})
	assert.Error(t, err)

	_, err = New(&Config{Level: "info", Output: ""})
	assert.Error(t, err)
}

func TestNewWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.log")
	l, err := New(&Config{Level: "info", Format: "json", Output: path, MaxSizeMB: 1, MaxBackups: 1})
	require.NoError(t, err)

	l.Info("tick finished", Uint64("seq", 7))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"tick finished"`)
	assert.Contains(t, string(data), `"seq":7`)
}

func TestCronLoggerError(t *testing.T) {
	var buf bytes.Buffer
	cl := NewCronLogger(NewWriter(&buf))
	cl.Error(errors.New("boom"), "panic", "job", "tick")
	assert.Contains(t, buf.String(), "cron: panic")
	assert.Contains(t, buf.String(), `"job":"tick"`)
	assert.Contains(t, buf.String(), "boom")
}
