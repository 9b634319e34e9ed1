package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiterBurstThenRefill(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := New(2, 3).WithClock(func() time.Time { return now })

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("base|a"), "burst token %d", i)
	}
	assert.False(t, l.Allow("base|a"))
	assert.True(t, l.Allow("base|b"), "keys are independent")

	now = now.Add(500 * time.Millisecond)
	assert.True(t, l.Allow("base|a"))
	assert.False(t, l.Allow("base|a"))
}

func TestLimiterDisabled(t *testing.T) {
	l := New(0, 0)
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("k"))
	}

	var nilLimiter *Limiter
	assert.True(t, nilLimiter.Allow("k"))
}
