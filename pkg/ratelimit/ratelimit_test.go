package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestLimiter(limit int, window time.Duration) (*Limiter, *clock) {
	c := &clock{t: time.Unix(1000, 0)}
	l := New(limit, window)
	l.now = c.now
	return l, c
}

func TestAllowExhaustsAndRefills(t *testing.T) {
	l, c := newTestLimiter(3, 3*time.Second)

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"), "keys are independent")

	assert.Equal(t, time.Second, l.RetryAfter("a"))

	c.t = c.t.Add(time.Second)
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
}

func TestAllowCapsAtLimit(t *testing.T) {
	l, c := newTestLimiter(2, time.Second)
	l.Allow("a")
	c.t = c.t.Add(time.Hour)

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
}

func TestPrune(t *testing.T) {
	l, c := newTestLimiter(1, time.Second)
	l.Allow("old")
	c.t = c.t.Add(5 * time.Second)
	l.Allow("new")

	l.Prune()
	assert.Equal(t, 1, l.Len())
	assert.Zero(t, l.RetryAfter("old"))
}
