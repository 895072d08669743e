package middleware

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 7, 22, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestGate(clock *fakeClock) *SafeguardGate {
	cfg := DefaultSafeguardConfig()
	cfg.Clock = clock.Now
	return NewSafeguardGate(cfg)
}

func TestSafeguard_FirstMessagePasses(t *testing.T) {
	g := newTestGate(newFakeClock())
	ok, reason := g.Allow("c1", "u1")
	assert.True(t, ok)
	assert.Equal(t, ReasonNone, reason)
}

func TestSafeguard_GlobalCooldown(t *testing.T) {
	clock := newFakeClock()
	g := newTestGate(clock)

	require.True(t, g.Check("c1", "u1"))
	clock.Advance(500 * time.Millisecond)

	ok, reason := g.Allow("c2", "u2")
	assert.False(t, ok)
	assert.Equal(t, ReasonGlobal, reason)
}

func TestSafeguard_ChannelCooldown(t *testing.T) {
	clock := newFakeClock()
	g := newTestGate(clock)

	require.True(t, g.Check("c1", "u1"))
	clock.Advance(1200 * time.Millisecond)

	ok, reason := g.Allow("c1", "u2")
	assert.False(t, ok)
	assert.Equal(t, ReasonChannel, reason)

	// The rejected message did not restamp the channel, so 2.3s after the
	// first message the channel is open again and u2 was never stamped.
	clock.Advance(1100 * time.Millisecond)
	ok, reason = g.Allow("c1", "u2")
	assert.True(t, ok)
	assert.Equal(t, ReasonNone, reason)
}

func TestSafeguard_UserCooldownAfterOtherGatesPass(t *testing.T) {
	clock := newFakeClock()
	g := newTestGate(clock)

	require.True(t, g.Check("c1", "u1"))
	clock.Advance(1500 * time.Millisecond)

	ok, reason := g.Allow("c2", "u1")
	assert.False(t, ok)
	assert.Equal(t, ReasonUser, reason)

	// Global and channel gates were stamped by the rejected message.
	clock.Advance(500 * time.Millisecond)
	ok, reason = g.Allow("c2", "u3")
	assert.False(t, ok)
	assert.Equal(t, ReasonGlobal, reason)

	clock.Advance(600 * time.Millisecond)
	ok, reason = g.Allow("c2", "u3")
	assert.False(t, ok)
	assert.Equal(t, ReasonChannel, reason)
}

func TestSafeguard_DisabledIntervals(t *testing.T) {
	clock := newFakeClock()
	g := NewSafeguardGate(SafeguardConfig{Clock: clock.Now})

	for i := 0; i < 5; i++ {
		ok, _ := g.Allow("c1", "u1")
		assert.True(t, ok)
	}
}

func TestSafeguard_Reset(t *testing.T) {
	clock := newFakeClock()
	g := newTestGate(clock)

	require.True(t, g.Check("c1", "u1"))
	require.False(t, g.Check("c1", "u1"))

	g.Reset()
	assert.True(t, g.Check("c1", "u1"))
}
