package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClientLimiterPerClientBudget(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := newClientLimiter(1, 2)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"), "burst spent")
	assert.True(t, l.Allow("b"), "other clients unaffected")

	now = now.Add(time.Second)
	assert.True(t, l.Allow("a"), "refilled after a second")
}

func TestClientLimiterPrunesIdleClients(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := newClientLimiter(1, 1)
	l.now = func() time.Time { return now }

	l.Allow("a")
	now = now.Add(limiterIdle + time.Second)
	l.Allow("b")

	assert.NotContains(t, l.clients, "a")
	assert.Contains(t, l.clients, "b")
}

func TestClientLimiterUnlimited(t *testing.T) {
	l := newClientLimiter(0, 1)
	for i := 0; i < 50; i++ {
		assert.True(t, l.Allow("a"))
	}
}
