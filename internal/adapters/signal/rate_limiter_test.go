package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionRateLimiter_SlidingWindow(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewSessionRateLimiter(2, time.Second)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "sessions are limited independently")

	now = now.Add(1100 * time.Millisecond)
	assert.True(t, rl.Allow("a"))

	rl.Forget("a")
	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
}

func TestSessionRateLimiter_Disabled(t *testing.T) {
	rl := NewSessionRateLimiter(0, time.Second)
	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow("a"))
	}
}
