package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowConsumesTokens(t *testing.T) {
	l := New()

	assert.True(t, l.Allow("10.0.0.1", 2, 0))
	assert.True(t, l.Allow("10.0.0.1", 2, 0))
	assert.False(t, l.Allow("10.0.0.1", 2, 0))
}

func TestAllowIndependentKeys(t *testing.T) {
	l := New()

	assert.True(t, l.Allow("a", 1, 0))
	assert.False(t, l.Allow("a", 1, 0))
	assert.True(t, l.Allow("b", 1, 0))
}

func TestAllowRefills(t *testing.T) {
	l := New()

	assert.True(t, l.Allow("k", 1, 100))
	assert.False(t, l.Allow("k", 1, 100))
	time.Sleep(50 * time.Millisecond)
	assert.True(t, l.Allow("k", 1, 100))
}

func TestPrune(t *testing.T) {
	l := New()

	l.Allow("stale", 1, 0)
	l.Prune(0)

	// After pruning, the key starts with a full bucket again.
	assert.True(t, l.Allow("stale", 1, 0))
}
