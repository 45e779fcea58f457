package feature

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ThreatLens/internal/domain/models"
)

func TestEncodeShape(t *testing.T) {
	e := &models.ThreatEvent{
		Timestamp:  time.Date(2025, 2, 5, 12, 34, 56, 0, time.UTC),
		SourceAddr: "192.168.1.10",
		Username:   "alice",
		EventType:  "login_attempt",
		EventValue: 3,
	}

	v := Encode(e)
	require.Len(t, v, Width)
	assert.Equal(t, float64(e.Timestamp.Unix()), v[0])
	assert.Equal(t, 3.0, v[3])
}

func TestEncodeDeterministic(t *testing.T) {
	e := &models.ThreatEvent{
		Timestamp:  time.Unix(1738758896, 0),
		SourceAddr: "10.0.0.7",
		Username:   "bob",
		EventValue: 1,
	}

	assert.Equal(t, Encode(e), Encode(e))
}

func TestHashBucketRange(t *testing.T) {
	for _, s := range []string{"", "10.0.0.1", "a-very-long-username@example.com", "root"} {
		b := hashBucket(s)
		assert.GreaterOrEqual(t, b, 0.0)
		assert.Less(t, b, 1000.0)
	}
}

func TestHashBucketDistinguishes(t *testing.T) {
	// Not guaranteed in general, but these known inputs land in
	// different buckets and pin the hash choice.
	assert.NotEqual(t, hashBucket("192.168.1.10"), hashBucket("192.168.1.11"))
	assert.NotEqual(t, hashBucket("alice"), hashBucket("bob"))
}

func TestEncodeAll(t *testing.T) {
	events := []*models.ThreatEvent{
		{Timestamp: time.Unix(100, 0), SourceAddr: "a", Username: "u1", EventValue: 1},
		{Timestamp: time.Unix(200, 0), SourceAddr: "b", Username: "u2", EventValue: 2},
	}

	m := EncodeAll(events)
	require.Len(t, m, 2)
	assert.Equal(t, 100.0, m[0][0])
	assert.Equal(t, 2.0, m[1][3])
}
