package ttumap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkAndContains(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	m := NewWithClock[string, int](0, clock)

	m.Mark("a", 1, now.Add(time.Minute))
	assert.True(t, m.Contains("a"))

	v, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestEntryExpiresAtTTU(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	m := NewWithClock[string, struct{}](0, clock)

	m.Mark("a", struct{}{}, now.Add(time.Second))
	assert.True(t, m.Contains("a"))

	now = now.Add(2 * time.Second)
	assert.False(t, m.Contains("a"))
	assert.Equal(t, 0, m.Len())
}

func TestOverwriteUpdatesExpiry(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	m := NewWithClock[string, int](0, clock)

	m.Mark("a", 1, now.Add(time.Second))
	m.Mark("a", 2, now.Add(time.Hour))

	now = now.Add(2 * time.Second)
	v, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestOverflowEvictsEarliestExpiry(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	m := NewWithClock[string, int](2, clock)

	m.Mark("soonest", 1, now.Add(time.Minute))
	m.Mark("later", 2, now.Add(time.Hour))
	m.Mark("latest", 3, now.Add(24*time.Hour))

	assert.Equal(t, 2, m.Len())
	assert.False(t, m.Contains("soonest"), "earliest-expiring entry should have been evicted on overflow")
	assert.True(t, m.Contains("later"))
	assert.True(t, m.Contains("latest"))
}
