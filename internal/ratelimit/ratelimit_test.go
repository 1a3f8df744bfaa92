package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMarkContainsUntilResetPlusPadding(t *testing.T) {
	padding := time.Minute
	m := New(0, padding)

	key := Key{Origin: OriginApp, Name: "A"}
	// The reset instant has already passed; only the padding keeps the
	// entry visible.
	resetAt := time.Now().Add(-time.Second)
	m.Mark(key, resetAt)

	assert.True(t, m.Contains(key))

	other := Key{Origin: OriginPAT, Name: "P"}
	assert.False(t, m.Contains(other), "marking one credential must not affect another")
}

func TestOverflowEvictsEarliestReset(t *testing.T) {
	m := New(1, 0)

	soon := Key{Origin: OriginApp, Name: "soon"}
	later := Key{Origin: OriginApp, Name: "later"}

	m.Mark(soon, time.Now().Add(time.Minute))
	m.Mark(later, time.Now().Add(time.Hour))

	assert.Equal(t, 1, m.Len())
	assert.False(t, m.Contains(soon))
	assert.True(t, m.Contains(later))
}
