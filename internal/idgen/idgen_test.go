package idgen

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewExecutionID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewExecutionID()
		assert.False(t, seen[id], "id %s generated twice", id)
		seen[id] = true
		assert.Len(t, id, 32)
	}
}

func TestNewID_SortableByTimestamp(t *testing.T) {
	earlier := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	later := earlier.Add(time.Hour)

	idEarlier := NewID(earlier)
	idLater := NewID(later)

	assert.Less(t, idEarlier, idLater)
}

func TestNewID_SameMillisecondDiffersByRandomSuffix(t *testing.T) {
	ts := time.Now()
	a := NewID(ts)
	b := NewID(ts)

	assert.NotEqual(t, a, b)
	assert.Equal(t, a[:12], b[:12], "timestamp prefix must match for the same millisecond")
}
