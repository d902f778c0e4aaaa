package flow

import (
	"testing"
	"time"

	"github.com/flowmesh/flowengine/flow/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotEnqueueRespectsCapacity(t *testing.T) {
	s := NewSlot("in", 2, 0)
	require.NoError(t, s.Enqueue(Payload{"n": 1}, "", time.Now()))
	require.NoError(t, s.Enqueue(Payload{"n": 2}, "", time.Now()))
	err := s.Enqueue(Payload{"n": 3}, "", time.Now())
	assert.ErrorIs(t, err, errs.ErrQueueFull)
	assert.Equal(t, 2, s.UnconsumedCount())
}

func TestSlotConsumeOneNewIsFIFO(t *testing.T) {
	s := NewSlot("in", 10, 0)
	require.NoError(t, s.Enqueue(Payload{"n": 1}, "", time.Now()))
	require.NoError(t, s.Enqueue(Payload{"n": 2}, "", time.Now()))

	p1, ok := s.ConsumeOneNew()
	require.True(t, ok)
	assert.Equal(t, 1, p1["n"])

	p2, ok := s.ConsumeOneNew()
	require.True(t, ok)
	assert.Equal(t, 2, p2["n"])

	_, ok = s.ConsumeOneNew()
	assert.False(t, ok)
}

func TestSlotConsumeNNewCapsAtAvailable(t *testing.T) {
	s := NewSlot("in", 10, 0)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Enqueue(Payload{"n": i}, "", time.Now()))
	}
	got := s.ConsumeNNew(10)
	assert.Len(t, got, 3)
	assert.Equal(t, 0, s.UnconsumedCount())
}

func TestSlotConsumeLatestAndMarkRestDropsOlder(t *testing.T) {
	s := NewSlot("in", 10, 0)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Enqueue(Payload{"n": i}, "", time.Now()))
	}
	latest, ok := s.ConsumeLatestAndMarkRest()
	require.True(t, ok)
	assert.Equal(t, 2, latest["n"])
	assert.Equal(t, 0, s.UnconsumedCount())
}

func TestSlotCompactsPastWatermark(t *testing.T) {
	s := NewSlot("in", 10, 0.2)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Enqueue(Payload{"n": i}, "", time.Now()))
	}
	s.ConsumeNNew(3) // 3/10 > 0.2 watermark, should compact
	assert.Equal(t, 2, s.TotalCount())
	assert.Equal(t, 2, s.UnconsumedCount())
}
