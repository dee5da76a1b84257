package clock

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManual(t *testing.T) {
	ctx := context.Background()
	var m Manual

	tick, err := m.CurrentTick(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), tick)

	m.Set(100)
	assert.Equal(t, uint32(130), m.Advance(30))

	tick, err = m.CurrentTick(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(130), tick)

	m.Set(math.MaxUint32 - 1)
	assert.Equal(t, uint32(math.MaxUint32), m.Advance(10))
}

func TestWall(t *testing.T) {
	genesis := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	w := NewWall(genesis, 0)
	assert.Equal(t, DefaultTick, w.Tick)

	w.now = func() time.Time { return genesis.Add(12 * time.Second) }
	tick, err := w.CurrentTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint32(2), tick)

	w.now = func() time.Time { return genesis.Add(-time.Second) }
	_, err = w.CurrentTick(context.Background())
	assert.ErrorIs(t, err, ErrBeforeGenesis)
}
