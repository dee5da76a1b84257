// Package clock supplies the logical tick that all ledger lifetimes and due
// dates are measured in.
package clock

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"
)

// DefaultTick is the wall-clock duration of one tick.
const DefaultTick = 5 * time.Second

// ErrBeforeGenesis is returned by Wall when the current time precedes genesis.
var ErrBeforeGenesis = errors.New("clock: current time is before genesis")

// Clock reports the current tick.
type Clock interface {
	CurrentTick(ctx context.Context) (uint32, error)
}

// Manual is a clock moved explicitly by its owner. The zero value starts at
// tick 0 and is ready to use.
type Manual struct {
	mu   sync.Mutex
	tick uint32
}

// NewManual returns a Manual clock at tick.
func NewManual(tick uint32) *Manual {
	return &Manual{tick: tick}
}

func (m *Manual) CurrentTick(context.Context) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tick, nil
}

// Set moves the clock to tick.
func (m *Manual) Set(tick uint32) {
	m.mu.Lock()
	m.tick = tick
	m.mu.Unlock()
}

// Advance moves the clock forward by n ticks, saturating, and returns the
// new tick.
func (m *Manual) Advance(n uint32) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tick > math.MaxUint32-n {
		m.tick = math.MaxUint32
	} else {
		m.tick += n
	}
	return m.tick
}

// Wall derives ticks from wall-clock time elapsed since Genesis.
type Wall struct {
	Genesis time.Time
	Tick    time.Duration

	now func() time.Time
}

// NewWall returns a Wall clock. A non-positive tick uses DefaultTick.
func NewWall(genesis time.Time, tick time.Duration) *Wall {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Wall{Genesis: genesis, Tick: tick, now: time.Now}
}

func (w *Wall) CurrentTick(context.Context) (uint32, error) {
	now := time.Now
	if w.now != nil {
		now = w.now
	}
	tick := w.Tick
	if tick <= 0 {
		tick = DefaultTick
	}

	elapsed := now().Sub(w.Genesis)
	if elapsed < 0 {
		return 0, ErrBeforeGenesis
	}
	n := int64(elapsed / tick)
	if n > math.MaxUint32 {
		return math.MaxUint32, nil
	}
	return uint32(n), nil
}

