package telemetry

import "time"

const (
	// TickPeriod is the duration of one freshness tick.
	TickPeriod = 100 * time.Millisecond

	// FreshTicks is how many ticks a received value stays fresh.
	FreshTicks Tick = 2

	// DefaultStaleTicks is the age after which the daemon marks a silent sensor old.
	DefaultStaleTicks Tick = 150
)

// Tick is a monotonic counter of TickPeriod intervals owned by the control loop.
// Differences are computed modulo 2^32.
type Tick uint32

// TickClock supplies the current tick.
type TickClock interface {
	Now() Tick
}

// TickFunc adapts a function to TickClock.
type TickFunc func() Tick

func (f TickFunc) Now() Tick { return f() }

// WallClock is the real-time clock the engine may ask to adjust from
// date/time telemetry.
type WallClock interface {
	Now() time.Time
	SetTime(t time.Time) error
}

// Persister is told when the sensor model changed and needs saving.
type Persister interface {
	MarkDirty()
}
