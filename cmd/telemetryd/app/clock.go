package app

import (
	"time"

	"github.com/roman-kulish/radio-telemetry/internal/telemetry"
)

// tickClock counts telemetry ticks since the control loop started.
type tickClock struct {
	start  time.Time
	period time.Duration
}

func newTickClock(period time.Duration) *tickClock {
	return &tickClock{start: time.Now(), period: period}
}

func (c *tickClock) Now() telemetry.Tick {
	return telemetry.Tick(time.Since(c.start) / c.period)
}

// systemClock is the host clock. Setting it needs CAP_SYS_TIME.
type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) SetTime(t time.Time) error {
	return setSystemTime(t)
}
