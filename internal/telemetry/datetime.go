package telemetry

import (
	"log/slog"
	"time"

	"github.com/roman-kulish/radio-telemetry/internal/mathx"
)

// rtcTolerance is the drift below which the wall clock is left alone.
const rtcTolerance = 20 // seconds

type dateTime struct {
	year      uint16
	month     uint8
	day       uint8
	hour      uint8
	min       uint8
	sec       uint8
	dateState bool
	timeState bool
}

// DateTime is the date and time of day assembled from telemetry, hour already
// shifted to the configured timezone.
type DateTime struct {
	Year   int  `json:"year"`
	Month  int  `json:"month"`
	Day    int  `json:"day"`
	Hour   int  `json:"hour"`
	Minute int  `json:"minute"`
	Second int  `json:"second"`
	Date   bool `json:"date"`
	Time   bool `json:"time"`
}

func (d *dateTime) view() DateTime {
	return DateTime{
		Year:   int(d.year),
		Month:  int(d.month),
		Day:    int(d.day),
		Hour:   int(d.hour),
		Minute: int(d.min),
		Second: int(d.sec),
		Date:   d.dateState,
		Time:   d.timeState,
	}
}

func (e *Engine) localHour(h uint8) uint8 {
	return uint8((int(h) + e.timezone + 24) % 24)
}

// setDate stores a received date and, when enabled, pushes it to the wall
// clock if the date had not been set yet or differs from it.
func (e *Engine) setDate(d *dateTime, year uint16, month, day uint8) {
	wasSet := d.dateState && d.year != 0
	d.year, d.month, d.day = year, month, day
	d.dateState = true

	if !e.adjustRTC || e.wall == nil || year == 0 {
		return
	}

	now := e.wall.Now()
	if wasSet && now.Year() == int(year) && int(now.Month()) == int(month) && now.Day() == int(day) {
		return
	}

	t := time.Date(int(year), time.Month(month), int(day), now.Hour(), now.Minute(), now.Second(), 0, now.Location())
	e.adjustWallClock(t)
}

// setTime stores a received time of day and, when enabled, pushes it to the
// wall clock if the two disagree by more than rtcTolerance.
func (e *Engine) setTime(d *dateTime, hour, minute, sec uint8) {
	d.hour, d.min, d.sec = hour, minute, sec
	d.timeState = true

	if !e.adjustRTC || e.wall == nil {
		return
	}

	now := e.wall.Now()
	delta := (now.Hour()-int(hour))*3600 + (now.Minute()-int(minute))*60 + (now.Second() - int(sec))
	if mathx.Abs(delta) <= rtcTolerance {
		return
	}

	t := time.Date(now.Year(), now.Month(), now.Day(), int(hour), int(minute), int(sec), 0, now.Location())
	e.adjustWallClock(t)
}

func (e *Engine) adjustWallClock(t time.Time) {
	e.logger.Debug("adjusting wall clock from telemetry", slog.Time("time", t))
	if err := e.wall.SetTime(t); err != nil {
		e.logger.Warn("failed to adjust wall clock", slog.String("error", err.Error()))
	}
}
