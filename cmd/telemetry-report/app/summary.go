package app

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/roman-kulish/radio-telemetry/internal/storage"
	"github.com/roman-kulish/radio-telemetry/internal/telemetry"
	"github.com/roman-kulish/radio-telemetry/internal/units"
)

// SlotSummary aggregates the stored snapshots of one slot.
type SlotSummary struct {
	Slot      telemetry.Slot
	ID        uint16
	Instance  uint8
	Label     string
	Unit      units.Unit
	Precision uint8

	Samples int64
	Old     int64 // samples taken while the value was old
	Last    int32
	Min     int32
	Max     int32

	First    time.Time
	LastSeen time.Time
	Position *telemetry.Position // last known fix
}

func (s *SlotSummary) update(r *storage.Record) {
	if s.Samples == 0 {
		s.Min = r.Min
		s.Max = r.Max
		s.First = r.Timestamp
	}
	s.Min = min(s.Min, r.Min, r.Value)
	s.Max = max(s.Max, r.Max, r.Value)

	// the definition may change during a session, the latest one wins
	s.ID = r.ID
	s.Instance = r.Instance
	s.Label = r.Label
	s.Unit = r.Unit
	s.Precision = r.Precision

	s.Samples++
	if r.Old {
		s.Old++
	}
	s.Last = r.Value
	s.LastSeen = r.Timestamp
	if r.Position != nil {
		s.Position = r.Position
	}
}

// FormatValue renders v with the slot's precision and unit.
func (s *SlotSummary) FormatValue(v int32) string {
	if s.Unit == units.Raw {
		return units.FormatValue(v, s.Precision)
	}
	return fmt.Sprintf("%s %s", units.FormatValue(v, s.Precision), s.Unit)
}

// Summary collects per-slot summaries of a session.
type Summary struct {
	slots map[telemetry.Slot]*SlotSummary
}

func NewSummary() *Summary {
	return &Summary{slots: make(map[telemetry.Slot]*SlotSummary)}
}

func (s *Summary) Update(r *storage.Record) {
	ss, ok := s.slots[r.Slot]
	if !ok {
		ss = &SlotSummary{Slot: r.Slot}
		s.slots[r.Slot] = ss
	}
	ss.update(r)
}

// Slots returns the summaries in slot order.
func (s *Summary) Slots() []*SlotSummary {
	out := make([]*SlotSummary, 0, len(s.slots))
	for _, ss := range s.slots {
		out = append(out, ss)
	}
	slices.SortFunc(out, func(a, b *SlotSummary) int { return cmp.Compare(a.Slot, b.Slot) })
	return out
}

func (s *Summary) Empty() bool {
	return len(s.slots) == 0
}
