package telemetry

import (
	"fmt"

	"github.com/roman-kulish/radio-telemetry/internal/units"
)

// Reading is a snapshot of one slot: its definition summary and the item
// state as seen at the current tick.
type Reading struct {
	Slot      Slot       `json:"slot"`
	ID        uint16     `json:"id"`
	Instance  uint8      `json:"instance"`
	Label     string     `json:"label"`
	Unit      units.Unit `json:"unit"`
	Precision uint8      `json:"precision"`

	Value int32 `json:"value"`
	Min   int32 `json:"min"`
	Max   int32 `json:"max"`

	Available    bool `json:"available"`
	Fresh        bool `json:"fresh"`
	Old          bool `json:"old"`
	LastReceived Tick `json:"lastReceived"`

	Position *Position `json:"position,omitempty"`
	DateTime *DateTime `json:"dateTime,omitempty"`
}

// String formats the value with the sensor's precision and unit.
func (r Reading) String() string {
	return fmt.Sprintf("%s %s", units.FormatValue(r.Value, r.Precision), r.Unit)
}

// Item returns the reading of slot.
func (e *Engine) Item(slot Slot) (Reading, error) {
	if !slot.Valid() {
		return Reading{}, fmt.Errorf("reading slot %d: %w", slot, ErrInvalidSlot)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.reading(slot, e.clock.Now()), nil
}

// Readings returns the readings of all defined slots in slot order.
func (e *Engine) Readings() []Reading {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	var readings []Reading
	for i := range e.sensors {
		if !e.sensors[i].IsFree() {
			readings = append(readings, e.reading(Slot(i), now))
		}
	}
	return readings
}

func (e *Engine) reading(slot Slot, now Tick) Reading {
	s := &e.sensors[slot]
	it := &e.items[slot]

	r := Reading{
		Slot:         slot,
		ID:           s.ID,
		Instance:     s.Instance,
		Label:        s.Label,
		Unit:         s.Unit,
		Precision:    s.Precision,
		Value:        it.value,
		Min:          it.valueMin,
		Max:          it.valueMax,
		Available:    it.isAvailable(),
		Fresh:        it.isFresh(now),
		Old:          it.isOld(),
		LastReceived: it.lastReceived,
	}

	switch v := it.scratch.(type) {
	case *gpsState:
		if v.hasHemispheres() {
			p := v.position()
			r.Position = &p
		}
	case *dateTime:
		d := v.view()
		r.DateTime = &d
	}

	return r
}
