package telemetry

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/roman-kulish/radio-telemetry/internal/units"
)

var (
	// ErrTableFull is returned when a reading needs a new slot and none is free.
	ErrTableFull = errors.New("telemetry table full")

	// ErrInvalidSlot is returned for slot handles outside the tables.
	ErrInvalidSlot = errors.New("invalid slot")
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used by the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithWallClock sets the clock that date/time telemetry may adjust.
func WithWallClock(clock WallClock) Option {
	return func(e *Engine) {
		e.wall = clock
	}
}

// WithPersister sets the collaborator told about sensor model changes.
func WithPersister(p Persister) Option {
	return func(e *Engine) {
		e.persister = p
	}
}

// WithTimezone sets the hour offset applied to received times of day.
func WithTimezone(hours int) Option {
	return func(e *Engine) {
		e.timezone = hours % 24
	}
}

// WithClockAdjust enables pushing received date and time to the wall clock.
func WithClockAdjust(enabled bool) Option {
	return func(e *Engine) {
		e.adjustRTC = enabled
	}
}

// WithDefaults registers the default setter used when a reading of protocol p
// allocates a slot.
func WithDefaults(p Protocol, fn DefaultSetter) Option {
	return func(e *Engine) {
		e.defaults[p] = fn
	}
}

// Engine owns the sensor definitions and the runtime items of every slot.
// All methods are safe for concurrent use.
type Engine struct {
	mu      sync.Mutex
	sensors [MaxSensors]Sensor
	items   [MaxSensors]Item

	clock     TickClock
	wall      WallClock
	persister Persister
	defaults  map[Protocol]DefaultSetter
	timezone  int
	adjustRTC bool
	logger    *slog.Logger
}

// NewEngine creates an engine with empty tables. Time is read from clock.
func NewEngine(clock TickClock, options ...Option) *Engine {
	e := &Engine{
		clock: clock,
		defaults: map[Protocol]DefaultSetter{
			ProtocolFrSkySPort: FrSkyDefaults,
			ProtocolFrSkyD:     GenericDefaults,
			ProtocolCustom:     GenericDefaults,
		},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(e)
	}

	return e
}

// SetTelemetryValue ingests one decoded reading, allocating a slot for an
// unknown (id, instance) pair.
func (e *Engine) SetTelemetryValue(p Protocol, id uint16, instance uint8, value int32, unit units.Unit, prec uint8) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	slot, ok := e.findOrAllocate(p, id, instance, WireHint{Unit: unit, Precision: prec})
	if !ok {
		e.logger.Debug("reading dropped",
			slog.String("protocol", p.String()),
			slog.Int("id", int(id)),
			slog.Int("instance", int(instance)))
		return fmt.Errorf("storing sensor %04X/%d: %w", id, instance, ErrTableFull)
	}

	e.setValue(slot, value, unit, prec)
	return nil
}

// FindOrAllocate returns the slot defined for (id, instance), or seeds the
// first free one with the protocol defaults. It reports false when the table
// is full.
func (e *Engine) FindOrAllocate(p Protocol, id uint16, instance uint8) (Slot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.findOrAllocate(p, id, instance, WireHint{})
}

func (e *Engine) findOrAllocate(p Protocol, id uint16, instance uint8, hint WireHint) (Slot, bool) {
	available := Slot(-1)
	for i := range e.sensors {
		s := &e.sensors[i]
		if s.ID == id && s.Instance == instance {
			return Slot(i), true
		}
		if available < 0 && s.IsFree() {
			available = Slot(i)
		}
	}

	if available < 0 {
		return available, false
	}

	if fn := e.defaults[p]; fn != nil {
		fn(available, &e.sensors[available], id, instance, hint)
		if !e.sensors[available].IsFree() {
			e.logger.Debug("sensor allocated",
				slog.Int("slot", int(available)),
				slog.String("label", e.sensors[available].Label),
				slog.String("unit", e.sensors[available].Unit.String()))
			e.markDirty()
		}
	}

	return available, true
}

// Delete clears the definition and runtime state of slot.
func (e *Engine) Delete(slot Slot) error {
	if !slot.Valid() {
		return fmt.Errorf("deleting slot %d: %w", slot, ErrInvalidSlot)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.sensors[slot] = Sensor{}
	e.items[slot].clear()
	e.logger.Debug("sensor deleted", slog.Int("slot", int(slot)))
	e.markDirty()
	return nil
}

// FirstFreeSlot returns the lowest slot without a definition.
func (e *Engine) FirstFreeSlot() (Slot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.sensors {
		if e.sensors[i].IsFree() {
			return Slot(i), true
		}
	}
	return -1, false
}

// Define validates s and stores it in slot. The runtime item starts over.
func (e *Engine) Define(slot Slot, s Sensor) error {
	if !slot.Valid() {
		return fmt.Errorf("defining slot %d: %w", slot, ErrInvalidSlot)
	}
	if err := s.Validate(slot); err != nil {
		return fmt.Errorf("defining slot %d: %w", slot, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.sensors[slot] = s
	e.items[slot].clear()
	e.markDirty()
	return nil
}

// Sensor returns a copy of the definition in slot.
func (e *Engine) Sensor(slot Slot) (Sensor, error) {
	if !slot.Valid() {
		return Sensor{}, fmt.Errorf("reading slot %d: %w", slot, ErrInvalidSlot)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.sensors[slot], nil
}

// Sensors returns a copy of the whole sensor table, free slots included.
func (e *Engine) Sensors() []Sensor {
	e.mu.Lock()
	defer e.mu.Unlock()

	sensors := make([]Sensor, MaxSensors)
	copy(sensors, e.sensors[:])
	return sensors
}

// Model is the set of defined sensors keyed by slot.
type Model map[Slot]Sensor

// Model returns the defined sensors.
func (e *Engine) Model() Model {
	e.mu.Lock()
	defer e.mu.Unlock()

	m := make(Model)
	for i := range e.sensors {
		if !e.sensors[i].IsFree() {
			m[Slot(i)] = e.sensors[i]
		}
	}
	return m
}

// LoadModel replaces all definitions with m and clears every item. Nothing is
// changed when any definition is invalid.
func (e *Engine) LoadModel(m Model) error {
	var errs []error
	for slot, s := range m {
		if !slot.Valid() {
			errs = append(errs, fmt.Errorf("slot %d: %w", slot, ErrInvalidSlot))
			continue
		}
		if err := s.Validate(slot); err != nil {
			errs = append(errs, fmt.Errorf("slot %d: %w", slot, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("loading model: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.sensors {
		e.sensors[i] = m[Slot(i)]
		e.items[i].clear()
	}
	return nil
}

// Tick10ms runs the consumption integration of every calculated sensor. It
// must be called every 10 ms.
func (e *Engine) Tick10ms() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.sensors {
		if s := &e.sensors[i]; !s.IsFree() && s.IsCalculated() {
			e.per10ms(Slot(i))
		}
	}
}

// Evaluate recomputes every calculated sensor in slot order. It must run after
// the raw readings of the cycle have been ingested.
func (e *Engine) Evaluate() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.sensors {
		if s := &e.sensors[i]; !s.IsFree() && s.IsCalculated() {
			e.eval(Slot(i))
		}
	}
}

// ExpireStale marks old every raw item silent for maxAge ticks or more.
// Calculated items follow the state of their sources instead.
func (e *Engine) ExpireStale(maxAge Tick) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	for i := range e.items {
		if e.sensors[i].IsCalculated() {
			continue
		}
		it := &e.items[i]
		if it.state == stateReceived && now-it.lastReceived >= maxAge {
			it.markOld()
		}
	}
}

// MarkOld marks the item of slot old if it ever received a value.
func (e *Engine) MarkOld(slot Slot) error {
	if !slot.Valid() {
		return fmt.Errorf("marking slot %d: %w", slot, ErrInvalidSlot)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.items[slot].isAvailable() {
		e.items[slot].markOld()
	}
	return nil
}

// Reset clears the runtime state of every item. Definitions are kept.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.items {
		e.items[i].clear()
	}
}

func (e *Engine) markDirty() {
	if e.persister != nil {
		e.persister.MarkDirty()
	}
}
