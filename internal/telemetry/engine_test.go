package telemetry

import (
	"errors"
	"testing"
	"time"

	"github.com/roman-kulish/radio-telemetry/internal/units"
)

type fakeClock struct {
	tick Tick
}

func (c *fakeClock) Now() Tick { return c.tick }

type fakeWall struct {
	now time.Time
	set []time.Time
	err error
}

func (w *fakeWall) Now() time.Time { return w.now }

func (w *fakeWall) SetTime(t time.Time) error {
	w.set = append(w.set, t)
	if w.err != nil {
		return w.err
	}
	w.now = t
	return nil
}

type recordingPersister struct {
	dirty int
}

func (p *recordingPersister) MarkDirty() { p.dirty++ }

func rawSensor(id uint16, unit units.Unit, prec uint8) Sensor {
	return Sensor{ID: id, Label: "RAW", Type: TypeCustom, Unit: unit, Precision: prec}
}

func calcSensor(id uint16, f Formula, unit units.Unit, prec uint8, sources ...SourceRef) Sensor {
	return Sensor{
		ID:        id,
		Label:     "CALC",
		Type:      TypeCalculated,
		Unit:      unit,
		Precision: prec,
		Formula:   f,
		Calc:      CalcParams{Sources: sources},
	}
}

func src(slots ...Slot) []SourceRef {
	refs := make([]SourceRef, len(slots))
	for i, s := range slots {
		refs[i] = SourceRef{Slot: s}
	}
	return refs
}

func define(t *testing.T, e *Engine, slot Slot, s Sensor) {
	t.Helper()
	if err := e.Define(slot, s); err != nil {
		t.Fatalf("Failed to define slot %d: %v", slot, err)
	}
}

func feed(t *testing.T, e *Engine, id uint16, value int32, unit units.Unit, prec uint8) {
	t.Helper()
	if err := e.SetTelemetryValue(ProtocolCustom, id, 0, value, unit, prec); err != nil {
		t.Fatalf("Failed to set value of sensor %04X: %v", id, err)
	}
}

func item(t *testing.T, e *Engine, slot Slot) Reading {
	t.Helper()
	r, err := e.Item(slot)
	if err != nil {
		t.Fatalf("Failed to read slot %d: %v", slot, err)
	}
	return r
}

func TestEngine_FindOrAllocate(t *testing.T) {
	p := &recordingPersister{}
	e := NewEngine(&fakeClock{}, WithPersister(p))

	slot, ok := e.FindOrAllocate(ProtocolCustom, 0x0210, 0)
	if !ok || slot != 0 {
		t.Fatalf("FindOrAllocate = (%d, %v), want (0, true)", slot, ok)
	}

	s, err := e.Sensor(slot)
	if err != nil {
		t.Fatalf("Sensor: %v", err)
	}
	if s.ID != 0x0210 || s.Label != "0210" {
		t.Errorf("seeded sensor = %+v, want id 0x0210 labelled 0210", s)
	}
	if p.dirty != 1 {
		t.Errorf("dirty = %d after allocation, want 1", p.dirty)
	}

	if again, _ := e.FindOrAllocate(ProtocolCustom, 0x0210, 0); again != slot {
		t.Errorf("second lookup returned slot %d, want %d", again, slot)
	}
	if p.dirty != 1 {
		t.Errorf("dirty = %d after lookup, want 1", p.dirty)
	}

	if other, _ := e.FindOrAllocate(ProtocolCustom, 0x0210, 1); other != 1 {
		t.Errorf("other instance got slot %d, want 1", other)
	}
}

func TestEngine_FrSkyDefaults(t *testing.T) {
	e := NewEngine(&fakeClock{})

	if err := e.SetTelemetryValue(ProtocolFrSkySPort, 0x0211, 0, 1234, units.Volts, 2); err != nil {
		t.Fatalf("SetTelemetryValue: %v", err)
	}

	r := item(t, e, 0)
	if r.Label != "VFAS" || r.Unit != units.Volts || r.Precision != 2 {
		t.Errorf("sensor = %s %s prec %d, want VFAS volts prec 2", r.Label, r.Unit, r.Precision)
	}
	if !r.Available || r.Value != 1234 {
		t.Errorf("reading = %+v, want available 1234", r)
	}
}

func TestEngine_WithoutDefaultSetter(t *testing.T) {
	e := NewEngine(&fakeClock{}, WithDefaults(ProtocolCustom, nil))

	slot, ok := e.FindOrAllocate(ProtocolCustom, 7, 0)
	if !ok || slot != 0 {
		t.Fatalf("FindOrAllocate = (%d, %v), want (0, true)", slot, ok)
	}
	if free, _ := e.FirstFreeSlot(); free != 0 {
		t.Errorf("slot was not left free")
	}
}

func TestEngine_TableFull(t *testing.T) {
	e := NewEngine(&fakeClock{})
	for i := 0; i < MaxSensors; i++ {
		define(t, e, Slot(i), rawSensor(uint16(i+1), units.Raw, 0))
	}

	if _, ok := e.FirstFreeSlot(); ok {
		t.Fatal("FirstFreeSlot found a slot in a full table")
	}

	err := e.SetTelemetryValue(ProtocolCustom, 100, 0, 1, units.Raw, 0)
	if !errors.Is(err, ErrTableFull) {
		t.Errorf("SetTelemetryValue error = %v, want ErrTableFull", err)
	}

	feed(t, e, 5, 42, units.Raw, 0)
	if r := item(t, e, 4); r.Value != 42 {
		t.Errorf("known sensor value = %d, want 42", r.Value)
	}
}

func TestEngine_Delete(t *testing.T) {
	p := &recordingPersister{}
	e := NewEngine(&fakeClock{}, WithPersister(p))
	feed(t, e, 0x0100, 10, units.Meters, 0)
	feed(t, e, 0x0200, 20, units.Amps, 0)
	dirty := p.dirty

	if err := e.Delete(0); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if p.dirty != dirty+1 {
		t.Errorf("dirty = %d, want %d", p.dirty, dirty+1)
	}
	if r := item(t, e, 0); r.Available || r.ID != 0 {
		t.Errorf("deleted slot still holds %+v", r)
	}
	if free, ok := e.FirstFreeSlot(); !ok || free != 0 {
		t.Errorf("FirstFreeSlot = (%d, %v), want (0, true)", free, ok)
	}
	if len(e.Readings()) != 1 {
		t.Errorf("Readings returned %d entries, want 1", len(e.Readings()))
	}
}

func TestEngine_InvalidSlot(t *testing.T) {
	e := NewEngine(&fakeClock{})

	testCases := []struct {
		name string
		call func() error
	}{
		{"delete negative", func() error { return e.Delete(-1) }},
		{"delete past end", func() error { return e.Delete(MaxSensors) }},
		{"define", func() error { return e.Define(MaxSensors, rawSensor(1, units.Raw, 0)) }},
		{"mark old", func() error { return e.MarkOld(-3) }},
		{"item", func() error { _, err := e.Item(MaxSensors); return err }},
		{"sensor", func() error { _, err := e.Sensor(-1); return err }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.call(); !errors.Is(err, ErrInvalidSlot) {
				t.Errorf("error = %v, want ErrInvalidSlot", err)
			}
		})
	}
}

func TestEngine_DefineRejectsInvalidSensor(t *testing.T) {
	e := NewEngine(&fakeClock{})

	testCases := []struct {
		name   string
		sensor Sensor
	}{
		{"free", Sensor{}},
		{"long label", Sensor{ID: 1, Label: "TOOLONG"}},
		{"precision", Sensor{ID: 1, Precision: 3}},
		{"self reference", calcSensor(1, FormulaAdd, units.Amps, 1, src(0, 2)...)},
		{"too many multiply sources", calcSensor(1, FormulaMultiply, units.Watts, 1, src(1, 2, 3)...)},
		{"cell without source", Sensor{ID: 1, Type: TypeCalculated, Formula: FormulaCell}},
		{"ratio above unity", Sensor{ID: 1, Unit: units.Volts, Custom: Calibration{Ratio: 256}}},
		{"calculated cells", calcSensor(1, FormulaAdd, units.Cells, 0, src(1)...)},
		{"calculated gps", calcSensor(1, FormulaMax, units.GPS, 0, src(1)...)},
		{"calculated datetime fragment", calcSensor(1, FormulaMin, units.DateTimeSec, 0, src(1)...)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if err := e.Define(0, tc.sensor); !errors.Is(err, ErrInvalidSensor) {
				t.Errorf("error = %v, want ErrInvalidSensor", err)
			}
		})
	}
}

func TestEngine_LoadModel(t *testing.T) {
	p := &recordingPersister{}
	e := NewEngine(&fakeClock{}, WithPersister(p))
	feed(t, e, 0x0300, 1, units.Raw, 0)
	dirty := p.dirty

	model := Model{
		2: rawSensor(0x0200, units.Amps, 1),
		5: calcSensor(0x0E00, FormulaAdd, units.Amps, 1, src(2)...),
	}
	if err := e.LoadModel(model); err != nil {
		t.Fatalf("LoadModel: %v", err)
	}
	if p.dirty != dirty {
		t.Errorf("LoadModel marked the model dirty")
	}

	got := e.Model()
	if len(got) != 2 || got[2].ID != 0x0200 || got[5].Formula != FormulaAdd {
		t.Errorf("Model() = %+v", got)
	}
	if r := item(t, e, 0); r.ID != 0 || r.Available {
		t.Errorf("slot 0 survived the load: %+v", r)
	}

	bad := Model{1: calcSensor(0x0E00, FormulaAdd, units.Amps, 1, src(1)...)}
	if err := e.LoadModel(bad); !errors.Is(err, ErrInvalidSensor) {
		t.Errorf("error = %v, want ErrInvalidSensor", err)
	}
	if len(e.Model()) != 2 {
		t.Errorf("failed load changed the model")
	}
}

func TestEngine_Freshness(t *testing.T) {
	clock := &fakeClock{tick: 10}
	e := NewEngine(clock)
	feed(t, e, 1, 5, units.Raw, 0)

	if r := item(t, e, 0); !r.Fresh || r.LastReceived != 10 {
		t.Errorf("new reading not fresh: %+v", r)
	}

	clock.tick = 10 + FreshTicks
	if r := item(t, e, 0); r.Fresh || !r.Available || r.Old {
		t.Errorf("reading after %d ticks = %+v, want available, not fresh", FreshTicks, r)
	}

	clock.tick = 10 + 149
	e.ExpireStale(DefaultStaleTicks)
	if item(t, e, 0).Old {
		t.Error("item expired before its age")
	}

	clock.tick = 10 + DefaultStaleTicks
	e.ExpireStale(DefaultStaleTicks)
	if !item(t, e, 0).Old {
		t.Error("item did not expire")
	}

	feed(t, e, 1, 6, units.Raw, 0)
	if r := item(t, e, 0); r.Old || !r.Fresh {
		t.Errorf("new reading did not refresh the item: %+v", r)
	}
}

func TestEngine_MarkOldAndReset(t *testing.T) {
	e := NewEngine(&fakeClock{})
	define(t, e, 3, rawSensor(1, units.Raw, 0))

	if err := e.MarkOld(3); err != nil {
		t.Fatalf("MarkOld: %v", err)
	}
	if item(t, e, 3).Old {
		t.Error("unavailable item marked old")
	}

	feed(t, e, 1, 9, units.Raw, 0)
	if err := e.MarkOld(3); err != nil {
		t.Fatalf("MarkOld: %v", err)
	}
	if !item(t, e, 3).Old {
		t.Error("item not marked old")
	}

	e.Reset()
	r := item(t, e, 3)
	if r.Available || r.Value != 0 {
		t.Errorf("reset left %+v", r)
	}
	if r.ID != 1 {
		t.Errorf("reset dropped the definition")
	}
}

func TestEngine_AddExample(t *testing.T) {
	e := NewEngine(&fakeClock{})
	define(t, e, 0, calcSensor(0x0E00, FormulaAdd, units.Amps, 1, src(1, 2)...))
	define(t, e, 1, rawSensor(0x0201, units.Amps, 1))
	define(t, e, 2, rawSensor(0x0202, units.Amps, 1))

	feed(t, e, 0x0201, 120, units.Amps, 1)
	feed(t, e, 0x0202, -30, units.Amps, 1)
	e.Evaluate()

	r := item(t, e, 0)
	if !r.Available || r.Value != 90 {
		t.Errorf("ADD = %+v, want 90", r)
	}
	if r.String() != "9.0 amps" {
		t.Errorf("String() = %q", r.String())
	}
}
