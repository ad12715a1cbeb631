package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/roman-kulish/radio-telemetry/internal/telemetry"
	"github.com/roman-kulish/radio-telemetry/internal/units"
)

func newTestStore(t *testing.T) *SqliteStore {
	t.Helper()
	s := NewSqliteStore(filepath.Join(t.TempDir(), "telemetry.db"))
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Failed to close store: %v", err)
		}
	})
	return s
}

func TestSqliteStore_Sessions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	config := map[string]any{"tick": "100ms"}
	id, err := s.CreateSession(ctx, "decoder", "frsky-sport", config)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	if id == uuid.Nil {
		t.Fatal("session ID is nil")
	}
	if _, err = s.CreateSession(ctx, "replay.csv", "custom", nil); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	sess, err := s.Session(ctx, id)
	if err != nil {
		t.Fatalf("Failed to read session: %v", err)
	}
	if sess.ID != id || sess.Source != "decoder" || sess.Protocol != "frsky-sport" {
		t.Errorf("session = %+v", sess)
	}
	if sess.Config == nil || *sess.Config != `{"tick":"100ms"}` {
		t.Errorf("config = %v", sess.Config)
	}
	if sess.StartTime.IsZero() {
		t.Error("start time not set")
	}

	sessions, err := s.Sessions(ctx)
	if err != nil {
		t.Fatalf("Failed to list sessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Errorf("got %d sessions, want 2", len(sessions))
	}

	if _, err = s.Session(ctx, uuid.New()); err == nil {
		t.Error("unknown session found")
	}
}

func TestSqliteStore_Model(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	m, err := s.LoadModel(ctx)
	if err != nil {
		t.Fatalf("Failed to load empty model: %v", err)
	}
	if len(m) != 0 {
		t.Fatalf("empty store returned %d sensors", len(m))
	}

	want := telemetry.Model{
		0: {ID: 0x0210, Label: "VFAS", Unit: units.Volts, Precision: 2, Custom: telemetry.Calibration{Ratio: 255, Offset: -3}},
		1: {ID: 0x0300, Label: "Cels", Unit: units.Cells, Precision: 2},
		4: {
			ID:        0x0E00,
			Label:     "Low",
			Type:      telemetry.TypeCalculated,
			Unit:      units.Volts,
			Precision: 2,
			Formula:   telemetry.FormulaCell,
			Cell:      telemetry.CellParams{Source: telemetry.SlotRef(1), Index: telemetry.CellDelta},
		},
		5: {
			ID:      0x0E01,
			Label:   "Sum",
			Type:    telemetry.TypeCalculated,
			Unit:    units.Amps,
			Formula: telemetry.FormulaAdd,
			Calc:    telemetry.CalcParams{Sources: []telemetry.SourceRef{{Slot: 0}, {Slot: 1, Negate: true}}},
		},
	}
	if err = s.SaveModel(ctx, want); err != nil {
		t.Fatalf("Failed to save model: %v", err)
	}

	got, err := s.LoadModel(ctx)
	if err != nil {
		t.Fatalf("Failed to load model: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("loaded %d sensors, want %d", len(got), len(want))
	}
	if got[0].Custom != want[0].Custom || got[0].Label != "VFAS" {
		t.Errorf("sensor 0 = %+v", got[0])
	}
	if got[4].Cell.Source == nil || *got[4].Cell.Source != 1 || got[4].Cell.Index != telemetry.CellDelta {
		t.Errorf("sensor 4 cell params = %+v", got[4].Cell)
	}
	if srcs := got[5].Calc.Sources; len(srcs) != 2 || !srcs[1].Negate || srcs[1].Slot != 1 {
		t.Errorf("sensor 5 sources = %+v", srcs)
	}

	// saving again replaces the model
	if err = s.SaveModel(ctx, telemetry.Model{3: want[1]}); err != nil {
		t.Fatalf("Failed to save model: %v", err)
	}
	if got, err = s.LoadModel(ctx); err != nil || len(got) != 1 || got[3].ID != 0x0300 {
		t.Errorf("replaced model = %+v, %v", got, err)
	}
}

func TestSqliteStore_Readings(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateSession(ctx, "decoder", "frsky-sport", nil)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	base := time.Date(2024, 5, 17, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		readings := []telemetry.Reading{
			{Slot: 0, ID: 0x0210, Label: "VFAS", Unit: units.Volts, Precision: 2, Value: 1200 - int32(i), Min: 1100, Max: 1260, Available: true},
			{Slot: 1, ID: 0x0800, Label: "GPS", Unit: units.GPS, Available: true, Position: &telemetry.Position{Latitude: 51_500_000, Longitude: -125_000}},
			{Slot: 2, ID: 0x0400, Label: "Tmp1", Unit: units.Celsius},
		}
		if err = s.StoreReadings(ctx, id, base.Add(time.Duration(i)*time.Second), readings); err != nil {
			t.Fatalf("Failed to store readings: %v", err)
		}
	}

	// nothing available, nothing stored
	if err = s.StoreReadings(ctx, id, base, []telemetry.Reading{{Slot: 3}}); err != nil {
		t.Fatalf("Failed to store empty snapshot: %v", err)
	}

	testCases := []struct {
		name string
		opts []ReaderOption
		want int
	}{
		{"all", nil, 6},
		{"slot", []ReaderOption{WithSlot(0)}, 3},
		{"unavailable slot", []ReaderOption{WithSlot(2)}, 0},
		{"from", []ReaderOption{WithStartTime(base.Add(time.Second))}, 4},
		{"range", []ReaderOption{WithSlot(1), WithTimeRange(base, base.Add(time.Second))}, 2},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r, err := s.ReadRecords(ctx, id, tc.opts...)
			if err != nil {
				t.Fatalf("Failed to create reader: %v", err)
			}
			defer r.Close()

			if r.Session().ID != id {
				t.Errorf("reader session = %v, want %v", r.Session().ID, id)
			}

			var records []*Record
			for r.Next(ctx) {
				records = append(records, r.Current())
			}
			if err := r.Error(); err != nil {
				t.Fatalf("reader error: %v", err)
			}
			if len(records) != tc.want {
				t.Fatalf("got %d records, want %d", len(records), tc.want)
			}

			for _, rec := range records {
				switch rec.Slot {
				case 0:
					if rec.Label != "VFAS" || rec.Unit != units.Volts || rec.Precision != 2 || rec.Max != 1260 {
						t.Errorf("voltage record = %+v", rec)
					}
				case 1:
					if rec.Position == nil || rec.Position.Longitude != -125_000 {
						t.Errorf("gps record = %+v", rec)
					}
				}
			}
		})
	}
}

func TestSqliteStore_ReaderRejectsBadFilters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateSession(ctx, "decoder", "custom", nil)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	now := time.Now()
	if _, err = s.ReadRecords(ctx, id, WithTimeRange(now, now.Add(-time.Hour))); err == nil {
		t.Error("inverted time range accepted")
	}
	if _, err = s.ReadRecords(ctx, id, WithSlot(telemetry.MaxSensors)); err == nil {
		t.Error("out of range slot accepted")
	}
	if _, err = s.ReadRecords(ctx, uuid.Nil); err == nil {
		t.Error("nil session accepted")
	}
}
