package app

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/roman-kulish/radio-telemetry/internal/telemetry"
	"github.com/roman-kulish/radio-telemetry/internal/units"
)

const testConfig = `
settings:
  logLevel: debug
  timezone: 2
  adjustRTC: true
loop:
  cycle: 20ms
  staleAfter: 5s
source:
  command: sport-decoder
  args: ["--port", "/dev/ttyUSB0"]
  protocol: frsky-sport
storage:
  dataDirectory: /var/lib/telemetry
sensors:
  - slot: 0
    id: 0x0210
    label: VFAS
    unit: volts
    precision: 2
    custom:
      ratio: 250
      offset: -4
  - slot: 1
    id: 0x0300
    label: Cels
    unit: cells
    precision: 2
  - slot: 2
    id: 0x0E00
    label: Low
    type: calculated
    unit: volts
    precision: 2
    formula: cell
    cell:
      source: 1
      index: lowest
  - slot: 3
    id: 0x0E01
    label: Pwr
    type: calculated
    unit: watts
    formula: multiply
    calc:
      sources:
        - slot: 0
        - slot: 4
          negate: true
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	c, err := LoadConfig(writeConfig(t, testConfig))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if c.Settings.LogLevel != slog.LevelDebug || c.Settings.Timezone != 2 || !c.Settings.AdjustRTC {
		t.Errorf("settings = %+v", c.Settings)
	}
	if time.Duration(c.Loop.Cycle) != 20*time.Millisecond {
		t.Errorf("cycle = %s, want 20ms", c.Loop.Cycle)
	}
	if time.Duration(c.Loop.Tick) != telemetry.TickPeriod {
		t.Errorf("tick = %s, want default %s", c.Loop.Tick, telemetry.TickPeriod)
	}
	if got := c.StaleTicks(); got != 50 {
		t.Errorf("stale ticks = %d, want 50", got)
	}
	if c.Source.Command != "sport-decoder" || len(c.Source.Args) != 2 || c.Source.Protocol != telemetry.ProtocolFrSkySPort {
		t.Errorf("source = %+v", c.Source)
	}
	if c.Storage.Database != defaultDatabase {
		t.Errorf("database = %q, want default", c.Storage.Database)
	}

	m, err := c.Model()
	if err != nil {
		t.Fatalf("Failed to build model: %v", err)
	}
	if len(m) != 4 {
		t.Fatalf("model has %d sensors, want 4", len(m))
	}
	if s := m[0]; s.Label != "VFAS" || s.Unit != units.Volts || s.Custom.Ratio != 250 || s.Custom.Offset != -4 {
		t.Errorf("sensor 0 = %+v", s)
	}
	if s := m[2]; s.Formula != telemetry.FormulaCell || s.Cell.Index != telemetry.CellLowest || s.Cell.Source == nil || *s.Cell.Source != 1 {
		t.Errorf("sensor 2 = %+v", s)
	}
	if srcs := m[3].Calc.Sources; len(srcs) != 2 || srcs[1].Slot != 4 || !srcs[1].Negate {
		t.Errorf("sensor 3 sources = %+v", srcs)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	testCases := []struct {
		name    string
		content string
	}{
		{
			name:    "no source",
			content: "settings:\n  logLevel: info\n",
		},
		{
			name:    "both sources",
			content: "source:\n  command: decoder\n  file: replay.csv\n",
		},
		{
			name:    "args without command",
			content: "source:\n  file: replay.csv\n  args: [\"-v\"]\n",
		},
		{
			name:    "bad duration",
			content: "source:\n  file: replay.csv\nloop:\n  cycle: soon\n",
		},
		{
			name:    "zero duration",
			content: "source:\n  file: replay.csv\nloop:\n  flushInterval: 0s\n",
		},
		{
			name:    "stale shorter than tick",
			content: "source:\n  file: replay.csv\nloop:\n  staleAfter: 10ms\n",
		},
		{
			name:    "timezone",
			content: "source:\n  file: replay.csv\nsettings:\n  timezone: 20\n",
		},
		{
			name:    "unknown field",
			content: "source:\n  file: replay.csv\n  baudRate: 57600\n",
		},
		{
			name:    "unknown protocol",
			content: "source:\n  file: replay.csv\n  protocol: crsf\n",
		},
		{
			name:    "slot out of range",
			content: "source:\n  file: replay.csv\nsensors:\n  - slot: 32\n    id: 1\n",
		},
		{
			name:    "duplicate slot",
			content: "source:\n  file: replay.csv\nsensors:\n  - slot: 1\n    id: 1\n  - slot: 1\n    id: 2\n",
		},
		{
			name:    "free sensor",
			content: "source:\n  file: replay.csv\nsensors:\n  - slot: 1\n    label: none\n",
		},
		{
			name:    "unknown unit",
			content: "source:\n  file: replay.csv\nsensors:\n  - slot: 1\n    id: 1\n    unit: parsecs\n",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, tc.content)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error")
	}
}

func TestDuration_JSON(t *testing.T) {
	d := Duration(1500 * time.Millisecond)
	p, err := d.MarshalJSON()
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}
	if string(p) != `"1.5s"` {
		t.Errorf("marshalled = %s", p)
	}

	var got Duration
	if err = got.UnmarshalJSON(p); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}
	if got != d {
		t.Errorf("got %s, want %s", got, d)
	}
}
