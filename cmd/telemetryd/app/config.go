package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/radio-telemetry/internal/source"
	"github.com/roman-kulish/radio-telemetry/internal/telemetry"
)

const (
	defaultCycle            = 50 * time.Millisecond
	defaultSnapshotInterval = time.Second
	defaultFlushInterval    = 5 * time.Second
	defaultDatabase         = "telemetry.sqlite"
	defaultDataDirectory    = "data"
)

type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("app.Duration: failed to parse: %s", err)
	}

	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalJSON(bytes []byte) error {
	var v string
	if err := json.Unmarshal(bytes, &v); err != nil {
		return err
	}

	duration, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("app.Duration: failed to parse: %s", err)
	}

	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Validate checks the duration is positive.
func (d Duration) Validate() error {
	if d <= 0 {
		return fmt.Errorf("must be positive: %s given", d)
	}
	return nil
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// Config represents the main application configuration
type Config struct {
	Settings Settings       `yaml:"settings" json:"settings"`
	Loop     LoopConfig     `yaml:"loop" json:"loop"`
	Source   SourceConfig   `yaml:"source" json:"source"`
	Storage  StorageConfig  `yaml:"storage" json:"storage"`
	Sensors  []SensorConfig `yaml:"sensors" json:"sensors,omitempty"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel  slog.Level `yaml:"logLevel" json:"logLevel"`
	Timezone  int        `yaml:"timezone" json:"timezone"`   // hours added to telemetry time
	AdjustRTC bool       `yaml:"adjustRTC" json:"adjustRTC"` // set the system clock from telemetry
}

// LoopConfig sets the periods of the control loop.
type LoopConfig struct {
	Tick             Duration `yaml:"tick" json:"tick"`                         // freshness tick
	Cycle            Duration `yaml:"cycle" json:"cycle"`                       // formula evaluation
	SnapshotInterval Duration `yaml:"snapshotInterval" json:"snapshotInterval"` // readings storage
	StaleAfter       Duration `yaml:"staleAfter" json:"staleAfter"`             // silence before a value is old
	FlushInterval    Duration `yaml:"flushInterval" json:"flushInterval"`       // model storage
}

// SourceConfig selects where decoded telemetry comes from. Exactly one of
// Command and File must be set.
type SourceConfig struct {
	Command              string             `yaml:"command" json:"command,omitempty"`
	Args                 []string           `yaml:"args" json:"args,omitempty"`
	File                 string             `yaml:"file" json:"file,omitempty"`
	Protocol             telemetry.Protocol `yaml:"protocol" json:"protocol"`
	ParseErrorsThreshold uint8              `yaml:"parseErrorsThreshold" json:"parseErrorsThreshold"`
}

// StorageConfig represents storage settings
type StorageConfig struct {
	DataDirectory string `yaml:"dataDirectory" json:"dataDirectory"`
	Database      string `yaml:"database" json:"database"`
}

// SensorConfig is one sensor of the initial model.
type SensorConfig struct {
	Slot             telemetry.Slot `yaml:"slot" json:"slot"`
	telemetry.Sensor `yaml:",inline"`
}

// NewConfig returns a configuration with defaults applied.
func NewConfig() *Config {
	return &Config{
		Settings: Settings{LogLevel: slog.LevelInfo},
		Loop: LoopConfig{
			Tick:             Duration(telemetry.TickPeriod),
			Cycle:            Duration(defaultCycle),
			SnapshotInterval: Duration(defaultSnapshotInterval),
			StaleAfter:       Duration(time.Duration(telemetry.DefaultStaleTicks) * telemetry.TickPeriod),
			FlushInterval:    Duration(defaultFlushInterval),
		},
		Source: SourceConfig{
			Protocol:             telemetry.ProtocolFrSkySPort,
			ParseErrorsThreshold: source.ParseErrorsThreshold,
		},
		Storage: StorageConfig{
			DataDirectory: defaultDataDirectory,
			Database:      defaultDatabase,
		},
	}
}

// LoadConfig reads and validates the YAML configuration file at path.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config: %w", err)
	}
	defer f.Close()

	c := NewConfig()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err = dec.Decode(c); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err = c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Settings.Timezone < -12 || c.Settings.Timezone > 14 {
		return fmt.Errorf("config: settings.timezone %d out of range", c.Settings.Timezone)
	}

	durations := []struct {
		name string
		d    Duration
	}{
		{"loop.tick", c.Loop.Tick},
		{"loop.cycle", c.Loop.Cycle},
		{"loop.snapshotInterval", c.Loop.SnapshotInterval},
		{"loop.staleAfter", c.Loop.StaleAfter},
		{"loop.flushInterval", c.Loop.FlushInterval},
	}
	for _, v := range durations {
		if err := v.d.Validate(); err != nil {
			return fmt.Errorf("config: %s %w", v.name, err)
		}
	}
	if c.Loop.StaleAfter < c.Loop.Tick {
		return fmt.Errorf("config: loop.staleAfter %s is shorter than loop.tick %s", c.Loop.StaleAfter, c.Loop.Tick)
	}

	switch {
	case c.Source.Command == "" && c.Source.File == "":
		return errors.New("config: source.command or source.file is required")
	case c.Source.Command != "" && c.Source.File != "":
		return errors.New("config: source.command and source.file are mutually exclusive")
	case c.Source.File != "" && len(c.Source.Args) > 0:
		return errors.New("config: source.args require source.command")
	}
	if c.Source.ParseErrorsThreshold == 0 {
		return errors.New("config: source.parseErrorsThreshold must be positive")
	}

	if c.Storage.Database == "" {
		return errors.New("config: storage.database is required")
	}

	if _, err := c.Model(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Model returns the configured sensors as a sensor model.
func (c *Config) Model() (telemetry.Model, error) {
	m := make(telemetry.Model, len(c.Sensors))
	var errs []error
	for i, s := range c.Sensors {
		if !s.Slot.Valid() {
			errs = append(errs, fmt.Errorf("sensors[%d]: slot %d: %w", i, s.Slot, telemetry.ErrInvalidSlot))
			continue
		}
		if _, ok := m[s.Slot]; ok {
			errs = append(errs, fmt.Errorf("sensors[%d]: slot %d defined twice", i, s.Slot))
			continue
		}
		if err := s.Sensor.Validate(s.Slot); err != nil {
			errs = append(errs, fmt.Errorf("sensors[%d]: %w", i, err))
			continue
		}
		m[s.Slot] = s.Sensor
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return m, nil
}

// StaleTicks converts loop.staleAfter to freshness ticks.
func (c *Config) StaleTicks() telemetry.Tick {
	return telemetry.Tick(time.Duration(c.Loop.StaleAfter) / time.Duration(c.Loop.Tick))
}
