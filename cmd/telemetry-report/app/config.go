package app

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roman-kulish/radio-telemetry/internal/telemetry"
)

// timeLayouts are tried in order when parsing -from and -to.
var timeLayouts = []string{time.RFC3339, time.DateTime, time.DateOnly}

type Config struct {
	DBPath    string
	SessionID uuid.UUID // nil lists sessions
	Slot      *telemetry.Slot
	From      *time.Time
	To        *time.Time
	Location  *time.Location
}

func NewConfig() *Config {
	return &Config{
		Location: time.Local,
	}
}

// NewConfigFromCLI parses command line arguments, without the program name.
func NewConfigFromCLI(args []string) (*Config, error) {
	c := NewConfig()

	fs := flag.NewFlagSet("telemetry-report", flag.ContinueOnError)

	var sessionID, from, to, tz string
	var slot int
	fs.StringVar(&c.DBPath, "db", "", "Path to the database file")
	fs.StringVar(&sessionID, "s", "", "Session ID. Sessions are listed when omitted")
	fs.IntVar(&slot, "slot", 0, "Report a single slot")
	fs.StringVar(&from, "from", "", "Skip readings before this time (RFC3339, 'YYYY-MM-DD hh:mm:ss' or 'YYYY-MM-DD')")
	fs.StringVar(&to, "to", "", "Skip readings after this time")
	fs.StringVar(&tz, "tz", "", "Time zone of -from, -to and the output, e.g. Europe/London. Defaults to local time")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	err := func() (err error) {
		if c.DBPath == "" {
			return errors.New("db path is required")
		}

		if tz != "" {
			if c.Location, err = time.LoadLocation(tz); err != nil {
				return fmt.Errorf("invalid time zone: %w", err)
			}
		}

		if sessionID != "" {
			if c.SessionID, err = uuid.Parse(sessionID); err != nil {
				return fmt.Errorf("invalid session id: %w", err)
			}
		}

		fs.Visit(func(f *flag.Flag) {
			if f.Name == "slot" {
				s := telemetry.Slot(slot)
				c.Slot = &s
			}
		})
		if c.Slot != nil && !c.Slot.Valid() {
			return fmt.Errorf("slot %d: %w", *c.Slot, telemetry.ErrInvalidSlot)
		}

		if c.From, err = parseTime(from, c.Location); err != nil {
			return fmt.Errorf("invalid -from: %w", err)
		}
		if c.To, err = parseTime(to, c.Location); err != nil {
			return fmt.Errorf("invalid -to: %w", err)
		}
		if c.From != nil && c.To != nil && c.From.After(*c.To) {
			return errors.New("-from is after -to")
		}
		return nil
	}()
	if err != nil {
		fs.Usage()
		return nil, err
	}

	return c, nil
}

func parseTime(v string, loc *time.Location) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognised time '%s'", v)
}
