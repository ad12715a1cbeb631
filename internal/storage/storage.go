package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/roman-kulish/radio-telemetry/internal/telemetry"
	"github.com/roman-kulish/radio-telemetry/internal/units"
)

// Session describes one run of the telemetry daemon.
type Session struct {
	ID        uuid.UUID `json:"id"`
	StartTime time.Time `json:"startTime"`
	Source    string    `json:"source"`           // decoder command or replayed file
	Protocol  string    `json:"protocol"`         // telemetry protocol of the source
	Config    *string   `json:"config,omitempty"` // daemon configuration in JSON format
}

// Record is one stored snapshot of a telemetry slot.
type Record struct {
	Timestamp time.Time           `json:"timestamp"`
	Slot      telemetry.Slot      `json:"slot"`
	ID        uint16              `json:"id"`
	Instance  uint8               `json:"instance"`
	Label     string              `json:"label"`
	Unit      units.Unit          `json:"unit"`
	Precision uint8               `json:"precision"`
	Value     int32               `json:"value"`
	Min       int32               `json:"min"`
	Max       int32               `json:"max"`
	Old       bool                `json:"old"`
	Position  *telemetry.Position `json:"position,omitempty"`
}

// Store persists sessions, the sensor model and telemetry snapshots.
type Store interface {
	// CreateSession starts a new session. The config can be a string, []byte,
	// or any JSON-serializable value.
	CreateSession(ctx context.Context, source, protocol string, config any) (uuid.UUID, error)

	// Session returns a session by its ID.
	Session(ctx context.Context, id uuid.UUID) (*Session, error)

	// Sessions returns all sessions ordered by start time.
	Sessions(ctx context.Context) ([]*Session, error)

	// SaveModel replaces the stored sensor model atomically.
	SaveModel(ctx context.Context, m telemetry.Model) error

	// LoadModel returns the stored sensor model, empty if none was saved.
	LoadModel(ctx context.Context) (telemetry.Model, error)

	// StoreReadings saves the available readings of one snapshot in a single
	// transaction.
	StoreReadings(ctx context.Context, sessionID uuid.UUID, timestamp time.Time, readings []telemetry.Reading) error

	// Close releases all database connections. It is safe to call Close
	// multiple times.
	Close() error
}
