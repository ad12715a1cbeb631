package storage

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type readingData struct {
	SessionID uuid.UUID
	Timestamp time.Time
	Slot      int
	SensorID  int
	Instance  int
	Label     string
	Unit      string
	Precision int
	Value     int64
	ValueMin  int64
	ValueMax  int64
	Old       bool
	Latitude  sql.NullInt64
	Longitude sql.NullInt64
}
