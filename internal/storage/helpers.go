package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roman-kulish/radio-telemetry/internal/telemetry"
	"github.com/roman-kulish/radio-telemetry/internal/units"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && !errors.Is(cErr, sql.ErrTxDone) && *err == nil {
		*err = cErr
	}
}

func toReadingData(sessionID uuid.UUID, timestamp time.Time, r *telemetry.Reading) *readingData {
	data := &readingData{
		SessionID: sessionID,
		Timestamp: timestamp.UTC(),
		Slot:      int(r.Slot),
		SensorID:  int(r.ID),
		Instance:  int(r.Instance),
		Label:     r.Label,
		Unit:      r.Unit.String(),
		Precision: int(r.Precision),
		Value:     int64(r.Value),
		ValueMin:  int64(r.Min),
		ValueMax:  int64(r.Max),
		Old:       r.Old,
	}

	if r.Position != nil {
		data.Latitude = sql.NullInt64{Int64: r.Position.Latitude, Valid: true}
		data.Longitude = sql.NullInt64{Int64: r.Position.Longitude, Valid: true}
	}

	return data
}

func toRecord(data *readingData) (*Record, error) {
	unit, err := units.Parse(data.Unit)
	if err != nil {
		return nil, fmt.Errorf("slot %d: %w", data.Slot, err)
	}

	rec := &Record{
		Timestamp: data.Timestamp,
		Slot:      telemetry.Slot(data.Slot),
		ID:        uint16(data.SensorID),
		Instance:  uint8(data.Instance),
		Label:     data.Label,
		Unit:      unit,
		Precision: uint8(data.Precision),
		Value:     int32(data.Value),
		Min:       int32(data.ValueMin),
		Max:       int32(data.ValueMax),
		Old:       data.Old,
	}

	if data.Latitude.Valid && data.Longitude.Valid {
		rec.Position = &telemetry.Position{
			Latitude:  data.Latitude.Int64,
			Longitude: data.Longitude.Int64,
		}
	}

	return rec, nil
}
