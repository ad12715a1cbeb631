package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roman-kulish/radio-telemetry/internal/telemetry"
)

// ErrNoData indicates that the session holds no readings matching the filters.
var ErrNoData = errors.New("no data available")

// RecordReader provides an iterator-based interface for reading stored
// snapshots of a session.
type RecordReader interface {
	// Session returns metadata about the session this reader is accessing.
	Session() *Session

	// Next advances the iterator and returns true if there is another record
	// to read, false when the iteration is complete or if an error occurred.
	Next(context.Context) bool

	// Current returns the current record. If called after Next() returns
	// false, the behavior is undefined.
	Current() *Record

	// Error returns any error that occurred during iteration.
	Error() error

	// Close releases any resources associated with the reader.
	Close() error
}

// ReaderOption configures a record reader with filtering criteria.
type ReaderOption func(*SqliteRecordReader)

// WithSlot limits the reader to a single slot.
func WithSlot(slot telemetry.Slot) ReaderOption {
	return func(r *SqliteRecordReader) {
		s := int(slot)
		r.slot = &s
	}
}

// WithStartTime excludes records stored before t.
func WithStartTime(t time.Time) ReaderOption {
	return func(r *SqliteRecordReader) {
		t = t.UTC()
		r.startTime = &t
	}
}

// WithEndTime excludes records stored after t.
func WithEndTime(t time.Time) ReaderOption {
	return func(r *SqliteRecordReader) {
		t = t.UTC()
		r.endTime = &t
	}
}

// WithTimeRange sets both start and end time filters.
func WithTimeRange(startTime, endTime time.Time) ReaderOption {
	return func(r *SqliteRecordReader) {
		WithStartTime(startTime)(r)
		WithEndTime(endTime)(r)
	}
}

// SqliteRecordReader implements RecordReader for the SQLite backend.
type SqliteRecordReader struct {
	db *sql.DB

	sessionID uuid.UUID
	session   *Session

	slot      *int       // Optional slot filter
	startTime *time.Time // Optional start of time range filter
	endTime   *time.Time // Optional end of time range filter

	current *Record
	rows    *sql.Rows
	err     error
}

var _ RecordReader = (*SqliteRecordReader)(nil)

func newSqliteRecordReader(ctx context.Context, db *sql.DB, sessionID uuid.UUID, opts ...ReaderOption) (*SqliteRecordReader, error) {
	rr := &SqliteRecordReader{
		db:        db,
		sessionID: sessionID,
	}
	for _, opt := range opts {
		opt(rr)
	}
	if err := rr.init(ctx); err != nil {
		return nil, fmt.Errorf("initializing reader: %w", err)
	}
	return rr, nil
}

func (rr *SqliteRecordReader) init(ctx context.Context) error {
	if rr.db == nil {
		return errors.New("database connection required")
	}
	if rr.sessionID == uuid.Nil {
		return errors.New("session ID required")
	}

	steps := []struct {
		msg string
		fn  func(context.Context) error
	}{
		{msg: "loading session", fn: rr.loadSession},
		{msg: "checking filters", fn: rr.checkFilters},
		{msg: "initializing query", fn: rr.initQuery},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", s.msg, err)
		}
	}
	return nil
}

func (rr *SqliteRecordReader) loadSession(ctx context.Context) (err error) {
	rr.session, err = querySession(ctx, rr.db, rr.sessionID)
	return
}

func (rr *SqliteRecordReader) checkFilters(context.Context) error {
	if rr.startTime != nil && rr.endTime != nil && rr.startTime.After(*rr.endTime) {
		return fmt.Errorf("start time %s is after end time %s", rr.startTime, rr.endTime)
	}
	if rr.slot != nil && !telemetry.Slot(*rr.slot).Valid() {
		return fmt.Errorf("slot %d: %w", *rr.slot, telemetry.ErrInvalidSlot)
	}
	return nil
}

func (rr *SqliteRecordReader) initQuery(ctx context.Context) (err error) {
	stmt, err := rr.db.PrepareContext(ctx, selectReadingsSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	rr.rows, err = stmt.QueryContext(ctx,
		rr.sessionID,
		rr.slot, rr.slot,
		rr.startTime, rr.startTime,
		rr.endTime, rr.endTime,
	)
	return
}

func (rr *SqliteRecordReader) Session() *Session {
	return rr.session
}

func (rr *SqliteRecordReader) Next(ctx context.Context) bool {
	if rr.err != nil || rr.rows == nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		rr.err = err
		return false
	}

	if !rr.rows.Next() {
		rr.err = rr.rows.Err()
		return false
	}

	var data readingData
	err := rr.rows.Scan(
		&data.Timestamp,
		&data.Slot,
		&data.SensorID,
		&data.Instance,
		&data.Label,
		&data.Unit,
		&data.Precision,
		&data.Value,
		&data.ValueMin,
		&data.ValueMax,
		&data.Old,
		&data.Latitude,
		&data.Longitude,
	)
	if err != nil {
		rr.err = fmt.Errorf("scanning reading: %w", err)
		return false
	}

	if rr.current, rr.err = toRecord(&data); rr.err != nil {
		return false
	}
	return true
}

func (rr *SqliteRecordReader) Current() *Record {
	return rr.current
}

func (rr *SqliteRecordReader) Error() error {
	return rr.err
}

func (rr *SqliteRecordReader) Close() error {
	if rr.rows == nil {
		return nil
	}
	err := rr.rows.Close()
	rr.rows = nil
	return err
}
