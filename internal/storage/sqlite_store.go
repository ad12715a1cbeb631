package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/radio-telemetry/internal/telemetry"
)

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

var _ Store = (*SqliteStore)(nil)

// NewSqliteStore creates a store backed by the SQLite database at dbPath.
// Connections are opened lazily and the schema is created on first write.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) CreateSession(ctx context.Context, source, protocol string, config any) (sessionID uuid.UUID, err error) {
	var configData sql.NullString

	if config != nil {
		switch v := config.(type) {
		case string:
			configData.Valid = true
			configData.String = v

		case []byte:
			configData.Valid = true
			configData.String = string(v)

		default:
			var p []byte
			if p, err = json.Marshal(config); err != nil {
				err = fmt.Errorf("marshaling config: %w", err)
				return
			}

			configData.Valid = true
			configData.String = string(p)
		}
	}

	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	id := uuid.New()
	if _, err = stmt.ExecContext(ctx, id, source, protocol, configData); err != nil {
		err = fmt.Errorf("inserting session: %w", err)
		return
	}

	return id, nil
}

func scanSession(row interface{ Scan(...any) error }) (*Session, error) {
	var sess Session
	var config sql.NullString
	if err := row.Scan(&sess.ID, &sess.StartTime, &sess.Source, &sess.Protocol, &config); err != nil {
		return nil, err
	}
	if config.Valid {
		sess.Config = &config.String
	}
	return &sess, nil
}

func (s *SqliteStore) Session(ctx context.Context, id uuid.UUID) (session *Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	return querySession(ctx, db, id)
}

func querySession(ctx context.Context, db *sql.DB, id uuid.UUID) (session *Session, err error) {
	stmt, err := db.PrepareContext(ctx, selectSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	if session, err = scanSession(stmt.QueryRowContext(ctx, id)); err != nil {
		err = fmt.Errorf("scanning session: %w", err)
	}
	return
}

func (s *SqliteStore) Sessions(ctx context.Context) (sessions []*Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectSessionsSQL)
	if err != nil {
		err = fmt.Errorf("querying sessions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var sess *Session
		if sess, err = scanSession(rows); err != nil {
			err = fmt.Errorf("scanning session: %w", err)
			return
		}
		sessions = append(sessions, sess)
	}
	if err = rows.Err(); err != nil {
		err = fmt.Errorf("iterating sessions: %w", err)
	}
	return
}

func (s *SqliteStore) SaveModel(ctx context.Context, m telemetry.Model) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	if _, err = tx.ExecContext(ctx, deleteSensorsSQL); err != nil {
		return fmt.Errorf("deleting sensors: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, insertSensorSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	for slot, sensor := range m {
		var p []byte
		if p, err = json.Marshal(sensor); err != nil {
			return fmt.Errorf("marshaling sensor %d: %w", slot, err)
		}
		if _, err = stmt.ExecContext(ctx, int(slot), string(p)); err != nil {
			return fmt.Errorf("inserting sensor %d: %w", slot, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// LoadModel reads through the write connection: it runs at start-up, before
// the database file may exist.
func (s *SqliteStore) LoadModel(ctx context.Context) (m telemetry.Model, err error) {
	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectSensorsSQL)
	if err != nil {
		err = fmt.Errorf("querying sensors: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	m = make(telemetry.Model)
	for rows.Next() {
		var slot int
		var definition string
		if err = rows.Scan(&slot, &definition); err != nil {
			err = fmt.Errorf("scanning sensor: %w", err)
			return
		}

		var sensor telemetry.Sensor
		if err = json.Unmarshal([]byte(definition), &sensor); err != nil {
			err = fmt.Errorf("decoding sensor %d: %w", slot, err)
			return
		}
		m[telemetry.Slot(slot)] = sensor
	}
	if err = rows.Err(); err != nil {
		err = fmt.Errorf("iterating sensors: %w", err)
	}
	return
}

func (s *SqliteStore) StoreReadings(ctx context.Context, sessionID uuid.UUID, timestamp time.Time, readings []telemetry.Reading) (err error) {
	values := make([]any, 0, len(readings)*14)

	var sb strings.Builder
	sb.WriteString(insertReadingSQL)

	var n int
	for i := range readings {
		if !readings[i].Available {
			continue
		}

		data := toReadingData(sessionID, timestamp, &readings[i])
		values = append(values,
			data.SessionID,
			data.Timestamp,
			data.Slot,
			data.SensorID,
			data.Instance,
			data.Label,
			data.Unit,
			data.Precision,
			data.Value,
			data.ValueMin,
			data.ValueMax,
			data.Old,
			data.Latitude,
			data.Longitude,
		)

		if n > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(readingPlaceholder)
		n++
	}
	if n == 0 {
		return nil
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	if _, err = tx.ExecContext(ctx, sb.String(), values...); err != nil {
		return fmt.Errorf("batch inserting readings: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// ReadRecords creates a reader over the snapshots stored for a session,
// optionally narrowed by WithSlot and time range options. The reader must be
// closed after use.
func (s *SqliteStore) ReadRecords(ctx context.Context, sessionID uuid.UUID, opts ...ReaderOption) (*SqliteRecordReader, error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}
	return newSqliteRecordReader(ctx, db, sessionID, opts...)
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			_ = runSQLCommand(s.writeDB, initIndexesSQL)

			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}
