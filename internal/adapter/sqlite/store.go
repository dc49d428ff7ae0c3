// Package sqlite persists the location ledger, its derived state and the
// domain event audit trail.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/couchcryptid/smoke-propagation-service/internal/domain"

	_ "modernc.org/sqlite"
)

// Store keeps ledger state and the event audit log in a local SQLite
// database. It implements propagation.Store and propagation.EventPublisher.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, path: path}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id TEXT NOT NULL UNIQUE,
		type TEXT NOT NULL,
		location_id TEXT NOT NULL,
		reading_id INTEGER NOT NULL DEFAULT 0,
		request_id TEXT NOT NULL DEFAULT '',
		alert_level TEXT NOT NULL DEFAULT '',
		occurred_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_location ON events(location_id, seq);

	CREATE TABLE IF NOT EXISTS readings (
		reading_id INTEGER PRIMARY KEY,
		location_id TEXT NOT NULL,
		contributor TEXT NOT NULL,
		smoke_level BLOB NOT NULL,
		wind_speed BLOB NOT NULL,
		wind_direction BLOB NOT NULL,
		submitted_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_readings_location ON readings(location_id, reading_id);

	CREATE TABLE IF NOT EXISTS models (
		location_id TEXT PRIMARY KEY,
		prediction BLOB NOT NULL,
		computed_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS requests (
		request_id TEXT PRIMARY KEY,
		location_id TEXT NOT NULL UNIQUE,
		issued_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS alerts (
		location_id TEXT PRIMARY KEY,
		alert_level TEXT NOT NULL,
		revealed_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Publish appends event. Redelivery of the same event id is ignored.
func (s *Store) Publish(ctx context.Context, event domain.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO events (event_id, type, location_id, reading_id, request_id, alert_level, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		string(event.Type),
		string(event.LocationID),
		int64(event.ReadingID),
		string(event.RequestID),
		string(event.AlertLevel),
		formatTime(event.OccurredAt),
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// Events returns a location's events in the order they were recorded.
func (s *Store) Events(ctx context.Context, location domain.LocationID) ([]domain.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, type, location_id, reading_id, request_id, alert_level, occurred_at
		FROM events
		WHERE location_id = ?
		ORDER BY seq`, string(location))
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var (
			e          domain.Event
			typ        string
			loc        string
			readingID  int64
			requestID  string
			alertLevel string
			occurredAt string
		)
		if err := rows.Scan(&e.ID, &typ, &loc, &readingID, &requestID, &alertLevel, &occurredAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		ts, err := parseTime(occurredAt)
		if err != nil {
			return nil, err
		}
		e.Type = domain.EventType(typ)
		e.LocationID = domain.LocationID(loc)
		e.ReadingID = domain.ReadingID(readingID)
		e.RequestID = domain.RequestID(requestID)
		e.AlertLevel = domain.AlertLevel(alertLevel)
		e.OccurredAt = ts
		events = append(events, e)
	}
	return events, rows.Err()
}
