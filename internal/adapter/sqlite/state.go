package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/couchcryptid/smoke-propagation-service/internal/domain"
	"github.com/couchcryptid/smoke-propagation-service/internal/propagation"
)

// AppendReading stores an accepted reading.
func (s *Store) AppendReading(ctx context.Context, r domain.SensorReading) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO readings (reading_id, location_id, contributor, smoke_level, wind_speed, wind_direction, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		int64(r.ID),
		string(r.LocationID),
		r.Contributor,
		[]byte(r.EncryptedSmokeLevel),
		[]byte(r.EncryptedWindSpeed),
		[]byte(r.EncryptedWindDirection),
		formatTime(r.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

// SaveModel fixes a location's prediction. A second save for the same
// location fails on the primary key.
func (s *Store) SaveModel(ctx context.Context, id domain.LocationID, prediction domain.Ciphertext) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO models (location_id, prediction, computed_at) VALUES (?, ?, ?)`,
		string(id), []byte(prediction), formatTime(domain.Now()),
	)
	if err != nil {
		return fmt.Errorf("insert model: %w", err)
	}
	return nil
}

// SaveRequest records the open decryption request for a location.
func (s *Store) SaveRequest(ctx context.Context, id domain.LocationID, requestID domain.RequestID) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO requests (request_id, location_id, issued_at) VALUES (?, ?, ?)`,
		string(requestID), string(id), formatTime(domain.Now()),
	)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

// DeleteRequest drops a request the oracle never received.
func (s *Store) DeleteRequest(ctx context.Context, requestID domain.RequestID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM requests WHERE request_id = ?`, string(requestID)); err != nil {
		return fmt.Errorf("delete request: %w", err)
	}
	return nil
}

// SaveAlert records the revealed alert level.
func (s *Store) SaveAlert(ctx context.Context, id domain.LocationID, level domain.AlertLevel) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (location_id, alert_level, revealed_at) VALUES (?, ?, ?)`,
		string(id), string(level), formatTime(domain.Now()),
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// LoadLocations rebuilds every location that has at least one reading, in
// order of its first reading.
func (s *Store) LoadLocations(ctx context.Context) ([]propagation.LocationRecord, error) {
	var (
		records []propagation.LocationRecord
		index   = make(map[domain.LocationID]int)
	)

	rows, err := s.db.QueryContext(ctx, `
		SELECT reading_id, location_id, contributor, smoke_level, wind_speed, wind_direction, submitted_at
		FROM readings
		ORDER BY reading_id`)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r           domain.SensorReading
			id          int64
			loc         string
			smoke       []byte
			wind        []byte
			direction   []byte
			submittedAt string
		)
		if err := rows.Scan(&id, &loc, &r.Contributor, &smoke, &wind, &direction, &submittedAt); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		ts, err := parseTime(submittedAt)
		if err != nil {
			return nil, err
		}
		r.ID = domain.ReadingID(id)
		r.LocationID = domain.LocationID(loc)
		r.EncryptedSmokeLevel = smoke
		r.EncryptedWindSpeed = wind
		r.EncryptedWindDirection = direction
		r.Timestamp = ts

		i, ok := index[r.LocationID]
		if !ok {
			i = len(records)
			index[r.LocationID] = i
			records = append(records, propagation.LocationRecord{ID: r.LocationID})
		}
		records[i].Readings = append(records[i].Readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate readings: %w", err)
	}

	err = s.eachRow(ctx, `SELECT location_id, prediction FROM models`, func(rows *sql.Rows) error {
		var (
			loc        string
			prediction []byte
		)
		if err := rows.Scan(&loc, &prediction); err != nil {
			return err
		}
		if i, ok := index[domain.LocationID(loc)]; ok {
			records[i].Model = propagation.PropagationModel{EncryptedPrediction: prediction, IsComputed: true}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load models: %w", err)
	}

	err = s.eachRow(ctx, `SELECT location_id, request_id FROM requests`, func(rows *sql.Rows) error {
		var loc, requestID string
		if err := rows.Scan(&loc, &requestID); err != nil {
			return err
		}
		if i, ok := index[domain.LocationID(loc)]; ok {
			records[i].Request = domain.RequestID(requestID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load requests: %w", err)
	}

	err = s.eachRow(ctx, `SELECT location_id, alert_level FROM alerts`, func(rows *sql.Rows) error {
		var loc, level string
		if err := rows.Scan(&loc, &level); err != nil {
			return err
		}
		if i, ok := index[domain.LocationID(loc)]; ok {
			records[i].Alert = propagation.AlertRecord{AlertLevel: domain.AlertLevel(level), IsRevealed: true}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load alerts: %w", err)
	}

	return records, nil
}

func (s *Store) eachRow(ctx context.Context, query string, scan func(*sql.Rows) error) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
