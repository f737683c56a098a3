package eventstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"bankaccounts/internal/domain"
)

// SQLite is the single-node Store backend. One file, no external services.
type SQLite struct {
	db *sql.DB
}

// sqliteMigrations is the schema, one statement per entry (SQLite executes
// one at a time).
var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS events (
		seq         INTEGER PRIMARY KEY AUTOINCREMENT,
		stream_id   TEXT NOT NULL,
		version     INTEGER NOT NULL,
		event_type  TEXT NOT NULL,
		payload     TEXT NOT NULL,
		recorded_at TEXT NOT NULL,
		UNIQUE(stream_id, version)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_stream ON events(stream_id, version)`,
	`CREATE TABLE IF NOT EXISTS offsets (
		consumer TEXT PRIMARY KEY,
		seq      INTEGER NOT NULL
	)`,
}

// OpenSQLite opens (creating if needed) the store at path. ":memory:" works
// for throwaway instances.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// database/sql pooling breaks :memory: (each conn gets its own DB) and
	// SQLite allows one writer anyway.
	db.SetMaxOpenConns(1)

	for _, stmt := range sqliteMigrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite migration failed: %w", err)
		}
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) Load(ctx context.Context, streamID string) ([]domain.Event, int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_type, payload FROM events WHERE stream_id = ? ORDER BY version`,
		streamID,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var eventType string
		var payload []byte
		if err := rows.Scan(&eventType, &payload); err != nil {
			return nil, 0, err
		}
		ev, err := domain.DecodeEvent(eventType, payload)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if len(events) == 0 {
		return nil, 0, ErrNotFound
	}
	return events, int64(len(events)), nil
}

func (s *SQLite) Append(ctx context.Context, streamID string, expectedVersion int64, events ...domain.Event) (int64, error) {
	if len(events) == 0 {
		return expectedVersion, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var current int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM events WHERE stream_id = ?`,
		streamID,
	).Scan(&current)
	if err != nil {
		return 0, err
	}
	if current != expectedVersion {
		return 0, ErrConcurrencyConflict
	}

	version := current
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, ev := range events {
		eventType, payload, err := encodeCanonical(ev)
		if err != nil {
			return 0, err
		}
		version++
		_, err = tx.ExecContext(ctx,
			`INSERT INTO events(stream_id, version, event_type, payload, recorded_at)
			 VALUES(?, ?, ?, ?, ?)`,
			streamID, version, eventType, string(payload), now,
		)
		if err != nil {
			// Writer race lost between the version read and the insert.
			if isSQLiteUniqueViolation(err) {
				return 0, ErrConcurrencyConflict
			}
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return version, nil
}

func (s *SQLite) ReadAll(ctx context.Context, afterSeq int64, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 256
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, stream_id, version, event_type, payload, recorded_at
		   FROM events WHERE seq > ? ORDER BY seq LIMIT ?`,
		afterSeq, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var payload string
		var recordedAt string
		if err := rows.Scan(&rec.Seq, &rec.StreamID, &rec.Version, &rec.Type, &payload, &recordedAt); err != nil {
			return nil, err
		}
		rec.Payload = []byte(payload)
		if t, err := time.Parse(time.RFC3339Nano, recordedAt); err == nil {
			rec.RecordedAt = t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLite) Offset(ctx context.Context, consumer string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx,
		`SELECT seq FROM offsets WHERE consumer = ?`, consumer,
	).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return seq, err
}

func (s *SQLite) CommitOffset(ctx context.Context, consumer string, seq int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO offsets(consumer, seq) VALUES(?, ?)
		 ON CONFLICT(consumer) DO UPDATE SET seq = excluded.seq WHERE excluded.seq > offsets.seq`,
		consumer, seq,
	)
	return err
}

func isSQLiteUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
