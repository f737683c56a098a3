package eventstore

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"bankaccounts/internal/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies the embedded schema files in name order.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return err
	}
	var files []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, "migrations/"+e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		sqlBytes, err := migrationsFS.ReadFile(f)
		if err != nil {
			return err
		}
		if _, err := db.Exec(ctx, string(sqlBytes)); err != nil {
			return fmt.Errorf("migration %s failed: %w", f, err)
		}
	}
	return nil
}

// Postgres is the shared-backend Store for multi-process deployments.
type Postgres struct {
	db *pgxpool.Pool
}

// appendLockKey serializes append transactions store-wide. Without it,
// bigserial values are assigned at insert but become visible at commit, so
// a reader could observe seq N+1, commit its offset past it, and then miss
// seq N when that slower transaction commits.
const appendLockKey = 0x62616e6b // "bank"

func NewPostgres(db *pgxpool.Pool) *Postgres { return &Postgres{db: db} }

func (p *Postgres) Load(ctx context.Context, streamID string) ([]domain.Event, int64, error) {
	rows, err := p.db.Query(ctx,
		`SELECT event_type, payload FROM events WHERE stream_id = $1 ORDER BY version`,
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

func (p *Postgres) Append(ctx context.Context, streamID string, expectedVersion int64, events ...domain.Event) (int64, error) {
	if len(events) == 0 {
		return expectedVersion, nil
	}

	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	// Held until commit; released automatically on rollback.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(appendLockKey)); err != nil {
		return 0, err
	}

	var current int64
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM events WHERE stream_id = $1`,
		streamID,
	).Scan(&current)
	if err != nil {
		return 0, err
	}
	if current != expectedVersion {
		return 0, ErrConcurrencyConflict
	}

	version := current
	for _, ev := range events {
		eventType, payload, err := encodeCanonical(ev)
		if err != nil {
			return 0, err
		}
		version++
		_, err = tx.Exec(ctx,
			`INSERT INTO events(stream_id, version, event_type, payload)
			 VALUES($1, $2, $3, $4::jsonb)`,
			streamID, version, eventType, payload,
		)
		if err != nil {
			if isPGUniqueViolation(err) {
				return 0, ErrConcurrencyConflict
			}
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return version, nil
}

func (p *Postgres) ReadAll(ctx context.Context, afterSeq int64, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 256
	}
	rows, err := p.db.Query(ctx,
		`SELECT seq, stream_id, version, event_type, payload, recorded_at
		   FROM events WHERE seq > $1 ORDER BY seq LIMIT $2`,
		afterSeq, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var recordedAt time.Time
		if err := rows.Scan(&rec.Seq, &rec.StreamID, &rec.Version, &rec.Type, &rec.Payload, &recordedAt); err != nil {
			return nil, err
		}
		rec.RecordedAt = recordedAt.UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *Postgres) Offset(ctx context.Context, consumer string) (int64, error) {
	var seq int64
	err := p.db.QueryRow(ctx,
		`SELECT seq FROM offsets WHERE consumer = $1`, consumer,
	).Scan(&seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return seq, err
}

func (p *Postgres) CommitOffset(ctx context.Context, consumer string, seq int64) error {
	_, err := p.db.Exec(ctx,
		`INSERT INTO offsets(consumer, seq) VALUES($1, $2)
		 ON CONFLICT (consumer) DO UPDATE SET seq = EXCLUDED.seq WHERE EXCLUDED.seq > offsets.seq`,
		consumer, seq,
	)
	return err
}

func isPGUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
