package eventstore

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"bankaccounts/internal/domain"
)

func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("BANK_DB_DSN"))
	if dsn == "" {
		t.Skip("missing BANK_DB_DSN env var")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatal(err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)
	if err := pool.Ping(ctx); err != nil {
		t.Fatal(err)
	}
	if err := Migrate(ctx, pool); err != nil {
		t.Fatal(err)
	}
	return pool
}

// Concurrent appenders must never leave a hole in the feed: a consumer that
// reads past a sequence number has to have seen every lower one, or an
// event would be skipped forever once the offset moves on.
func TestPostgresFeedHasNoGapsUnderConcurrentAppends(t *testing.T) {
	pool := newTestPool(t)
	st := NewPostgres(pool)
	ctx := context.Background()

	base, err := lastSeq(ctx, pool)
	if err != nil {
		t.Fatal(err)
	}

	const writers = 8
	const perWriter = 5
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				id := uuid.New()
				if _, err := st.Append(ctx, "account/"+id.String(), 0, domain.AccountOpened{AccountID: id}); err != nil {
					errs[i] = err
					return
				}
			}
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}

	var seqs []int64
	after := base
	for {
		recs, err := st.ReadAll(ctx, after, 16)
		if err != nil {
			t.Fatal(err)
		}
		if len(recs) == 0 {
			break
		}
		for _, rec := range recs {
			seqs = append(seqs, rec.Seq)
			after = rec.Seq
		}
	}
	if len(seqs) != writers*perWriter {
		t.Fatalf("read %d records, want %d", len(seqs), writers*perWriter)
	}
	for i := 1; i < len(seqs); i++ {
		if seqs[i] != seqs[i-1]+1 {
			t.Fatalf("feed gap between %d and %d", seqs[i-1], seqs[i])
		}
	}
}

func lastSeq(ctx context.Context, pool *pgxpool.Pool) (int64, error) {
	var seq int64
	err := pool.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM events`).Scan(&seq)
	return seq, err
}

func TestPostgresAppendLoadAndOffsets(t *testing.T) {
	pool := newTestPool(t)
	st := NewPostgres(pool)
	ctx := context.Background()

	id := uuid.New()
	stream := "account/" + id.String()

	if _, err := st.Append(ctx, stream, 0, domain.AccountOpened{AccountID: id, OverdraftLimitCents: 250}); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Append(ctx, stream, 0, domain.AccountOpened{AccountID: id}); !errors.Is(err, ErrConcurrencyConflict) {
		t.Fatalf("recreate: got %v, want ErrConcurrencyConflict", err)
	}
	if _, err := st.Append(ctx, stream, 1, domain.AccountClosed{AccountID: id}); err != nil {
		t.Fatal(err)
	}

	events, version, err := st.Load(ctx, stream)
	if err != nil {
		t.Fatal(err)
	}
	if version != 2 || len(events) != 2 {
		t.Fatalf("version=%d len=%d", version, len(events))
	}
	if _, ok := events[1].(domain.AccountClosed); !ok {
		t.Fatalf("second event: %#v", events[1])
	}

	// Offsets are per consumer and monotonic. Use a unique consumer name so
	// reruns against a reused database do not collide.
	consumer := "test-" + uuid.NewString()
	if off, err := st.Offset(ctx, consumer); err != nil || off != 0 {
		t.Fatalf("fresh offset: %d %v", off, err)
	}
	if err := st.CommitOffset(ctx, consumer, 10); err != nil {
		t.Fatal(err)
	}
	if err := st.CommitOffset(ctx, consumer, 4); err != nil {
		t.Fatal(err)
	}
	if off, _ := st.Offset(ctx, consumer); off != 10 {
		t.Fatalf("offset regressed to %d", off)
	}
}
