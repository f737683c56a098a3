package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"bankaccounts/internal/domain"
	"bankaccounts/internal/eventstore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seed(t *testing.T, st eventstore.Store, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		id := uuid.New()
		if _, err := st.Append(context.Background(), "account/"+id.String(), 0,
			domain.AccountOpened{AccountID: id},
		); err != nil {
			t.Fatal(err)
		}
	}
}

func TestDrainDeliversInCommitOrder(t *testing.T) {
	st := eventstore.NewMemory()
	seed(t, st, 5)

	var seqs []int64
	p := New(st, testLogger())
	p.Register("orderer", func(_ context.Context, rec eventstore.Record, _ domain.Event) error {
		seqs = append(seqs, rec.Seq)
		return nil
	})

	if err := p.Drain(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(seqs) != 5 {
		t.Fatalf("delivered %d records, want 5", len(seqs))
	}
	for i, s := range seqs {
		if s != int64(i)+1 {
			t.Fatalf("delivery %d got seq %d", i, s)
		}
	}

	// Caught up: a second drain delivers nothing.
	seqs = nil
	if err := p.Drain(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(seqs) != 0 {
		t.Fatalf("redelivered %d records after catch-up", len(seqs))
	}
}

func TestConsumersHaveIndependentOffsets(t *testing.T) {
	st := eventstore.NewMemory()
	seed(t, st, 3)

	counts := map[string]int{}
	p := New(st, testLogger())
	for _, name := range []string{"one", "two"} {
		name := name
		p.Register(name, func(context.Context, eventstore.Record, domain.Event) error {
			counts[name]++
			return nil
		})
	}
	if err := p.Drain(context.Background()); err != nil {
		t.Fatal(err)
	}
	if counts["one"] != 3 || counts["two"] != 3 {
		t.Fatalf("counts = %v, want 3 each", counts)
	}
}

func TestFailedHandlerRedeliversSameRecord(t *testing.T) {
	st := eventstore.NewMemory()
	seed(t, st, 2)

	failures := 2
	var delivered []int64
	p := New(st, testLogger(), WithRetryBase(time.Millisecond))
	p.Register("flaky", func(_ context.Context, rec eventstore.Record, _ domain.Event) error {
		if rec.Seq == 1 && failures > 0 {
			failures--
			return errors.New("transient")
		}
		delivered = append(delivered, rec.Seq)
		return nil
	})

	if err := p.Drain(context.Background()); err != nil {
		t.Fatal(err)
	}
	// Record 1 was retried until it stuck, record 2 delivered exactly once
	// after it.
	want := []int64{1, 2}
	if len(delivered) != len(want) {
		t.Fatalf("delivered %v, want %v", delivered, want)
	}
	for i := range want {
		if delivered[i] != want[i] {
			t.Fatalf("delivered %v, want %v", delivered, want)
		}
	}
	if off, _ := st.Offset(context.Background(), "flaky"); off != 2 {
		t.Fatalf("offset = %d, want 2", off)
	}
}

func TestDrainGivesUpAfterRepeatedFailures(t *testing.T) {
	st := eventstore.NewMemory()
	seed(t, st, 1)

	p := New(st, testLogger(), WithRetryBase(time.Microsecond))
	p.Register("broken", func(context.Context, eventstore.Record, domain.Event) error {
		return errors.New("permanent")
	})
	if err := p.Drain(context.Background()); err == nil {
		t.Fatal("expected error from permanently failing handler")
	}
	// The offset never advanced, so the record is still pending.
	if off, _ := st.Offset(context.Background(), "broken"); off != 0 {
		t.Fatalf("offset = %d, want 0", off)
	}
}

func TestDrainPicksUpHandlerAppendedEvents(t *testing.T) {
	st := eventstore.NewMemory()
	seed(t, st, 1)

	// The handler reacts to the first event by appending another; Drain must
	// deliver that one too before reporting caught-up.
	var seen []string
	p := New(st, testLogger())
	p.Register("cascade", func(ctx context.Context, rec eventstore.Record, ev domain.Event) error {
		seen = append(seen, rec.Type)
		if opened, ok := ev.(domain.AccountOpened); ok {
			_, err := st.Append(ctx, "account/"+opened.AccountID.String(), 1,
				domain.AccountClosed{AccountID: opened.AccountID},
			)
			return err
		}
		return nil
	})

	if err := p.Drain(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 || seen[1] != "ACCOUNT_CLOSED" {
		t.Fatalf("seen = %v", seen)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	st := eventstore.NewMemory()
	p := New(st, testLogger(), WithPollInterval(time.Millisecond))
	p.Register("idle", func(context.Context, eventstore.Record, domain.Event) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
