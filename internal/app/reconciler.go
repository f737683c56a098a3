package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"bankaccounts/internal/backoff"
	"bankaccounts/internal/domain"
	"bankaccounts/internal/eventstore"
)

// Reconciler sweeps transfer sagas that sit in a non-terminal phase past
// their deadline, typically a credit that never landed because the process
// died or the store was unreachable, and re-drives them through the normal
// advance path. Stuck sagas are reported on every sweep so they cannot be
// forgotten.
type Reconciler struct {
	store     eventstore.Store
	transfers *TransferManager
	log       *slog.Logger

	interval time.Duration
	deadline time.Duration

	// Feed position and start times of sagas not yet seen resolved. The
	// first sweep of a process reads the whole feed once; later sweeps read
	// only what committed since. Resolved sagas drop out of the map, stuck
	// ones stay so every sweep reports them.
	feedPos   int64
	startedAt map[uuid.UUID]time.Time
}

func NewReconciler(store eventstore.Store, transfers *TransferManager, log *slog.Logger, interval, deadline time.Duration) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if deadline <= 0 {
		deadline = 30 * time.Second
	}
	return &Reconciler{
		store:     store,
		transfers: transfers,
		log:       log,
		interval:  interval,
		deadline:  deadline,
		startedAt: make(map[uuid.UUID]time.Time),
	}
}

// Run sweeps on a fixed interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context) {
	for {
		if _, err := r.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.log.Warn("reconciliation sweep failed", "error", err)
		}
		if backoff.Sleep(ctx, r.interval) != nil {
			return
		}
	}
}

// Sweep scans the feed records committed since the previous sweep for new
// transfers, re-drives tracked non-terminal ones past the deadline cutoff,
// and returns how many it re-drove. Not safe for concurrent use; Run is the
// only caller within a process.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	sweeps.Inc()
	cutoff := time.Now().Add(-r.deadline)

	for {
		recs, err := r.store.ReadAll(ctx, r.feedPos, 256)
		if err != nil {
			return 0, err
		}
		if len(recs) == 0 {
			break
		}
		for _, rec := range recs {
			r.feedPos = rec.Seq
			if rec.Type != "TRANSFER_STARTED" {
				continue
			}
			if id, ok := transferIDFromStream(rec.StreamID); ok {
				r.startedAt[id] = rec.RecordedAt
			}
		}
	}

	redriven := 0
	stuck := 0
	for id, started := range r.startedAt {
		saga, err := r.transfers.Get(ctx, id)
		if err != nil {
			return redriven, err
		}
		if saga.Phase == domain.PhaseStuck {
			stuck++
			r.log.Error("stuck transfer awaiting operator",
				"transfer", id, "reason", saga.Reason, "age", time.Since(started).Truncate(time.Second))
			continue
		}
		if saga.Phase.Terminal() {
			delete(r.startedAt, id)
			continue
		}
		if started.After(cutoff) {
			continue
		}
		r.log.Info("re-driving overdue transfer",
			"transfer", id, "phase", saga.Phase, "started", started)
		if err := r.transfers.Advance(ctx, id); err != nil {
			// Transient again. The next sweep or redelivery picks it up.
			r.log.Warn("re-drive failed", "transfer", id, "error", err)
			continue
		}
		redriven++
	}

	stuckTransfers.Set(float64(stuck))
	if redriven > 0 {
		sweepRedriven.Add(float64(redriven))
	}
	return redriven, nil
}
