// Package pipeline delivers committed events to process managers in global
// commit order with at-least-once semantics. Each consumer keeps a durable
// offset in the event store, so a crash resumes from the last handled event
// instead of reprocessing committed work from scratch.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"bankaccounts/internal/backoff"
	"bankaccounts/internal/domain"
	"bankaccounts/internal/eventstore"
)

// Handler processes one delivered event. Returning an error stops the
// consumer's offset from advancing, so the same record is redelivered;
// handlers must therefore be idempotent.
type Handler func(ctx context.Context, rec eventstore.Record, ev domain.Event) error

type consumer struct {
	name    string
	handler Handler
}

// Pipeline polls the store feed and fans records out to registered
// consumers. Consumers are independent: each has its own offset and its own
// delivery loop, so a failing handler never blocks the others.
type Pipeline struct {
	store     eventstore.Store
	consumers []consumer
	log       *slog.Logger

	pollInterval time.Duration
	batchSize    int
	retryBase    time.Duration
}

type Option func(*Pipeline)

func WithPollInterval(d time.Duration) Option {
	return func(p *Pipeline) { p.pollInterval = d }
}

func WithBatchSize(n int) Option {
	return func(p *Pipeline) { p.batchSize = n }
}

func WithRetryBase(d time.Duration) Option {
	return func(p *Pipeline) { p.retryBase = d }
}

func New(store eventstore.Store, log *slog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:        store,
		log:          log,
		pollInterval: 50 * time.Millisecond,
		batchSize:    256,
		retryBase:    25 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Register adds a named consumer. The name keys the durable offset and must
// stay stable across restarts.
func (p *Pipeline) Register(name string, h Handler) {
	p.consumers = append(p.consumers, consumer{name: name, handler: h})
}

// Run drives all consumers until ctx is done.
func (p *Pipeline) Run(ctx context.Context) {
	for _, c := range p.consumers {
		go p.runConsumer(ctx, c)
	}
	<-ctx.Done()
}

func (p *Pipeline) runConsumer(ctx context.Context, c consumer) {
	attempt := 0
	for {
		n, err := p.deliverBatch(ctx, c)
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			attempt++
			handlerErrors.WithLabelValues(c.name).Inc()
			p.log.Warn("pipeline delivery failed, backing off",
				"consumer", c.name, "attempt", attempt, "error", err)
			if backoff.Sleep(ctx, backoff.Delay(p.retryBase, attempt)) != nil {
				return
			}
		case n == 0:
			attempt = 0
			if backoff.Sleep(ctx, p.pollInterval) != nil {
				return
			}
		default:
			attempt = 0
		}
	}
}

// deliverBatch reads one batch past the consumer's offset and hands each
// record to the handler, committing the offset after each success. Returns
// the number of records handled.
func (p *Pipeline) deliverBatch(ctx context.Context, c consumer) (int, error) {
	offset, err := p.store.Offset(ctx, c.name)
	if err != nil {
		return 0, err
	}
	recs, err := p.store.ReadAll(ctx, offset, p.batchSize)
	if err != nil {
		return 0, err
	}

	handled := 0
	for _, rec := range recs {
		ev, err := rec.Decode()
		if err != nil {
			return handled, fmt.Errorf("decode seq %d: %w", rec.Seq, err)
		}
		start := time.Now()
		if err := c.handler(ctx, rec, ev); err != nil {
			return handled, fmt.Errorf("handle seq %d (%s): %w", rec.Seq, rec.Type, err)
		}
		handlerDuration.WithLabelValues(c.name).Observe(time.Since(start).Seconds())
		if err := p.store.CommitOffset(ctx, c.name, rec.Seq); err != nil {
			return handled, fmt.Errorf("commit offset %d: %w", rec.Seq, err)
		}
		eventsDelivered.WithLabelValues(c.name).Inc()
		handled++
	}
	return handled, nil
}

// Drain synchronously delivers until every consumer is caught up, including
// events appended by the handlers themselves. A handler error is retried up
// to drainAttempts times per record before Drain gives up and returns it.
// Used by tests and the embedded single-process mode.
func (p *Pipeline) Drain(ctx context.Context) error {
	const drainAttempts = 5

	for {
		progress := false
		for _, c := range p.consumers {
			var n int
			var err error
			for attempt := 0; ; attempt++ {
				n, err = p.deliverBatch(ctx, c)
				if err == nil {
					break
				}
				if attempt+1 >= drainAttempts {
					return fmt.Errorf("consumer %s: %w", c.name, err)
				}
				if serr := backoff.Sleep(ctx, backoff.Delay(p.retryBase, attempt)); serr != nil {
					return serr
				}
				progress = true // partial batches still count
			}
			if n > 0 {
				progress = true
			}
		}
		if !progress {
			return nil
		}
	}
}
