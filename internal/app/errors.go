package app

import "errors"

var (
	// ErrRetryExhausted marks a transient failure that outlived its local
	// retry budget. The triggering command stays Pending; redelivery or the
	// reconciliation sweep tries again later. It must never be recorded as
	// a business failure.
	ErrRetryExhausted = errors.New("retry exhausted")

	// ErrIdempotencyConflict is returned when a command id is resubmitted
	// with a different payload.
	ErrIdempotencyConflict = errors.New("idempotency key used with different payload")
)
