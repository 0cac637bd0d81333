// Package jobqueue provides a delayed-execution mechanism: schedule a
// payload to be handed to a consumer at/after a future instant,
// cancelable by handle until it fires.
package jobqueue

import (
	"context"
	"errors"
	"time"
)

// ErrJobNotFound is returned by Cancel when the handle no longer names
// a scheduled job (already fired or already cancelled). Callers treat
// it as benign.
var ErrJobNotFound = errors.New("jobqueue: job not found")

// Handler consumes a due job's payload. jobID is the handle the job
// was scheduled under, letting consumers fence off stale firings. A nil
// return acknowledges the job; the queue never redelivers either way,
// retry policy belongs to the consumer.
type Handler func(ctx context.Context, jobID string, payload []byte) error

// Queue schedules payloads for deferred execution.
type Queue interface {
	// Enqueue schedules payload to fire after delay and returns the
	// job handle.
	Enqueue(ctx context.Context, delay time.Duration, payload []byte) (string, error)

	// Cancel removes a scheduled job. Returns ErrJobNotFound when the
	// handle is unknown; cancellation is therefore best-effort against
	// a job already claimed by a poller.
	Cancel(ctx context.Context, jobID string) error
}
