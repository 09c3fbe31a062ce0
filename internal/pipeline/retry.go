package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrPermanent marks failures that will recur identically on every attempt,
// such as a missing or corrupt source file. The retry wrapper does not retry
// them.
var ErrPermanent = errors.New("permanent failure")

// Permanent wraps err as non-retryable.
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// DocumentRunner is the orchestrator surface the retry wrapper drives.
type DocumentRunner interface {
	Run(ctx context.Context, documentID string) error
}

// Runner wraps orchestrator invocation with bounded retry, mirroring an
// external job queue's max_retries/retry_delay semantics in-process. The
// delay doubles per attempt; exhaustion leaves the document in whatever
// Failed state the last attempt recorded, indistinguishable from an
// ordinary failure.
type Runner struct {
	proc       DocumentRunner
	maxRetries int
	baseDelay  time.Duration
}

// NewRunner builds a retry wrapper. maxRetries is the total number of
// attempts; values below 1 mean a single attempt.
func NewRunner(proc DocumentRunner, maxRetries int, baseDelay time.Duration) *Runner {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Runner{proc: proc, maxRetries: maxRetries, baseDelay: baseDelay}
}

// Process runs the document pipeline, retrying transient failures with
// exponential backoff.
func (r *Runner) Process(ctx context.Context, documentID string) error {
	delay := r.baseDelay
	var lastErr error

	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		lastErr = r.proc.Run(ctx, documentID)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ErrPermanent) {
			slog.Error("Document failed permanently, not retrying.",
				"documentId", documentID, "attempt", attempt, "error", lastErr)
			return lastErr
		}
		if attempt == r.maxRetries {
			break
		}

		slog.Warn("Document processing failed, will retry.",
			"documentId", documentID,
			"attempt", attempt,
			"maxRetries", r.maxRetries,
			"backoff", delay.String(),
			"error", lastErr,
		)
		select {
		case <-time.After(delay):
			delay *= 2
		case <-ctx.Done():
			slog.Error("Context cancelled during backoff. Aborting retries.",
				"documentId", documentID, "error", ctx.Err())
			return ctx.Err()
		}
	}
	slog.Error("Document processing failed after all retries.",
		"documentId", documentID, "attempts", r.maxRetries, "error", lastErr)
	return fmt.Errorf("processing %s failed after %d attempts: %w", documentID, r.maxRetries, lastErr)
}
