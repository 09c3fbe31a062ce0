package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedRunner fails or succeeds per attempt number (1-based).
type scriptedRunner struct {
	attempts int
	script   func(attempt int) error
}

func (s *scriptedRunner) Run(ctx context.Context, documentID string) error {
	s.attempts++
	return s.script(s.attempts)
}

func TestProcessSucceedsFirstAttempt(t *testing.T) {
	sr := &scriptedRunner{script: func(int) error { return nil }}
	r := NewRunner(sr, 3, time.Millisecond)

	require.NoError(t, r.Process(context.Background(), "doc-1"))
	assert.Equal(t, 1, sr.attempts)
}

func TestProcessRetriesTransientFailure(t *testing.T) {
	// Fails on attempt 1 only; with max_retries=3 this must complete after
	// exactly 2 attempts.
	sr := &scriptedRunner{script: func(attempt int) error {
		if attempt == 1 {
			return errors.New("storage hiccup")
		}
		return nil
	}}
	r := NewRunner(sr, 3, time.Millisecond)

	require.NoError(t, r.Process(context.Background(), "doc-1"))
	assert.Equal(t, 2, sr.attempts)
}

func TestProcessDoesNotRetryPermanentFailure(t *testing.T) {
	sr := &scriptedRunner{script: func(int) error {
		return Permanent(errors.New("corrupt source file"))
	}}
	r := NewRunner(sr, 5, time.Millisecond)

	err := r.Process(context.Background(), "doc-1")
	assert.ErrorIs(t, err, ErrPermanent)
	assert.Equal(t, 1, sr.attempts)
}

func TestProcessExhaustsRetries(t *testing.T) {
	sr := &scriptedRunner{script: func(int) error { return errors.New("still broken") }}
	r := NewRunner(sr, 3, time.Millisecond)

	err := r.Process(context.Background(), "doc-1")
	require.Error(t, err)
	assert.Equal(t, 3, sr.attempts)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Contains(t, err.Error(), "still broken")
}

func TestProcessStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sr := &scriptedRunner{script: func(attempt int) error {
		if attempt == 1 {
			cancel()
		}
		return errors.New("transient")
	}}
	r := NewRunner(sr, 5, time.Hour)

	err := r.Process(ctx, "doc-1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, sr.attempts)
}
