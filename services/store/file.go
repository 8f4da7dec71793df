// Copyright (C) 2025 Cinelog Labs (dev@cinelog.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cinelog/cinelog/services/store/lock"
)

const (
	defaultRetryAttempts = 5
	defaultRetryBackoff  = 50 * time.Millisecond
)

// retryPolicy bounds the outer read/write retry loops.
type retryPolicy struct {
	attempts int
	backoff  time.Duration
}

func (p retryPolicy) applyDefaults() retryPolicy {
	if p.attempts == 0 {
		p.attempts = defaultRetryAttempts
	}
	if p.backoff == 0 {
		p.backoff = defaultRetryBackoff
	}
	return p
}

// wait sleeps for the exponential backoff of the given round.
func (p retryPolicy) wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(p.backoff << attempt)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// managedFile is one document file under the full storage discipline:
// marker-file locking, durable writes, corruption repair, bounded retries.
// The canonical user collection and every per-user document are both
// managedFiles; only the codec differs.
type managedFile struct {
	path   string
	codec  Codec
	lock   *lock.Manager
	retry  retryPolicy
	logger *slog.Logger
}

func newManagedFile(path string, codec Codec, lockMgr *lock.Manager, retry retryPolicy, logger *slog.Logger) *managedFile {
	return &managedFile{
		path:   path,
		codec:  codec,
		lock:   lockMgr,
		retry:  retry.applyDefaults(),
		logger: logger.With(slog.String("document", path)),
	}
}

// read loads the raw document with bounded retries.
//
// # Description
//
// Reads are unlocked: a reader may observe slightly stale data. A parse
// failure triggers corruption repair once, on the first failure, not once
// per retry. When repair fails too, ErrCorruption is returned and the
// caller degrades to an empty document, preferring availability over a hard
// failure. A missing file reads as (nil, nil).
func (f *managedFile) read(ctx context.Context) ([]byte, error) {
	repaired := false
	var lastErr error

	for attempt := 0; attempt < f.retry.attempts; attempt++ {
		if attempt > 0 {
			retriesTotal.WithLabelValues("read", reasonOf(lastErr)).Inc()
			if err := f.retry.wait(ctx, attempt-1); err != nil {
				return nil, err
			}
		}

		raw, err := os.ReadFile(f.path)
		if err != nil {
			if os.IsNotExist(err) {
				readsTotal.WithLabelValues("empty").Inc()
				return nil, nil
			}
			lastErr = err
			continue
		}

		if err := f.codec.Validate(raw); err != nil {
			if repaired {
				readsTotal.WithLabelValues("corrupt").Inc()
				return nil, fmt.Errorf("%w: still invalid after repair", ErrCorruption)
			}
			repaired = true
			r := &repairer{path: f.path, codec: f.codec, logger: f.logger}
			if repairErr := r.repair(); repairErr != nil {
				readsTotal.WithLabelValues("corrupt").Inc()
				return nil, repairErr
			}
			// Re-read the repaired canonical immediately.
			lastErr = err
			continue
		}

		readsTotal.WithLabelValues("ok").Inc()
		return raw, nil
	}

	readsTotal.WithLabelValues("error").Inc()
	return nil, fmt.Errorf("%w: read failed after %d attempts: %v", ErrUnavailable, f.retry.attempts, lastErr)
}

// write runs bounded read-mutate-write cycles until one commits.
//
// # Description
//
// Every retry re-runs the full acquire, backup, write, validate, rename
// sequence and re-reads the document from storage rather than reusing a
// stale in-memory copy, so a mutation derived from fresh state is what gets
// retried. This is the property that keeps a concurrent writer's update
// from being silently discarded.
//
// The mutate callback receives the current raw content (nil when the file
// is missing or unrecoverably corrupt) and returns the full next content.
// Returning errNoChange skips the commit. Any other callback error is
// terminal and aborts the retries: domain errors are not contention.
func (f *managedFile) write(ctx context.Context, reason string, mutate func(current []byte) ([]byte, error)) error {
	var lastErr error

	for attempt := 0; attempt < f.retry.attempts; attempt++ {
		if attempt > 0 {
			retriesTotal.WithLabelValues("write", reasonOf(lastErr)).Inc()
			if err := f.retry.wait(ctx, attempt-1); err != nil {
				return err
			}
		}

		err := f.writeOnce(ctx, reason, mutate)
		if err == nil {
			return nil
		}
		if errors.Is(err, errNoChange) {
			writesTotal.WithLabelValues("skipped").Inc()
			return nil
		}

		var terminal *terminalError
		if errors.As(err, &terminal) {
			return terminal.err
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		lastErr = err
		f.logger.Warn("write cycle failed, retrying",
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", f.retry.attempts),
			slog.String("error", err.Error()))
	}

	writesTotal.WithLabelValues("exhausted").Inc()
	return fmt.Errorf("%w: write failed after %d attempts: %v", ErrUnavailable, f.retry.attempts, lastErr)
}

// writeOnce performs a single locked read-mutate-write cycle.
func (f *managedFile) writeOnce(ctx context.Context, reason string, mutate func(current []byte) ([]byte, error)) error {
	start := time.Now()

	if err := f.lock.Acquire(ctx, reason); err != nil {
		return fmt.Errorf("acquiring write lock: %w", err)
	}
	// Release in a guaranteed-cleanup path on every exit.
	defer func() {
		if err := f.lock.Release(); err != nil {
			f.logger.Warn("lock release failed", slog.String("error", err.Error()))
		}
	}()

	current, err := f.readCurrentLocked()
	if err != nil {
		return err
	}

	next, err := mutate(current)
	if err != nil {
		if errors.Is(err, errNoChange) {
			return err
		}
		return &terminalError{err: err}
	}

	w := &durableWriter{path: f.path, codec: f.codec, logger: f.logger}
	if err := w.write(next); err != nil {
		writesTotal.WithLabelValues("error").Inc()
		return err
	}

	writesTotal.WithLabelValues("ok").Inc()
	writeDurationSeconds.Observe(time.Since(start).Seconds())
	return nil
}

// readCurrentLocked loads the document for a mutation while the lock is
// held. Unrecoverable corruption degrades to nil (empty document) so a
// wedged file cannot block writes forever; the loss is logged at error
// level by the repairer.
func (f *managedFile) readCurrentLocked() ([]byte, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading current document: %w", err)
	}

	if err := f.codec.Validate(raw); err == nil {
		return raw, nil
	}

	r := &repairer{path: f.path, codec: f.codec, logger: f.logger}
	if repairErr := r.repair(); repairErr != nil {
		degradedReadsTotal.Inc()
		return nil, nil
	}

	raw, err = os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("re-reading repaired document: %w", err)
	}
	return raw, nil
}

// terminalError wraps mutate-callback errors so the retry loop can tell
// domain failures from transient storage failures.
type terminalError struct {
	err error
}

func (e *terminalError) Error() string { return e.err.Error() }
func (e *terminalError) Unwrap() error { return e.err }

// reasonOf labels a retry metric by its cause.
func reasonOf(err error) string {
	switch {
	case err == nil:
		return "unknown"
	case errors.Is(err, lock.ErrLockBusy):
		return "lock_busy"
	case errors.Is(err, ErrValidationFailed):
		return "validation_failed"
	case errors.Is(err, ErrCorruption):
		return "corruption"
	default:
		return "io_error"
	}
}
