// Copyright (C) 2025 Cinelog Labs (dev@cinelog.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package lock provides marker-file based mutual exclusion for the document
// store.
//
// The lock is advisory and cross-process: a writer owns the canonical file
// exactly while an exclusively-created marker sibling exists. Stale markers
// left behind by crashed holders are recovered lazily by the next acquirer
// (age threshold plus a PID liveness check); there is no background janitor.
package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrLockBusy indicates the wait budget or attempt cap was exhausted
	// while another holder kept the marker.
	ErrLockBusy = errors.New("lock: busy after backoff budget exhausted")

	// ErrManagerClosed indicates the manager has been closed.
	ErrManagerClosed = errors.New("lock: manager is closed")
)

// -----------------------------------------------------------------------------
// Metrics
// -----------------------------------------------------------------------------

var (
	acquireTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cinelog_lock_acquire_total",
		Help: "Lock acquisition attempts by outcome",
	}, []string{"outcome"})

	staleRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cinelog_lock_stale_removed_total",
		Help: "Stale lock markers force-cleared by acquirers",
	})

	acquireWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cinelog_lock_acquire_wait_seconds",
		Help:    "Time spent waiting to acquire the lock",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 3},
	})
)

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config configures a Manager.
type Config struct {
	// MarkerPath is the lock marker file guarding the canonical document.
	MarkerPath string

	// SessionID identifies this holder in marker metadata.
	SessionID string

	// StaleAfter is the age beyond which a marker is presumed abandoned.
	// Default: 30s.
	StaleAfter time.Duration

	// MaxWait is the total wall-clock budget for one Acquire call.
	// Default: 3s.
	MaxWait time.Duration

	// MaxAttempts caps backoff rounds within one Acquire call. Default: 5.
	MaxAttempts int

	// BackoffBase is the first backoff interval; each round doubles it.
	// Default: 100ms.
	BackoffBase time.Duration

	// WatchExternal enables fsnotify monitoring of the marker while held,
	// logging tampering by other processes. Default: true for New.
	WatchExternal bool
}

// DefaultConfig returns a Config with production defaults.
func DefaultConfig(markerPath string) Config {
	return Config{
		MarkerPath:    markerPath,
		StaleAfter:    30 * time.Second,
		MaxWait:       3 * time.Second,
		MaxAttempts:   5,
		BackoffBase:   100 * time.Millisecond,
		WatchExternal: true,
	}
}

func (c *Config) applyDefaults() {
	if c.StaleAfter == 0 {
		c.StaleAfter = 30 * time.Second
	}
	if c.MaxWait == 0 {
		c.MaxWait = 3 * time.Second
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 5
	}
	if c.BackoffBase == 0 {
		c.BackoffBase = 100 * time.Millisecond
	}
}

// -----------------------------------------------------------------------------
// Manager
// -----------------------------------------------------------------------------

// Manager provides exclusive cross-process locking for one canonical file.
//
// # Description
//
// Acquire attempts to atomically create the marker (O_CREATE|O_EXCL). If the
// marker exists, the holder metadata is inspected: stale markers are
// force-cleared and the create retried immediately; live markers trigger
// exponential backoff bounded by both a wall-clock budget and an attempt cap.
// Release deletes the marker and is idempotent.
//
// # Thread Safety
//
// All public methods are safe for concurrent use, but a single Manager holds
// at most one lock: callers must serialize Acquire/Release pairs themselves
// (the Store does this with its writer mutex).
type Manager struct {
	cfg     Config
	logger  *slog.Logger
	watcher *fsnotify.Watcher

	mu     sync.Mutex
	held   bool
	closed bool
	info   *LockInfo
}

// New creates a lock Manager for the given marker path.
//
// # Outputs
//
//   - *Manager: ready-to-use manager.
//   - error: non-nil if the fsnotify watcher cannot be created while
//     Config.WatchExternal is set.
func New(cfg Config, logger *slog.Logger) (*Manager, error) {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "lock"), slog.String("marker", cfg.MarkerPath)),
	}

	if cfg.WatchExternal {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("creating marker watcher: %w", err)
		}
		m.watcher = watcher
		go m.watchLoop()
	}

	return m, nil
}

// Acquire obtains the exclusive lock, waiting up to the configured budget.
//
// # Inputs
//
//   - ctx: cancels the wait early.
//   - reason: human-readable note recorded in the marker for debugging.
//
// # Outputs
//
//   - error: nil on success; ErrLockBusy once the wall-clock budget or the
//     attempt cap is exhausted; ctx.Err() on cancellation.
func (m *Manager) Acquire(ctx context.Context, reason string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if m.held {
		// Re-entrant acquire by the same manager, refresh the reason only.
		m.info.Reason = reason
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	start := time.Now()
	deadline := start.Add(m.cfg.MaxWait)

	for attempt := 0; ; attempt++ {
		ok, err := m.tryAcquire(reason)
		if err != nil {
			acquireTotal.WithLabelValues("error").Inc()
			return err
		}
		if ok {
			acquireTotal.WithLabelValues("acquired").Inc()
			acquireWaitSeconds.Observe(time.Since(start).Seconds())
			m.logger.Debug("acquired lock",
				slog.String("reason", reason),
				slog.Int("attempt", attempt))
			return nil
		}

		// Marker exists. A stale holder is force-cleared and the create
		// retried without consuming a backoff round.
		if m.clearIfStale() {
			continue
		}

		if attempt+1 >= m.cfg.MaxAttempts {
			acquireTotal.WithLabelValues("busy").Inc()
			return fmt.Errorf("%w: %d attempts on %s", ErrLockBusy, m.cfg.MaxAttempts, m.cfg.MarkerPath)
		}

		wait := m.cfg.BackoffBase << attempt
		remaining := time.Until(deadline)
		if remaining <= 0 {
			acquireTotal.WithLabelValues("busy").Inc()
			return fmt.Errorf("%w: wait budget %s exhausted on %s", ErrLockBusy, m.cfg.MaxWait, m.cfg.MarkerPath)
		}
		if wait > remaining {
			wait = remaining
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			acquireTotal.WithLabelValues("cancelled").Inc()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// tryAcquire performs a single exclusive-create attempt.
func (m *Manager) tryAcquire(reason string) (bool, error) {
	f, err := os.OpenFile(m.cfg.MarkerPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("creating lock marker %s: %w", m.cfg.MarkerPath, err)
	}

	info := &LockInfo{
		Path:      m.cfg.MarkerPath,
		PID:       os.Getpid(),
		SessionID: m.cfg.SessionID,
		LockedAt:  time.Now(),
		Reason:    reason,
	}
	data, err := json.MarshalIndent(info, "", "  ")
	if err == nil {
		_, err = f.Write(data)
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		// The marker exists but its metadata is unusable; back out so the
		// next acquirer does not see a half-written holder.
		_ = os.Remove(m.cfg.MarkerPath)
		return false, fmt.Errorf("writing lock marker %s: %w", m.cfg.MarkerPath, err)
	}

	m.mu.Lock()
	m.held = true
	m.info = info
	m.mu.Unlock()

	m.addWatch()
	return true, nil
}

// clearIfStale removes the marker when its holder is presumed dead.
// Returns true when a retry should happen immediately.
func (m *Manager) clearIfStale() bool {
	info, err := readLockInfo(m.cfg.MarkerPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Holder released between our create attempt and this check.
			return true
		}
		// Unreadable metadata: treat a decayed marker file itself as stale
		// once its mtime passes the threshold.
		st, statErr := os.Stat(m.cfg.MarkerPath)
		if statErr != nil || time.Since(st.ModTime()) < m.cfg.StaleAfter {
			return false
		}
		m.logger.Warn("removing unreadable stale lock marker")
		staleRemovedTotal.Inc()
		_ = os.Remove(m.cfg.MarkerPath)
		return true
	}

	if !info.IsStale(m.cfg.StaleAfter) {
		return false
	}

	m.logger.Info("removing stale lock marker",
		slog.Int("holder_pid", info.PID),
		slog.String("holder_session", info.SessionID),
		slog.Duration("age", info.Age()))
	staleRemovedTotal.Inc()
	_ = os.Remove(m.cfg.MarkerPath)
	return true
}

// Release deletes the marker. Idempotent: releasing an already-released or
// never-acquired lock is a no-op.
func (m *Manager) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.held {
		return nil
	}
	m.held = false
	m.info = nil

	m.removeWatch()

	if err := os.Remove(m.cfg.MarkerPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing lock marker %s: %w", m.cfg.MarkerPath, err)
	}
	m.logger.Debug("released lock")
	return nil
}

// Holder reports whether any process currently holds the lock.
//
// # Outputs
//
//   - bool: true if a live (non-stale) marker exists.
//   - *LockInfo: holder metadata, nil when unlocked.
//   - error: non-nil on failure to inspect the marker.
func (m *Manager) Holder() (bool, *LockInfo, error) {
	info, err := readLockInfo(m.cfg.MarkerPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil, nil
		}
		return false, nil, err
	}
	if info.IsStale(m.cfg.StaleAfter) {
		return false, nil, nil
	}
	return true, info, nil
}

// Close releases any held lock and stops the watcher.
func (m *Manager) Close() error {
	if err := m.Release(); err != nil {
		m.logger.Warn("error releasing lock during close", slog.String("error", err.Error()))
	}

	m.mu.Lock()
	m.closed = true
	watcher := m.watcher
	m.watcher = nil
	m.mu.Unlock()

	if watcher != nil {
		return watcher.Close()
	}
	return nil
}

// -----------------------------------------------------------------------------
// External change detection
// -----------------------------------------------------------------------------

func (m *Manager) addWatch() {
	m.mu.Lock()
	watcher := m.watcher
	m.mu.Unlock()
	if watcher == nil {
		return
	}
	if err := watcher.Add(m.cfg.MarkerPath); err != nil {
		m.logger.Warn("failed to watch lock marker", slog.String("error", err.Error()))
	}
}

func (m *Manager) removeWatch() {
	if m.watcher == nil {
		return
	}
	if err := m.watcher.Remove(m.cfg.MarkerPath); err != nil && !os.IsNotExist(err) {
		m.logger.Debug("marker was not being watched")
	}
}

// watchLoop surfaces external tampering with a held marker. Another process
// deleting our marker means two writers may proceed concurrently, which is
// worth a loud log line even though the durable-write sequence keeps the
// canonical file structurally intact.
func (m *Manager) watchLoop() {
	m.mu.Lock()
	watcher := m.watcher
	m.mu.Unlock()
	if watcher == nil {
		return
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename|fsnotify.Write) == 0 {
				continue
			}
			m.mu.Lock()
			held := m.held
			m.mu.Unlock()
			if held {
				m.logger.Warn("external modification of held lock marker",
					slog.String("event", event.Op.String()))
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("lock marker watcher error", slog.String("error", err.Error()))
		}
	}
}
