// Copyright (C) 2025 Cinelog Labs (dev@cinelog.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package lock

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig(filepath.Join(t.TempDir(), "users.json.lock"))
	cfg.SessionID = "sess-test"
	cfg.MaxWait = 300 * time.Millisecond
	cfg.BackoffBase = 10 * time.Millisecond
	cfg.WatchExternal = false
	return cfg
}

func TestManager_AcquireRelease(t *testing.T) {
	t.Run("acquire creates marker with holder info", func(t *testing.T) {
		cfg := testConfig(t)
		m, err := New(cfg, nil)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer m.Close()

		if err := m.Acquire(context.Background(), "unit test"); err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}

		data, err := os.ReadFile(cfg.MarkerPath)
		if err != nil {
			t.Fatalf("marker not created: %v", err)
		}
		var info LockInfo
		if err := json.Unmarshal(data, &info); err != nil {
			t.Fatalf("marker is not valid JSON: %v", err)
		}
		if info.PID != os.Getpid() {
			t.Errorf("expected PID %d, got %d", os.Getpid(), info.PID)
		}
		if info.SessionID != "sess-test" {
			t.Errorf("expected session sess-test, got %q", info.SessionID)
		}
		if info.Reason != "unit test" {
			t.Errorf("expected reason recorded, got %q", info.Reason)
		}

		if err := m.Release(); err != nil {
			t.Fatalf("Release failed: %v", err)
		}
		if _, err := os.Stat(cfg.MarkerPath); !os.IsNotExist(err) {
			t.Error("marker still exists after release")
		}
	})

	t.Run("release is idempotent", func(t *testing.T) {
		cfg := testConfig(t)
		m, err := New(cfg, nil)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer m.Close()

		if err := m.Release(); err != nil {
			t.Errorf("release without acquire should be a no-op, got %v", err)
		}

		if err := m.Acquire(context.Background(), ""); err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}
		if err := m.Release(); err != nil {
			t.Fatalf("first release failed: %v", err)
		}
		if err := m.Release(); err != nil {
			t.Errorf("second release should be a no-op, got %v", err)
		}
	})

	t.Run("release tolerates externally removed marker", func(t *testing.T) {
		cfg := testConfig(t)
		m, err := New(cfg, nil)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer m.Close()

		if err := m.Acquire(context.Background(), ""); err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}
		if err := os.Remove(cfg.MarkerPath); err != nil {
			t.Fatalf("removing marker: %v", err)
		}
		if err := m.Release(); err != nil {
			t.Errorf("release after external removal should succeed, got %v", err)
		}
	})

	t.Run("re-acquire by same manager succeeds", func(t *testing.T) {
		cfg := testConfig(t)
		m, err := New(cfg, nil)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer m.Close()

		if err := m.Acquire(context.Background(), "first"); err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}
		if err := m.Acquire(context.Background(), "second"); err != nil {
			t.Errorf("re-acquire should succeed, got %v", err)
		}
	})
}

func TestManager_Contention(t *testing.T) {
	t.Run("second holder fails with ErrLockBusy", func(t *testing.T) {
		cfg := testConfig(t)
		first, err := New(cfg, nil)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer first.Close()
		if err := first.Acquire(context.Background(), "holder"); err != nil {
			t.Fatalf("first Acquire failed: %v", err)
		}

		secondCfg := cfg
		secondCfg.SessionID = "sess-other"
		second, err := New(secondCfg, nil)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer second.Close()

		start := time.Now()
		err = second.Acquire(context.Background(), "contender")
		if !errors.Is(err, ErrLockBusy) {
			t.Fatalf("expected ErrLockBusy, got %v", err)
		}
		if elapsed := time.Since(start); elapsed > cfg.MaxWait+200*time.Millisecond {
			t.Errorf("acquire overran wait budget: %v", elapsed)
		}
	})

	t.Run("waiter wins once holder releases", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.MaxWait = 2 * time.Second
		first, err := New(cfg, nil)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer first.Close()
		if err := first.Acquire(context.Background(), "holder"); err != nil {
			t.Fatalf("first Acquire failed: %v", err)
		}

		go func() {
			time.Sleep(30 * time.Millisecond)
			_ = first.Release()
		}()

		secondCfg := cfg
		secondCfg.SessionID = "sess-other"
		second, err := New(secondCfg, nil)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer second.Close()

		if err := second.Acquire(context.Background(), "waiter"); err != nil {
			t.Fatalf("waiter should acquire after release, got %v", err)
		}
	})

	t.Run("context cancellation aborts wait", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.MaxWait = 5 * time.Second
		first, err := New(cfg, nil)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer first.Close()
		if err := first.Acquire(context.Background(), "holder"); err != nil {
			t.Fatalf("first Acquire failed: %v", err)
		}

		secondCfg := cfg
		second, err := New(secondCfg, nil)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer second.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		err = second.Acquire(ctx, "cancelled")
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
	})
}

func TestManager_StaleRecovery(t *testing.T) {
	writeMarker := func(t *testing.T, path string, info LockInfo) {
		t.Helper()
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			t.Fatalf("marshal info: %v", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatalf("write marker: %v", err)
		}
	}

	t.Run("expired marker is force-cleared", func(t *testing.T) {
		cfg := testConfig(t)
		writeMarker(t, cfg.MarkerPath, LockInfo{
			Path:     cfg.MarkerPath,
			PID:      os.Getpid(), // alive, but past the age threshold
			LockedAt: time.Now().Add(-time.Minute),
		})

		m, err := New(cfg, nil)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer m.Close()

		if err := m.Acquire(context.Background(), "reclaimer"); err != nil {
			t.Fatalf("expected stale marker reclaimed, got %v", err)
		}
	})

	t.Run("marker of dead process is force-cleared", func(t *testing.T) {
		cfg := testConfig(t)
		writeMarker(t, cfg.MarkerPath, LockInfo{
			Path:     cfg.MarkerPath,
			PID:      1 << 28, // no such process
			LockedAt: time.Now(),
		})

		m, err := New(cfg, nil)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer m.Close()

		if err := m.Acquire(context.Background(), "reclaimer"); err != nil {
			t.Fatalf("expected dead holder reclaimed, got %v", err)
		}
	})

	t.Run("fresh live marker is respected", func(t *testing.T) {
		cfg := testConfig(t)
		writeMarker(t, cfg.MarkerPath, LockInfo{
			Path:     cfg.MarkerPath,
			PID:      os.Getpid(),
			LockedAt: time.Now(),
		})

		m, err := New(cfg, nil)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer m.Close()

		if err := m.Acquire(context.Background(), "contender"); !errors.Is(err, ErrLockBusy) {
			t.Errorf("expected ErrLockBusy against live marker, got %v", err)
		}
	})
}

func TestManager_Holder(t *testing.T) {
	cfg := testConfig(t)
	m, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer m.Close()

	locked, info, err := m.Holder()
	if err != nil {
		t.Fatalf("Holder failed: %v", err)
	}
	if locked || info != nil {
		t.Error("expected unlocked before acquire")
	}

	if err := m.Acquire(context.Background(), "status"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	locked, info, err = m.Holder()
	if err != nil {
		t.Fatalf("Holder failed: %v", err)
	}
	if !locked {
		t.Error("expected locked after acquire")
	}
	if info == nil || info.PID != os.Getpid() {
		t.Errorf("unexpected holder info: %+v", info)
	}
}
