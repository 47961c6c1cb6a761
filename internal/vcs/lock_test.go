package vcs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	attempts int
	unlocks  int
	lockErr  error
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]bool)}
}

func (l *fakeLocker) TryLock(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts++
	if l.lockErr != nil {
		return false, l.lockErr
	}
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *fakeLocker) Unlock(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unlocks++
	delete(l.held, key)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var fastLock = LockOptions{Attempts: 3, Delay: time.Millisecond}

func TestWithLock_RunsAndReleases(t *testing.T) {
	l := newFakeLocker()
	called := false

	err := WithLock(context.Background(), l, "c1", fastLock, discardLogger(), func(context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock: %v", err)
	}
	if !called {
		t.Error("fn not called")
	}
	if l.held["c1"] || l.unlocks != 1 {
		t.Errorf("lock not released: held=%v unlocks=%d", l.held["c1"], l.unlocks)
	}
}

func TestWithLock_ReleasesOnError(t *testing.T) {
	l := newFakeLocker()
	want := errors.New("update failed")

	err := WithLock(context.Background(), l, "c1", fastLock, discardLogger(), func(context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}
	if l.held["c1"] {
		t.Error("lock not released after error")
	}
}

func TestWithLock_Busy(t *testing.T) {
	l := newFakeLocker()
	l.held["c1"] = true

	err := WithLock(context.Background(), l, "c1", fastLock, discardLogger(), func(context.Context) error {
		t.Error("fn must not run")
		return nil
	})
	if !errors.Is(err, ErrLockBusy) {
		t.Fatalf("err = %v, want ErrLockBusy", err)
	}
	if l.attempts != 3 {
		t.Errorf("attempts = %d, want 3", l.attempts)
	}
	if l.unlocks != 0 {
		t.Error("foreign lock must not be released")
	}
}

func TestWithLock_LockError(t *testing.T) {
	l := newFakeLocker()
	l.lockErr = errors.New("db down")

	err := WithLock(context.Background(), l, "c1", fastLock, discardLogger(), func(context.Context) error {
		return nil
	})
	if !errors.Is(err, l.lockErr) {
		t.Fatalf("err = %v, want db down", err)
	}
}
