package lockout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestTracker(t *testing.T, cfg Config) (*Tracker, *miniredis.Miniredis, *testClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	clock := &testClock{now: time.Now()}
	tracker, err := NewTracker(client, cfg, clock.Now)
	if err != nil {
		t.Fatalf("NewTracker error: %v", err)
	}
	return tracker, mr, clock
}

func TestThresholdInstallsLock(t *testing.T) {
	cfg := Config{Threshold: 3, Window: time.Minute, Cooldown: 10 * time.Minute}
	tracker, _, clock := newTestTracker(t, cfg)
	ctx := context.Background()

	for i := 0; i < cfg.Threshold-1; i++ {
		locked, err := tracker.RecordFailure(ctx, "Alice@Example.com")
		if err != nil {
			t.Fatalf("RecordFailure %d error: %v", i, err)
		}
		if locked {
			t.Fatalf("locked after %d failures, threshold is %d", i+1, cfg.Threshold)
		}
		if err := tracker.Check(ctx, "alice@example.com"); err != nil {
			t.Fatalf("Check before threshold error: %v", err)
		}
	}

	locked, err := tracker.RecordFailure(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("threshold RecordFailure error: %v", err)
	}
	if !locked {
		t.Fatal("expected threshold failure to install the lock")
	}

	err = tracker.Check(ctx, "ALICE@example.com")
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	var lockErr *LockedError
	if !errors.As(err, &lockErr) {
		t.Fatalf("expected LockedError, got %T", err)
	}
	wantUntil := clock.Now().Add(cfg.Cooldown)
	if diff := lockErr.Until.Sub(wantUntil); diff < -2*time.Second || diff > 2*time.Second {
		t.Fatalf("unlock time off: got %v want ~%v", lockErr.Until, wantUntil)
	}
}

func TestSuccessClearsStreak(t *testing.T) {
	cfg := Config{Threshold: 3, Window: time.Minute, Cooldown: 10 * time.Minute}
	tracker, _, _ := newTestTracker(t, cfg)
	ctx := context.Background()

	for i := 0; i < cfg.Threshold-1; i++ {
		if _, err := tracker.RecordFailure(ctx, "alice@example.com"); err != nil {
			t.Fatalf("RecordFailure error: %v", err)
		}
	}
	if err := tracker.RecordSuccess(ctx, "alice@example.com"); err != nil {
		t.Fatalf("RecordSuccess error: %v", err)
	}

	// The streak restarted, so the next failure is number one of a new
	// window, not the threshold crossing.
	locked, err := tracker.RecordFailure(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("RecordFailure after success error: %v", err)
	}
	if locked {
		t.Fatal("expected a fresh streak after success")
	}
}

func TestLockExpiresAfterCooldown(t *testing.T) {
	cfg := Config{Threshold: 1, Window: time.Minute, Cooldown: 5 * time.Minute}
	tracker, mr, clock := newTestTracker(t, cfg)
	ctx := context.Background()

	locked, err := tracker.RecordFailure(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("RecordFailure error: %v", err)
	}
	if !locked {
		t.Fatal("expected immediate lock at threshold 1")
	}
	if err := tracker.Check(ctx, "alice@example.com"); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}

	clock.Advance(6 * time.Minute)
	mr.FastForward(6 * time.Minute)

	if err := tracker.Check(ctx, "alice@example.com"); err != nil {
		t.Fatalf("expected lock to lift after cooldown, got %v", err)
	}
}

func TestWindowExpiryResetsCounter(t *testing.T) {
	cfg := Config{Threshold: 3, Window: time.Minute, Cooldown: 10 * time.Minute}
	tracker, mr, clock := newTestTracker(t, cfg)
	ctx := context.Background()

	for i := 0; i < cfg.Threshold-1; i++ {
		if _, err := tracker.RecordFailure(ctx, "alice@example.com"); err != nil {
			t.Fatalf("RecordFailure error: %v", err)
		}
	}

	clock.Advance(2 * time.Minute)
	mr.FastForward(2 * time.Minute)

	locked, err := tracker.RecordFailure(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("RecordFailure after window error: %v", err)
	}
	if locked {
		t.Fatal("expected counter to have expired with the window")
	}
}

func TestIdentifiersAreIsolated(t *testing.T) {
	cfg := Config{Threshold: 1, Window: time.Minute, Cooldown: 10 * time.Minute}
	tracker, _, _ := newTestTracker(t, cfg)
	ctx := context.Background()

	if _, err := tracker.RecordFailure(ctx, "alice@example.com"); err != nil {
		t.Fatalf("RecordFailure error: %v", err)
	}
	if err := tracker.Check(ctx, "bob@example.com"); err != nil {
		t.Fatalf("expected bob to stay unlocked, got %v", err)
	}
}
