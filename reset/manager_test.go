package reset

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeDirectory struct {
	users map[string]string // email -> user ID
}

func (d *fakeDirectory) LookupByEmail(_ context.Context, email string) (string, error) {
	return d.users[email], nil
}

type captureNotifier struct {
	mu     sync.Mutex
	tokens []string
	fail   error
}

func (n *captureNotifier) SendPasswordReset(_ context.Context, _, rawToken string, _ time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail != nil {
		return n.fail
	}
	n.tokens = append(n.tokens, rawToken)
	return nil
}

func (n *captureNotifier) last(t *testing.T) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.tokens) == 0 {
		t.Fatal("notifier received no token")
	}
	return n.tokens[len(n.tokens)-1]
}

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

type passwordSink struct {
	mu     sync.Mutex
	hashes map[string][]string // user ID -> applied hashes, in order
}

func newPasswordSink() *passwordSink {
	return &passwordSink{hashes: make(map[string][]string)}
}

func (p *passwordSink) set(_ context.Context, userID, newHash string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hashes[userID] = append(p.hashes[userID], newHash)
	return nil
}

func newTestManager(t *testing.T) (*Manager, *captureNotifier, *passwordSink, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Now()}
	sink := newPasswordSink()
	repo := NewMemoryRepository(sink.set)
	notifier := &captureNotifier{}
	dir := &fakeDirectory{users: map[string]string{"alice@example.com": "user-1"}}
	mgr, err := NewManager(repo, dir, notifier, 30*time.Minute, clock.Now, nil)
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}
	return mgr, notifier, sink, clock
}

func TestRequestAndConfirm(t *testing.T) {
	mgr, notifier, sink, _ := newTestManager(t)
	ctx := context.Background()

	if err := mgr.Request(ctx, "alice@example.com"); err != nil {
		t.Fatalf("Request error: %v", err)
	}
	raw := notifier.last(t)

	userID, err := mgr.Confirm(ctx, raw, "new-hash")
	if err != nil {
		t.Fatalf("Confirm error: %v", err)
	}
	if userID != "user-1" {
		t.Fatalf("expected user-1, got %q", userID)
	}

	sink.mu.Lock()
	applied := sink.hashes["user-1"]
	sink.mu.Unlock()
	if len(applied) != 1 || applied[0] != "new-hash" {
		t.Fatalf("expected one applied hash, got %v", applied)
	}
}

func TestConfirmIsSingleUse(t *testing.T) {
	mgr, notifier, _, _ := newTestManager(t)
	ctx := context.Background()

	if err := mgr.Request(ctx, "alice@example.com"); err != nil {
		t.Fatalf("Request error: %v", err)
	}
	raw := notifier.last(t)

	if _, err := mgr.Confirm(ctx, raw, "first-hash"); err != nil {
		t.Fatalf("first Confirm error: %v", err)
	}
	_, err := mgr.Confirm(ctx, raw, "second-hash")
	if !errors.Is(err, ErrUsed) {
		t.Fatalf("expected ErrUsed, got %v", err)
	}
}

func TestConfirmExpiredToken(t *testing.T) {
	mgr, notifier, _, clock := newTestManager(t)
	ctx := context.Background()

	if err := mgr.Request(ctx, "alice@example.com"); err != nil {
		t.Fatalf("Request error: %v", err)
	}
	raw := notifier.last(t)

	clock.Advance(31 * time.Minute)

	_, err := mgr.Confirm(ctx, raw, "new-hash")
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestConfirmUnknownToken(t *testing.T) {
	mgr, _, _, _ := newTestManager(t)
	_, err := mgr.Confirm(context.Background(), "fabricated-token", "new-hash")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestValidateDoesNotConsume(t *testing.T) {
	mgr, notifier, _, _ := newTestManager(t)
	ctx := context.Background()

	if err := mgr.Request(ctx, "alice@example.com"); err != nil {
		t.Fatalf("Request error: %v", err)
	}
	raw := notifier.last(t)

	for i := 0; i < 3; i++ {
		valid, _, err := mgr.Validate(ctx, raw)
		if err != nil {
			t.Fatalf("Validate error: %v", err)
		}
		if !valid {
			t.Fatalf("expected token to stay valid on check %d", i)
		}
	}

	if _, err := mgr.Confirm(ctx, raw, "new-hash"); err != nil {
		t.Fatalf("Confirm after validations error: %v", err)
	}

	valid, _, err := mgr.Validate(ctx, raw)
	if err != nil {
		t.Fatalf("Validate after confirm error: %v", err)
	}
	if valid {
		t.Fatal("expected consumed token to be invalid")
	}
}

func TestRequestUnknownEmailSucceeds(t *testing.T) {
	mgr, notifier, _, _ := newTestManager(t)

	if err := mgr.Request(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("expected silent success for unknown email, got %v", err)
	}
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.tokens) != 0 {
		t.Fatal("expected no notification for unknown email")
	}
}

func TestRequestNotifierFailureSwallowed(t *testing.T) {
	mgr, notifier, _, _ := newTestManager(t)
	notifier.fail = errors.New("smtp down")

	if err := mgr.Request(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("expected delivery failure to be swallowed, got %v", err)
	}
}

func TestConcurrentConfirmExactlyOnce(t *testing.T) {
	mgr, notifier, sink, _ := newTestManager(t)
	ctx := context.Background()

	if err := mgr.Request(ctx, "alice@example.com"); err != nil {
		t.Fatalf("Request error: %v", err)
	}
	raw := notifier.last(t)

	const goroutines = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		used    int
	)
	start := make(chan struct{})

	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			<-start
			_, err := mgr.Confirm(ctx, raw, "hash-from-goroutine")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.Is(err, ErrUsed):
				used++
			default:
				t.Errorf("unexpected confirm error: %v", err)
			}
		}(g)
	}
	close(start)
	wg.Wait()

	if success != 1 {
		t.Fatalf("expected exactly 1 winning confirm, got %d", success)
	}
	if used != goroutines-1 {
		t.Fatalf("expected %d ErrUsed losers, got %d", goroutines-1, used)
	}

	sink.mu.Lock()
	applied := sink.hashes["user-1"]
	sink.mu.Unlock()
	if len(applied) != 1 {
		t.Fatalf("expected the password to change exactly once, got %d writes", len(applied))
	}
}
