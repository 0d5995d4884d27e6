// Package lockout tracks failed-authentication streaks per identifier and
// locks further attempts once a threshold is crossed inside a rolling
// window. Counters live in Redis so the guarantee holds across processes.
package lockout

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrLocked is the match target for lockout errors; concrete errors are
	// LockedError values carrying the unlock time.
	ErrLocked = errors.New("account locked")
	// ErrUnavailable wraps Redis failures.
	ErrUnavailable = errors.New("lockout store unavailable")
)

// LockedError reports an active lock and when it lifts. errors.Is matches
// it against ErrLocked.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked until %s", e.Until.UTC().Format(time.RFC3339))
}

func (e *LockedError) Is(target error) bool {
	return target == ErrLocked
}

// Config bounds the failure window. KeyPrefix namespaces the Redis keys and
// may be empty.
type Config struct {
	Threshold int
	Window    time.Duration
	Cooldown  time.Duration
	KeyPrefix string
}

// DefaultConfig returns 5 failures per 15 minutes with a 15 minute lock.
func DefaultConfig() Config {
	return Config{
		Threshold: 5,
		Window:    15 * time.Minute,
		Cooldown:  15 * time.Minute,
	}
}

// failureScript bumps the failure counter and, when the threshold is
// crossed, installs the lock and clears the counter. Running it as one
// script keeps the count/lock transition atomic across processes.
//
// KEYS[1] = failure counter, KEYS[2] = lock key
// ARGV[1] = window ms, ARGV[2] = threshold,
// ARGV[3] = lock value (unlock unix seconds), ARGV[4] = cooldown ms
var failureScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
if count >= tonumber(ARGV[2]) then
  redis.call("SET", KEYS[2], ARGV[3], "PX", ARGV[4])
  redis.call("DEL", KEYS[1])
  return 1
end
return 0
`)

// Tracker enforces the lockout policy. Identifiers are lowercased before
// keying so the guarantee survives case variations of the same email.
type Tracker struct {
	client redis.UniversalClient
	config Config
	now    func() time.Time
}

// NewTracker validates the config and returns a Tracker. nowFn may be nil.
func NewTracker(client redis.UniversalClient, cfg Config, nowFn func() time.Time) (*Tracker, error) {
	if client == nil {
		return nil, errors.New("lockout: redis client is required")
	}
	if cfg.Threshold < 1 {
		return nil, errors.New("lockout: threshold must be >= 1")
	}
	if cfg.Window <= 0 {
		return nil, errors.New("lockout: window must be positive")
	}
	if cfg.Cooldown <= 0 {
		return nil, errors.New("lockout: cooldown must be positive")
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Tracker{client: client, config: cfg, now: nowFn}, nil
}

// Check returns a LockedError when identifier is currently locked out, nil
// otherwise. It never mutates state.
func (t *Tracker) Check(ctx context.Context, identifier string) error {
	val, err := t.client.Get(ctx, t.lockKey(identifier)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return errors.Join(ErrUnavailable, err)
	}

	unlockUnix, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return errors.Join(ErrUnavailable, err)
	}
	until := time.Unix(unlockUnix, 0)
	if t.now().Before(until) {
		return &LockedError{Until: until}
	}
	return nil
}

// RecordFailure counts one failed attempt and reports whether it crossed
// the threshold and installed a lock.
func (t *Tracker) RecordFailure(ctx context.Context, identifier string) (bool, error) {
	until := t.now().Add(t.config.Cooldown)
	res, err := failureScript.Run(ctx, t.client,
		[]string{t.failureKey(identifier), t.lockKey(identifier)},
		t.config.Window.Milliseconds(),
		t.config.Threshold,
		until.Unix(),
		t.config.Cooldown.Milliseconds(),
	).Int()
	if err != nil {
		return false, errors.Join(ErrUnavailable, err)
	}
	return res == 1, nil
}

// RecordSuccess clears the failure streak and any active lock.
func (t *Tracker) RecordSuccess(ctx context.Context, identifier string) error {
	if err := t.client.Del(ctx, t.failureKey(identifier), t.lockKey(identifier)).Err(); err != nil {
		return errors.Join(ErrUnavailable, err)
	}
	return nil
}

func (t *Tracker) failureKey(identifier string) string {
	return t.config.KeyPrefix + "alf:" + strings.ToLower(identifier)
}

func (t *Tracker) lockKey(identifier string) string {
	return t.config.KeyPrefix + "all:" + strings.ToLower(identifier)
}
