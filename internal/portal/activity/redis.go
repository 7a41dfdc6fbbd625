package activity

import (
	"context"
	"fmt"

	"github.com/aussiebroadwan/portal/pkg/clockx"
	"github.com/redis/go-redis/v9"
)

// Each script takes KEYS[1] = record, KEYS[2] = ended marker and works on
// the caller's clock passed in ARGV[1] (unix millis), so check-and-clear
// is atomic per subject.

// ARGV: now, idle ms, record ttl ms, retention ms. Returns 1 when already
// ended and 2 when this call ended the session.
const checkScript = `
if redis.call("EXISTS", KEYS[2]) == 1 then
  return 1
end
local last = redis.call("GET", KEYS[1])
if not last then
  redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
  return 0
end
if tonumber(ARGV[1]) - tonumber(last) > tonumber(ARGV[2]) then
  redis.call("DEL", KEYS[1])
  redis.call("SET", KEYS[2], ARGV[1], "PX", ARGV[4])
  return 2
end
return 0
`

// ARGV: now, record ttl ms.
const touchScript = `
if redis.call("EXISTS", KEYS[2]) == 1 then
  return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return 1
`

// ARGV: now, record ttl ms.
const beginScript = `
redis.call("DEL", KEYS[2])
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return 1
`

var (
	checkLua = redis.NewScript(checkScript)
	touchLua = redis.NewScript(touchScript)
	beginLua = redis.NewScript(beginScript)
)

// RedisTracker shares activity between portal replicas. Redis key expiry
// takes the place of Sweep.
type RedisTracker struct {
	rdb    redis.UniversalClient
	prefix string
	cfg    Config
	clock  clockx.Clock
}

// NewRedisTracker stores keys under prefix, "portal:activity" when empty.
func NewRedisTracker(rdb redis.UniversalClient, prefix string, cfg Config, clock clockx.Clock) *RedisTracker {
	if prefix == "" {
		prefix = "portal:activity"
	}
	if clock == nil {
		clock = clockx.Real()
	}
	return &RedisTracker{rdb: rdb, prefix: prefix, cfg: cfg.withDefaults(), clock: clock}
}

func (t *RedisTracker) keys(subject string) []string {
	return []string{
		t.prefix + ":last:" + subject,
		t.prefix + ":ended:" + subject,
	}
}

func (t *RedisTracker) now() int64 { return t.clock.Now().UnixMilli() }

func (t *RedisTracker) Check(ctx context.Context, subject string) error {
	expired, err := checkLua.Run(ctx, t.rdb, t.keys(subject),
		t.now(),
		t.cfg.IdleTimeout.Milliseconds(),
		t.cfg.RecordTTL.Milliseconds(),
		t.cfg.Retention.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("activity: check: %w", err)
	}
	switch expired {
	case 1:
		return ErrSessionExpired
	case 2:
		return ErrIdleTimeout
	}
	return nil
}

func (t *RedisTracker) Touch(ctx context.Context, subject string) error {
	if err := touchLua.Run(ctx, t.rdb, t.keys(subject), t.now(), t.cfg.RecordTTL.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("activity: touch: %w", err)
	}
	return nil
}

func (t *RedisTracker) Begin(ctx context.Context, subject string) error {
	if err := beginLua.Run(ctx, t.rdb, t.keys(subject), t.now(), t.cfg.RecordTTL.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("activity: begin: %w", err)
	}
	return nil
}

func (t *RedisTracker) End(ctx context.Context, subject string) error {
	if err := t.rdb.Del(ctx, t.keys(subject)[0]).Err(); err != nil {
		return fmt.Errorf("activity: end: %w", err)
	}
	return nil
}

// Sweep is a no-op; every key carries its own expiry.
func (t *RedisTracker) Sweep(context.Context) (int, error) { return 0, nil }
