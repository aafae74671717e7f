package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisLedger keeps marks in Redis with a TTL.
//
// Unlike PostgresLedger the mark cannot share a transaction with database
// writes: a crash between fn and the final SET replays the step once.
type RedisLedger struct {
	rdb      *redis.Client
	prefix   string
	ttl      time.Duration
	claimTTL time.Duration
}

func NewRedisLedger(rdb *redis.Client, ttl time.Duration) *RedisLedger {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &RedisLedger{rdb: rdb, prefix: "webhook:ledger:", ttl: ttl, claimTTL: time.Minute}
}

const doneMarker = "done"

var claimScript = redis.NewScript(`
-- KEYS[1] = ledger key
-- ARGV[1] = claim token
-- ARGV[2] = claim ttl_ms
--
-- Returns:
--  1 if claimed
--  0 if already done
-- -1 if claimed by someone else
local cur = redis.call('GET', KEYS[1])
if cur == false then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
  return 1
end
if cur == 'done' then
  return 0
end
return -1
`)

var releaseScript = redis.NewScript(`
-- KEYS[1] = ledger key
-- ARGV[1] = claim token
-- Delete only our own claim.
if redis.call('GET', KEYS[1]) == ARGV[1] then
  redis.call('DEL', KEYS[1])
end
return 1
`)

func (l *RedisLedger) Once(ctx context.Context, k Key, fn Func) (bool, error) {
	if !k.Valid() {
		return false, ErrInvalidKey
	}
	key := l.prefix + k.String()
	token := "claim:" + uuid.NewString()

	res, err := claimScript.Run(ctx, l.rdb, []string{key}, token, l.claimTTL.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", k, err)
	}
	switch res {
	case 0:
		return false, nil
	case -1:
		return false, ErrInFlight
	}

	if err := fn(ctx); err != nil {
		if rerr := releaseScript.Run(context.WithoutCancel(ctx), l.rdb, []string{key}, token).Err(); rerr != nil {
			return false, fmt.Errorf("%w (release claim: %v)", err, rerr)
		}
		return false, err
	}
	if err := l.rdb.Set(context.WithoutCancel(ctx), key, doneMarker, l.ttl).Err(); err != nil {
		return true, fmt.Errorf("mark %s done: %w", k, err)
	}
	return true, nil
}
