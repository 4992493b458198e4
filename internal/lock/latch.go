package lock

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrHeld is returned when another holder owns the latch.
var ErrHeld = errors.New("lock: latch already held")

const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`

// Latch is a non-blocking Redis mutual-exclusion flag. It keeps a second
// submission out while the first is in flight; the TTL frees the flag if the
// holder dies without releasing it.
type Latch struct {
	R   *redis.Client
	TTL time.Duration
}

// Acquire takes the latch for key. On success the returned release func must
// be called once the guarded work is done. ErrHeld reports contention.
func (l Latch) Acquire(ctx context.Context, key string) (func(), error) {
	if l.R == nil {
		return nil, errors.New("lock: redis client not configured")
	}
	ttl := l.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	token := uuid.NewString()
	ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrHeld
	}
	return func() { l.release(context.Background(), key, token) }, nil
}

// Do runs fn while holding the latch for key.
func (l Latch) Do(ctx context.Context, key string, fn func(context.Context) error) error {
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	release, err := l.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

func (l Latch) release(ctx context.Context, key, token string) {
	if err := l.R.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unknown command") {
			_ = l.R.Del(ctx, key).Err()
		}
	}
}
