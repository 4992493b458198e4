package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingScript trims expired events, admits the new one only while the
// window has room, and reports the oldest event still counted. Rejected
// attempts are not recorded, so a shopper hammering redeem does not push
// their own reset further out.
var slidingScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[2])
local count = redis.call('ZCARD', KEYS[1])
local allowed = 0
if count < tonumber(ARGV[3]) then
	redis.call('ZADD', KEYS[1], ARGV[1], ARGV[5])
	count = count + 1
	allowed = 1
end
redis.call('PEXPIRE', KEYS[1], ARGV[4])
local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
return {allowed, count, oldest[2] or ARGV[1]}
`)

// SlidingWindow limits per shopper key with a Redis sorted set of event
// timestamps in microseconds.
type SlidingWindow struct {
	Client *redis.Client
	Prefix string
	Now    func() time.Time
}

func (l SlidingWindow) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// Allow records one event for key if fewer than max happened within window.
// reset is when the oldest counted event leaves the window.
func (l SlidingWindow) Allow(ctx context.Context, key string, window time.Duration, max int) (allowed bool, remaining int, reset time.Time, err error) {
	now := l.now()
	if l.Client == nil || max <= 0 || window <= 0 {
		return true, max, now.Add(window), nil
	}

	at := now.UnixMicro()
	res, err := slidingScript.Run(ctx, l.Client, []string{l.Prefix + key},
		strconv.FormatInt(at, 10),
		strconv.FormatInt(at-window.Microseconds(), 10),
		max,
		window.Milliseconds(),
		strconv.FormatInt(at, 36)+"-"+uuid.NewString(),
	).Slice()
	if err != nil {
		return false, 0, now.Add(window), err
	}
	if len(res) != 3 {
		return false, 0, now.Add(window), fmt.Errorf("sliding window: unexpected reply %v", res)
	}

	admitted, _ := res[0].(int64)
	count, _ := res[1].(int64)
	oldest := at
	if score, perr := strconv.ParseFloat(fmt.Sprint(res[2]), 64); perr == nil {
		oldest = int64(score)
	}
	remaining = max - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return admitted == 1, remaining, time.UnixMicro(oldest).Add(window), nil
}
