package limits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrLimitExceeded = errors.New("rate limit exceeded")

// Limit allows Requests per fixed Window. A zero limit disables the check.
type Limit struct {
	Requests int
	Window   time.Duration
}

func (l Limit) Enabled() bool { return l.Requests > 0 && l.Window > 0 }

// Decision reports the state of the counter after a call to Allow.
type Decision struct {
	Remaining int
	ResetAt   time.Time
}

// RateLimiter counts requests per key in fixed windows stored in Redis.
type RateLimiter struct {
	client *redis.Client
	now    func() time.Time
}

func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{client: client, now: time.Now}
}

// Allow records one request for key and returns ErrLimitExceeded once the
// window's budget is spent. A limiter without a client allows everything.
func (l *RateLimiter) Allow(ctx context.Context, key string, limit Limit) (Decision, error) {
	if l == nil || l.client == nil || !limit.Enabled() {
		return Decision{Remaining: limit.Requests}, nil
	}

	bucket := l.now().UTC().UnixNano() / int64(limit.Window)
	redisKey := fmt.Sprintf("rl:%s:%d", key, bucket)
	resetAt := time.Unix(0, (bucket+1)*int64(limit.Window)).UTC()

	cnt, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return Decision{}, err
	}
	if cnt == 1 {
		l.client.Expire(ctx, redisKey, limit.Window)
	}
	remaining := limit.Requests - int(cnt)
	if remaining < 0 {
		return Decision{Remaining: 0, ResetAt: resetAt}, ErrLimitExceeded
	}
	return Decision{Remaining: remaining, ResetAt: resetAt}, nil
}

// SubmitIPKey namespaces per-IP submission counters.
func SubmitIPKey(ip string) string { return "submit:ip:" + ip }

func SubmitUserKey(username string) string { return "submit:user:" + username }

func ReadIPKey(ip string) string { return "read:ip:" + ip }
