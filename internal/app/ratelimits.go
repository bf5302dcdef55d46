package app

import (
	"context"
	"strings"

	"github.com/ncecere/viberank/internal/config"
	"github.com/ncecere/viberank/internal/limits"
)

func limitFromConfig(cfg config.WindowLimit) limits.Limit {
	return limits.Limit{Requests: cfg.Requests, Window: cfg.Window}
}

// AllowSubmit charges one submission against the caller's IP and username.
// The IP bucket is checked first so rejected anonymous floods do not spend
// the user's budget.
func (c *Container) AllowSubmit(ctx context.Context, ip, username string) (limits.Decision, error) {
	decision, err := c.RateLimiter.Allow(ctx, limits.SubmitIPKey(ip), limitFromConfig(c.Config.RateLimits.SubmitPerIP))
	if err != nil {
		return decision, err
	}
	return c.RateLimiter.Allow(ctx, limits.SubmitUserKey(strings.ToLower(username)), limitFromConfig(c.Config.RateLimits.SubmitPerUser))
}

func (c *Container) AllowRead(ctx context.Context, ip string) (limits.Decision, error) {
	return c.RateLimiter.Allow(ctx, limits.ReadIPKey(ip), limitFromConfig(c.Config.RateLimits.ReadPerIP))
}
