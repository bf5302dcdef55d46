package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ncecere/viberank/internal/auth"
	"github.com/ncecere/viberank/internal/cache"
	"github.com/ncecere/viberank/internal/config"
	"github.com/ncecere/viberank/internal/health"
	"github.com/ncecere/viberank/internal/leaderboard"
	"github.com/ncecere/viberank/internal/limits"
	"github.com/ncecere/viberank/internal/observability"
	"github.com/ncecere/viberank/internal/redisclient"
	"github.com/ncecere/viberank/internal/services/review"
	"github.com/ncecere/viberank/internal/storage/blob"
	"github.com/ncecere/viberank/internal/store"
	"github.com/ncecere/viberank/internal/submissions"
	"github.com/ncecere/viberank/internal/validation"
)

// Container aggregates runtime dependencies for handlers and services.
type Container struct {
	Config            *config.Config
	Store             store.Store
	Redis             *redis.Client
	Validator         *validation.Validator
	Submissions       *submissions.Service
	Leaderboard       *leaderboard.Reader
	Auth              *auth.Service
	RateLimiter       *limits.RateLimiter
	Idempotency       *cache.IdempotencyCache
	ResponseCache     *cache.ResponseCache
	Observability     *observability.Provider
	Archive           blob.Store
	Reviewer          review.Sink
	HealthMonitor     *health.Monitor
	Logger            *slog.Logger
	ReportingLocation *time.Location
}

// NewContainer builds a dependency container from the provided primitives.
// The redis client may be nil, in which case rate limits and caching are off.
func NewContainer(ctx context.Context, cfg *config.Config, st store.Store, redisClient *redis.Client) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}

	locName := strings.TrimSpace(cfg.Reporting.Timezone)
	if locName == "" {
		locName = "UTC"
	}
	reportingLoc, err := time.LoadLocation(locName)
	if err != nil {
		return nil, fmt.Errorf("load reporting timezone: %w", err)
	}

	logger := slog.Default()

	authSvc, err := auth.NewService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("init auth: %w", err)
	}

	obsProvider, err := observability.Setup(ctx, cfg.Observability)
	if err != nil {
		return nil, fmt.Errorf("setup observability: %w", err)
	}

	validator := validation.New(validation.Limits{
		MaxDailyCost:    cfg.Validation.MaxDailyCost,
		MaxDailyTokens:  cfg.Validation.MaxDailyTokens,
		MinCostPerToken: cfg.Validation.MinCostPerToken,
		MaxCostPerToken: cfg.Validation.MaxCostPerToken,
	})

	reviewer := review.NewNotifier(cfg.Review, logger)
	submissionSvc := submissions.NewService(st, validator, logger).WithNotifier(reviewer)

	var archive blob.Store
	if cfg.Archive.Enabled {
		archive, err = blob.New(ctx, cfg.Archive)
		if err != nil {
			return nil, fmt.Errorf("init archive store: %w", err)
		}
		submissionSvc.WithArchiver(blob.NewReportArchiver(archive, cfg.Archive.Prefix))
	}

	reader := leaderboard.NewReader(st, leaderboard.Config{
		DefaultLimit: cfg.Leaderboard.DefaultLimit,
		MaxLimit:     cfg.Leaderboard.MaxLimit,
		ScanCap:      cfg.Leaderboard.ScanCap,
	})

	checks := map[string]health.Check{"store": st.Ping}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisclient.Ping(ctx, redisClient) }
	}

	return &Container{
		Config:            cfg,
		Store:             st,
		Redis:             redisClient,
		Validator:         validator,
		Submissions:       submissionSvc,
		Leaderboard:       reader,
		Auth:              authSvc,
		RateLimiter:       limits.NewRateLimiter(redisClient),
		Idempotency:       cache.NewIdempotencyCache(redisClient, 24*time.Hour),
		ResponseCache:     cache.NewResponseCache(redisClient, cfg.Leaderboard.CacheTTL),
		Observability:     obsProvider,
		Archive:           archive,
		Reviewer:          reviewer,
		HealthMonitor:     health.NewMonitor(checks, 30*time.Second, 2*time.Second, logger),
		Logger:            logger,
		ReportingLocation: reportingLoc,
	}, nil
}

// Health pings the store and, when configured, redis.
func (c *Container) Health(ctx context.Context) map[string]string {
	return c.HealthMonitor.Check(ctx)
}

// InvalidateReads bumps the leaderboard cache version after a write.
func (c *Container) InvalidateReads(ctx context.Context) {
	if err := c.ResponseCache.Invalidate(ctx); err != nil {
		c.Logger.WarnContext(ctx, "invalidate leaderboard cache", slog.String("error", err.Error()))
	}
}
