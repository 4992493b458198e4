package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-rewards/internal/balance"
	"github.com/noah-isme/storefront-rewards/internal/cache"
	"github.com/noah-isme/storefront-rewards/internal/cart"
	"github.com/noah-isme/storefront-rewards/internal/checkout"
	"github.com/noah-isme/storefront-rewards/internal/common"
	"github.com/noah-isme/storefront-rewards/internal/config"
	"github.com/noah-isme/storefront-rewards/internal/lock"
	"github.com/noah-isme/storefront-rewards/internal/pointsapi"
	"github.com/noah-isme/storefront-rewards/internal/pricing"
	"github.com/noah-isme/storefront-rewards/internal/ratelimit"
	"github.com/noah-isme/storefront-rewards/internal/redemption"
	"github.com/noah-isme/storefront-rewards/internal/resilience"
	"github.com/noah-isme/storefront-rewards/internal/rewards"
)

// Dependencies holds the services shared by the API and the worker.
type Dependencies struct {
	Config          *config.Config
	Logger          zerolog.Logger
	Redis           *redis.Client
	TaskClient      *asynq.Client
	MetricsRegistry prometheus.Registerer
	Points          *pointsapi.Client
	Formatter       pricing.Formatter
	Limiter         ratelimit.Allower
	Idem            common.Idem

	Cart       *cart.Service
	Rewards    *rewards.Service
	Balance    *balance.Service
	Redemption *redemption.Service
	Checkout   *checkout.Service

	closers []io.Closer
}

// Options tweaks how dependencies are built.
type Options struct {
	// Redis overrides the client built from the configured URL.
	Redis *redis.Client
	// InstrumentRedis enables redisotel tracing and metrics.
	InstrumentRedis bool
	// Tasks enables the asynq client used to defer balance refreshes.
	Tasks bool
}

// New wires every service from configuration.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts Options) (*Dependencies, error) {
	if cfg == nil {
		return nil, errors.New("app: config required")
	}
	d := &Dependencies{Config: cfg, Logger: logger, Formatter: pricing.NewFormatter(cfg.DisplayLocale)}

	d.Redis = opts.Redis
	if d.Redis == nil {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		d.Redis = redis.NewClient(redisOpts)
		d.closers = append(d.closers, d.Redis)
	}
	if opts.InstrumentRedis {
		if err := redisotel.InstrumentTracing(d.Redis); err != nil {
			logger.Error().Err(err).Msg("instrument redis tracing")
		}
		if cfg.MetricsEnabled {
			if err := redisotel.InstrumentMetrics(d.Redis); err != nil {
				logger.Error().Err(err).Msg("instrument redis metrics")
			}
		}
	}
	if err := d.Redis.Ping(ctx).Err(); err != nil {
		d.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	breakerLogger := logger.With().Str("component", "breaker").Logger()
	d.Points = &pointsapi.Client{
		BaseURL: cfg.PointsAPIBaseURL,
		Token:   cfg.PointsAPIToken,
		HTTP: resilience.HTTPClient{
			Client: pointsapi.NewHTTPClient(),
			Breaker: resilience.NewBreaker(resilience.BreakerConfig{
				Target:       "points-api",
				MinRequests:  cfg.CircuitPointsMinReq,
				FailureRatio: cfg.CircuitPointsFailureRate,
				OpenFor:      cfg.CircuitPointsOpenFor,
				Logger:       &breakerLogger,
			}),
			Target:      "points-api",
			BaseBackoff: cfg.RetryBase,
			MaxAttempts: cfg.RetryMaxAttempts,
			Jitter:      float64(cfg.RetryJitterPercent),
			Timeout:     cfg.PointsAPITimeout,
		},
	}

	var queue *balance.Enqueuer
	if opts.Tasks {
		redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("parse task queue redis url: %w", err)
		}
		d.TaskClient = asynq.NewClient(redisOpt)
		d.closers = append(d.closers, d.TaskClient)
		queue = &balance.Enqueuer{Client: d.TaskClient, MaxRetry: cfg.QueueMaxRetry, Delay: 5 * time.Second}
	}

	d.Cart = &cart.Service{
		Store: cache.NewStore(d.Redis, "storefront:", cfg.CartTTL),
		Pricing: cart.Pricing{
			PointsRate:  cfg.PointsRate,
			Shipping:    cfg.ShippingFlat,
			FloorAtZero: cfg.FloorFinalTotal,
		},
	}
	d.Rewards = &rewards.Service{Store: cache.NewStore(d.Redis, "storefront:", cfg.CartTTL)}
	d.Balance = &balance.Service{
		Fetcher: d.Points,
		Store:   cache.NewStore(d.Redis, "storefront:", cfg.BalanceCacheTTL),
		Queue:   queue,
		Logger:  logger.With().Str("component", "balance").Logger(),
	}
	latch := lock.Latch{R: d.Redis, TTL: cfg.SubmitLatchTTL}
	d.Redemption = &redemption.Service{
		Carts:    d.Rewards,
		Balances: d.Balance,
		Upstream: d.Points,
		Latch:    latch,
		Logger:   logger.With().Str("component", "redemption").Logger(),
	}
	d.Checkout = &checkout.Service{
		Carts:    d.Cart,
		Balances: d.Balance,
		Upstream: d.Points,
		Latch:    latch,
		Logger:   logger.With().Str("component", "checkout").Logger(),
	}

	switch cfg.RateLimitBackend {
	case "fixed":
		fixed, err := ratelimit.NewFixedWindow(d.Redis, "storefront:ratelimit")
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("rate limiter store: %w", err)
		}
		d.Limiter = fixed
	default:
		d.Limiter = ratelimit.SlidingWindow{Client: d.Redis, Prefix: "storefront:ratelimit:"}
	}
	d.Idem = common.Idem{R: d.Redis, TTL: cfg.IdempotencyTTL}
	return d, nil
}

// PingRedis implements the readiness probe for Redis.
func (d *Dependencies) PingRedis(ctx context.Context, timeout time.Duration) error {
	if d.Redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return d.Redis.Ping(ctx).Err()
}

// PingUpstream implements the readiness probe for the points API.
func (d *Dependencies) PingUpstream(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return d.Points.Ping(ctx)
}

// Close releases the clients owned by the dependencies, newest first.
func (d *Dependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i].Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close dependency")
		}
	}
	d.closers = nil
}
