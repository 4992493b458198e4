package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/storefront-rewards/internal/balance"
	"github.com/noah-isme/storefront-rewards/internal/cart"
	"github.com/noah-isme/storefront-rewards/internal/checkout"
	"github.com/noah-isme/storefront-rewards/internal/common"
	"github.com/noah-isme/storefront-rewards/internal/health"
	"github.com/noah-isme/storefront-rewards/internal/obs"
	"github.com/noah-isme/storefront-rewards/internal/ratelimit"
	"github.com/noah-isme/storefront-rewards/internal/redemption"
	"github.com/noah-isme/storefront-rewards/internal/rewards"
	"github.com/noah-isme/storefront-rewards/internal/security"
)

// RouterOptions selects the optional middleware of the HTTP surface.
type RouterOptions struct {
	Metrics *obs.HTTPMetrics
	Tracing bool
	// Pprof is mounted under /debug/pprof when set.
	Pprof http.Handler
}

// NewRouter builds the storefront HTTP API.
func NewRouter(d *Dependencies, opts RouterOptions) http.Handler {
	cfg := d.Config
	cartHandler := &cart.Handler{Svc: d.Cart, Balance: d.Balance, Formatter: d.Formatter, Currency: cfg.CurrencyCode}
	rewardsHandler := &rewards.Handler{Svc: d.Rewards, Balance: d.Balance}
	balanceHandler := &balance.Handler{Svc: d.Balance}
	redeemHandler := &redemption.Handler{Svc: d.Redemption}
	checkoutHandler := &checkout.Handler{Svc: d.Checkout, Formatter: d.Formatter, Currency: cfg.CurrencyCode}
	healthHandler := health.Handler{Checker: d}

	submitLimit := func(scope string) func(http.Handler) http.Handler {
		return ratelimit.Handler{
			Limiter: d.Limiter,
			Config:  ratelimit.Config{Key: ratelimit.SessionKey(scope), Window: cfg.RateLimitWindow, Max: cfg.RateLimitMax},
			OnError: func(err error) { d.Logger.Warn().Err(err).Str("scope", scope).Msg("rate limiter unavailable") },
		}.Middleware
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if opts.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	if opts.Metrics != nil {
		r.Use(obs.HTTPObs{Metrics: opts.Metrics}.Middleware)
	}
	r.Use(security.Headers{Enable: cfg.SecurityHeaders, EnableHSTS: cfg.SecurityHSTS}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)
	r.Use(common.SessionMiddleware)
	r.Use(obs.RequestLogger{Logger: d.Logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg.CORSAllowedOrigins),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", common.HeaderIdempotencyKey, common.HeaderSessionID, common.HeaderUserID, common.HeaderAccountClass},
		ExposedHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		MaxAge:         300,
	}))

	if opts.Metrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}
	if opts.Pprof != nil {
		r.Mount("/debug/pprof", opts.Pprof)
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Route("/cart", func(c chi.Router) {
			c.Use(common.RequireSession)
			c.Get("/", cartHandler.Get)
			c.Delete("/", cartHandler.Clear)
			c.Post("/items", cartHandler.AddItem)
			c.Patch("/items/{id}", cartHandler.UpdateItem)
			c.Delete("/items/{id}", cartHandler.RemoveItem)
		})

		v.With(common.RequireUser).Get("/points/balance", balanceHandler.Get)

		v.Route("/rewards", func(rw chi.Router) {
			rw.Use(common.RequireSession)
			rw.Route("/cart", func(c chi.Router) {
				c.Get("/", rewardsHandler.Get)
				c.Delete("/", rewardsHandler.Clear)
				c.Post("/items", rewardsHandler.AddItem)
				c.Patch("/items/{id}", rewardsHandler.UpdateItem)
				c.Delete("/items/{id}", rewardsHandler.RemoveItem)
				c.Post("/items/{id}/increment", rewardsHandler.Increment)
				c.Post("/items/{id}/decrement", rewardsHandler.Decrement)
			})
			rw.With(common.RequireUser, submitLimit("redeem"), d.Idem.Middleware).Post("/redeem", redeemHandler.Redeem)
		})

		v.With(common.RequireSession, common.RequireUser, submitLimit("checkout"), d.Idem.Middleware).Post("/checkout", checkoutHandler.Checkout)
	})
	return r
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
