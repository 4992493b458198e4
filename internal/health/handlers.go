package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/noah-isme/storefront-rewards/internal/common"
)

// Checker represents dependencies that can be probed for readiness.
type Checker interface {
	PingRedis(ctx context.Context, timeout time.Duration) error
	PingUpstream(ctx context.Context, timeout time.Duration) error
}

var ready atomic.Bool

func init() { ready.Store(true) }

// SetReady flips readiness; the server marks itself not ready while draining.
func SetReady(v bool) { ready.Store(v) }

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Checker         Checker
	RedisTimeout    time.Duration
	UpstreamTimeout time.Duration
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on dependency probes.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !ready.Load() {
		common.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting down"})
		return
	}
	if h.Checker == nil {
		common.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "dependencies unavailable"})
		return
	}
	ctx := r.Context()
	redisStatus := "ok"
	if err := h.Checker.PingRedis(ctx, timeoutOr(h.RedisTimeout, 300*time.Millisecond)); err != nil {
		redisStatus = err.Error()
	}
	upstreamStatus := "ok"
	if err := h.Checker.PingUpstream(ctx, timeoutOr(h.UpstreamTimeout, time.Second)); err != nil {
		upstreamStatus = err.Error()
	}
	status := http.StatusOK
	if redisStatus != "ok" || upstreamStatus != "ok" {
		status = http.StatusServiceUnavailable
	}
	common.JSON(w, status, map[string]string{
		"redis":    redisStatus,
		"upstream": upstreamStatus,
	})
}

func timeoutOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
