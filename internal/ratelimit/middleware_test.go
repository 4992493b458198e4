package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-rewards/internal/common"
)

func TestHandlerMiddlewareEnforcesLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	for name, lim := range map[string]Allower{
		"sliding": SlidingWindow{Client: client, Prefix: "ratelimit:"},
		"fixed":   mustFixed(t, client),
	} {
		t.Run(name, func(t *testing.T) {
			handler := Handler{
				Limiter: lim,
				Config: Config{
					Key:    func(*http.Request) string { return "static-" + name },
					Window: time.Minute,
					Max:    1,
				},
			}
			counted := handler.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/rewards/redeem", nil)
			rr1 := httptest.NewRecorder()
			counted.ServeHTTP(rr1, req.Clone(req.Context()))
			require.Equal(t, http.StatusOK, rr1.Code)

			rr2 := httptest.NewRecorder()
			counted.ServeHTTP(rr2, req.Clone(req.Context()))
			require.Equal(t, http.StatusTooManyRequests, rr2.Code)
			require.Equal(t, "1", rr2.Header().Get("X-RateLimit-Limit"))
			require.Equal(t, "0", rr2.Header().Get("X-RateLimit-Remaining"))
			require.Contains(t, rr2.Body.String(), "RATE_LIMITED")
		})
	}
}

func mustFixed(t *testing.T, client *redis.Client) FixedWindow {
	t.Helper()
	lim, err := NewFixedWindow(client, "fixed")
	require.NoError(t, err)
	return lim
}

func TestHandlerMiddlewareOnError(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })
	called := false
	handler := Handler{
		Limiter: SlidingWindow{Client: client, Prefix: "ratelimit:"},
		Config: Config{
			Key:    func(*http.Request) string { return "err" },
			Window: time.Second,
			Max:    1,
		},
		OnError: func(error) { called = true },
	}

	counted := handler.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rr := httptest.NewRecorder()
	counted.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/test", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, called)
}

func TestSessionKey(t *testing.T) {
	key := SessionKey("redeem")
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "10.0.0.9:5555"
	require.Equal(t, "redeem:ip:10.0.0.9", key(req))

	req = req.WithContext(common.WithSession(req.Context(), common.Session{ID: "s-1"}))
	require.Equal(t, "redeem:session:s-1", key(req))

	req = req.WithContext(common.WithSession(req.Context(), common.Session{ID: "s-1", UserID: "u-1"}))
	require.Equal(t, "redeem:user:u-1", key(req))
}

func TestSessionKeyBehindRealIP(t *testing.T) {
	var got string
	handler := middleware.RealIP(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = SessionKey("checkout")(r)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
	req.RemoteAddr = "10.0.0.1:443"
	req.Header.Set("X-Real-IP", "203.0.113.7")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, "checkout:ip:203.0.113.7", got)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
	req.RemoteAddr = "192.0.2.10"
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, "checkout:ip:192.0.2.10", got)
}
