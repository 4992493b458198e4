package obs

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-rewards/internal/common"
	"github.com/noah-isme/storefront-rewards/internal/pricing"
)

func TestHTTPMetricsLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewHTTPMetrics("storefront", []float64{1, 10}, registry)
	handler := HTTPObs{Metrics: metrics}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	req = req.WithContext(withRoute(req.Context(), "/health/ready"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodGet, "/health/ready", "204")))
	require.NotZero(t, testutil.CollectAndCount(metrics.ReqDur))
	require.Zero(t, testutil.ToFloat64(metrics.InFlight))

	again := NewHTTPMetrics("storefront", nil, registry)
	require.Same(t, metrics.ReqTotal, again.ReqTotal)
}

func TestRequestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "json", "info")

	var ctxLogged bool
	handler := RequestLogger{Logger: logger}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxLogged = zerolog.Ctx(r.Context()).GetLevel() != zerolog.Disabled
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", nil)
	req = req.WithContext(common.WithSession(req.Context(), common.Session{ID: "s-9", UserID: "u-1", Class: pricing.Business}))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.True(t, ctxLogged)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "http_request", entry["message"])
	require.Equal(t, float64(http.StatusCreated), entry["status"])
	require.Equal(t, "s-9", entry["session_id"])
	require.Equal(t, "u-1", entry["user_id"])
}

func TestDomainMetricsRegisterOnce(t *testing.T) {
	registry := prometheus.NewRegistry()
	MustRegisterDomainMetrics("storefront", registry)
	MustRegisterDomainMetrics("storefront", registry)

	CountRedemption("success")
	CountOrderSubmit("retail", "success")
	ObservePointsDiscount(30)
	CountBalanceRefresh("redeem", "ok")

	require.Equal(t, 1.0, testutil.ToFloat64(RedemptionTotal.WithLabelValues("success")))
	require.Equal(t, 1.0, testutil.ToFloat64(OrderSubmitTotal.WithLabelValues("retail", "success")))
}

func TestRequestLoggerUsesRoutePattern(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "json", "info")

	r := chi.NewRouter()
	r.Use(RequestLogger{Logger: logger}.Middleware, RoutePatternMiddleware)
	r.Delete("/api/v1/cart/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/api/v1/cart/items/sku-123", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "/api/v1/cart/items/{id}", entry["route"])
	require.Equal(t, "/api/v1/cart/items/sku-123", entry["path"])
}
