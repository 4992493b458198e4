package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"REDIS_URL":           "redis://localhost:6379/0",
		"POINTS_API_BASE_URL": "https://points.example.com/api/",
		"POINTS_RATE":         "",
		"PORT":                "",
	})
	require.NoError(t, err)
	require.Equal(t, "https://points.example.com/api", cfg.PointsAPIBaseURL)
	require.Equal(t, 1.0, cfg.PointsRate)
	require.True(t, cfg.FloorFinalTotal)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.Equal(t, 30*time.Second, cfg.SubmitLatchTTL)
	require.Equal(t, int64(64<<10), cfg.BodyLimitBytes)
	require.True(t, cfg.SecurityHeaders)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"REDIS_URL":                 "redis://localhost:6379/0",
		"POINTS_API_BASE_URL":       "https://points.example.com",
		"POINTS_RATE":               "10",
		"PRICING_FLOOR_FINAL_TOTAL": "false",
		"CORS_ALLOWED_ORIGINS":      "https://shop.example.com, https://admin.example.com",
		"CART_TTL":                  "bogus",
		"RETRY_MAX_ATTEMPTS":        "0",
	})
	require.NoError(t, err)
	require.Equal(t, 10.0, cfg.PointsRate)
	require.False(t, cfg.FloorFinalTotal)
	require.Equal(t, []string{"https://shop.example.com", "https://admin.example.com"}, cfg.CORSAllowedOrigins)
	require.Equal(t, 168*time.Hour, cfg.CartTTL)
	require.Equal(t, 1, cfg.RetryMaxAttempts)
}

func TestLoadRequiresUpstream(t *testing.T) {
	_, err := LoadForTests(map[string]string{
		"REDIS_URL":           "redis://localhost:6379/0",
		"POINTS_API_BASE_URL": "",
	})
	require.EqualError(t, err, "POINTS_API_BASE_URL is required")

	_, err = LoadForTests(map[string]string{
		"REDIS_URL":           "redis://localhost:6379/0",
		"POINTS_API_BASE_URL": "https://points.example.com",
		"POINTS_RATE":         "-1",
	})
	require.Error(t, err)

	_, err = LoadForTests(map[string]string{
		"REDIS_URL":           "redis://localhost:6379/0",
		"POINTS_API_BASE_URL": "https://points.example.com",
		"POINTS_RATE":         "",
		"SHIPPING_FLAT":       "-4.5",
	})
	require.EqualError(t, err, "SHIPPING_FLAT must not be negative")
}
