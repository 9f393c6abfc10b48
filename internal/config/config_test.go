package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgconfig "github.com/utafrali/storefront/pkg/config"
)

func load(t *testing.T, env map[string]string) (*Config, error) {
	t.Helper()
	return Load(pkgconfig.WithEnvironment(env))
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(t, map[string]string{})

	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, 8090, cfg.HTTPPort)
	assert.Equal(t, "http://localhost:8080/api", cfg.APIBaseURL)
	assert.Equal(t, StorageMemory, cfg.StorageDriver)
	assert.Equal(t, 3*time.Second, cfg.GeolocationTimeout)
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTTL)
	assert.Equal(t, 10, cfg.RecentlyViewedMax)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := load(t, map[string]string{
		"NEXT_PUBLIC_API_BASE_URL": "https://api.example.cm",
		"STORAGE_DRIVER":           "redis",
		"KAFKA_BROKERS":            "k1:9092,k2:9092",
		"SESSION_IDLE_TTL":         "5m",
	})

	require.NoError(t, err)
	assert.Equal(t, "https://api.example.cm", cfg.APIBaseURL)
	assert.Equal(t, StorageRedis, cfg.StorageDriver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 5*time.Minute, cfg.SessionIdleTTL)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"port out of range", map[string]string{"STOREFRONT_HTTP_PORT": "70000"}, "invalid HTTP port"},
		{"unknown driver", map[string]string{"STORAGE_DRIVER": "sqlite"}, "STORAGE_DRIVER"},
		{"relative api url", map[string]string{"NEXT_PUBLIC_API_BASE_URL": "api"}, "NEXT_PUBLIC_API_BASE_URL"},
		{"zero geolocation timeout", map[string]string{"GEOLOCATION_TIMEOUT": "0s"}, "GEOLOCATION_TIMEOUT"},
		{"recent limit", map[string]string{"RECENTLY_VIEWED_MAX": "0"}, "RECENTLY_VIEWED_MAX"},
		{"sample rate", map[string]string{"OTEL_SAMPLE_RATE": "1.5"}, "OTEL_SAMPLE_RATE"},
		{"failure ratio", map[string]string{"CB_FAILURE_RATIO": "0"}, "CB_FAILURE_RATIO"},
		{"bad duration", map[string]string{"SESSION_TTL": "forever"}, "parse config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := load(t, tt.env)
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAllowedOrigins(t *testing.T) {
	cfg, err := load(t, map[string]string{"NEXT_PUBLIC_SITE_URL": "https://shop.example.cm/fr"})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://shop.example.cm"}, cfg.AllowedOrigins())

	cfg.CORSAllowedOrigins = []string{"https://a.example", "https://b.example"}
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins())
}

func TestAllowedOrigins_Development(t *testing.T) {
	cfg, err := load(t, map[string]string{"ENVIRONMENT": "development"})
	require.NoError(t, err)
	assert.Nil(t, cfg.AllowedOrigins())

	cfg, err = load(t, map[string]string{
		"ENVIRONMENT":          "development",
		"CORS_ALLOWED_ORIGINS": "https://shop.example.cm",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://shop.example.cm"}, cfg.AllowedOrigins())
}
