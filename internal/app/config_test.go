package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, StorageMemory, cfg.StorageDriver)
	assert.Equal(t, NotifyDirect, cfg.NotifyMode)
	assert.Equal(t, LockLocal, cfg.LockBackend)
	assert.Equal(t, "8.5", cfg.BillingDefaultTaxRate.String())
	assert.Equal(t, 30, cfg.BillingInvoiceDueDays)
	assert.Equal(t, "USD", cfg.BillingCurrency)
	assert.Equal(t, 24*time.Hour, cfg.VehicleLookupTTL)
	assert.Equal(t, time.UTC, cfg.Location())
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("PG_DSN", "postgres://shop@db/shop")
	t.Setenv("NOTIFY_MODE", "queue")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("BILLING_DEFAULT_TAX_RATE", "20")
	t.Setenv("BILLING_CURRENCY", "GBP")
	t.Setenv("WORKSHOP_TIMEZONE", "Europe/London")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "20", cfg.BillingDefaultTaxRate.String())
	assert.Equal(t, "Europe/London", cfg.Location().String())
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unknown storage", map[string]string{"STORAGE_DRIVER": "sqlite"}, "STORAGE_DRIVER"},
		{"queue without redis", map[string]string{"NOTIFY_MODE": "queue"}, "REDIS_ADDR"},
		{"redis locks without redis", map[string]string{"LOCK_BACKEND": "redis"}, "REDIS_ADDR"},
		{"unknown notify mode", map[string]string{"NOTIFY_MODE": "pigeon"}, "NOTIFY_MODE"},
		{"negative tax", map[string]string{"BILLING_DEFAULT_TAX_RATE": "-1"}, "TAX_RATE"},
		{"calendar without token", map[string]string{"CALENDAR_ENABLED": "true", "CALENDAR_ID": "shop"}, "CALENDAR_TOKEN"},
		{"bad timezone", map[string]string{"WORKSHOP_TIMEZONE": "Mars/Olympus"}, "WORKSHOP_TIMEZONE"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadConfigRejectsMalformedTaxRate(t *testing.T) {
	t.Setenv("BILLING_DEFAULT_TAX_RATE", "eight")
	_, err := LoadConfig()
	assert.Error(t, err)
}
