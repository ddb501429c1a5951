package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseEnviron() map[string]string {
	return map[string]string{
		"STRIPE_WEBHOOK_SECRETS": "whsec_new, whsec_old",
		"STRIPE_PRICE_CATALOG":   "price_basic:basic,price_pro:pro,price_pro_y:pro-annual",
		"METRICS_PASSWORD":       "correct-horse-battery",
	}
}

func TestLoadBillingDefaults(t *testing.T) {
	cfg, err := LoadBilling(baseEnviron())
	require.NoError(t, err)

	assert.Equal(t, []string{"whsec_new", "whsec_old"}, cfg.Secrets())
	assert.Equal(t, map[string]string{
		"price_basic": "basic",
		"price_pro":   "pro",
		"price_pro_y": "pro-annual",
	}, cfg.PriceCatalog)
	assert.Equal(t, 5*time.Minute, cfg.WebhookTolerance)
	assert.Equal(t, 5*time.Second, cfg.LookupTimeout)
	assert.Equal(t, 2*time.Minute, cfg.EventLockTTL)
	assert.Equal(t, "@every 1h", cfg.ExpirySweepCron)
	assert.Equal(t, 24*time.Hour, cfg.ExpiryGrace)
	assert.Equal(t, "@every 5m", cfg.CounterFlushCron)
	assert.Empty(t, cfg.StripeSecretKey)
	assert.Equal(t, "admin", cfg.MetricsUser)
	assert.Equal(t, "correct-horse-battery", cfg.MetricsPassword)
}

func TestLoadBillingLegacySecret(t *testing.T) {
	environ := baseEnviron()
	delete(environ, "STRIPE_WEBHOOK_SECRETS")
	environ["STRIPE_WEBHOOK_SECRET"] = "whsec_legacy"
	environ["STRIPE_WEBHOOK_TOLERANCE"] = "90s"

	cfg, err := LoadBilling(environ)
	require.NoError(t, err)
	assert.Equal(t, []string{"whsec_legacy"}, cfg.Secrets())
	assert.Equal(t, 90*time.Second, cfg.WebhookTolerance)
}

func TestLoadBillingErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]string)
	}{
		{"no secrets", func(e map[string]string) { delete(e, "STRIPE_WEBHOOK_SECRETS") }},
		{"blank secrets", func(e map[string]string) { e["STRIPE_WEBHOOK_SECRETS"] = " , " }},
		{"no catalog", func(e map[string]string) { delete(e, "STRIPE_PRICE_CATALOG") }},
		{"bad duration", func(e map[string]string) { e["STRIPE_WEBHOOK_TOLERANCE"] = "soon" }},
		{"zero tolerance", func(e map[string]string) { e["STRIPE_WEBHOOK_TOLERANCE"] = "0s" }},
		{"no api password", func(e map[string]string) { delete(e, "METRICS_PASSWORD") }},
		{"short api password", func(e map[string]string) { e["METRICS_PASSWORD"] = "admin" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			environ := baseEnviron()
			tt.mutate(environ)
			_, err := LoadBilling(environ)
			assert.ErrorIs(t, err, ErrParsingConfig)
		})
	}
}
