package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

var ErrParsingConfig = errors.New("config: failed to parse billing configuration")

// Billing holds everything the reconciliation service needs from the
// environment.
type Billing struct {
	StripeSecretKey     string            `env:"STRIPE_SECRET_KEY"`
	WebhookSecrets      []string          `env:"STRIPE_WEBHOOK_SECRETS" envSeparator:","`
	LegacyWebhookSecret string            `env:"STRIPE_WEBHOOK_SECRET"`
	WebhookTolerance    time.Duration     `env:"STRIPE_WEBHOOK_TOLERANCE" envDefault:"5m" validate:"gt=0"`
	PriceCatalog        map[string]string `env:"STRIPE_PRICE_CATALOG" envSeparator:"," envKeyValSeparator:":" validate:"min=1"`
	LookupTimeout       time.Duration     `env:"STRIPE_LOOKUP_TIMEOUT" envDefault:"5s" validate:"gt=0"`

	EventLockTTL     time.Duration `env:"WEBHOOK_LOCK_TTL" envDefault:"2m" validate:"gt=0"`
	ExpirySweepCron  string        `env:"EXPIRY_SWEEP_CRON" envDefault:"@every 1h" validate:"required"`
	ExpiryGrace      time.Duration `env:"EXPIRY_GRACE" envDefault:"24h" validate:"gte=0"`
	CounterFlushCron string        `env:"COUNTER_FLUSH_CRON" envDefault:"@every 5m" validate:"required"`

	// Basic auth for /metrics and /api.
	MetricsUser     string `env:"METRICS_USER" envDefault:"admin" validate:"required"`
	MetricsPassword string `env:"METRICS_PASSWORD" validate:"required,min=12"`
}

// Secrets returns the rotating webhook secrets followed by the legacy single
// secret, trimmed and without empties.
func (b Billing) Secrets() []string {
	out := make([]string, 0, len(b.WebhookSecrets)+1)
	for _, s := range append(append([]string{}, b.WebhookSecrets...), b.LegacyWebhookSecret) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// LoadBilling parses the billing configuration from environ and validates it.
func LoadBilling(environ map[string]string) (Billing, error) {
	var cfg Billing
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Billing{}, errors.Join(ErrParsingConfig, err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return Billing{}, errors.Join(ErrParsingConfig, err)
	}
	if len(cfg.Secrets()) == 0 {
		return Billing{}, fmt.Errorf("%w: set STRIPE_WEBHOOK_SECRETS or STRIPE_WEBHOOK_SECRET", ErrParsingConfig)
	}
	return cfg, nil
}
