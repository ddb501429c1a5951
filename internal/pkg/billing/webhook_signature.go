package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v74/webhook"
)

// SignatureVerifier authenticates Stripe webhook deliveries against a set of
// secrets. Several secrets may be valid at once while one is being rotated.
type SignatureVerifier struct {
	secrets   []string
	tolerance time.Duration
}

// NewSignatureVerifier trims and deduplicates secrets. A non-positive
// tolerance uses the Stripe default.
func NewSignatureVerifier(secrets []string, tolerance time.Duration) (*SignatureVerifier, error) {
	seen := make(map[string]struct{}, len(secrets))
	cleaned := make([]string, 0, len(secrets))
	for _, raw := range secrets {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		cleaned = append(cleaned, s)
	}
	if len(cleaned) == 0 {
		return nil, ErrNoWebhookSecrets
	}
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &SignatureVerifier{secrets: cleaned, tolerance: tolerance}, nil
}

// Verify checks the Stripe-Signature header against each secret in order and
// decodes the payload once one matches.
func (v *SignatureVerifier) Verify(payload []byte, header string) (Event, error) {
	sig := strings.TrimSpace(header)
	if sig == "" {
		return Event{}, ErrMissingSignature
	}

	var lastErr error
	for _, secret := range v.secrets {
		err := webhook.ValidatePayloadWithTolerance(payload, sig, secret, v.tolerance)
		if err == nil {
			return DecodeStripeEvent(payload)
		}
		lastErr = err
	}
	return Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, lastErr)
}
