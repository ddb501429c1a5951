package billing

import "errors"

var (
	ErrUnknownTier    = errors.New("unknown subscription tier")
	ErrUnknownPrice   = errors.New("price id not in catalog")
	ErrInvalidCatalog = errors.New("invalid price catalog")

	ErrMissingSignature = errors.New("webhook signature header is missing")
	ErrInvalidSignature = errors.New("webhook signature verification failed")
	ErrNoWebhookSecrets = errors.New("no webhook secrets configured")
	ErrMalformedEvent   = errors.New("malformed billing event")

	ErrUnattributable = errors.New("billing event has no resolvable user")
	ErrInvalidPeriod  = errors.New("billing period end is not after its start")
	ErrEventInFlight  = errors.New("billing event is already being processed")
)
