package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ManuelReschke/creditsync/internal/pkg/billing"
	"github.com/ManuelReschke/creditsync/internal/pkg/metrics/counter"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

const webhookTimeout = 15 * time.Second

// outcomeFailed and friends are counter labels for deliveries that never
// reached the reconciler or failed inside it.
const (
	outcomeFailed           = "failed"
	outcomeInFlight         = "in_flight"
	outcomeInvalidSignature = "invalid_signature"
	outcomeMissingSignature = "missing_signature"
	outcomeInvalidPayload   = "invalid_payload"
	unverifiedEventType     = "unverified"
)

// WebhookController receives Stripe webhook deliveries.
type WebhookController struct {
	svc      *billing.Service
	verifier *billing.SignatureVerifier
	lock     *billing.EventLock
	record   func(eventType, outcome string)
}

func NewWebhookController(svc *billing.Service, verifier *billing.SignatureVerifier, lock *billing.EventLock) *WebhookController {
	return &WebhookController{
		svc:      svc,
		verifier: verifier,
		lock:     lock,
		record:   recordWebhookOutcome,
	}
}

func (h *WebhookController) HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("Stripe-Signature"))

	ev, err := h.verifier.Verify(rawBody, signature)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrMissingSignature):
			log.Warnf("[Webhook] delivery without Stripe-Signature from %s", c.IP())
			h.record(unverifiedEventType, outcomeMissingSignature)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": outcomeMissingSignature})
		case errors.Is(err, billing.ErrMalformedEvent):
			log.Warnf("[Webhook] malformed event payload: %v", err)
			h.record(unverifiedEventType, outcomeInvalidPayload)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": outcomeInvalidPayload})
		default:
			log.Warnf("[Webhook] signature rejected: %v", err)
			h.record(unverifiedEventType, outcomeInvalidSignature)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": outcomeInvalidSignature})
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	unlock, err := h.lock.Acquire(ctx, ev.ID)
	if err != nil {
		log.Infof("[Webhook] event %s is already being processed", ev.ID)
		h.record(string(ev.Type), outcomeInFlight)
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "event_in_flight"})
	}
	defer unlock()

	outcome, err := h.svc.Process(ctx, ev)
	if err != nil {
		h.record(string(ev.Type), outcomeFailed)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "processing_failed", "event_id": ev.ID})
	}
	h.record(string(ev.Type), string(outcome))

	resp := fiber.Map{"received": true}
	switch outcome {
	case billing.OutcomeDuplicate:
		resp["duplicate"] = true
	case billing.OutcomeSkipped:
		resp["skipped"] = true
	case billing.OutcomeIgnored:
		resp["ignored"] = true
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

// HandleWebhookStats returns the webhook counters not yet flushed to the
// database.
func HandleWebhookStats(c *fiber.Ctx) error {
	snapshot, err := counter.Snapshot()
	if err != nil {
		log.Errorf("[Webhook] could not read counters: %v", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "counters_unavailable"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"pending": snapshot})
}

func recordWebhookOutcome(eventType, outcome string) {
	if err := counter.AddWebhookOutcome(eventType, outcome); err != nil {
		log.Debugf("[Webhook] counter update failed: %v", err)
	}
}
