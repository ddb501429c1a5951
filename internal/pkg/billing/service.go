package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/creditsync/app/models"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Service reconciles provider billing events into subscriptions and the
// credit ledger.
type Service struct {
	repo    Repository
	catalog PriceCatalog
	lookup  ProviderLookup
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLookup sets the provider API used to fill in missing customer metadata
// and billing periods. Without one those fallbacks are skipped.
func WithLookup(lookup ProviderLookup) Option {
	return func(s *Service) { s.lookup = lookup }
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a billing service from an injected repository.
func NewService(repo Repository, catalog PriceCatalog, opts ...Option) *Service {
	s := &Service{repo: repo, catalog: catalog, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, catalog PriceCatalog, opts ...Option) *Service {
	return NewService(NewRepository(db), catalog, opts...)
}

// RecordWebhookEvent persists webhook payloads idempotently.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	_ = ctx
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.BillingWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
		Attempts:        1,
	}
	return s.repo.CreateWebhookEventIfNotExists(event)
}

// BeginWebhookEvent records ev and reports whether it was already applied.
// Events whose earlier attempt failed or never finished are handed back for
// another attempt.
func (s *Service) BeginWebhookEvent(ctx context.Context, ev Event) (*models.BillingWebhookEvent, bool, error) {
	created, stored, err := s.RecordWebhookEvent(ctx, WebhookEventInput{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: ev.ID,
		EventType:       string(ev.Type),
		PayloadJSON:     string(ev.Raw),
		SignatureValid:  true,
	})
	if err != nil {
		return nil, false, fmt.Errorf("billing: record event %s: %w", ev.ID, err)
	}
	if created {
		return stored, false, nil
	}
	if stored.Succeeded() {
		log.Infof("[Billing] event %s (%s) already processed, skipping", ev.ID, ev.Type)
		return stored, true, nil
	}
	if err := s.repo.MarkWebhookAttempt(stored.ID); err != nil {
		return nil, false, fmt.Errorf("billing: mark attempt for event %s: %w", ev.ID, err)
	}
	log.Infof("[Billing] reprocessing event %s (%s), attempt %d, previous error: %q", ev.ID, ev.Type, stored.Attempts+1, stored.ProcessingError)
	return stored, false, nil
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	_ = ctx
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(webhookEventID, errMsg)
}

// HandleEvent applies one verified event. A returned error means the event
// should be retried by the provider; skips and ignores are not errors.
func (s *Service) HandleEvent(ctx context.Context, ev Event) (Outcome, error) {
	switch ev.Type {
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		return s.handleSubscriptionChange(ctx, ev)
	case EventSubscriptionDeleted:
		return s.handleSubscriptionDeleted(ctx, ev)
	case EventCheckoutSessionCompleted:
		return s.handleCheckoutCompleted(ctx, ev)
	case EventPaymentIntentSucceeded:
		return s.handlePaymentIntentSucceeded(ctx, ev)
	case EventPaymentIntentFailed:
		return s.handlePaymentIntentFailed(ctx, ev)
	case EventInvoicePaymentSucceeded:
		if inv := ev.Invoice; inv != nil {
			log.Infof("[Billing] invoice %s paid (%d, reason %s) for subscription %s", inv.ID, inv.AmountPaid, inv.BillingReason, inv.SubscriptionID)
		}
		return OutcomeIgnored, nil
	default:
		log.Debugf("[Billing] ignoring unhandled event type %s (%s)", ev.Type, ev.ID)
		return OutcomeIgnored, nil
	}
}

// Process runs the full idempotent pipeline for one verified event: record,
// dedupe, apply, mark.
func (s *Service) Process(ctx context.Context, ev Event) (Outcome, error) {
	stored, applied, err := s.BeginWebhookEvent(ctx, ev)
	if err != nil {
		return "", err
	}
	if applied {
		return OutcomeDuplicate, nil
	}

	outcome, handleErr := s.HandleEvent(ctx, ev)
	if handleErr != nil {
		log.Errorf("[Billing] event %s (%s) failed: %v", ev.ID, ev.Type, handleErr)
	}
	if err := s.MarkWebhookProcessed(ctx, stored.ID, handleErr); err != nil {
		log.Errorf("[Billing] could not mark event %s processed: %v", ev.ID, err)
	}
	return outcome, handleErr
}

// Balance returns the user's credit balance as the sum of the ledger.
func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	_ = ctx
	return s.repo.SumLedger(userID)
}

// CachedBalance returns the denormalized user_credits counter.
func (s *Service) CachedBalance(ctx context.Context, userID string) (int64, error) {
	_ = ctx
	return s.repo.GetUserCredits(userID)
}

// applyGrant inserts a ledger entry keyed by its reference id. The second
// insert for the same reference is a no-op and reports false.
func (s *Service) applyGrant(tx Repository, g creditGrant) (bool, error) {
	entry := &models.CreditTransaction{
		UserID:        g.UserID,
		Amount:        g.Amount,
		Type:          g.Type,
		Description:   g.Description,
		ReferenceID:   g.ReferenceID,
		ReferenceType: g.ReferenceType,
	}
	if g.Breakdown != nil {
		raw, err := json.Marshal(g.Breakdown)
		if err != nil {
			return false, fmt.Errorf("billing: encode breakdown for %s: %w", g.ReferenceID, err)
		}
		entry.Breakdown = datatypes.JSON(raw)
	}

	created, err := tx.CreateLedgerEntryIfNotExists(entry)
	if err != nil {
		return false, fmt.Errorf("billing: insert ledger entry %s: %w", g.ReferenceID, err)
	}
	if !created {
		log.Infof("[Billing] ledger reference %s already applied, skipping", g.ReferenceID)
		return false, nil
	}
	if g.Amount != 0 {
		if err := tx.IncrementUserCredits(g.UserID, g.Amount); err != nil {
			return false, fmt.Errorf("billing: update cached credits for %s: %w", g.UserID, err)
		}
	}
	log.Infof("[Billing] granted %d credits to user %s (%s, ref %s)", g.Amount, g.UserID, g.ReferenceType, g.ReferenceID)
	return true, nil
}

func (s *Service) writeAudit(tx Repository, sub *models.BillingSubscription, ev Event, action Action, fromTier string, credits int64, reason string, breakdown any) error {
	audit := &models.SubscriptionAudit{
		UserID:                 sub.UserID,
		SubscriptionID:         sub.ID,
		ProviderSubscriptionID: sub.ProviderSubscriptionID,
		ProviderEventID:        ev.ID,
		Action:                 string(action),
		FromTier:               fromTier,
		ToTier:                 sub.Tier,
		CreditsGranted:         credits,
		Reason:                 reason,
	}
	if breakdown != nil {
		raw, err := json.Marshal(breakdown)
		if err != nil {
			return fmt.Errorf("billing: encode audit breakdown: %w", err)
		}
		audit.Breakdown = datatypes.JSON(raw)
	}
	if err := tx.CreateAudit(audit); err != nil {
		return fmt.Errorf("billing: write audit for %s: %w", sub.ProviderSubscriptionID, err)
	}
	return nil
}
