package billing

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ManuelReschke/creditsync/app/models"
	"github.com/gofiber/fiber/v2/log"
)

// paymentReference is the ledger key for a one-off credit purchase. Checkout
// and payment intent events for the same payment share it.
func paymentReference(paymentKey string) string {
	return "payment:" + paymentKey
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, ev Event) (Outcome, error) {
	cs := ev.Checkout
	if cs == nil || cs.ID == "" {
		return "", fmt.Errorf("%w: %s without checkout session", ErrMalformedEvent, ev.Type)
	}

	userID := metadataUserID(cs.Metadata)
	if userID == "" {
		userID = strings.TrimSpace(cs.ClientReferenceID)
	}
	if userID == "" {
		log.Warnf("[Billing] checkout session %s has no user_id, skipping", cs.ID)
		return OutcomeSkipped, nil
	}

	key := cs.PaymentIntentID
	if key == "" {
		key = "cs:" + cs.ID
	}
	purchase := isCreditPurchase(cs.Metadata)
	paid := cs.PaymentStatus == "paid" || cs.PaymentStatus == "no_payment_required"

	err := s.repo.Transaction(ctx, func(tx Repository) error {
		payment := &models.Payment{
			UserID:            userID,
			PaymentIntentID:   key,
			CheckoutSessionID: cs.ID,
			Amount:            cs.AmountTotal,
			Currency:          cs.Currency,
			Status:            models.PaymentStatusPending,
			Type:              models.PaymentTypeSubscription,
		}
		if paid {
			payment.Status = models.PaymentStatusSucceeded
		}
		if purchase {
			payment.Type = models.PaymentTypeCreditPurchase
		}

		created, err := tx.CreatePaymentIfNotExists(payment)
		if err != nil {
			return fmt.Errorf("billing: record payment %s: %w", key, err)
		}
		if !created {
			log.Infof("[Billing] payment %s already recorded", key)
			if paid {
				if _, err := tx.UpdatePaymentStatus(key, models.PaymentStatusSucceeded); err != nil {
					return err
				}
			}
		}

		if !purchase || !paid {
			return nil
		}
		return s.grantCreditPurchase(tx, userID, key, cs.Metadata)
	})
	if err != nil {
		return "", err
	}
	return OutcomeProcessed, nil
}

func (s *Service) handlePaymentIntentSucceeded(ctx context.Context, ev Event) (Outcome, error) {
	pi := ev.PaymentIntent
	if pi == nil || pi.ID == "" {
		return "", fmt.Errorf("%w: %s without payment intent", ErrMalformedEvent, ev.Type)
	}
	userID := metadataUserID(pi.Metadata)
	purchase := isCreditPurchase(pi.Metadata)

	outcome := OutcomeProcessed
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		if userID != "" {
			payment := &models.Payment{
				UserID:          userID,
				PaymentIntentID: pi.ID,
				Amount:          pi.Amount,
				Currency:        pi.Currency,
				Status:          models.PaymentStatusSucceeded,
				Type:            models.PaymentTypeSubscription,
			}
			if purchase {
				payment.Type = models.PaymentTypeCreditPurchase
			}
			if _, err := tx.CreatePaymentIfNotExists(payment); err != nil {
				return fmt.Errorf("billing: record payment %s: %w", pi.ID, err)
			}
		}
		updated, err := tx.UpdatePaymentStatus(pi.ID, models.PaymentStatusSucceeded)
		if err != nil {
			return err
		}

		if userID == "" {
			if purchase {
				log.Warnf("[Billing] credit purchase %s has no user_id, not granting", pi.ID)
			}
			if updated == 0 {
				outcome = OutcomeSkipped
			}
			return nil
		}
		if !purchase {
			return nil
		}
		return s.grantCreditPurchase(tx, userID, pi.ID, pi.Metadata)
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

func (s *Service) handlePaymentIntentFailed(ctx context.Context, ev Event) (Outcome, error) {
	pi := ev.PaymentIntent
	if pi == nil || pi.ID == "" {
		return "", fmt.Errorf("%w: %s without payment intent", ErrMalformedEvent, ev.Type)
	}
	updated, err := s.repo.UpdatePaymentStatus(pi.ID, models.PaymentStatusFailed)
	if err != nil {
		return "", err
	}
	if updated == 0 {
		log.Infof("[Billing] failed payment %s is unknown locally", pi.ID)
		return OutcomeSkipped, nil
	}
	log.Warnf("[Billing] payment %s failed", pi.ID)
	return OutcomeProcessed, nil
}

func (s *Service) grantCreditPurchase(tx Repository, userID, paymentKey string, md map[string]string) error {
	raw := strings.TrimSpace(md[MetadataCredits])
	credits, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || credits <= 0 {
		log.Errorf("[Billing] credit purchase %s has no valid credits amount (%q), flagging payment for review", paymentKey, raw)
		if _, err := tx.UpdatePaymentStatus(paymentKey, models.PaymentStatusNeedsReview); err != nil {
			return fmt.Errorf("billing: flag payment %s for review: %w", paymentKey, err)
		}
		return nil
	}
	_, err = s.applyGrant(tx, creditGrant{
		UserID:        userID,
		Amount:        credits,
		Type:          models.CreditTypePurchase,
		ReferenceID:   paymentReference(paymentKey),
		ReferenceType: models.CreditRefCreditPurchase,
		Description:   fmt.Sprintf("purchased %d credits", credits),
	})
	return err
}
