package billing

import (
	"context"
	"time"

	"github.com/ManuelReschke/creditsync/app/models"
	"github.com/gofiber/fiber/v2/log"
)

// ExpireLapsedSubscriptions cancels active subscriptions that were set to end
// at period end and whose period closed more than grace ago without a
// renewal. It returns how many rows were cancelled.
func (s *Service) ExpireLapsedSubscriptions(ctx context.Context, grace time.Duration) (int, error) {
	cutoff := s.now().Add(-grace)
	subs, err := s.repo.ListLapsedSubscriptions(cutoff)
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range subs {
		sub := &subs[i]
		changed := false
		err := s.repo.Transaction(ctx, func(tx Repository) error {
			ok, err := tx.ExpireSubscription(sub.ID, cutoff)
			if err != nil || !ok {
				return err
			}
			changed = true
			sub.Status = models.BillingStatusCancelled
			return s.writeAudit(tx, sub, Event{}, ActionCancel, sub.Tier, 0, "period ended without renewal", nil)
		})
		if err != nil {
			log.Errorf("[Billing] could not expire subscription %s: %v", sub.ProviderSubscriptionID, err)
			continue
		}
		if changed {
			expired++
		}
	}
	if expired > 0 {
		log.Infof("[Billing] expired %d lapsed subscription(s)", expired)
	}
	return expired, nil
}
