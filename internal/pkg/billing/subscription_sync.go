package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuelReschke/creditsync/app/models"
	"github.com/gofiber/fiber/v2/log"
)

// cycleReference is the ledger key for one subscription billing cycle. Every
// write for a cycle uses it, so a cycle is credited at most once no matter
// which event gets there first.
func cycleReference(providerSubscriptionID string, b billingPeriod) string {
	return fmt.Sprintf("sub:%s:cycle:%d", providerSubscriptionID, b.Start.Unix())
}

func (s *Service) handleSubscriptionChange(ctx context.Context, ev Event) (Outcome, error) {
	obj := ev.Subscription
	if obj == nil || obj.ID == "" {
		return "", fmt.Errorf("%w: %s without subscription object", ErrMalformedEvent, ev.Type)
	}
	if !isCreditingStatus(obj.Status) {
		return s.syncInactiveSubscription(ctx, ev)
	}

	userID, err := s.resolveUserID(ctx, obj.Metadata, obj.CustomerMetadata, obj.CustomerID)
	if err != nil {
		return "", fmt.Errorf("billing: resolve user for subscription %s: %w", obj.ID, err)
	}
	if userID == "" {
		log.Warnf("[Billing] %s %s for subscription %s has no user_id in subscription or customer metadata, skipping", ev.Type, ev.ID, obj.ID)
		return OutcomeSkipped, nil
	}

	tier, priceID, err := s.catalog.ResolveTier(obj.PriceIDs)
	if err != nil {
		return "", fmt.Errorf("billing: subscription %s: %w", obj.ID, err)
	}

	in := subscriptionChange{
		event:   ev,
		obj:     obj,
		userID:  userID,
		tier:    tier,
		priceID: priceID,
		period:  s.resolvePeriod(ctx, ev, obj),
		now:     s.now(),
	}

	outcome := OutcomeProcessed
	err = s.repo.Transaction(ctx, func(tx Repository) error {
		current, err := tx.FindSubscriptionByProviderID(obj.ID)
		if err != nil {
			return err
		}
		if current != nil && current.IsTerminal() {
			log.Warnf("[Billing] subscription %s is already %s, ignoring stale %s %s", obj.ID, current.Status, ev.Type, ev.ID)
			outcome = OutcomeSkipped
			return nil
		}
		if current != nil && current.UserID != userID {
			log.Errorf("[Billing] subscription %s belongs to user %s but event %s names user %s, skipping", obj.ID, current.UserID, ev.ID, userID)
			outcome = OutcomeSkipped
			return nil
		}
		if current != nil && olderPeriod(in.period.Start, current) {
			log.Warnf("[Billing] %s %s for subscription %s carries period %s before stored %s, ignoring late event",
				ev.Type, ev.ID, obj.ID, in.period.Start.UTC().Format(time.RFC3339), current.CurrentPeriodStart.UTC().Format(time.RFC3339))
			outcome = OutcomeSkipped
			return nil
		}

		active, err := tx.FindActiveSubscription(userID)
		if err != nil {
			return err
		}

		action := ClassifyAction(stateOf(active), SubscriptionState{ProviderSubscriptionID: obj.ID, Tier: tier})
		log.Infof("[Billing] subscription %s for user %s classified as %s (tier %s)", obj.ID, userID, action, tier)
		switch action {
		case ActionNew:
			return s.applyNew(tx, in, current)
		case ActionUpgrade, ActionDowngrade:
			return s.applyTierChange(tx, in, action, active, current)
		case ActionRenewal:
			return s.applyRenewal(tx, in, active)
		}
		return fmt.Errorf("billing: unhandled action %q", action)
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

// applyNew activates a first subscription, or a same-rank replacement, and
// grants the tier's full allowance.
func (s *Service) applyNew(tx Repository, in subscriptionChange, current *models.BillingSubscription) error {
	replaced, err := tx.CancelActiveSubscriptionsExcept(in.userID, in.obj.ID)
	if err != nil {
		return err
	}
	if replaced > 0 {
		log.Infof("[Billing] cancelled %d active subscription(s) of user %s replaced by %s", replaced, in.userID, in.obj.ID)
	}

	sub := current
	if sub == nil {
		sub = &models.BillingSubscription{}
	}
	fillSubscription(sub, in, ActionNew)
	if err := persistSubscription(tx, sub); err != nil {
		return err
	}

	credits := in.tier.Credits()
	granted, err := s.applyGrant(tx, creditGrant{
		UserID:        in.userID,
		Amount:        credits,
		Type:          models.CreditTypeReward,
		ReferenceID:   cycleReference(in.obj.ID, in.period),
		ReferenceType: models.CreditRefSubscriptionInitial,
		Description:   fmt.Sprintf("%s subscription started", in.tier),
	})
	if err != nil {
		return err
	}
	return s.writeAudit(tx, sub, in.event, ActionNew, "", grantedAmount(granted, credits),
		fmt.Sprintf("new %s subscription, period %s", in.tier, in.period.Source), nil)
}

// applyTierChange supersedes the user's active row with the incoming
// subscription. Upgrades are credited the prorated remainder plus a bonus;
// downgrades get nothing until their next renewal.
func (s *Service) applyTierChange(tx Repository, in subscriptionChange, action Action, active, current *models.BillingSubscription) error {
	if err := tx.UpdateSubscriptionStatus(active.ID, models.BillingStatusSuperseded, string(action)); err != nil {
		return err
	}

	previousID := active.ID
	sub := current
	if sub == nil {
		sub = &models.BillingSubscription{}
	}
	fillSubscription(sub, in, action)
	sub.PreviousTier = active.Tier
	sub.UpgradedFromID = &previousID
	if err := persistSubscription(tx, sub); err != nil {
		return err
	}

	var (
		amount    int64
		refType   = models.CreditRefSubscriptionDowngrade
		desc      = fmt.Sprintf("downgraded from %s to %s", active.Tier, in.tier)
		breakdown *Compensation
		reason    = "downgrade takes effect immediately, new allowance from next renewal"
	)
	if action == ActionUpgrade {
		days := DaysRemaining(active.CurrentPeriodEnd, in.now)
		comp := ComputeUpgradeCredits(storedTier(active.Tier), in.tier, days)
		breakdown = &comp
		amount = comp.Total
		refType = models.CreditRefSubscriptionUpgrade
		desc = fmt.Sprintf("upgraded from %s to %s", active.Tier, in.tier)
		reason = fmt.Sprintf("upgrade with %d days left on %s", days, active.Tier)
	}

	grant := creditGrant{
		UserID:        in.userID,
		Amount:        amount,
		Type:          models.CreditTypeReward,
		ReferenceID:   cycleReference(in.obj.ID, in.period),
		ReferenceType: refType,
		Description:   desc,
	}
	if breakdown != nil {
		grant.Breakdown = breakdown
	}
	granted, err := s.applyGrant(tx, grant)
	if err != nil {
		return err
	}

	var auditBreakdown any
	if breakdown != nil {
		auditBreakdown = breakdown
	}
	return s.writeAudit(tx, sub, in.event, action, active.Tier, grantedAmount(granted, amount), reason, auditBreakdown)
}

// applyRenewal updates the active row in place. A new cycle grants the tier's
// full allowance; an update inside the current cycle grants nothing new.
func (s *Service) applyRenewal(tx Repository, in subscriptionChange, active *models.BillingSubscription) error {
	fromTier := active.Tier
	period := in.period
	if period.Source == periodFromSynthesized && validPeriod(active.CurrentPeriodStart, active.CurrentPeriodEnd) {
		// A guessed window would open a new cycle on every delivery.
		period = billingPeriod{Start: active.CurrentPeriodStart, End: active.CurrentPeriodEnd, Source: "stored"}
	}
	in.period = period
	sameCycle := active.CurrentPeriodStart.Equal(period.Start)

	action := ActionRenewal
	if sameCycle && active.Action != "" {
		action = Action(active.Action)
	}
	fillSubscription(active, in, action)
	if err := persistSubscription(tx, active); err != nil {
		return err
	}

	credits := in.tier.Credits()
	granted, err := s.applyGrant(tx, creditGrant{
		UserID:        in.userID,
		Amount:        credits,
		Type:          models.CreditTypeReward,
		ReferenceID:   cycleReference(in.obj.ID, period),
		ReferenceType: models.CreditRefSubscriptionRenewal,
		Description:   fmt.Sprintf("%s subscription renewed", in.tier),
	})
	if err != nil {
		return err
	}

	reason := fmt.Sprintf("renewed for cycle starting %s", period.Start.UTC().Format("2006-01-02"))
	if !granted {
		reason = "update within current cycle, credits already granted"
	}
	return s.writeAudit(tx, active, in.event, ActionRenewal, fromTier, grantedAmount(granted, credits), reason, nil)
}

// syncInactiveSubscription mirrors a non-active provider status onto an
// existing row. It never touches the ledger.
func (s *Service) syncInactiveSubscription(ctx context.Context, ev Event) (Outcome, error) {
	obj := ev.Subscription
	status := normalizeStatus(obj.Status)

	outcome := OutcomeProcessed
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		current, err := tx.FindSubscriptionByProviderID(obj.ID)
		if err != nil {
			return err
		}
		if current == nil {
			log.Infof("[Billing] subscription %s is %s and unknown locally, nothing to sync", obj.ID, obj.Status)
			outcome = OutcomeIgnored
			return nil
		}
		if current.IsTerminal() {
			log.Infof("[Billing] subscription %s is already %s, ignoring status %s", obj.ID, current.Status, obj.Status)
			outcome = OutcomeSkipped
			return nil
		}

		if validPeriod(obj.PeriodStart, obj.PeriodEnd) && olderPeriod(obj.PeriodStart, current) {
			log.Warnf("[Billing] %s %s for subscription %s is older than the stored period, ignoring", ev.Type, ev.ID, obj.ID)
			outcome = OutcomeSkipped
			return nil
		}

		fromTier := current.Tier
		current.Status = status
		current.CancelAtPeriodEnd = obj.CancelAtPeriodEnd
		if validPeriod(obj.PeriodStart, obj.PeriodEnd) {
			current.CurrentPeriodStart = obj.PeriodStart
			current.CurrentPeriodEnd = obj.PeriodEnd
		}
		if status == models.BillingStatusCancelled {
			current.Action = string(ActionCancel)
		}
		if err := tx.SaveSubscription(current); err != nil {
			return err
		}
		log.Infof("[Billing] subscription %s of user %s is now %s", obj.ID, current.UserID, status)
		if status != models.BillingStatusCancelled {
			return nil
		}
		return s.writeAudit(tx, current, ev, ActionCancel, fromTier, 0, "provider reported status "+obj.Status, nil)
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

// handleSubscriptionDeleted cancels the local row. Credits already granted
// are kept.
func (s *Service) handleSubscriptionDeleted(ctx context.Context, ev Event) (Outcome, error) {
	obj := ev.Subscription
	if obj == nil || obj.ID == "" {
		return "", fmt.Errorf("%w: %s without subscription object", ErrMalformedEvent, ev.Type)
	}

	outcome := OutcomeProcessed
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		current, err := tx.FindSubscriptionByProviderID(obj.ID)
		if err != nil {
			return err
		}
		if current == nil {
			log.Warnf("[Billing] deleted subscription %s is unknown locally, skipping", obj.ID)
			outcome = OutcomeSkipped
			return nil
		}
		if current.IsTerminal() {
			log.Infof("[Billing] deleted subscription %s is already %s, keeping it", obj.ID, current.Status)
			outcome = OutcomeSkipped
			return nil
		}
		if err := tx.UpdateSubscriptionStatus(current.ID, models.BillingStatusCancelled, string(ActionCancel)); err != nil {
			return err
		}
		log.Infof("[Billing] subscription %s of user %s cancelled (was %s)", obj.ID, current.UserID, current.Status)
		return s.writeAudit(tx, current, ev, ActionCancel, current.Tier, 0, "subscription deleted, granted credits retained", nil)
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

// olderPeriod reports whether a period starting at start precedes the one
// stored on sub. Stripe does not order deliveries, so such events are stale.
func olderPeriod(start time.Time, sub *models.BillingSubscription) bool {
	return !sub.CurrentPeriodStart.IsZero() && start.Before(sub.CurrentPeriodStart)
}

func fillSubscription(sub *models.BillingSubscription, in subscriptionChange, action Action) {
	sub.UserID = in.userID
	sub.Provider = models.BillingProviderStripe
	sub.ProviderSubscriptionID = in.obj.ID
	sub.ProviderCustomerID = in.obj.CustomerID
	sub.ProviderPriceID = in.priceID
	sub.Tier = in.tier.String()
	sub.Status = models.BillingStatusActive
	sub.CurrentPeriodStart = in.period.Start
	sub.CurrentPeriodEnd = in.period.End
	sub.CancelAtPeriodEnd = in.obj.CancelAtPeriodEnd
	sub.Action = string(action)
	sub.RawPayloadJSON = string(in.event.Raw)
}

func persistSubscription(tx Repository, sub *models.BillingSubscription) error {
	if sub.ID == 0 {
		return tx.CreateSubscription(sub)
	}
	return tx.SaveSubscription(sub)
}

func grantedAmount(granted bool, amount int64) int64 {
	if !granted {
		return 0
	}
	return amount
}
