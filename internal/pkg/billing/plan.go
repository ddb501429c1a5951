package billing

import (
	"strings"

	"github.com/ManuelReschke/creditsync/app/models"
)

// normalizeStatus maps provider subscription statuses onto local ones.
func normalizeStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "active":
		return models.BillingStatusActive
	case "trialing":
		return models.BillingStatusTrialing
	case "past_due":
		return models.BillingStatusPastDue
	case "unpaid":
		return models.BillingStatusUnpaid
	case "canceled", "cancelled", "incomplete_expired":
		return models.BillingStatusCancelled
	default:
		return models.BillingStatusIncomplete
	}
}

// isCreditingStatus reports whether a provider status triggers credit
// processing. Only active subscriptions do.
func isCreditingStatus(status string) bool {
	return normalizeStatus(status) == models.BillingStatusActive
}

func isCreditPurchase(md map[string]string) bool {
	return strings.EqualFold(strings.TrimSpace(md[MetadataType]), MetadataCreditPurchase)
}

func stateOf(sub *models.BillingSubscription) *SubscriptionState {
	if sub == nil {
		return nil
	}
	return &SubscriptionState{
		ProviderSubscriptionID: sub.ProviderSubscriptionID,
		Tier:                   storedTier(sub.Tier),
	}
}

// storedTier parses a tier read back from the database. Rows written by this
// service always hold valid tiers.
func storedTier(s string) Tier {
	t, err := ParseTier(s)
	if err != nil {
		return TierFree
	}
	return t
}
