package billing

// Action is the classified transition a subscription event represents.
type Action string

const (
	ActionNew       Action = "new"
	ActionUpgrade   Action = "upgrade"
	ActionDowngrade Action = "downgrade"
	ActionRenewal   Action = "renewal"
	ActionCancel    Action = "cancel"
)

// SubscriptionState is the part of a subscription the classifier looks at.
type SubscriptionState struct {
	ProviderSubscriptionID string
	Tier                   Tier
}

// ClassifyAction decides how an incoming active subscription relates to the
// user's current active one. A different subscription on an equal rank is
// classified as new, not as a lateral move.
func ClassifyAction(existing *SubscriptionState, incoming SubscriptionState) Action {
	if existing == nil {
		return ActionNew
	}
	if existing.ProviderSubscriptionID == incoming.ProviderSubscriptionID {
		return ActionRenewal
	}
	switch {
	case incoming.Tier.Rank() > existing.Tier.Rank():
		return ActionUpgrade
	case incoming.Tier.Rank() < existing.Tier.Rank():
		return ActionDowngrade
	default:
		return ActionNew
	}
}
