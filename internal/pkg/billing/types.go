package billing

import "time"

// Outcome summarizes what HandleEvent did with an event.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
)

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}

// Period sources, most to least trustworthy.
const (
	periodFromEvent       = "event"
	periodFromInvoice     = "invoice"
	periodFromSynthesized = "synthesized"
)

type billingPeriod struct {
	Start  time.Time
	End    time.Time
	Source string
}

func validPeriod(start, end time.Time) bool {
	return !start.IsZero() && end.After(start)
}

// creditGrant is one ledger write the reconciler wants to make.
type creditGrant struct {
	UserID        string
	Amount        int64
	Type          string
	ReferenceID   string
	ReferenceType string
	Description   string
	Breakdown     any
}

// subscriptionChange carries everything resolved for one active subscription
// event before the transaction starts.
type subscriptionChange struct {
	event   Event
	obj     *SubscriptionObject
	userID  string
	tier    Tier
	priceID string
	period  billingPeriod
	now     time.Time
}
