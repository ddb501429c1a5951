package billing

import "time"

// EventType is the provider event name.
type EventType string

const (
	EventCheckoutSessionCompleted EventType = "checkout.session.completed"
	EventSubscriptionCreated      EventType = "customer.subscription.created"
	EventSubscriptionUpdated      EventType = "customer.subscription.updated"
	EventSubscriptionDeleted      EventType = "customer.subscription.deleted"
	EventPaymentIntentSucceeded   EventType = "payment_intent.succeeded"
	EventPaymentIntentFailed      EventType = "payment_intent.payment_failed"
	EventInvoicePaymentSucceeded  EventType = "invoice.payment_succeeded"
)

// Metadata keys the checkout flow attaches to provider objects.
const (
	MetadataUserID         = "user_id"
	MetadataUserIDCamel    = "userId"
	MetadataType           = "type"
	MetadataCredits        = "credits"
	MetadataCreditPurchase = "credit_purchase"
)

// Event is a verified provider event. Exactly one of the object pointers is
// set for the event types the reconciler handles; all are nil otherwise.
type Event struct {
	ID      string
	Type    EventType
	Created time.Time
	Raw     []byte

	Subscription  *SubscriptionObject
	Checkout      *CheckoutObject
	PaymentIntent *PaymentIntentObject
	Invoice       *InvoiceObject
}

// SubscriptionObject is the provider subscription carried by
// customer.subscription.* events. Zero period times mean the provider omitted
// them.
type SubscriptionObject struct {
	ID                string
	CustomerID        string
	CustomerMetadata  map[string]string
	Status            string
	PriceIDs          []string
	PeriodStart       time.Time
	PeriodEnd         time.Time
	CancelAtPeriodEnd bool
	LatestInvoiceID   string
	Metadata          map[string]string
}

type CheckoutObject struct {
	ID                string
	PaymentIntentID   string
	CustomerID        string
	ClientReferenceID string
	Mode              string
	PaymentStatus     string
	AmountTotal       int64
	Currency          string
	Metadata          map[string]string
}

type PaymentIntentObject struct {
	ID         string
	CustomerID string
	Amount     int64
	Currency   string
	Status     string
	Metadata   map[string]string
}

type InvoiceObject struct {
	ID              string
	SubscriptionID  string
	CustomerID      string
	PaymentIntentID string
	AmountPaid      int64
	BillingReason   string
}

func metadataUserID(md map[string]string) string {
	if md == nil {
		return ""
	}
	if v := md[MetadataUserID]; v != "" {
		return v
	}
	return md[MetadataUserIDCamel]
}
