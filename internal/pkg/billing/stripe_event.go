package billing

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v74"
)

// DecodeStripeEvent turns a raw Stripe event body into an Event. The payload
// must already be authenticated.
func DecodeStripeEvent(payload []byte) (Event, error) {
	var se stripe.Event
	if err := json.Unmarshal(payload, &se); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if se.ID == "" || se.Type == "" {
		return Event{}, fmt.Errorf("%w: missing event id or type", ErrMalformedEvent)
	}

	ev := Event{
		ID:      se.ID,
		Type:    EventType(se.Type),
		Created: unixTime(se.Created),
		Raw:     payload,
	}
	if !isDecodedType(ev.Type) {
		return ev, nil
	}
	if se.Data == nil || len(se.Data.Raw) == 0 {
		return Event{}, fmt.Errorf("%w: %s event %s has no data object", ErrMalformedEvent, ev.Type, ev.ID)
	}

	raw := se.Data.Raw
	switch ev.Type {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return Event{}, fmt.Errorf("%w: subscription object: %v", ErrMalformedEvent, err)
		}
		ev.Subscription = subscriptionFromStripe(&sub)
	case EventCheckoutSessionCompleted:
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(raw, &cs); err != nil {
			return Event{}, fmt.Errorf("%w: checkout session object: %v", ErrMalformedEvent, err)
		}
		ev.Checkout = checkoutFromStripe(&cs)
	case EventPaymentIntentSucceeded, EventPaymentIntentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(raw, &pi); err != nil {
			return Event{}, fmt.Errorf("%w: payment intent object: %v", ErrMalformedEvent, err)
		}
		ev.PaymentIntent = paymentIntentFromStripe(&pi)
	case EventInvoicePaymentSucceeded:
		var inv stripe.Invoice
		if err := json.Unmarshal(raw, &inv); err != nil {
			return Event{}, fmt.Errorf("%w: invoice object: %v", ErrMalformedEvent, err)
		}
		ev.Invoice = invoiceFromStripe(&inv)
	}
	return ev, nil
}

func isDecodedType(t EventType) bool {
	switch t {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted,
		EventCheckoutSessionCompleted,
		EventPaymentIntentSucceeded, EventPaymentIntentFailed,
		EventInvoicePaymentSucceeded:
		return true
	default:
		return false
	}
}

func subscriptionFromStripe(sub *stripe.Subscription) *SubscriptionObject {
	obj := &SubscriptionObject{
		ID:                sub.ID,
		Status:            string(sub.Status),
		PeriodStart:       unixTime(sub.CurrentPeriodStart),
		PeriodEnd:         unixTime(sub.CurrentPeriodEnd),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		Metadata:          sub.Metadata,
	}
	if sub.Customer != nil {
		obj.CustomerID = sub.Customer.ID
		obj.CustomerMetadata = sub.Customer.Metadata
	}
	if sub.LatestInvoice != nil {
		obj.LatestInvoiceID = sub.LatestInvoice.ID
	}
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item != nil && item.Price != nil && item.Price.ID != "" {
				obj.PriceIDs = append(obj.PriceIDs, item.Price.ID)
			}
		}
	}
	return obj
}

func checkoutFromStripe(cs *stripe.CheckoutSession) *CheckoutObject {
	obj := &CheckoutObject{
		ID:                cs.ID,
		ClientReferenceID: cs.ClientReferenceID,
		Mode:              string(cs.Mode),
		PaymentStatus:     string(cs.PaymentStatus),
		AmountTotal:       cs.AmountTotal,
		Currency:          string(cs.Currency),
		Metadata:          cs.Metadata,
	}
	if cs.PaymentIntent != nil {
		obj.PaymentIntentID = cs.PaymentIntent.ID
	}
	if cs.Customer != nil {
		obj.CustomerID = cs.Customer.ID
	}
	return obj
}

func paymentIntentFromStripe(pi *stripe.PaymentIntent) *PaymentIntentObject {
	obj := &PaymentIntentObject{
		ID:       pi.ID,
		Amount:   pi.Amount,
		Currency: string(pi.Currency),
		Status:   string(pi.Status),
		Metadata: pi.Metadata,
	}
	if pi.Customer != nil {
		obj.CustomerID = pi.Customer.ID
	}
	return obj
}

func invoiceFromStripe(inv *stripe.Invoice) *InvoiceObject {
	obj := &InvoiceObject{
		ID:            inv.ID,
		AmountPaid:    inv.AmountPaid,
		BillingReason: string(inv.BillingReason),
	}
	if inv.Subscription != nil {
		obj.SubscriptionID = inv.Subscription.ID
	}
	if inv.Customer != nil {
		obj.CustomerID = inv.Customer.ID
	}
	if inv.PaymentIntent != nil {
		obj.PaymentIntentID = inv.PaymentIntent.ID
	}
	return obj
}

func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
