package billing

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// resolveUserID looks for the user id on the object, then on the expanded
// customer, then asks the provider for the customer. An empty id with a nil
// error means the event cannot be attributed.
func (s *Service) resolveUserID(ctx context.Context, md, customerMD map[string]string, customerID string) (string, error) {
	if id := metadataUserID(md); id != "" {
		return id, nil
	}
	if id := metadataUserID(customerMD); id != "" {
		return id, nil
	}
	if customerID == "" || s.lookup == nil {
		return "", nil
	}
	fetched, err := s.lookup.CustomerMetadata(ctx, customerID)
	if err != nil {
		return "", err
	}
	return metadataUserID(fetched), nil
}

// resolvePeriod returns the billing window for obj: the event's own dates,
// else the latest invoice's first line, else a 30-day window from the event
// time.
func (s *Service) resolvePeriod(ctx context.Context, ev Event, obj *SubscriptionObject) billingPeriod {
	if validPeriod(obj.PeriodStart, obj.PeriodEnd) {
		return billingPeriod{Start: obj.PeriodStart, End: obj.PeriodEnd, Source: periodFromEvent}
	}

	if obj.LatestInvoiceID != "" && s.lookup != nil {
		start, end, err := s.lookup.InvoicePeriod(ctx, obj.LatestInvoiceID)
		if err == nil && validPeriod(start, end) {
			log.Infof("[Billing] subscription %s period taken from invoice %s", obj.ID, obj.LatestInvoiceID)
			return billingPeriod{Start: start, End: end, Source: periodFromInvoice}
		}
		log.Warnf("[Billing] could not read period from invoice %s: %v", obj.LatestInvoiceID, err)
	}

	start := ev.Created
	if start.IsZero() {
		start = s.now()
	}
	start = start.UTC().Truncate(time.Second)
	log.Warnf("[Billing] subscription %s has no usable period, assuming 30 days from %s", obj.ID, start.Format(time.RFC3339))
	return billingPeriod{Start: start, End: start.AddDate(0, 0, 30), Source: periodFromSynthesized}
}
