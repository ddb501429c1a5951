package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
)

// ProviderLookup reads objects the webhook payload did not carry.
type ProviderLookup interface {
	CustomerMetadata(ctx context.Context, customerID string) (map[string]string, error)
	InvoicePeriod(ctx context.Context, invoiceID string) (start, end time.Time, err error)
}

// StripeLookup implements ProviderLookup with the Stripe API. Every call is
// bounded by timeout.
type StripeLookup struct {
	api     *client.API
	timeout time.Duration
}

func NewStripeLookup(secretKey string, timeout time.Duration) *StripeLookup {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &StripeLookup{
		api:     client.New(secretKey, nil),
		timeout: timeout,
	}
}

func (l *StripeLookup) CustomerMetadata(ctx context.Context, customerID string) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	params := &stripe.CustomerParams{}
	params.Context = ctx
	c, err := l.api.Customers.Get(customerID, params)
	if err != nil {
		return nil, fmt.Errorf("billing: fetch stripe customer %s: %w", customerID, err)
	}
	if c.Deleted {
		return nil, nil
	}
	return c.Metadata, nil
}

func (l *StripeLookup) InvoicePeriod(ctx context.Context, invoiceID string) (time.Time, time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	params := &stripe.InvoiceParams{}
	params.Context = ctx
	inv, err := l.api.Invoices.Get(invoiceID, params)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("billing: fetch stripe invoice %s: %w", invoiceID, err)
	}
	if inv.Lines != nil {
		for _, line := range inv.Lines.Data {
			if line == nil || line.Period == nil {
				continue
			}
			start, end := unixTime(line.Period.Start), unixTime(line.Period.End)
			if !start.IsZero() && end.After(start) {
				return start, end, nil
			}
		}
	}
	return time.Time{}, time.Time{}, fmt.Errorf("%w: invoice %s has no usable line period", ErrInvalidPeriod, invoiceID)
}
