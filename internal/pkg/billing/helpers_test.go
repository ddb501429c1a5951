package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ManuelReschke/creditsync/app/models"
	"github.com/ManuelReschke/creditsync/internal/pkg/database"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testNow = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

var testCatalog = PriceCatalog{
	"price_basic":      TierBasic,
	"price_pro":        TierPro,
	"price_enterprise": TierEnterprise,
	"price_pro_annual": TierProAnnual,
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection keeps the in-memory database shared by every query.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db, "sqlite"))
	return db
}

func newTestService(t *testing.T, opts ...Option) (*Service, Repository) {
	t.Helper()
	repo := NewRepository(newTestDB(t))
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return NewService(repo, testCatalog, opts...), repo
}

func subscriptionEvent(eventID string, eventType EventType, subID, userID, priceID string, start, end time.Time) Event {
	obj := &SubscriptionObject{
		ID:          subID,
		CustomerID:  "cus_" + subID,
		Status:      "active",
		PriceIDs:    []string{priceID},
		PeriodStart: start,
		PeriodEnd:   end,
	}
	if userID != "" {
		obj.Metadata = map[string]string{MetadataUserID: userID}
	}
	return Event{
		ID:           eventID,
		Type:         eventType,
		Created:      testNow,
		Raw:          []byte(`{"id":"` + eventID + `"}`),
		Subscription: obj,
	}
}

func mustProcess(t *testing.T, svc *Service, ev Event) Outcome {
	t.Helper()
	outcome, err := svc.Process(context.Background(), ev)
	require.NoError(t, err)
	return outcome
}

func balanceOf(t *testing.T, svc *Service, userID string) int64 {
	t.Helper()
	balance, err := svc.Balance(context.Background(), userID)
	require.NoError(t, err)
	return balance
}

func ledgerOf(t *testing.T, repo Repository, userID string) []models.CreditTransaction {
	t.Helper()
	entries, err := repo.ListLedgerEntries(userID)
	require.NoError(t, err)
	return entries
}

func subscriptionOf(t *testing.T, repo Repository, subID string) *models.BillingSubscription {
	t.Helper()
	sub, err := repo.FindSubscriptionByProviderID(subID)
	require.NoError(t, err)
	require.NotNil(t, sub, "subscription %s not found", subID)
	return sub
}

func countActive(t *testing.T, repo Repository, userID string) int {
	t.Helper()
	subs, err := repo.ListSubscriptionsByUser(userID)
	require.NoError(t, err)
	n := 0
	for _, s := range subs {
		if s.Status == models.BillingStatusActive {
			n++
		}
	}
	return n
}

type fakeLookup struct {
	customers     map[string]map[string]string
	invoices      map[string][2]time.Time
	err           error
	customerCalls int
	invoiceCalls  int
}

func (f *fakeLookup) CustomerMetadata(ctx context.Context, customerID string) (map[string]string, error) {
	f.customerCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.customers[customerID], nil
}

func (f *fakeLookup) InvoicePeriod(ctx context.Context, invoiceID string) (time.Time, time.Time, error) {
	f.invoiceCalls++
	if f.err != nil {
		return time.Time{}, time.Time{}, f.err
	}
	p, ok := f.invoices[invoiceID]
	if !ok {
		return time.Time{}, time.Time{}, errors.New("invoice not found")
	}
	return p[0], p[1], nil
}
