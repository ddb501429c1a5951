package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ManuelReschke/creditsync/internal/pkg/billing"
	"github.com/ManuelReschke/creditsync/internal/pkg/database"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v74/webhook"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testWebhookSecret = "whsec_test"

type recordedOutcomes struct {
	mu   sync.Mutex
	seen []string
}

func (r *recordedOutcomes) record(eventType, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, eventType+"|"+outcome)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Migrate(db, "sqlite"))
	return db
}

func newWebhookApp(t *testing.T) (*fiber.App, *billing.Service, *recordedOutcomes) {
	t.Helper()

	catalog := billing.PriceCatalog{"price_basic": billing.TierBasic, "price_pro": billing.TierPro}
	svc := billing.NewServiceFromDB(newTestDB(t), catalog)
	verifier, err := billing.NewSignatureVerifier([]string{"whsec_rotated", testWebhookSecret}, 5*time.Minute)
	require.NoError(t, err)

	rec := &recordedOutcomes{}
	h := NewWebhookController(svc, verifier, billing.NewEventLock(nil, 0))
	h.record = rec.record

	app := fiber.New()
	app.Post("/webhooks/stripe", h.HandleStripeWebhook)
	app.Get("/users/:userID/credits", NewCreditsController(svc).HandleGetBalance)
	return app, svc, rec
}

func subscriptionPayload(eventID, subID, userID, priceID string) []byte {
	start := time.Now().Add(-time.Hour).Unix()
	end := time.Now().Add(30 * 24 * time.Hour).Unix()
	return []byte(fmt.Sprintf(`{"id":%q,"object":"event","type":"customer.subscription.created","created":%d,
		"data":{"object":{"id":%q,"object":"subscription","status":"active","customer":"cus_1",
		"current_period_start":%d,"current_period_end":%d,"metadata":{"user_id":%q},
		"items":{"object":"list","data":[{"id":"si_1","object":"subscription_item","price":{"id":%q,"object":"price"}}]}}}}`,
		eventID, start, subID, start, end, userID, priceID))
}

func postWebhook(t *testing.T, app *fiber.App, payload []byte, signature string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest("POST", "/webhooks/stripe", strings.NewReader(string(payload)))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(body, &out))
	return resp.StatusCode, out
}

func sign(payload []byte, secret string) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: secret}).Header
}

func TestStripeWebhookProcessesAndDeduplicates(t *testing.T) {
	app, svc, rec := newWebhookApp(t)
	payload := subscriptionPayload("evt_1", "sub_1", "user-1", "price_pro")

	status, body := postWebhook(t, app, payload, sign(payload, testWebhookSecret))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["received"])
	assert.Nil(t, body["duplicate"])

	status, body = postWebhook(t, app, payload, sign(payload, "whsec_rotated"))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["duplicate"])

	balance, err := svc.Balance(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1500), balance)

	assert.Equal(t, []string{
		"customer.subscription.created|processed",
		"customer.subscription.created|duplicate",
	}, rec.seen)
}

func TestStripeWebhookRejectsBadSignatures(t *testing.T) {
	app, svc, rec := newWebhookApp(t)
	payload := subscriptionPayload("evt_1", "sub_1", "user-1", "price_pro")

	status, body := postWebhook(t, app, payload, "")
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "missing_signature", body["error"])

	status, body = postWebhook(t, app, payload, sign(payload, "whsec_unknown"))
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "invalid_signature", body["error"])

	garbage := []byte(`not json`)
	status, body = postWebhook(t, app, garbage, sign(garbage, testWebhookSecret))
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "invalid_payload", body["error"])

	balance, err := svc.Balance(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Zero(t, balance)
	assert.Len(t, rec.seen, 3)
}

func TestStripeWebhookReportsFailuresForRetry(t *testing.T) {
	app, _, rec := newWebhookApp(t)
	payload := subscriptionPayload("evt_1", "sub_1", "user-1", "price_unknown")

	status, body := postWebhook(t, app, payload, sign(payload, testWebhookSecret))
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "processing_failed", body["error"])
	assert.Equal(t, "evt_1", body["event_id"])
	assert.Equal(t, []string{"customer.subscription.created|failed"}, rec.seen)
}

func TestStripeWebhookSkipsUnattributableEvents(t *testing.T) {
	app, _, _ := newWebhookApp(t)
	payload := subscriptionPayload("evt_1", "sub_1", "", "price_pro")

	status, body := postWebhook(t, app, payload, sign(payload, testWebhookSecret))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["skipped"])
}

func TestGetBalance(t *testing.T) {
	app, _, _ := newWebhookApp(t)
	payload := subscriptionPayload("evt_1", "sub_1", "user-1", "price_basic")
	status, _ := postWebhook(t, app, payload, sign(payload, testWebhookSecret))
	require.Equal(t, fiber.StatusOK, status)

	resp, err := app.Test(httptest.NewRequest("GET", "/users/user-1/credits", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		UserID  string `json:"user_id"`
		Credits int64  `json:"credits"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "user-1", body.UserID)
	assert.Equal(t, int64(200), body.Credits)
}

func TestHealthz(t *testing.T) {
	app := fiber.New()
	app.Get("/healthz", HandleHealthz)

	prev := database.DB
	t.Cleanup(func() { database.DB = prev })

	database.DB = nil
	resp, err := app.Test(httptest.NewRequest("GET", "/healthz", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	database.DB = newTestDB(t)
	resp, err = app.Test(httptest.NewRequest("GET", "/healthz", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
