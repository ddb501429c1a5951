package counter

import (
	"testing"
	"time"

	"github.com/ManuelReschke/creditsync/app/models"
	"github.com/ManuelReschke/creditsync/internal/pkg/cache"
	"github.com/ManuelReschke/creditsync/internal/pkg/database"
	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupCounters(t *testing.T) (*miniredis.Miniredis, *gorm.DB) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache.SetClient(client)
	t.Cleanup(func() {
		_ = client.Close()
		cache.SetClient(nil)
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Migrate(db, "sqlite"))

	return mr, db
}

func statCount(t *testing.T, db *gorm.DB, eventType, outcome string) int64 {
	t.Helper()
	var stat models.WebhookStat
	require.NoError(t, db.Where("event_type = ? AND outcome = ?", eventType, outcome).First(&stat).Error)
	return stat.Count
}

func TestAddAndSnapshot(t *testing.T) {
	setupCounters(t)

	require.NoError(t, AddWebhookOutcome("customer.subscription.created", "processed"))
	require.NoError(t, AddWebhookOutcome("customer.subscription.created", "processed"))
	require.NoError(t, AddWebhookOutcome("customer.subscription.created", "duplicate"))
	require.NoError(t, AddWebhookOutcome("invoice.paid", "ignored"))

	snap, err := Snapshot()
	require.NoError(t, err)
	assert.Equal(t, map[string]map[string]int64{
		"customer.subscription.created": {"processed": 2, "duplicate": 1},
		"invoice.paid":                  {"ignored": 1},
	}, snap)
}

func TestFlushAccumulatesPerDay(t *testing.T) {
	mr, db := setupCounters(t)
	now := time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)

	require.NoError(t, AddWebhookOutcome("payment_intent.succeeded", "processed"))
	require.NoError(t, AddWebhookOutcome("payment_intent.succeeded", "processed"))
	require.NoError(t, flushHashToTable(webhookOutcomesKey, db, now))
	assert.False(t, mr.Exists(webhookOutcomesKey))
	assert.Equal(t, int64(2), statCount(t, db, "payment_intent.succeeded", "processed"))

	require.NoError(t, AddWebhookOutcome("payment_intent.succeeded", "processed"))
	require.NoError(t, flushHashToTable(webhookOutcomesKey, db, now.Add(time.Hour)))
	assert.Equal(t, int64(3), statCount(t, db, "payment_intent.succeeded", "processed"))

	var rows int64
	require.NoError(t, db.Model(&models.WebhookStat{}).Count(&rows).Error)
	assert.Equal(t, int64(1), rows)

	snap, err := Snapshot()
	require.NoError(t, err)
	assert.Empty(t, snap)
}

func TestFlushWithNothingPending(t *testing.T) {
	_, db := setupCounters(t)
	require.NoError(t, flushHashToTable(webhookOutcomesKey, db, time.Now()))
}

func TestFlushAllUsesSharedDB(t *testing.T) {
	_, db := setupCounters(t)
	prev := database.DB
	database.DB = db
	t.Cleanup(func() { database.DB = prev })

	require.NoError(t, AddWebhookOutcome("checkout.session.completed", "skipped"))
	require.NoError(t, FlushAll())
	assert.Equal(t, int64(1), statCount(t, db, "checkout.session.completed", "skipped"))
}

func TestParseCountersSkipsGarbage(t *testing.T) {
	got := parseCounters(map[string]string{
		"a|processed": "3",
		"nosep":       "1",
		"b|ignored":   "x",
		"c|skipped":   "0",
	})
	assert.Equal(t, map[string]map[string]int64{"a": {"processed": 3}}, got)
}

func TestFlushKeepsCountsWhenDatabaseFails(t *testing.T) {
	mr, db := setupCounters(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)

	require.NoError(t, AddWebhookOutcome("invoice.paid", "ignored"))
	require.NoError(t, AddWebhookOutcome("invoice.paid", "ignored"))
	require.NoError(t, sqlDB.Close())

	assert.Error(t, flushHashToTable(webhookOutcomesKey, db, time.Now()))

	snap, err := Snapshot()
	require.NoError(t, err)
	assert.Equal(t, map[string]map[string]int64{"invoice.paid": {"ignored": 2}}, snap)
	assert.Len(t, mr.Keys(), 1)
}
