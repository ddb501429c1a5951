package database

import (
	"testing"
	"time"

	"github.com/ManuelReschke/creditsync/app/models"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func subscriptionRow(subID, userID, status string) *models.BillingSubscription {
	now := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	return &models.BillingSubscription{
		UserID:                 userID,
		Provider:               models.BillingProviderStripe,
		ProviderSubscriptionID: subID,
		Tier:                   "pro",
		Status:                 status,
		CurrentPeriodStart:     now,
		CurrentPeriodEnd:       now.AddDate(0, 0, 30),
	}
}

func TestMigrateAllowsOneActiveSubscriptionPerUser(t *testing.T) {
	db := openSQLite(t)
	require.NoError(t, Migrate(db, "sqlite"))
	// Running twice must be harmless.
	require.NoError(t, Migrate(db, "sqlite"))

	require.NoError(t, db.Create(subscriptionRow("sub_1", "user-1", models.BillingStatusActive)).Error)
	assert.Error(t, db.Create(subscriptionRow("sub_2", "user-1", models.BillingStatusActive)).Error)

	require.NoError(t, db.Create(subscriptionRow("sub_3", "user-1", models.BillingStatusCancelled)).Error)
	require.NoError(t, db.Create(subscriptionRow("sub_4", "user-1", models.BillingStatusSuperseded)).Error)
	require.NoError(t, db.Create(subscriptionRow("sub_5", "user-2", models.BillingStatusActive)).Error)
}

func TestOneActiveStatementsPerDriver(t *testing.T) {
	mysql := oneActiveStatements(DriverMySQL)
	require.Len(t, mysql, 2)
	assert.Contains(t, mysql[0], "GENERATED ALWAYS AS (IF(status = 'active', user_id, NULL)) STORED")
	assert.Contains(t, mysql[1], "UNIQUE INDEX ux_subscriptions_one_active")
	assert.Contains(t, mysql[1], activeUserColumn)

	for _, driver := range []string{DriverPostgres, "sqlite"} {
		stmts := oneActiveStatements(driver)
		require.Len(t, stmts, 1)
		assert.Contains(t, stmts[0], "WHERE status = 'active'")
	}
}
