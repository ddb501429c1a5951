package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/creditsync/app/models"
	"github.com/ManuelReschke/creditsync/internal/pkg/env"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

var DB *gorm.DB

// GetDB returns the connection opened by SetupDatabase.
func GetDB() *gorm.DB {
	return DB
}

// Models lists every table the service owns, in creation order.
func Models() []interface{} {
	return []interface{}{
		&models.BillingSubscription{},
		&models.CreditTransaction{},
		&models.UserCredits{},
		&models.Payment{},
		&models.BillingWebhookEvent{},
		&models.SubscriptionAudit{},
		&models.WebhookStat{},
	}
}

func SetupDatabase() {
	driver := strings.ToLower(env.GetEnv("DB_DRIVER", DriverPostgres))
	dialector, err := openDialector(driver)
	if err != nil {
		panic(err)
	}

	for i := 0; i < maxRetries; i++ {
		DB, err = gorm.Open(dialector, &gorm.Config{})
		if err == nil {
			if err = Migrate(DB, driver); err != nil {
				panic(err)
			}
			return
		}

		log.Warnf("[Database] failed to connect (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			log.Infof("[Database] retrying in %v...", retryDelay)
			time.Sleep(retryDelay)
		}
	}

	if err != nil {
		panic(err)
	}
}

func openDialector(driver string) (gorm.Dialector, error) {
	switch driver {
	case DriverPostgres:
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			env.GetEnv("DB_HOST", "127.0.0.1"),
			env.GetEnv("DB_USER", ""),
			env.GetEnv("DB_PASSWORD", ""),
			env.GetEnv("DB_NAME", ""),
			env.GetEnv("DB_PORT", "5432"),
			env.GetEnv("DB_SSLMODE", "disable"),
		)
		return postgres.Open(dsn), nil
	case DriverMySQL:
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			env.GetEnv("DB_USER", ""),
			env.GetEnv("DB_PASSWORD", ""),
			env.GetEnv("DB_HOST", "127.0.0.1"),
			env.GetEnv("DB_PORT", "3306"),
			env.GetEnv("DB_NAME", ""),
		)
		return mysql.New(mysql.Config{
			DSN:                       dsn,
			DefaultStringSize:         256,
			DisableDatetimePrecision:  true,
			DontSupportRenameIndex:    true,
			DontSupportRenameColumn:   true,
			SkipInitializeWithVersion: false,
		}), nil
	default:
		return nil, fmt.Errorf("database: unsupported DB_DRIVER %q", driver)
	}
}

// activeUserColumn only holds user_id while a row is active, so a UNIQUE key
// on it allows one active subscription per user on engines without partial
// indexes.
const activeUserColumn = "active_user_id"

// Migrate creates the service tables and the unique index that allows one
// active subscription per user.
func Migrate(db *gorm.DB, driver string) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("database: automigrate: %w", err)
	}
	if driver == DriverMySQL && db.Migrator().HasColumn(&models.BillingSubscription{}, activeUserColumn) {
		return nil
	}
	for _, stmt := range oneActiveStatements(driver) {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("database: one-active index: %w", err)
		}
	}
	return nil
}

func oneActiveStatements(driver string) []string {
	if driver == DriverMySQL {
		return []string{
			`ALTER TABLE subscriptions ADD COLUMN ` + activeUserColumn + ` VARCHAR(64)
				GENERATED ALWAYS AS (IF(status = 'active', user_id, NULL)) STORED`,
			`CREATE UNIQUE INDEX ux_subscriptions_one_active ON subscriptions (` + activeUserColumn + `)`,
		}
	}
	return []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_subscriptions_one_active
			ON subscriptions (user_id) WHERE status = 'active'`,
	}
}

// Ping checks that the database answers within ctx.
func Ping(ctx context.Context) error {
	if DB == nil {
		return fmt.Errorf("database: not initialized")
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
