package billing

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/creditsync/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the billing service.
type Repository interface {
	// Transaction runs fn against a repository bound to one database
	// transaction. Returning an error rolls everything back.
	Transaction(ctx context.Context, fn func(tx Repository) error) error

	CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookAttempt(id uint) error
	MarkWebhookProcessed(id uint, processingError string) error

	FindSubscriptionByProviderID(providerSubscriptionID string) (*models.BillingSubscription, error)
	FindActiveSubscription(userID string) (*models.BillingSubscription, error)
	ListSubscriptionsByUser(userID string) ([]models.BillingSubscription, error)
	CreateSubscription(sub *models.BillingSubscription) error
	SaveSubscription(sub *models.BillingSubscription) error
	UpdateSubscriptionStatus(id uint, status, action string) error
	CancelActiveSubscriptionsExcept(userID, keepProviderSubscriptionID string) (int64, error)
	ListLapsedSubscriptions(cutoff time.Time) ([]models.BillingSubscription, error)
	ExpireSubscription(id uint, cutoff time.Time) (bool, error)

	CreateLedgerEntryIfNotExists(entry *models.CreditTransaction) (bool, error)
	ListLedgerEntries(userID string) ([]models.CreditTransaction, error)
	SumLedger(userID string) (int64, error)
	IncrementUserCredits(userID string, delta int64) error
	GetUserCredits(userID string) (int64, error)

	CreateAudit(audit *models.SubscriptionAudit) error

	CreatePaymentIfNotExists(payment *models.Payment) (bool, error)
	UpdatePaymentStatus(paymentIntentID, status string) (int64, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Transaction(ctx context.Context, fn func(tx Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookAttempt(id uint) error {
	return r.db.Model(&models.BillingWebhookEvent{}).Where("id = ?", id).
		Update("attempts", gorm.Expr("attempts + 1")).Error
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormRepository) FindSubscriptionByProviderID(providerSubscriptionID string) (*models.BillingSubscription, error) {
	var sub models.BillingSubscription
	err := r.db.Where("provider_subscription_id = ?", providerSubscriptionID).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) FindActiveSubscription(userID string) (*models.BillingSubscription, error) {
	var sub models.BillingSubscription
	err := r.db.Where("user_id = ? AND status = ?", userID, models.BillingStatusActive).
		Order("current_period_end DESC, id DESC").
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) ListSubscriptionsByUser(userID string) ([]models.BillingSubscription, error) {
	var subs []models.BillingSubscription
	err := r.db.Where("user_id = ?", userID).Order("id ASC").Find(&subs).Error
	return subs, err
}

func (r *gormRepository) CreateSubscription(sub *models.BillingSubscription) error {
	return r.db.Create(sub).Error
}

func (r *gormRepository) SaveSubscription(sub *models.BillingSubscription) error {
	return r.db.Save(sub).Error
}

func (r *gormRepository) UpdateSubscriptionStatus(id uint, status, action string) error {
	return r.db.Model(&models.BillingSubscription{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "action": action}).Error
}

func (r *gormRepository) CancelActiveSubscriptionsExcept(userID, keepProviderSubscriptionID string) (int64, error) {
	tx := r.db.Model(&models.BillingSubscription{}).
		Where("user_id = ? AND status = ? AND provider_subscription_id <> ?", userID, models.BillingStatusActive, keepProviderSubscriptionID).
		Updates(map[string]interface{}{"status": models.BillingStatusCancelled, "action": string(ActionCancel)})
	return tx.RowsAffected, tx.Error
}

func (r *gormRepository) ListLapsedSubscriptions(cutoff time.Time) ([]models.BillingSubscription, error) {
	var subs []models.BillingSubscription
	err := r.db.Where("status = ? AND cancel_at_period_end = ? AND current_period_end < ?", models.BillingStatusActive, true, cutoff).
		Find(&subs).Error
	return subs, err
}

// ExpireSubscription cancels a lapsed row only if it is still active and
// still past the cutoff, so a renewal that landed in between wins.
func (r *gormRepository) ExpireSubscription(id uint, cutoff time.Time) (bool, error) {
	tx := r.db.Model(&models.BillingSubscription{}).
		Where("id = ? AND status = ? AND current_period_end < ?", id, models.BillingStatusActive, cutoff).
		Updates(map[string]interface{}{"status": models.BillingStatusCancelled, "action": string(ActionCancel)})
	return tx.RowsAffected > 0, tx.Error
}

func (r *gormRepository) CreateLedgerEntryIfNotExists(entry *models.CreditTransaction) (bool, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "reference_id"}},
		DoNothing: true,
	}).Create(entry)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) ListLedgerEntries(userID string) ([]models.CreditTransaction, error) {
	var entries []models.CreditTransaction
	err := r.db.Where("user_id = ?", userID).Order("created_at ASC").Find(&entries).Error
	return entries, err
}

func (r *gormRepository) SumLedger(userID string) (int64, error) {
	var total int64
	err := r.db.Model(&models.CreditTransaction{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return total, err
}

func (r *gormRepository) IncrementUserCredits(userID string, delta int64) error {
	row := &models.UserCredits{UserID: userID, Credits: delta}
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"credits":    gorm.Expr("user_credits.credits + ?", delta),
			"updated_at": time.Now(),
		}),
	}).Create(row).Error
}

func (r *gormRepository) GetUserCredits(userID string) (int64, error) {
	var row models.UserCredits
	err := r.db.Where("user_id = ?", userID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	return row.Credits, err
}

func (r *gormRepository) CreateAudit(audit *models.SubscriptionAudit) error {
	return r.db.Create(audit).Error
}

func (r *gormRepository) CreatePaymentIfNotExists(payment *models.Payment) (bool, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "payment_intent_id"}},
		DoNothing: true,
	}).Create(payment)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) UpdatePaymentStatus(paymentIntentID, status string) (int64, error) {
	tx := r.db.Model(&models.Payment{}).
		Where("payment_intent_id = ?", paymentIntentID).
		Update("status", status)
	return tx.RowsAffected, tx.Error
}
