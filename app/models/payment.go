package models

import "time"

const (
	PaymentStatusPending   = "pending"
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusFailed    = "failed"

	// PaymentStatusNeedsReview marks a paid credit purchase whose credit
	// amount could not be determined.
	PaymentStatusNeedsReview = "needs_review"
)

const (
	PaymentTypeSubscription   = "subscription"
	PaymentTypeCreditPurchase = "credit_purchase"
)

// Payment records one provider payment. PaymentIntentID is unique; checkout
// sessions without an intent use a "cs:" prefixed session id instead.
type Payment struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	UserID            string    `gorm:"type:varchar(64);not null;default:'';index" json:"user_id"`
	PaymentIntentID   string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"payment_intent_id"`
	CheckoutSessionID string    `gorm:"type:varchar(191);not null;default:''" json:"checkout_session_id"`
	Amount            int64     `gorm:"not null;default:0" json:"amount"`
	Currency          string    `gorm:"type:varchar(8);not null;default:''" json:"currency"`
	Status            string    `gorm:"type:varchar(16);not null;default:'pending'" json:"status"`
	Type              string    `gorm:"type:varchar(32);not null;default:'subscription'" json:"type"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Payment) TableName() string {
	return "payments"
}
