package models

import "time"

// Billing provider constants used across billing-related models.
const (
	BillingProviderStripe = "stripe"
)

const (
	BillingStatusActive     = "active"
	BillingStatusTrialing   = "trialing"
	BillingStatusPastDue    = "past_due"
	BillingStatusUnpaid     = "unpaid"
	BillingStatusIncomplete = "incomplete"
	BillingStatusCancelled  = "cancelled"
	BillingStatusSuperseded = "superseded"
)

// BillingSubscription mirrors a provider subscription and the credit tier it
// entitles. At most one row per user is active; rows replaced by an upgrade or
// downgrade are kept as superseded for lineage.
type BillingSubscription struct {
	ID                     uint      `gorm:"primaryKey" json:"id"`
	UserID                 string    `gorm:"type:varchar(64);not null;index:idx_subscriptions_user_status,priority:1" json:"user_id"`
	Provider               string    `gorm:"type:varchar(20);not null;default:'stripe'" json:"provider"`
	ProviderSubscriptionID string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"provider_subscription_id"`
	ProviderCustomerID     string    `gorm:"type:varchar(191);not null;default:''" json:"provider_customer_id"`
	ProviderPriceID        string    `gorm:"type:varchar(191);not null;default:''" json:"provider_price_id"`
	Tier                   string    `gorm:"type:varchar(32);not null;default:'free'" json:"tier"`
	Status                 string    `gorm:"type:varchar(32);not null;default:'active';index:idx_subscriptions_user_status,priority:2" json:"status"`
	CurrentPeriodStart     time.Time `gorm:"not null" json:"current_period_start"`
	CurrentPeriodEnd       time.Time `gorm:"not null;index" json:"current_period_end"`
	CancelAtPeriodEnd      bool      `gorm:"default:false" json:"cancel_at_period_end"`
	Action                 string    `gorm:"type:varchar(16);not null;default:''" json:"action"`
	PreviousTier           string    `gorm:"type:varchar(32);not null;default:''" json:"previous_tier,omitempty"`
	UpgradedFromID         *uint     `gorm:"index" json:"upgraded_from_id,omitempty"`
	RawPayloadJSON         string    `gorm:"type:text" json:"-"`
	CreatedAt              time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (BillingSubscription) TableName() string {
	return "subscriptions"
}

// IsTerminal reports whether the row can no longer become active again.
func (s *BillingSubscription) IsTerminal() bool {
	return s.Status == BillingStatusCancelled || s.Status == BillingStatusSuperseded
}
