package models

import (
	"time"

	"gorm.io/datatypes"
)

// SubscriptionAudit explains one classified subscription transition so credit
// disputes can be answered from stored data.
type SubscriptionAudit struct {
	ID                     uint           `gorm:"primaryKey" json:"id"`
	UserID                 string         `gorm:"type:varchar(64);not null;index" json:"user_id"`
	SubscriptionID         uint           `gorm:"index" json:"subscription_id"`
	ProviderSubscriptionID string         `gorm:"type:varchar(191);not null" json:"provider_subscription_id"`
	ProviderEventID        string         `gorm:"type:varchar(191);not null;default:''" json:"provider_event_id"`
	Action                 string         `gorm:"type:varchar(16);not null" json:"action"`
	FromTier               string         `gorm:"type:varchar(32);not null;default:''" json:"from_tier"`
	ToTier                 string         `gorm:"type:varchar(32);not null;default:''" json:"to_tier"`
	CreditsGranted         int64          `gorm:"not null;default:0" json:"credits_granted"`
	Reason                 string         `gorm:"type:varchar(255);not null;default:''" json:"reason"`
	Breakdown              datatypes.JSON `json:"breakdown,omitempty"`
	CreatedAt              time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
}

func (SubscriptionAudit) TableName() string {
	return "subscription_audits"
}
