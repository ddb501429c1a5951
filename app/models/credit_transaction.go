package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Ledger entry types.
const (
	CreditTypeReward   = "reward"
	CreditTypePurchase = "purchase"
	CreditTypeConsume  = "consume"
	CreditTypeRefund   = "refund"
)

// Ledger reference types.
const (
	CreditRefSubscriptionInitial   = "subscription_initial"
	CreditRefSubscriptionUpgrade   = "subscription_upgrade"
	CreditRefSubscriptionDowngrade = "subscription_downgrade"
	CreditRefSubscriptionRenewal   = "subscription_renewal"
	CreditRefCreditPurchase        = "credit_purchase"
)

// CreditTransaction is an append-only ledger row. ReferenceID is unique so the
// same billing fact can never be applied twice.
type CreditTransaction struct {
	ID            string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID        string         `gorm:"type:varchar(64);not null;index" json:"user_id"`
	Amount        int64          `gorm:"not null" json:"amount"`
	Type          string         `gorm:"type:varchar(16);not null" json:"type"`
	Description   string         `gorm:"type:varchar(255);not null;default:''" json:"description"`
	ReferenceID   string         `gorm:"type:varchar(191);not null;uniqueIndex" json:"reference_id"`
	ReferenceType string         `gorm:"type:varchar(32);not null;index" json:"reference_type"`
	Breakdown     datatypes.JSON `json:"breakdown,omitempty"`
	CreatedAt     time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
}

func (CreditTransaction) TableName() string {
	return "credit_transactions"
}

func (t *CreditTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return nil
}

// UserCredits caches the ledger sum per user. The ledger stays authoritative.
type UserCredits struct {
	UserID    string    `gorm:"type:varchar(64);primaryKey" json:"user_id"`
	Credits   int64     `gorm:"not null;default:0" json:"credits"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (UserCredits) TableName() string {
	return "user_credits"
}
