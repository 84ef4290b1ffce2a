package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type IntentStatus string

const (
	IntentStatusUnpaid  IntentStatus = "unpaid"
	IntentStatusPaid    IntentStatus = "paid"
	IntentStatusExpired IntentStatus = "expired"
)

type IntentPurpose string

const (
	PurposeContentPurchase IntentPurpose = "CONTENT_PURCHASE"
	PurposeTip             IntentPurpose = "TIP"
)

// PurchaseIntent is one payment attempt for a content item. It is created
// at checkout, flipped to paid by the external payment collaborator, and
// consumed exactly once by settlement finalization. ManifestFingerprint
// binds the purchase to the exact content snapshot the buyer paid for.
type PurchaseIntent struct {
	ID                    snowflake.ID  `json:"id" gorm:"primaryKey"`
	ContentID             snowflake.ID  `json:"content_id" gorm:"not null;index"`
	Purpose               IntentPurpose `json:"purpose" gorm:"type:text;not null"`
	Status                IntentStatus  `json:"status" gorm:"type:text;not null"`
	AmountNet             int64         `json:"amount_net" gorm:"not null"`
	Currency              string        `json:"currency" gorm:"type:text;not null"`
	BuyerID               *snowflake.ID `json:"buyer_id"`
	ManifestFingerprint   string        `json:"manifest_fingerprint" gorm:"type:text"`
	ReceiptToken          *string       `json:"receipt_token"`
	ReceiptTokenExpiresAt *time.Time    `json:"receipt_token_expires_at"`
	PaidAt                *time.Time    `json:"paid_at"`
	CreatedAt             time.Time     `json:"created_at" gorm:"not null"`
	UpdatedAt             time.Time     `json:"updated_at" gorm:"not null"`
}

func (PurchaseIntent) TableName() string { return "purchase_intents" }

// HasLiveReceiptToken reports whether a non-expired receipt token is
// already present at the given instant.
func (p *PurchaseIntent) HasLiveReceiptToken(now time.Time) bool {
	if p == nil || p.ReceiptToken == nil || *p.ReceiptToken == "" {
		return false
	}
	if p.ReceiptTokenExpiresAt == nil {
		return false
	}
	return p.ReceiptTokenExpiresAt.After(now)
}

var (
	ErrNotFound = errors.New("intent_not_found")
)
