package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// RoleUpstream tags parent-side settlement lines; RoleDerivativePrefix
// prefixes a child participant's role when an upstream deduction applied.
const (
	RoleUpstream         = "upstream"
	RoleDerivativePrefix = "derivative:"
)

// AnonymousBuyerRef scopes entitlements granted for anonymous purchases.
// The manifest fingerprint inside the entitlement tuple keeps anonymous
// grants bound to one exact content snapshot.
const AnonymousBuyerRef = "anon"

// Settlement is the permanent record of how one paid purchase intent's
// amount was divided. At most one settlement exists per purchase intent;
// the unique index on purchase_intent_id is the idempotence invariant.
type Settlement struct {
	ID                  snowflake.ID `json:"id" gorm:"primaryKey"`
	PurchaseIntentID    snowflake.ID `json:"purchase_intent_id" gorm:"not null;uniqueIndex:ux_settlements_intent"`
	ContentID           snowflake.ID `json:"content_id" gorm:"not null;index"`
	SplitVersionID      snowflake.ID `json:"split_version_id" gorm:"not null"`
	SplitsHash          string       `json:"splits_hash" gorm:"type:text;not null"`
	ManifestFingerprint string       `json:"manifest_fingerprint" gorm:"type:text;not null"`
	AmountNet           int64        `json:"amount_net" gorm:"not null"`
	UpstreamAmount      int64        `json:"upstream_amount" gorm:"not null;default:0"`
	Currency            string       `json:"currency" gorm:"type:text;not null"`
	CreatedAt           time.Time    `json:"created_at" gorm:"not null"`
}

func (Settlement) TableName() string { return "settlements" }

// SettlementLine is one recipient's integer share within a settlement.
type SettlementLine struct {
	ID               snowflake.ID `json:"id" gorm:"primaryKey"`
	SettlementID     snowflake.ID `json:"settlement_id" gorm:"not null;index"`
	RecipientRef     string       `json:"recipient_ref" gorm:"type:text;not null"`
	RecipientDisplay string       `json:"recipient_display" gorm:"type:text"`
	Role             string       `json:"role" gorm:"type:text;not null"`
	Bps              int64        `json:"bps" gorm:"not null"`
	AmountAllocated  int64        `json:"amount_allocated" gorm:"not null"`
	CreatedAt        time.Time    `json:"created_at" gorm:"not null"`
}

func (SettlementLine) TableName() string { return "settlement_lines" }

// Entitlement grants a buyer, or a manifest-scoped anonymous grant, access
// to one exact content manifest. Created once per (buyer, content,
// manifest) tuple; a duplicate-creation race is benign.
type Entitlement struct {
	ID                  snowflake.ID `json:"id" gorm:"primaryKey"`
	ContentID           snowflake.ID `json:"content_id" gorm:"not null;uniqueIndex:ux_entitlements_tuple,priority:1"`
	BuyerRef            string       `json:"buyer_ref" gorm:"type:text;not null;uniqueIndex:ux_entitlements_tuple,priority:2"`
	ManifestFingerprint string       `json:"manifest_fingerprint" gorm:"type:text;not null;uniqueIndex:ux_entitlements_tuple,priority:3"`
	GrantRef            string       `json:"grant_ref" gorm:"type:text;not null"`
	CreatedAt           time.Time    `json:"created_at" gorm:"not null"`
}

func (Entitlement) TableName() string { return "entitlements" }
