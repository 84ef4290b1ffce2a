package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Content is one monetizable content item. A content item may pin an
// explicit "current" split version; settlement prefers the pinned version
// and falls back to the most recent locked one.
type Content struct {
	ID                    snowflake.ID  `json:"id" gorm:"primaryKey"`
	CreatorID             snowflake.ID  `json:"creator_id" gorm:"not null;index"`
	Title                 string        `json:"title" gorm:"type:text;not null"`
	ManifestFingerprint   string        `json:"manifest_fingerprint" gorm:"type:text;not null"`
	StorefrontEnabled     bool          `json:"storefront_enabled" gorm:"not null;default:false"`
	CurrentSplitVersionID *snowflake.ID `json:"current_split_version_id"`
	CreatedAt             time.Time     `json:"created_at" gorm:"not null"`
	UpdatedAt             time.Time     `json:"updated_at" gorm:"not null"`
}

func (Content) TableName() string { return "contents" }

// ContentLink is a directed edge from a derivative content item to its one
// parent. A child content item supports at most one parent link; a second
// link is a rejected configuration, not a multi-parent graph. UpstreamBps
// is the share of a derivative sale's net amount routed to the parent's
// split before the child's own split applies.
type ContentLink struct {
	ID               snowflake.ID `json:"id" gorm:"primaryKey"`
	ContentID        snowflake.ID `json:"content_id" gorm:"not null;index"`
	ParentContentID  snowflake.ID `json:"parent_content_id" gorm:"not null;index"`
	UpstreamBps      int64        `json:"upstream_bps" gorm:"not null;default:0"`
	RequiresApproval bool         `json:"requires_approval" gorm:"not null;default:false"`
	ApprovedAt       *time.Time   `json:"approved_at"`
	CreatedAt        time.Time    `json:"created_at" gorm:"not null"`
}

func (ContentLink) TableName() string { return "content_links" }

var (
	ErrNotFound    = errors.New("content_not_found")
	ErrInvalidLink = errors.New("invalid_content_link")
)
