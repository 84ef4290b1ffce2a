package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// SplitStatus is the lifecycle of one revenue-split configuration.
// Only locked versions are eligible for settlement.
type SplitStatus string

const (
	SplitStatusDraft             SplitStatus = "draft"
	SplitStatusPendingAcceptance SplitStatus = "pending_acceptance"
	SplitStatusReady             SplitStatus = "ready"
	SplitStatusLocked            SplitStatus = "locked"
)

// SplitVersion is one versioned revenue-split configuration for a content
// item. Versions are monotonically increasing per content item. Once
// locked, the version is immutable and bound to the exact content-file
// fingerprint recorded in LockedManifestFingerprint.
type SplitVersion struct {
	ID                      snowflake.ID `json:"id" gorm:"primaryKey"`
	ContentID               snowflake.ID `json:"content_id" gorm:"not null;index"`
	Version                 int32        `json:"version" gorm:"not null"`
	Status                  SplitStatus  `json:"status" gorm:"type:text;not null"`
	LockedManifestFingerprint string     `json:"locked_manifest_fingerprint" gorm:"type:text"`
	LockedAt                *time.Time   `json:"locked_at"`
	CreatedAt               time.Time    `json:"created_at" gorm:"not null"`
}

func (SplitVersion) TableName() string { return "split_versions" }

func (v *SplitVersion) IsLocked() bool {
	return v != nil && v.Status == SplitStatusLocked
}

// SplitParticipant is one weighted recipient inside a split version.
// Participants are immutable once the parent version is locked.
type SplitParticipant struct {
	ID             snowflake.ID  `json:"id" gorm:"primaryKey"`
	SplitVersionID snowflake.ID  `json:"split_version_id" gorm:"not null;index"`
	Email          string        `json:"email" gorm:"type:text"`
	UserID         *snowflake.ID `json:"user_id"`
	Role           string        `json:"role" gorm:"type:text;not null"`
	DisplayName    string        `json:"display_name" gorm:"type:text"`
	Bps            int64         `json:"bps" gorm:"not null"`
	CreatedAt      time.Time     `json:"created_at" gorm:"not null"`
}

func (SplitParticipant) TableName() string { return "split_participants" }

// RecipientRef is the stable identity key used for allocation ordering and
// settlement lines: the lowercased email when present, else the user id.
func (p *SplitParticipant) RecipientRef() string {
	if email := strings.ToLower(strings.TrimSpace(p.Email)); email != "" {
		return email
	}
	if p.UserID != nil {
		return p.UserID.String()
	}
	return ""
}

var (
	ErrNotFound  = errors.New("split_not_found")
	ErrNotLocked = errors.New("split_not_locked")
)
