package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	contentdomain "github.com/splitfold/royalty/internal/content/domain"
	purchasedomain "github.com/splitfold/royalty/internal/purchase/domain"
	"github.com/splitfold/royalty/internal/settlement/domain"
	splitdomain "github.com/splitfold/royalty/internal/split/domain"
	pkgdb "github.com/splitfold/royalty/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindPurchaseIntent(ctx context.Context, db *gorm.DB, id snowflake.ID) (*purchasedomain.PurchaseIntent, error) {
	var item purchasedomain.PurchaseIntent
	err := db.WithContext(ctx).Raw(
		`SELECT id, content_id, purpose, status, amount_net, currency, buyer_id,
			manifest_fingerprint, receipt_token, receipt_token_expires_at,
			paid_at, created_at, updated_at
		 FROM purchase_intents
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindContent(ctx context.Context, db *gorm.DB, id snowflake.ID) (*contentdomain.Content, error) {
	var item contentdomain.Content
	err := db.WithContext(ctx).Raw(
		`SELECT id, creator_id, title, manifest_fingerprint, storefront_enabled,
			current_split_version_id, created_at, updated_at
		 FROM contents
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindParentLinks(ctx context.Context, db *gorm.DB, contentID snowflake.ID) ([]contentdomain.ContentLink, error) {
	var links []contentdomain.ContentLink
	err := db.WithContext(ctx).Raw(
		`SELECT id, content_id, parent_content_id, upstream_bps,
			requires_approval, approved_at, created_at
		 FROM content_links
		 WHERE content_id = ?
		 ORDER BY id`,
		contentID,
	).Scan(&links).Error
	if err != nil {
		return nil, err
	}
	return links, nil
}

func (r *repo) FindSplitVersion(ctx context.Context, db *gorm.DB, id snowflake.ID) (*splitdomain.SplitVersion, error) {
	var item splitdomain.SplitVersion
	err := db.WithContext(ctx).Raw(
		`SELECT id, content_id, version, status, locked_manifest_fingerprint,
			locked_at, created_at
		 FROM split_versions
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindLatestLockedSplit(ctx context.Context, db *gorm.DB, contentID snowflake.ID) (*splitdomain.SplitVersion, error) {
	var item splitdomain.SplitVersion
	err := db.WithContext(ctx).Raw(
		`SELECT id, content_id, version, status, locked_manifest_fingerprint,
			locked_at, created_at
		 FROM split_versions
		 WHERE content_id = ? AND status = ?
		 ORDER BY version DESC
		 LIMIT 1`,
		contentID,
		splitdomain.SplitStatusLocked,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindParticipants(ctx context.Context, db *gorm.DB, splitVersionID snowflake.ID) ([]splitdomain.SplitParticipant, error) {
	var participants []splitdomain.SplitParticipant
	err := db.WithContext(ctx).Raw(
		`SELECT id, split_version_id, email, user_id, role, display_name, bps, created_at
		 FROM split_participants
		 WHERE split_version_id = ?
		 ORDER BY id`,
		splitVersionID,
	).Scan(&participants).Error
	if err != nil {
		return nil, err
	}
	return participants, nil
}

func (r *repo) InsertSettlement(ctx context.Context, db *gorm.DB, settlement *domain.Settlement, lines []domain.SettlementLine) (bool, error) {
	inserted := false
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.WithContext(ctx).Exec(
			`INSERT INTO settlements (
				id, purchase_intent_id, content_id, split_version_id, splits_hash,
				manifest_fingerprint, amount_net, upstream_amount, currency, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (purchase_intent_id) DO NOTHING`,
			settlement.ID,
			settlement.PurchaseIntentID,
			settlement.ContentID,
			settlement.SplitVersionID,
			settlement.SplitsHash,
			settlement.ManifestFingerprint,
			settlement.AmountNet,
			settlement.UpstreamAmount,
			settlement.Currency,
			settlement.CreatedAt,
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		inserted = true

		for _, line := range lines {
			if err := tx.WithContext(ctx).Exec(
				`INSERT INTO settlement_lines (
					id, settlement_id, recipient_ref, recipient_display, role,
					bps, amount_allocated, created_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				line.ID,
				line.SettlementID,
				line.RecipientRef,
				line.RecipientDisplay,
				line.Role,
				line.Bps,
				line.AmountAllocated,
				line.CreatedAt,
			).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return false, nil
		}
		return false, err
	}
	return inserted, nil
}

func (r *repo) FindSettlementByIntent(ctx context.Context, db *gorm.DB, intentID snowflake.ID) (*domain.Settlement, error) {
	var item domain.Settlement
	err := db.WithContext(ctx).Raw(
		`SELECT id, purchase_intent_id, content_id, split_version_id, splits_hash,
			manifest_fingerprint, amount_net, upstream_amount, currency, created_at
		 FROM settlements
		 WHERE purchase_intent_id = ?
		 LIMIT 1`,
		intentID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindSettlementLines(ctx context.Context, db *gorm.DB, settlementID snowflake.ID) ([]domain.SettlementLine, error) {
	var lines []domain.SettlementLine
	err := db.WithContext(ctx).Raw(
		`SELECT id, settlement_id, recipient_ref, recipient_display, role,
			bps, amount_allocated, created_at
		 FROM settlement_lines
		 WHERE settlement_id = ?
		 ORDER BY amount_allocated DESC, recipient_ref`,
		settlementID,
	).Scan(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *repo) EnsureEntitlement(ctx context.Context, db *gorm.DB, entitlement *domain.Entitlement) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO entitlements (
			id, content_id, buyer_ref, manifest_fingerprint, grant_ref, created_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (content_id, buyer_ref, manifest_fingerprint) DO NOTHING`,
		entitlement.ID,
		entitlement.ContentID,
		entitlement.BuyerRef,
		entitlement.ManifestFingerprint,
		entitlement.GrantRef,
		entitlement.CreatedAt,
	)
	if res.Error != nil {
		if pkgdb.IsDuplicateKeyErr(res.Error) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) UpdateReceiptToken(ctx context.Context, db *gorm.DB, intentID snowflake.ID, token string, expiresAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE purchase_intents
		 SET receipt_token = ?, receipt_token_expires_at = ?, updated_at = ?
		 WHERE id = ?`,
		token,
		expiresAt,
		time.Now().UTC(),
		intentID,
	).Error
}
