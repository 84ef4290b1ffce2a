package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	contentdomain "github.com/splitfold/royalty/internal/content/domain"
	purchasedomain "github.com/splitfold/royalty/internal/purchase/domain"
	splitdomain "github.com/splitfold/royalty/internal/split/domain"
	"gorm.io/gorm"
)

// Repository is the persistence port for settlement finalization. The
// store behind it must enforce the uniqueness constraint on
// (purchase intent -> settlement) and expose create-if-absent semantics
// for entitlements; the insert methods report whether a row was actually
// written so concurrent finalize races can be absorbed.
type Repository interface {
	FindPurchaseIntent(ctx context.Context, db *gorm.DB, id snowflake.ID) (*purchasedomain.PurchaseIntent, error)
	FindContent(ctx context.Context, db *gorm.DB, id snowflake.ID) (*contentdomain.Content, error)
	FindParentLinks(ctx context.Context, db *gorm.DB, contentID snowflake.ID) ([]contentdomain.ContentLink, error)

	FindSplitVersion(ctx context.Context, db *gorm.DB, id snowflake.ID) (*splitdomain.SplitVersion, error)
	FindLatestLockedSplit(ctx context.Context, db *gorm.DB, contentID snowflake.ID) (*splitdomain.SplitVersion, error)
	FindParticipants(ctx context.Context, db *gorm.DB, splitVersionID snowflake.ID) ([]splitdomain.SplitParticipant, error)

	// InsertSettlement writes the settlement and all its lines in one
	// transaction; it reports false without error when a settlement
	// already exists for the intent.
	InsertSettlement(ctx context.Context, db *gorm.DB, settlement *Settlement, lines []SettlementLine) (bool, error)
	FindSettlementByIntent(ctx context.Context, db *gorm.DB, intentID snowflake.ID) (*Settlement, error)
	FindSettlementLines(ctx context.Context, db *gorm.DB, settlementID snowflake.ID) ([]SettlementLine, error)

	// EnsureEntitlement creates the entitlement if the tuple is absent;
	// it reports false without error when another grant won the race.
	EnsureEntitlement(ctx context.Context, db *gorm.DB, entitlement *Entitlement) (bool, error)

	UpdateReceiptToken(ctx context.Context, db *gorm.DB, intentID snowflake.ID, token string, expiresAt time.Time) error
}
