package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/splitfold/royalty/internal/clock"
	"github.com/splitfold/royalty/internal/config"
	"github.com/splitfold/royalty/internal/proof"
	"github.com/splitfold/royalty/internal/settlement/domain"
	settlementrepo "github.com/splitfold/royalty/internal/settlement/repository"
	settlementservice "github.com/splitfold/royalty/internal/settlement/service"
	splitdomain "github.com/splitfold/royalty/internal/split/domain"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type noopAuditService struct{}

func (noopAuditService) AuditLog(ctx context.Context, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error {
	return nil
}

type fixture struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
	svc   domain.Service
}

func newFixture(t *testing.T, nodeID int64) *fixture {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	fake := clock.NewFakeClock(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC))

	svc := settlementservice.NewService(settlementservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    fake,
		Cfg:      config.Config{ReceiptTTLDays: 14},
		AuditSvc: noopAuditService{},
		Repo:     settlementrepo.Provide(),
	})

	return &fixture{db: db, node: node, clock: fake, svc: svc}
}

func TestFinalizeCreatesSettlementEntitlementAndReceipt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 20)

	contentID := f.seedContent(t, "mf_abc", true, nil)
	f.seedLockedSplit(t, contentID, 1, "mf_abc", []participantSeed{
		{email: "alice@example.com", role: "composer", display: "Alice", bps: 6000},
		{email: "bob@example.com", role: "producer", display: "Bob", bps: 4000},
	})
	buyerID := f.node.Generate()
	intentID := f.seedPaidIntent(t, contentID, 10000, &buyerID, "mf_abc")

	resp, err := f.svc.Finalize(ctx, domain.FinalizeRequest{PurchaseIntentID: intentID})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	assertCount(t, f.db, "SELECT COUNT(1) FROM settlements", 1)
	assertCount(t, f.db, "SELECT COUNT(1) FROM settlement_lines", 2)
	assertCount(t, f.db, "SELECT COUNT(1) FROM entitlements", 1)

	if got := f.lineAmount(t, "alice@example.com"); got != 6000 {
		t.Fatalf("expected alice to receive 6000, got %d", got)
	}
	if got := f.lineAmount(t, "bob@example.com"); got != 4000 {
		t.Fatalf("expected bob to receive 4000, got %d", got)
	}

	var buyerRef string
	if err := f.db.Raw("SELECT buyer_ref FROM entitlements LIMIT 1").Scan(&buyerRef).Error; err != nil {
		t.Fatalf("scan buyer_ref: %v", err)
	}
	if buyerRef != buyerID.String() {
		t.Fatalf("expected buyer_ref %s, got %s", buyerID.String(), buyerRef)
	}

	if !strings.HasPrefix(resp.ReceiptToken, "rcpt_") {
		t.Fatalf("expected receipt token with rcpt_ prefix, got %q", resp.ReceiptToken)
	}
	if resp.ReceiptTokenExpiresAt == nil {
		t.Fatalf("expected receipt token expiry to be set")
	}
	wantExpiry := f.clock.Now().Add(14 * 24 * time.Hour)
	if !resp.ReceiptTokenExpiresAt.Equal(wantExpiry) {
		t.Fatalf("expected expiry %s, got %s", wantExpiry, resp.ReceiptTokenExpiresAt)
	}
}

func TestFinalizeHandlesSubCentRemainder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 21)

	contentID := f.seedContent(t, "mf_odd", false, nil)
	f.seedLockedSplit(t, contentID, 1, "mf_odd", []participantSeed{
		{email: "alice@example.com", role: "composer", bps: 6667},
		{email: "bob@example.com", role: "producer", bps: 3333},
	})
	intentID := f.seedPaidIntent(t, contentID, 10001, nil, "mf_odd")

	if _, err := f.svc.Finalize(ctx, domain.FinalizeRequest{PurchaseIntentID: intentID}); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	if got := f.lineAmount(t, "alice@example.com"); got != 6668 {
		t.Fatalf("expected largest share to absorb the remainder, got %d", got)
	}
	if got := f.lineAmount(t, "bob@example.com"); got != 3333 {
		t.Fatalf("expected bob to receive 3333, got %d", got)
	}

	var sum int64
	if err := f.db.Raw("SELECT SUM(amount_allocated) FROM settlement_lines").Scan(&sum).Error; err != nil {
		t.Fatalf("sum lines: %v", err)
	}
	if sum != 10001 {
		t.Fatalf("expected line sum 10001, got %d", sum)
	}
}

func TestFinalizeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 22)

	contentID := f.seedContent(t, "mf_abc", true, nil)
	f.seedLockedSplit(t, contentID, 1, "mf_abc", []participantSeed{
		{email: "alice@example.com", role: "composer", bps: 6000},
		{email: "bob@example.com", role: "producer", bps: 4000},
	})
	buyerID := f.node.Generate()
	intentID := f.seedPaidIntent(t, contentID, 10000, &buyerID, "mf_abc")

	first, err := f.svc.Finalize(ctx, domain.FinalizeRequest{PurchaseIntentID: intentID})
	if err != nil {
		t.Fatalf("first finalize: %v", err)
	}
	second, err := f.svc.Finalize(ctx, domain.FinalizeRequest{PurchaseIntentID: intentID})
	if err != nil {
		t.Fatalf("second finalize: %v", err)
	}

	assertCount(t, f.db, "SELECT COUNT(1) FROM settlements", 1)
	assertCount(t, f.db, "SELECT COUNT(1) FROM settlement_lines", 2)
	assertCount(t, f.db, "SELECT COUNT(1) FROM entitlements", 1)

	if first.ReceiptToken == "" || first.ReceiptToken != second.ReceiptToken {
		t.Fatalf("expected both calls to yield the same receipt token, got %q and %q", first.ReceiptToken, second.ReceiptToken)
	}
}

func TestFinalizeRoutesUpstreamShare(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 23)

	parentID := f.seedContent(t, "mf_parent", false, nil)
	f.seedLockedSplit(t, parentID, 1, "mf_parent", []participantSeed{
		{email: "carol@example.com", role: "composer", display: "Carol", bps: 10000},
	})

	childID := f.seedContent(t, "mf_child", false, nil)
	f.seedLockedSplit(t, childID, 1, "mf_child", []participantSeed{
		{email: "alice@example.com", role: "composer", bps: 6000},
		{email: "bob@example.com", role: "producer", bps: 4000},
	})
	f.seedLink(t, childID, parentID, 1000)

	intentID := f.seedPaidIntent(t, childID, 10000, nil, "mf_child")

	if _, err := f.svc.Finalize(ctx, domain.FinalizeRequest{PurchaseIntentID: intentID}); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	assertCount(t, f.db, "SELECT COUNT(1) FROM settlements", 1)
	assertCount(t, f.db, "SELECT COUNT(1) FROM settlement_lines", 3)

	var upstreamAmount int64
	if err := f.db.Raw("SELECT upstream_amount FROM settlements LIMIT 1").Scan(&upstreamAmount).Error; err != nil {
		t.Fatalf("scan upstream_amount: %v", err)
	}
	if upstreamAmount != 1000 {
		t.Fatalf("expected upstream amount 1000, got %d", upstreamAmount)
	}

	if got := f.lineAmount(t, "carol@example.com"); got != 1000 {
		t.Fatalf("expected carol's upstream line to be 1000, got %d", got)
	}
	if got := f.lineAmount(t, "alice@example.com"); got != 5400 {
		t.Fatalf("expected alice to receive 5400 of the remainder, got %d", got)
	}
	if got := f.lineAmount(t, "bob@example.com"); got != 3600 {
		t.Fatalf("expected bob to receive 3600 of the remainder, got %d", got)
	}

	var carolRole string
	if err := f.db.Raw("SELECT role FROM settlement_lines WHERE recipient_ref = ?", "carol@example.com").Scan(&carolRole).Error; err != nil {
		t.Fatalf("scan role: %v", err)
	}
	if carolRole != domain.RoleUpstream {
		t.Fatalf("expected role %s, got %s", domain.RoleUpstream, carolRole)
	}

	var aliceRole string
	if err := f.db.Raw("SELECT role FROM settlement_lines WHERE recipient_ref = ?", "alice@example.com").Scan(&aliceRole).Error; err != nil {
		t.Fatalf("scan role: %v", err)
	}
	if aliceRole != domain.RoleDerivativePrefix+"composer" {
		t.Fatalf("expected derivative-prefixed role, got %s", aliceRole)
	}
}

func TestFinalizeRejectsMultipleParents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 24)

	parentA := f.seedContent(t, "mf_a", false, nil)
	parentB := f.seedContent(t, "mf_b", false, nil)
	childID := f.seedContent(t, "mf_child", false, nil)
	f.seedLockedSplit(t, childID, 1, "mf_child", []participantSeed{
		{email: "alice@example.com", role: "composer", bps: 10000},
	})
	f.seedLink(t, childID, parentA, 500)
	f.seedLink(t, childID, parentB, 500)

	intentID := f.seedPaidIntent(t, childID, 10000, nil, "mf_child")

	_, err := f.svc.Finalize(ctx, domain.FinalizeRequest{PurchaseIntentID: intentID})
	if !errors.Is(err, domain.ErrMultipleParents) {
		t.Fatalf("expected ErrMultipleParents, got %v", err)
	}

	assertCount(t, f.db, "SELECT COUNT(1) FROM settlements", 0)
	assertCount(t, f.db, "SELECT COUNT(1) FROM entitlements", 0)
}

func TestFinalizeParentSplitNotLocked(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 25)

	parentID := f.seedContent(t, "mf_parent", false, nil)
	f.seedSplit(t, parentID, 1, splitdomain.SplitStatusDraft, "", []participantSeed{
		{email: "carol@example.com", role: "composer", bps: 10000},
	})

	childID := f.seedContent(t, "mf_child", false, nil)
	f.seedLockedSplit(t, childID, 1, "mf_child", []participantSeed{
		{email: "alice@example.com", role: "composer", bps: 10000},
	})
	f.seedLink(t, childID, parentID, 1000)

	intentID := f.seedPaidIntent(t, childID, 10000, nil, "mf_child")

	_, err := f.svc.Finalize(ctx, domain.FinalizeRequest{PurchaseIntentID: intentID})
	if !errors.Is(err, domain.ErrParentSplitNotLocked) {
		t.Fatalf("expected ErrParentSplitNotLocked, got %v", err)
	}
	assertCount(t, f.db, "SELECT COUNT(1) FROM settlements", 0)
}

func TestFinalizePreconditions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 26)

	contentID := f.seedContent(t, "mf_abc", false, nil)
	f.seedLockedSplit(t, contentID, 1, "mf_abc", []participantSeed{
		{email: "alice@example.com", role: "composer", bps: 10000},
	})

	t.Run("unknown intent", func(t *testing.T) {
		_, err := f.svc.Finalize(ctx, domain.FinalizeRequest{PurchaseIntentID: f.node.Generate()})
		if !errors.Is(err, domain.ErrIntentNotFound) {
			t.Fatalf("expected ErrIntentNotFound, got %v", err)
		}
	})

	t.Run("unpaid intent", func(t *testing.T) {
		intentID := f.seedIntent(t, contentID, 10000, nil, "mf_abc", "unpaid", "CONTENT_PURCHASE")
		_, err := f.svc.Finalize(ctx, domain.FinalizeRequest{PurchaseIntentID: intentID})
		if !errors.Is(err, domain.ErrIntentNotPaid) {
			t.Fatalf("expected ErrIntentNotPaid, got %v", err)
		}
	})

	t.Run("tip intent", func(t *testing.T) {
		intentID := f.seedIntent(t, contentID, 10000, nil, "mf_abc", "paid", "TIP")
		_, err := f.svc.Finalize(ctx, domain.FinalizeRequest{PurchaseIntentID: intentID})
		if !errors.Is(err, domain.ErrInvalidPurpose) {
			t.Fatalf("expected ErrInvalidPurpose, got %v", err)
		}
	})

	t.Run("missing manifest fingerprint", func(t *testing.T) {
		intentID := f.seedIntent(t, contentID, 10000, nil, "", "paid", "CONTENT_PURCHASE")
		_, err := f.svc.Finalize(ctx, domain.FinalizeRequest{PurchaseIntentID: intentID})
		if !errors.Is(err, domain.ErrManifestMissing) {
			t.Fatalf("expected ErrManifestMissing, got %v", err)
		}
	})

	t.Run("no locked split", func(t *testing.T) {
		bareContent := f.seedContent(t, "mf_bare", false, nil)
		intentID := f.seedPaidIntent(t, bareContent, 10000, nil, "mf_bare")
		_, err := f.svc.Finalize(ctx, domain.FinalizeRequest{PurchaseIntentID: intentID})
		if !errors.Is(err, domain.ErrNoLockedSplit) {
			t.Fatalf("expected ErrNoLockedSplit, got %v", err)
		}
	})

	assertCount(t, f.db, "SELECT COUNT(1) FROM settlements", 0)
}

func TestFinalizeAnonymousBuyerEntitlement(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 27)

	contentID := f.seedContent(t, "mf_abc", false, nil)
	f.seedLockedSplit(t, contentID, 1, "mf_abc", []participantSeed{
		{email: "alice@example.com", role: "composer", bps: 10000},
	})
	intentID := f.seedPaidIntent(t, contentID, 5000, nil, "mf_abc")

	resp, err := f.svc.Finalize(ctx, domain.FinalizeRequest{PurchaseIntentID: intentID})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	var buyerRef string
	if err := f.db.Raw("SELECT buyer_ref FROM entitlements LIMIT 1").Scan(&buyerRef).Error; err != nil {
		t.Fatalf("scan buyer_ref: %v", err)
	}
	if buyerRef != domain.AnonymousBuyerRef {
		t.Fatalf("expected anonymous buyer ref, got %s", buyerRef)
	}

	// Storefront disabled, so no receipt token is minted.
	if resp.ReceiptToken != "" {
		t.Fatalf("expected no receipt token, got %q", resp.ReceiptToken)
	}
}

func TestFinalizePrefersPinnedSplitVersion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 28)

	contentID := f.seedContent(t, "mf_abc", false, nil)
	pinnedID := f.seedLockedSplit(t, contentID, 1, "mf_abc", []participantSeed{
		{email: "alice@example.com", role: "composer", bps: 10000},
	})
	f.seedLockedSplit(t, contentID, 2, "mf_abc", []participantSeed{
		{email: "bob@example.com", role: "producer", bps: 10000},
	})
	f.pinSplit(t, contentID, pinnedID)

	intentID := f.seedPaidIntent(t, contentID, 10000, nil, "mf_abc")
	if _, err := f.svc.Finalize(ctx, domain.FinalizeRequest{PurchaseIntentID: intentID}); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	var splitVersionID int64
	if err := f.db.Raw("SELECT split_version_id FROM settlements LIMIT 1").Scan(&splitVersionID).Error; err != nil {
		t.Fatalf("scan split_version_id: %v", err)
	}
	if snowflake.ID(splitVersionID) != pinnedID {
		t.Fatalf("expected pinned split version %s, got %d", pinnedID, splitVersionID)
	}
	if got := f.lineAmount(t, "alice@example.com"); got != 10000 {
		t.Fatalf("expected full amount on the pinned version's participant, got %d", got)
	}
}

func TestExportProofBundleVerifies(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 29)

	contentID := f.seedContent(t, "mf_abc", false, nil)
	f.seedLockedSplit(t, contentID, 1, "mf_abc", []participantSeed{
		{email: "alice@example.com", role: "composer", display: "Alice", bps: 6000},
		{email: "bob@example.com", role: "producer", display: "Bob", bps: 4000},
	})
	intentID := f.seedPaidIntent(t, contentID, 10000, nil, "mf_abc")

	if _, err := f.svc.Finalize(ctx, domain.FinalizeRequest{PurchaseIntentID: intentID}); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	bundle, err := f.svc.ExportProofBundle(ctx, domain.ExportBundleRequest{PurchaseIntentID: intentID})
	if err != nil {
		t.Fatalf("export bundle: %v", err)
	}

	result := proof.Verify(bundle, proof.Options{})
	if !result.OK {
		t.Fatalf("expected exported bundle to verify, errors: %v", result.Errors)
	}
	if bundle.Settlement == nil || bundle.Settlement.AmountNet != 10000 {
		t.Fatalf("expected settlement amount 10000 in bundle")
	}
	if bundle.ParentPublishAnchor != nil {
		t.Fatalf("expected no parent anchor for a root content item")
	}
}

func TestExportProofBundleWithUpstreamVerifies(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 30)

	parentID := f.seedContent(t, "mf_parent", false, nil)
	f.seedLockedSplit(t, parentID, 1, "mf_parent", []participantSeed{
		{email: "carol@example.com", role: "composer", bps: 10000},
	})

	childID := f.seedContent(t, "mf_child", false, nil)
	f.seedLockedSplit(t, childID, 1, "mf_child", []participantSeed{
		{email: "alice@example.com", role: "composer", bps: 6000},
		{email: "bob@example.com", role: "producer", bps: 4000},
	})
	f.seedLink(t, childID, parentID, 1000)

	intentID := f.seedPaidIntent(t, childID, 10000, nil, "mf_child")
	if _, err := f.svc.Finalize(ctx, domain.FinalizeRequest{PurchaseIntentID: intentID}); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	bundle, err := f.svc.ExportProofBundle(ctx, domain.ExportBundleRequest{PurchaseIntentID: intentID})
	if err != nil {
		t.Fatalf("export bundle: %v", err)
	}

	result := proof.Verify(bundle, proof.Options{})
	if !result.OK {
		t.Fatalf("expected exported derivative bundle to verify, errors: %v", result.Errors)
	}
	if bundle.Settlement == nil || bundle.Settlement.AmountNet != 9000 {
		t.Fatalf("expected child-side settlement amount 9000 in bundle")
	}
	if len(bundle.Lines) != 2 {
		t.Fatalf("expected 2 child-side lines, got %d", len(bundle.Lines))
	}
	if bundle.ParentPublishAnchor == nil {
		t.Fatalf("expected parent anchor on a derivative bundle")
	}
	if bundle.ParentPublishAnchor.ParentContentID != parentID.String() {
		t.Fatalf("expected anchor parent %s, got %s", parentID, bundle.ParentPublishAnchor.ParentContentID)
	}
}

func TestExportProofBundleRequiresSettlement(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 31)

	contentID := f.seedContent(t, "mf_abc", false, nil)
	intentID := f.seedPaidIntent(t, contentID, 10000, nil, "mf_abc")

	_, err := f.svc.ExportProofBundle(ctx, domain.ExportBundleRequest{PurchaseIntentID: intentID})
	if !errors.Is(err, domain.ErrNotSettled) {
		t.Fatalf("expected ErrNotSettled, got %v", err)
	}
}

type participantSeed struct {
	email   string
	role    string
	display string
	bps     int64
}

func (f *fixture) seedContent(t *testing.T, fingerprint string, storefront bool, pinned *snowflake.ID) snowflake.ID {
	t.Helper()
	id := f.node.Generate()
	now := f.clock.Now()
	if err := f.db.Exec(
		`INSERT INTO contents (id, creator_id, title, manifest_fingerprint, storefront_enabled, current_split_version_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, f.node.Generate(), "Test Track", fingerprint, storefront, pinned, now, now,
	).Error; err != nil {
		t.Fatalf("seed content: %v", err)
	}
	return id
}

func (f *fixture) pinSplit(t *testing.T, contentID, splitVersionID snowflake.ID) {
	t.Helper()
	if err := f.db.Exec(
		"UPDATE contents SET current_split_version_id = ? WHERE id = ?",
		splitVersionID, contentID,
	).Error; err != nil {
		t.Fatalf("pin split: %v", err)
	}
}

func (f *fixture) seedLink(t *testing.T, childID, parentID snowflake.ID, upstreamBps int64) {
	t.Helper()
	if err := f.db.Exec(
		`INSERT INTO content_links (id, content_id, parent_content_id, upstream_bps, requires_approval, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		f.node.Generate(), childID, parentID, upstreamBps, false, f.clock.Now(),
	).Error; err != nil {
		t.Fatalf("seed link: %v", err)
	}
}

func (f *fixture) seedLockedSplit(t *testing.T, contentID snowflake.ID, version int32, fingerprint string, participants []participantSeed) snowflake.ID {
	t.Helper()
	return f.seedSplit(t, contentID, version, splitdomain.SplitStatusLocked, fingerprint, participants)
}

func (f *fixture) seedSplit(t *testing.T, contentID snowflake.ID, version int32, status splitdomain.SplitStatus, fingerprint string, participants []participantSeed) snowflake.ID {
	t.Helper()
	id := f.node.Generate()
	now := f.clock.Now()
	var lockedAt *time.Time
	if status == splitdomain.SplitStatusLocked {
		lockedAt = &now
	}
	if err := f.db.Exec(
		`INSERT INTO split_versions (id, content_id, version, status, locked_manifest_fingerprint, locked_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, contentID, version, status, fingerprint, lockedAt, now,
	).Error; err != nil {
		t.Fatalf("seed split version: %v", err)
	}
	for _, p := range participants {
		if err := f.db.Exec(
			`INSERT INTO split_participants (id, split_version_id, email, user_id, role, display_name, bps, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			f.node.Generate(), id, p.email, nil, p.role, p.display, p.bps, now,
		).Error; err != nil {
			t.Fatalf("seed participant: %v", err)
		}
	}
	return id
}

func (f *fixture) seedPaidIntent(t *testing.T, contentID snowflake.ID, amount int64, buyerID *snowflake.ID, fingerprint string) snowflake.ID {
	t.Helper()
	return f.seedIntent(t, contentID, amount, buyerID, fingerprint, "paid", "CONTENT_PURCHASE")
}

func (f *fixture) seedIntent(t *testing.T, contentID snowflake.ID, amount int64, buyerID *snowflake.ID, fingerprint, status, purpose string) snowflake.ID {
	t.Helper()
	id := f.node.Generate()
	now := f.clock.Now()
	var paidAt *time.Time
	if status == "paid" {
		paidAt = &now
	}
	if err := f.db.Exec(
		`INSERT INTO purchase_intents (id, content_id, purpose, status, amount_net, currency, buyer_id,
			manifest_fingerprint, receipt_token, receipt_token_expires_at, paid_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, contentID, purpose, status, amount, "usd", buyerID, fingerprint, nil, nil, paidAt, now, now,
	).Error; err != nil {
		t.Fatalf("seed intent: %v", err)
	}
	return id
}

func (f *fixture) lineAmount(t *testing.T, recipientRef string) int64 {
	t.Helper()
	var amount int64
	if err := f.db.Raw(
		"SELECT amount_allocated FROM settlement_lines WHERE recipient_ref = ?",
		recipientRef,
	).Scan(&amount).Error; err != nil {
		t.Fatalf("scan line amount for %s: %v", recipientRef, err)
	}
	return amount
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE contents (
			id BIGINT PRIMARY KEY,
			creator_id BIGINT NOT NULL,
			title TEXT NOT NULL,
			manifest_fingerprint TEXT NOT NULL,
			storefront_enabled BOOLEAN NOT NULL DEFAULT FALSE,
			current_split_version_id BIGINT,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE content_links (
			id BIGINT PRIMARY KEY,
			content_id BIGINT NOT NULL,
			parent_content_id BIGINT NOT NULL,
			upstream_bps BIGINT NOT NULL DEFAULT 0,
			requires_approval BOOLEAN NOT NULL DEFAULT FALSE,
			approved_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE split_versions (
			id BIGINT PRIMARY KEY,
			content_id BIGINT NOT NULL,
			version INTEGER NOT NULL,
			status TEXT NOT NULL,
			locked_manifest_fingerprint TEXT,
			locked_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE split_participants (
			id BIGINT PRIMARY KEY,
			split_version_id BIGINT NOT NULL,
			email TEXT,
			user_id BIGINT,
			role TEXT NOT NULL,
			display_name TEXT,
			bps BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE purchase_intents (
			id BIGINT PRIMARY KEY,
			content_id BIGINT NOT NULL,
			purpose TEXT NOT NULL,
			status TEXT NOT NULL,
			amount_net BIGINT NOT NULL,
			currency TEXT NOT NULL,
			buyer_id BIGINT,
			manifest_fingerprint TEXT,
			receipt_token TEXT,
			receipt_token_expires_at TIMESTAMPTZ,
			paid_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE settlements (
			id BIGINT PRIMARY KEY,
			purchase_intent_id BIGINT NOT NULL,
			content_id BIGINT NOT NULL,
			split_version_id BIGINT NOT NULL,
			splits_hash TEXT NOT NULL,
			manifest_fingerprint TEXT NOT NULL,
			amount_net BIGINT NOT NULL,
			upstream_amount BIGINT NOT NULL DEFAULT 0,
			currency TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_settlements_intent ON settlements(purchase_intent_id)`,
		`CREATE TABLE settlement_lines (
			id BIGINT PRIMARY KEY,
			settlement_id BIGINT NOT NULL,
			recipient_ref TEXT NOT NULL,
			recipient_display TEXT,
			role TEXT NOT NULL,
			bps BIGINT NOT NULL,
			amount_allocated BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE entitlements (
			id BIGINT PRIMARY KEY,
			content_id BIGINT NOT NULL,
			buyer_ref TEXT NOT NULL,
			manifest_fingerprint TEXT NOT NULL,
			grant_ref TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_entitlements_tuple ON entitlements(content_id, buyer_ref, manifest_fingerprint)`,
		`CREATE TABLE audit_logs (
			id BIGINT PRIMARY KEY,
			actor_type TEXT NOT NULL,
			actor_id TEXT,
			action TEXT NOT NULL,
			target_type TEXT NOT NULL,
			target_id TEXT,
			metadata TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
	}

	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("schema exec failed: %v", err)
		}
	}

	return db
}

func assertCount(t *testing.T, db *gorm.DB, query string, expected int64) {
	t.Helper()

	var count int64
	if err := db.Raw(query).Scan(&count).Error; err != nil {
		t.Fatalf("query count: %v", err)
	}
	if count != expected {
		t.Fatalf("expected %d, got %d", expected, count)
	}
}
