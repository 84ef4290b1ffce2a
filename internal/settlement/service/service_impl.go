package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/splitfold/royalty/internal/allocation"
	auditdomain "github.com/splitfold/royalty/internal/audit/domain"
	"github.com/splitfold/royalty/internal/clock"
	"github.com/splitfold/royalty/internal/config"
	contentdomain "github.com/splitfold/royalty/internal/content/domain"
	obsmetrics "github.com/splitfold/royalty/internal/observability/metrics"
	purchasedomain "github.com/splitfold/royalty/internal/purchase/domain"
	"github.com/splitfold/royalty/internal/settlement/domain"
	splitdomain "github.com/splitfold/royalty/internal/split/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const receiptTokenBytes = 24

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Cfg        config.Config
	AuditSvc   auditdomain.Service
	Repo       domain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	cfg        config.Config
	auditSvc   auditdomain.Service
	repo       domain.Repository
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("settlement.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		cfg:        p.Cfg,
		auditSvc:   p.AuditSvc,
		repo:       p.Repo,
		obsMetrics: p.ObsMetrics,
	}
}

// Finalize converts one paid purchase intent into settlement lines, an
// entitlement and a receipt token. Structural precondition failures abort
// with nothing persisted; persistence races with a concurrent finalize are
// absorbed, because the buyer's payment has already succeeded.
func (s *Service) Finalize(ctx context.Context, req domain.FinalizeRequest) (domain.FinalizeResponse, error) {
	var empty domain.FinalizeResponse

	intent, err := s.repo.FindPurchaseIntent(ctx, s.db, req.PurchaseIntentID)
	if err != nil {
		return empty, err
	}
	if intent == nil {
		return empty, domain.ErrIntentNotFound
	}
	if intent.Status != purchasedomain.IntentStatusPaid {
		return empty, domain.ErrIntentNotPaid
	}
	if intent.Purpose != purchasedomain.PurposeContentPurchase {
		return empty, domain.ErrInvalidPurpose
	}
	if intent.ManifestFingerprint == "" {
		return empty, domain.ErrManifestMissing
	}

	content, err := s.repo.FindContent(ctx, s.db, intent.ContentID)
	if err != nil {
		return empty, err
	}
	if content == nil {
		return empty, domain.ErrContentNotFound
	}

	childSplit, err := s.resolveLockedSplit(ctx, content)
	if err != nil {
		return empty, err
	}
	if childSplit == nil {
		return empty, domain.ErrNoLockedSplit
	}

	links, err := s.repo.FindParentLinks(ctx, s.db, content.ID)
	if err != nil {
		return empty, err
	}
	if len(links) > 1 {
		return empty, domain.ErrMultipleParents
	}

	net := intent.AmountNet
	childRemainder := net
	var upstreamAmount int64
	var parentSplit *splitdomain.SplitVersion

	if len(links) == 1 && links[0].UpstreamBps > 0 {
		link := links[0]
		upstreamAmount = net * link.UpstreamBps / allocation.BpsDenominator
		childRemainder = net - upstreamAmount

		parentContent, err := s.repo.FindContent(ctx, s.db, link.ParentContentID)
		if err != nil {
			return empty, err
		}
		if parentContent == nil {
			return empty, domain.ErrParentSplitNotLocked
		}
		parentSplit, err = s.resolveLockedSplit(ctx, parentContent)
		if err != nil {
			return empty, err
		}
		if parentSplit == nil {
			return empty, domain.ErrParentSplitNotLocked
		}

		s.writeAuditLog(ctx, "settlement.upstream_routed", intent.ID, map[string]any{
			"parent_content_id": link.ParentContentID.String(),
			"upstream_bps":      link.UpstreamBps,
			"upstream_amount":   upstreamAmount,
			"child_remainder":   childRemainder,
		})
	}

	childParticipants, err := s.repo.FindParticipants(ctx, s.db, childSplit.ID)
	if err != nil {
		return empty, err
	}

	now := s.clock.Now()
	settlementID := s.genID.Generate()
	lines := s.buildLines(settlementID, childRemainder, childParticipants, upstreamAmount > 0, now)

	if parentSplit != nil {
		parentParticipants, err := s.repo.FindParticipants(ctx, s.db, parentSplit.ID)
		if err != nil {
			return empty, err
		}
		lines = append(lines, s.buildUpstreamLines(settlementID, upstreamAmount, parentParticipants, now)...)
	}

	splitsHash, err := splitsHashFor(childSplit, childParticipants)
	if err != nil {
		return empty, err
	}

	if err := s.grantEntitlement(ctx, intent, content, now); err != nil {
		return empty, err
	}

	settlement := domain.Settlement{
		ID:                  settlementID,
		PurchaseIntentID:    intent.ID,
		ContentID:           content.ID,
		SplitVersionID:      childSplit.ID,
		SplitsHash:          splitsHash,
		ManifestFingerprint: intent.ManifestFingerprint,
		AmountNet:           net,
		UpstreamAmount:      upstreamAmount,
		Currency:            intent.Currency,
		CreatedAt:           now,
	}

	inserted, err := s.repo.InsertSettlement(ctx, s.db, &settlement, lines)
	if err != nil {
		// The buyer's payment already succeeded; a bookkeeping failure
		// here must not surface. Audit and continue.
		s.log.Error("settlement insert failed", zap.String("intent_id", intent.ID.String()), zap.Error(err))
		s.writeAuditLog(ctx, "settlement.create_failed", intent.ID, map[string]any{
			"error": err.Error(),
		})
	} else if !inserted {
		s.log.Info("settlement already exists for intent", zap.String("intent_id", intent.ID.String()))
	}
	if err == nil && s.obsMetrics != nil {
		outcome := "replayed"
		if inserted {
			outcome = "created"
		}
		s.obsMetrics.RecordSettlementFinalized(ctx, outcome)
	}

	return s.issueReceiptToken(ctx, intent, content)
}

func (s *Service) resolveLockedSplit(ctx context.Context, content *contentdomain.Content) (*splitdomain.SplitVersion, error) {
	if content.CurrentSplitVersionID != nil {
		pinned, err := s.repo.FindSplitVersion(ctx, s.db, *content.CurrentSplitVersionID)
		if err != nil {
			return nil, err
		}
		if pinned != nil && pinned.IsLocked() {
			return pinned, nil
		}
	}
	return s.repo.FindLatestLockedSplit(ctx, s.db, content.ID)
}

func (s *Service) buildLines(settlementID snowflake.ID, amount int64, participants []splitdomain.SplitParticipant, derivative bool, now time.Time) []domain.SettlementLine {
	byRef := participantsByRef(participants)
	shares := allocation.Allocate(amount, allocationInput(participants))

	lines := make([]domain.SettlementLine, 0, len(shares))
	for _, share := range shares {
		p := byRef[share.RecipientRef]
		role := p.Role
		if derivative {
			role = domain.RoleDerivativePrefix + role
		}
		lines = append(lines, domain.SettlementLine{
			ID:               s.genID.Generate(),
			SettlementID:     settlementID,
			RecipientRef:     share.RecipientRef,
			RecipientDisplay: p.DisplayName,
			Role:             role,
			Bps:              share.Bps,
			AmountAllocated:  share.Amount,
			CreatedAt:        now,
		})
	}
	return lines
}

func (s *Service) buildUpstreamLines(settlementID snowflake.ID, amount int64, participants []splitdomain.SplitParticipant, now time.Time) []domain.SettlementLine {
	byRef := participantsByRef(participants)
	shares := allocation.Allocate(amount, allocationInput(participants))

	lines := make([]domain.SettlementLine, 0, len(shares))
	for _, share := range shares {
		lines = append(lines, domain.SettlementLine{
			ID:               s.genID.Generate(),
			SettlementID:     settlementID,
			RecipientRef:     share.RecipientRef,
			RecipientDisplay: byRef[share.RecipientRef].DisplayName,
			Role:             domain.RoleUpstream,
			Bps:              share.Bps,
			AmountAllocated:  share.Amount,
			CreatedAt:        now,
		})
	}
	return lines
}

func (s *Service) grantEntitlement(ctx context.Context, intent *purchasedomain.PurchaseIntent, content *contentdomain.Content, now time.Time) error {
	buyerRef := domain.AnonymousBuyerRef
	if intent.BuyerID != nil {
		buyerRef = intent.BuyerID.String()
	}

	entitlement := domain.Entitlement{
		ID:                  s.genID.Generate(),
		ContentID:           content.ID,
		BuyerRef:            buyerRef,
		ManifestFingerprint: intent.ManifestFingerprint,
		GrantRef:            uuid.NewString(),
		CreatedAt:           now,
	}

	granted, err := s.repo.EnsureEntitlement(ctx, s.db, &entitlement)
	if err != nil {
		return err
	}
	if !granted {
		s.log.Info("entitlement already granted",
			zap.String("content_id", content.ID.String()),
			zap.String("buyer_ref", buyerRef),
		)
		return nil
	}
	if s.obsMetrics != nil {
		s.obsMetrics.RecordEntitlementGranted(ctx)
	}
	return nil
}

func (s *Service) issueReceiptToken(ctx context.Context, intent *purchasedomain.PurchaseIntent, content *contentdomain.Content) (domain.FinalizeResponse, error) {
	now := s.clock.Now()
	if content.StorefrontEnabled && !intent.HasLiveReceiptToken(now) {
		token, err := generateReceiptToken()
		if err != nil {
			return domain.FinalizeResponse{}, err
		}
		expiresAt := now.Add(time.Duration(s.cfg.ReceiptTTLDays) * 24 * time.Hour)
		if err := s.repo.UpdateReceiptToken(ctx, s.db, intent.ID, token, expiresAt); err != nil {
			return domain.FinalizeResponse{}, err
		}
		intent.ReceiptToken = &token
		intent.ReceiptTokenExpiresAt = &expiresAt
	}

	resp := domain.FinalizeResponse{ReceiptTokenExpiresAt: intent.ReceiptTokenExpiresAt}
	if intent.ReceiptToken != nil {
		resp.ReceiptToken = *intent.ReceiptToken
	}
	return resp, nil
}

func (s *Service) writeAuditLog(ctx context.Context, action string, intentID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		s.log.Warn("audit service unavailable", zap.String("action", action))
		return
	}
	targetID := intentID.String()
	if err := s.auditSvc.AuditLog(ctx, "system", nil, action, "purchase_intent", &targetID, metadata); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

func allocationInput(participants []splitdomain.SplitParticipant) []allocation.Participant {
	input := make([]allocation.Participant, 0, len(participants))
	for i := range participants {
		input = append(input, allocation.Participant{
			RecipientRef: participants[i].RecipientRef(),
			Bps:          participants[i].Bps,
		})
	}
	return input
}

func participantsByRef(participants []splitdomain.SplitParticipant) map[string]splitdomain.SplitParticipant {
	byRef := make(map[string]splitdomain.SplitParticipant, len(participants))
	for i := range participants {
		byRef[participants[i].RecipientRef()] = participants[i]
	}
	return byRef
}

func generateReceiptToken() (string, error) {
	buf := make([]byte, receiptTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate receipt token: %w", err)
	}
	return "rcpt_" + hex.EncodeToString(buf), nil
}
