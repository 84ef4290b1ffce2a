package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/splitfold/royalty/internal/proof"
	"github.com/splitfold/royalty/internal/settlement/domain"
	splitdomain "github.com/splitfold/royalty/internal/split/domain"
)

// ExportProofBundle assembles the sealed, self-contained proof document for
// a settled purchase intent. Upstream lines are the parent's concern; the
// exported settlement section covers the child-side remainder only, so the
// same allocation rule verifies every bundle.
func (s *Service) ExportProofBundle(ctx context.Context, req domain.ExportBundleRequest) (proof.Bundle, error) {
	var empty proof.Bundle

	settlement, err := s.repo.FindSettlementByIntent(ctx, s.db, req.PurchaseIntentID)
	if err != nil {
		return empty, err
	}
	if settlement == nil {
		return empty, domain.ErrNotSettled
	}

	content, err := s.repo.FindContent(ctx, s.db, settlement.ContentID)
	if err != nil {
		return empty, err
	}
	if content == nil {
		return empty, domain.ErrContentNotFound
	}

	split, err := s.repo.FindSplitVersion(ctx, s.db, settlement.SplitVersionID)
	if err != nil {
		return empty, err
	}
	participants, err := s.repo.FindParticipants(ctx, s.db, split.ID)
	if err != nil {
		return empty, err
	}

	storedLines, err := s.repo.FindSettlementLines(ctx, s.db, settlement.ID)
	if err != nil {
		return empty, err
	}

	bundle := proof.Bundle{
		Version: proof.FormatVersion,
		Split: proof.Split{
			SplitVersionID:            split.ID.String(),
			ContentID:                 content.ID.String(),
			LockedManifestFingerprint: split.LockedManifestFingerprint,
			Participants:              bundleParticipants(participants),
		},
		Publish: proof.Publish{
			ContentID:           content.ID.String(),
			SplitVersionID:      split.ID.String(),
			ManifestFingerprint: settlement.ManifestFingerprint,
		},
		Settlement: &proof.Settlement{
			SplitVersionID:      split.ID.String(),
			ManifestFingerprint: settlement.ManifestFingerprint,
			AmountNet:           settlement.AmountNet - settlement.UpstreamAmount,
		},
		Lines: bundleLines(storedLines),
	}

	anchor, err := s.parentAnchor(ctx, content.ID)
	if err != nil {
		return empty, err
	}
	bundle.ParentPublishAnchor = anchor

	if err := proof.Seal(&bundle); err != nil {
		return empty, err
	}
	return bundle, nil
}

func (s *Service) parentAnchor(ctx context.Context, contentID snowflake.ID) (*proof.ParentPublishAnchor, error) {
	links, err := s.repo.FindParentLinks(ctx, s.db, contentID)
	if err != nil {
		return nil, err
	}
	if len(links) != 1 || links[0].UpstreamBps <= 0 {
		return nil, nil
	}

	parentContent, err := s.repo.FindContent(ctx, s.db, links[0].ParentContentID)
	if err != nil || parentContent == nil {
		return nil, err
	}
	parentSplit, err := s.resolveLockedSplit(ctx, parentContent)
	if err != nil || parentSplit == nil {
		return nil, err
	}
	parentParticipants, err := s.repo.FindParticipants(ctx, s.db, parentSplit.ID)
	if err != nil {
		return nil, err
	}
	parentHash, err := splitsHashFor(parentSplit, parentParticipants)
	if err != nil {
		return nil, err
	}

	return &proof.ParentPublishAnchor{
		ParentContentID:           parentContent.ID.String(),
		ParentManifestFingerprint: parentSplit.LockedManifestFingerprint,
		ParentSplitVersionID:      parentSplit.ID.String(),
		ParentSplitsHash:          parentHash,
	}, nil
}

func bundleParticipants(participants []splitdomain.SplitParticipant) []proof.Participant {
	out := make([]proof.Participant, 0, len(participants))
	for i := range participants {
		out = append(out, proof.Participant{
			RecipientRef:     participants[i].RecipientRef(),
			Role:             participants[i].Role,
			Bps:              participants[i].Bps,
			RecipientDisplay: participants[i].DisplayName,
		})
	}
	return out
}

func bundleLines(lines []domain.SettlementLine) []proof.Line {
	out := make([]proof.Line, 0, len(lines))
	for _, line := range lines {
		if line.Role == domain.RoleUpstream {
			continue
		}
		out = append(out, proof.Line{
			RecipientRef:     line.RecipientRef,
			Bps:              line.Bps,
			AmountAllocated:  line.AmountAllocated,
			RecipientDisplay: line.RecipientDisplay,
		})
	}
	return out
}

func splitsHashFor(split *splitdomain.SplitVersion, participants []splitdomain.SplitParticipant) (string, error) {
	return proof.SplitsHash(proof.Split{
		SplitVersionID:            split.ID.String(),
		ContentID:                 split.ContentID.String(),
		LockedManifestFingerprint: split.LockedManifestFingerprint,
		Participants:              bundleParticipants(participants),
	})
}
