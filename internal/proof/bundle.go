// Package proof defines the exportable proof-bundle document and the
// standalone verification logic over it. Everything here is pure: no
// storage access, no clock, no I/O. The wire format uses camelCase keys;
// both digests are computed over the canonical serialization of these
// exact keys, so the field tags are part of the contract.
package proof

import (
	"sort"

	"github.com/splitfold/royalty/internal/canonical"
)

// FormatVersion is the supported bundle document version.
const FormatVersion = 1

type Bundle struct {
	Version             int                  `json:"version"`
	Split               Split                `json:"split"`
	Publish             Publish              `json:"publish"`
	ParentPublishAnchor *ParentPublishAnchor `json:"parentPublishAnchor,omitempty"`
	Settlement          *Settlement          `json:"settlement,omitempty"`
	Lines               []Line               `json:"lines,omitempty"`
	BundleHash          string               `json:"bundleHash,omitempty"`
}

// Split captures the locked split configuration the bundle attests to.
type Split struct {
	SplitVersionID            string        `json:"splitVersionId"`
	ContentID                 string        `json:"contentId"`
	LockedManifestFingerprint string        `json:"lockedManifestFingerprint"`
	Participants              []Participant `json:"participants"`
	SplitsHash                string        `json:"splitsHash"`
}

type Participant struct {
	RecipientRef     string `json:"recipientRef"`
	Role             string `json:"role"`
	Bps              int64  `json:"bps"`
	RecipientDisplay string `json:"recipientDisplay,omitempty"`
}

// Publish is the publish record the split is anchored to.
type Publish struct {
	ContentID           string `json:"contentId"`
	ManifestFingerprint string `json:"manifestFingerprint"`
	SplitVersionID      string `json:"splitVersionId"`
	SplitsHash          string `json:"splitsHash"`
}

// ParentPublishAnchor links a derivative bundle to the publish record of
// its single upstream parent.
type ParentPublishAnchor struct {
	ParentContentID           string `json:"parentContentId"`
	ParentManifestFingerprint string `json:"parentManifestFingerprint"`
	ParentSplitVersionID      string `json:"parentSplitVersionId"`
	ParentSplitsHash          string `json:"parentSplitsHash"`
}

// Settlement is the optional settlement snapshot. AmountNet is the amount
// allocated over the bundle's participant set; for derivative sales that
// is the child-side remainder after the upstream deduction.
type Settlement struct {
	SplitVersionID      string `json:"splitVersionId"`
	SplitsHash          string `json:"splitsHash"`
	ManifestFingerprint string `json:"manifestFingerprint"`
	AmountNet           int64  `json:"amountNet"`
}

type Line struct {
	RecipientRef     string `json:"recipientRef"`
	Bps              int64  `json:"bps"`
	AmountAllocated  int64  `json:"amountAllocated"`
	RecipientDisplay string `json:"recipientDisplay,omitempty"`
}

// SplitsHash computes the digest binding a split version's identity,
// content, locked fingerprint and participant set. Participants are hashed
// in allocation order (bps descending, recipient ref ascending) so the
// digest is independent of the caller's ordering. Display names are
// cosmetic and excluded.
func SplitsHash(s Split) (string, error) {
	type hashedParticipant struct {
		RecipientRef string `json:"recipientRef"`
		Role         string `json:"role"`
		Bps          int64  `json:"bps"`
	}

	ordered := sortParticipants(s.Participants)
	hashed := make([]hashedParticipant, 0, len(ordered))
	for _, p := range ordered {
		hashed = append(hashed, hashedParticipant{
			RecipientRef: p.RecipientRef,
			Role:         p.Role,
			Bps:          p.Bps,
		})
	}

	return canonical.Hash(struct {
		SplitVersionID            string              `json:"splitVersionId"`
		ContentID                 string              `json:"contentId"`
		LockedManifestFingerprint string              `json:"lockedManifestFingerprint"`
		Participants              []hashedParticipant `json:"participants"`
	}{
		SplitVersionID:            s.SplitVersionID,
		ContentID:                 s.ContentID,
		LockedManifestFingerprint: s.LockedManifestFingerprint,
		Participants:              hashed,
	})
}

// BundleHash computes the digest over the full bundle with the bundleHash
// field itself omitted from the input.
func BundleHash(b Bundle) (string, error) {
	b.BundleHash = ""
	return canonical.Hash(b)
}

// Seal fills in both digests on a freshly assembled bundle.
func Seal(b *Bundle) error {
	splitsHash, err := SplitsHash(b.Split)
	if err != nil {
		return err
	}
	b.Split.SplitsHash = splitsHash
	b.Publish.SplitsHash = splitsHash
	if b.Settlement != nil {
		b.Settlement.SplitsHash = splitsHash
	}

	bundleHash, err := BundleHash(*b)
	if err != nil {
		return err
	}
	b.BundleHash = bundleHash
	return nil
}

func sortParticipants(participants []Participant) []Participant {
	ordered := make([]Participant, len(participants))
	copy(ordered, participants)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Bps != ordered[j].Bps {
			return ordered[i].Bps > ordered[j].Bps
		}
		return ordered[i].RecipientRef < ordered[j].RecipientRef
	})
	return ordered
}
