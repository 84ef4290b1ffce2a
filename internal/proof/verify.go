package proof

import (
	"fmt"

	"github.com/splitfold/royalty/internal/allocation"
)

// Options tunes a verification run.
type Options struct {
	// RecipientRef, when set, adds a per-recipient report for that one
	// recipient to the result.
	RecipientRef string
}

// Result is the outcome of verifying one bundle. Findings accumulate:
// every independent check that fails contributes an entry to Errors, so a
// caller sees all problems at once instead of stopping at the first.
type Result struct {
	OK        bool             `json:"ok"`
	Errors    []string         `json:"errors"`
	Recipient *RecipientReport `json:"recipient,omitempty"`
}

// RecipientReport is the focused expected-vs-actual comparison for a
// single recipient requested via Options.RecipientRef.
type RecipientReport struct {
	RecipientRef   string `json:"recipientRef"`
	Found          bool   `json:"found"`
	ExpectedAmount int64  `json:"expectedAmount"`
	ActualAmount   int64  `json:"actualAmount"`
	Match          bool   `json:"match"`
}

// Verify recomputes the bundle's digests and expected allocation and
// reports every discrepancy. It performs no I/O and trusts nothing in the
// document: any post-hoc tampering with amounts, weights, or hashes is
// detectable without querying the originating store.
func Verify(b Bundle, opts Options) Result {
	res := Result{Errors: []string{}}

	if b.Version != FormatVersion {
		res.addf("unsupported bundle version %d, want %d", b.Version, FormatVersion)
	}

	computedBundleHash, err := BundleHash(b)
	if err != nil {
		res.addf("bundle hash could not be recomputed: %v", err)
	} else if computedBundleHash != b.BundleHash {
		res.addf("bundle hash mismatch: stored %s, computed %s", b.BundleHash, computedBundleHash)
	}

	computedSplitsHash, err := SplitsHash(b.Split)
	if err != nil {
		res.addf("splits hash could not be recomputed: %v", err)
	} else if computedSplitsHash != b.Split.SplitsHash {
		res.addf("splits hash mismatch: stored %s, computed %s", b.Split.SplitsHash, computedSplitsHash)
	}

	if b.Publish.SplitVersionID != b.Split.SplitVersionID {
		res.addf("publish split version %s does not match split version %s", b.Publish.SplitVersionID, b.Split.SplitVersionID)
	}
	if b.Publish.SplitsHash != b.Split.SplitsHash {
		res.addf("publish splits hash does not match split section")
	}

	if anchor := b.ParentPublishAnchor; anchor != nil {
		verifyParentAnchor(&res, b, anchor)
	}

	if b.Settlement != nil {
		verifySettlement(&res, b, opts)
	} else if opts.RecipientRef != "" {
		res.Recipient = &RecipientReport{RecipientRef: opts.RecipientRef}
	}

	res.OK = len(res.Errors) == 0
	return res
}

func verifyParentAnchor(res *Result, b Bundle, anchor *ParentPublishAnchor) {
	missing := []string{}
	if anchor.ParentContentID == "" {
		missing = append(missing, "parentContentId")
	}
	if anchor.ParentManifestFingerprint == "" {
		missing = append(missing, "parentManifestFingerprint")
	}
	if anchor.ParentSplitVersionID == "" {
		missing = append(missing, "parentSplitVersionId")
	}
	if anchor.ParentSplitsHash == "" {
		missing = append(missing, "parentSplitsHash")
	}
	for _, field := range missing {
		res.addf("parent publish anchor is missing %s", field)
	}

	if anchor.ParentContentID != "" && anchor.ParentContentID == b.Split.ContentID {
		res.addf("parent publish anchor refers to the bundle's own content %s", anchor.ParentContentID)
	}
}

func verifySettlement(res *Result, b Bundle, opts Options) {
	settlement := b.Settlement

	if len(b.Lines) == 0 {
		res.addf("settlement section present but no settlement lines")
	}
	if settlement.SplitsHash != b.Split.SplitsHash {
		res.addf("settlement splits hash does not match split section")
	}
	if settlement.SplitVersionID != b.Split.SplitVersionID {
		res.addf("settlement split version %s does not match split version %s", settlement.SplitVersionID, b.Split.SplitVersionID)
	}
	if settlement.ManifestFingerprint != b.Publish.ManifestFingerprint {
		res.addf("settlement manifest fingerprint does not match publish record")
	}

	var lineSum int64
	actual := map[string]int64{}
	for _, line := range b.Lines {
		lineSum += line.AmountAllocated
		if _, dup := actual[line.RecipientRef]; dup {
			res.addf("duplicate settlement line for %s", line.RecipientRef)
			continue
		}
		actual[line.RecipientRef] = line.AmountAllocated
	}
	if lineSum != settlement.AmountNet {
		res.addf("settlement line sum %d does not match net amount %d", lineSum, settlement.AmountNet)
	}

	expected := expectedAmounts(settlement.AmountNet, b.Split.Participants)
	for _, share := range expected {
		actualAmount, ok := actual[share.RecipientRef]
		if !ok {
			res.addf("missing settlement line for %s", share.RecipientRef)
			continue
		}
		if actualAmount != share.Amount {
			res.addf("amount mismatch for %s: expected %d, actual %d", share.RecipientRef, share.Amount, actualAmount)
		}
	}
	expectedByRef := map[string]int64{}
	for _, share := range expected {
		expectedByRef[share.RecipientRef] = share.Amount
	}
	for _, line := range b.Lines {
		if _, ok := expectedByRef[line.RecipientRef]; !ok {
			res.addf("unexpected settlement line for %s", line.RecipientRef)
		}
	}

	if opts.RecipientRef != "" {
		report := &RecipientReport{RecipientRef: opts.RecipientRef}
		expectedAmount, expectedOK := expectedByRef[opts.RecipientRef]
		actualAmount, actualOK := actual[opts.RecipientRef]
		report.Found = expectedOK || actualOK
		report.ExpectedAmount = expectedAmount
		report.ActualAmount = actualAmount
		report.Match = expectedOK && actualOK && expectedAmount == actualAmount
		res.Recipient = report
	}
}

// expectedAmounts re-derives the deterministic allocation from the
// bundle's participant set using the same ordering and remainder rule the
// settlement used.
func expectedAmounts(amount int64, participants []Participant) []allocation.Share {
	input := make([]allocation.Participant, 0, len(participants))
	for _, p := range participants {
		input = append(input, allocation.Participant{
			RecipientRef: p.RecipientRef,
			Bps:          p.Bps,
		})
	}
	return allocation.Allocate(amount, input)
}

func (r *Result) addf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}
