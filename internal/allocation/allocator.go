package allocation

import "sort"

// BpsDenominator is the basis-point scale: 10000 bps = 100%.
const BpsDenominator = 10000

// Participant is one weighted recipient of an allocation.
type Participant struct {
	RecipientRef string
	Bps          int64
}

// Share is one participant's exact integer share of an allocated amount.
type Share struct {
	RecipientRef string
	Bps          int64
	Amount       int64
}

// Allocate divides amount among participants by basis-point weight without
// losing or inventing currency units: shares are floor(amount*bps/10000) and
// the whole remainder goes to the first participant in sorted order
// (bps descending, recipient ref ascending). The result is deterministic
// regardless of the input ordering, and the share amounts always sum to
// amount exactly.
//
// An empty participant list yields an empty result; callers must then pass
// amount 0. A single participant receives the full amount regardless of its
// bps value. Locked splits are expected to sum to 10000 bps, but that is a
// caller-side invariant, not enforced here.
func Allocate(amount int64, participants []Participant) []Share {
	if len(participants) == 0 {
		return []Share{}
	}

	ordered := make([]Participant, len(participants))
	copy(ordered, participants)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Bps != ordered[j].Bps {
			return ordered[i].Bps > ordered[j].Bps
		}
		return ordered[i].RecipientRef < ordered[j].RecipientRef
	})

	shares := make([]Share, 0, len(ordered))
	var allocated int64
	for _, p := range ordered {
		share := amount * p.Bps / BpsDenominator
		allocated += share
		shares = append(shares, Share{
			RecipientRef: p.RecipientRef,
			Bps:          p.Bps,
			Amount:       share,
		})
	}

	if len(ordered) == 1 {
		shares[0].Amount = amount
		return shares
	}

	if remainder := amount - allocated; remainder > 0 {
		shares[0].Amount += remainder
	}

	return shares
}
