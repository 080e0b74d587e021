package allocation

import (
	"sort"

	"golang.org/x/sync/errgroup"
)

// FallbackTier is the rule that produced the fractions of a group.
type FallbackTier string

const (
	TierDirectEvidence   FallbackTier = "direct_evidence"
	TierCapacityFallback FallbackTier = "capacity_fallback"
	TierSoleClaimant     FallbackTier = "sole_claimant"
	TierUndetermined     FallbackTier = "undetermined"
)

// Reasons attached to group diagnostics.
const (
	ReasonNoEvidence        = "no generator report or capacity to allocate by"
	ReasonNoAggregate       = "no fuel-type total reported for the group"
	ReasonMissingEvidence   = "some members have no generator report and receive a zero share"
	ReasonNegativeEvidence  = "negative generator report"
	ReasonDiscardedEvidence = "negative generator report discarded, group allocated by a later rule"
)

// FractionRow is a candidate with its share of the group totals.
type FractionRow struct {
	CandidateRow
	Fraction float64
	Tier     FallbackTier
}

// FractionResult holds the fractions of every determined group and the
// groups that could not be allocated.
type FractionResult struct {
	Rows              []FractionRow
	Underdetermined   []GroupIssue
	MissingAggregates []GroupIssue
	PartialEvidence   []GroupIssue
	// NegativeEvidence lists groups allocated by capacity or as a sole
	// claimant after negative generator reports were discarded.
	NegativeEvidence  []GroupIssue
}

type groupOutcome struct {
	groupKey  GroupKey
	members   int
	rows      []FractionRow
	issue     *GroupIssue
	noTotal   bool
	partial   bool
	discarded bool
}

// groupDecision is the result of the fallback ladder for one group.
type groupDecision struct {
	fractions []float64
	tier      FallbackTier
	partial   bool
	negative  bool
	reason    string
}

// AllocateFractions assigns each candidate its share of the group totals.
// Groups are independent and evaluated concurrently by up to workers
// goroutines; output order follows the sorted group keys.
func AllocateFractions(candidates []CandidateRow, workers int) FractionResult {
	keys, groups := partition(candidates)
	outcomes := make([]groupOutcome, len(keys))

	var g errgroup.Group
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			outcomes[i] = allocateGroup(key, groups[key])
			return nil
		})
	}
	_ = g.Wait()

	var res FractionResult
	for _, o := range outcomes {
		switch {
		case o.noTotal:
			res.MissingAggregates = append(res.MissingAggregates, GroupIssue{Key: o.groupKey, Members: o.members, Reason: ReasonNoAggregate})
		case o.issue != nil:
			res.Underdetermined = append(res.Underdetermined, *o.issue)
		default:
			if o.partial {
				res.PartialEvidence = append(res.PartialEvidence, GroupIssue{Key: o.groupKey, Members: o.members, Reason: ReasonMissingEvidence})
			}
			if o.discarded {
				res.NegativeEvidence = append(res.NegativeEvidence, GroupIssue{Key: o.groupKey, Members: o.members, Reason: ReasonDiscardedEvidence})
			}
			res.Rows = append(res.Rows, o.rows...)
		}
	}
	return res
}

func partition(candidates []CandidateRow) ([]GroupKey, map[GroupKey][]CandidateRow) {
	groups := make(map[GroupKey][]CandidateRow)
	for _, c := range candidates {
		key := c.Group()
		groups[key] = append(groups[key], c)
	}
	keys := make([]GroupKey, 0, len(groups))
	for key, members := range groups {
		keys = append(keys, key)
		sort.SliceStable(members, func(i, j int) bool { return members[i].GeneratorID < members[j].GeneratorID })
	}
	sortGroupKeys(keys)
	return keys, groups
}

// allocateGroup evaluates the fallback ladder once for the whole group.
func allocateGroup(key GroupKey, members []CandidateRow) groupOutcome {
	out := groupOutcome{groupKey: key, members: len(members)}
	if !members[0].HasAggregate {
		out.noTotal = true
		return out
	}

	d := groupFractions(members)
	if d.tier == TierUndetermined {
		out.issue = &GroupIssue{Key: key, Members: len(members), Reason: d.reason}
		return out
	}
	out.partial = d.partial
	out.discarded = d.negative
	out.rows = make([]FractionRow, len(members))
	for i, m := range members {
		out.rows[i] = FractionRow{CandidateRow: m, Fraction: d.fractions[i], Tier: d.tier}
	}
	return out
}

func groupFractions(members []CandidateRow) groupDecision {
	fractions := make([]float64, len(members))

	var evidence float64
	reported, negative := 0, false
	for _, m := range members {
		if m.NetGenerationMWh == nil {
			continue
		}
		reported++
		if *m.NetGenerationMWh < 0 {
			negative = true
		}
		evidence += *m.NetGenerationMWh
	}
	if reported > 0 && !negative && evidence > 0 {
		for i, m := range members {
			if m.NetGenerationMWh != nil {
				fractions[i] = *m.NetGenerationMWh / evidence
			}
		}
		return groupDecision{fractions: fractions, tier: TierDirectEvidence, partial: reported < len(members)}
	}

	var capacity float64
	for _, m := range members {
		if m.CapacityMW != nil && *m.CapacityMW > 0 {
			capacity += *m.CapacityMW
		}
	}
	if capacity > 0 {
		for i, m := range members {
			if m.CapacityMW != nil && *m.CapacityMW > 0 {
				fractions[i] = *m.CapacityMW / capacity
			}
		}
		return groupDecision{fractions: fractions, tier: TierCapacityFallback, negative: negative}
	}

	if len(members) == 1 {
		fractions[0] = 1
		return groupDecision{fractions: fractions, tier: TierSoleClaimant, negative: negative}
	}

	if negative {
		return groupDecision{tier: TierUndetermined, reason: ReasonNegativeEvidence}
	}
	return groupDecision{tier: TierUndetermined, reason: ReasonNoEvidence}
}
