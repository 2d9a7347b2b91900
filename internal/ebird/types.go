// Package ebird filters detections against regional occurrence data.
// Regional packs are immutable SQLite files mapping (scientific name,
// H3 cell) to an occurrence tier; the filter blocks species whose tier
// falls at or below the configured strictness.
package ebird

// Tier is an eBird occurrence tier for a species within an H3 cell.
// Tiers order from rarest to most common.
type Tier string

const (
	TierVagrant  Tier = "vagrant"
	TierRare     Tier = "rare"
	TierUncommon Tier = "uncommon"
	TierCommon   Tier = "common"

	// TierUnknown marks a species absent from the regional pack.
	TierUnknown Tier = ""
)

// tierRank orders tiers from rarest (0) to most common. Strictness uses
// the same scale: a strictness setting blocks every tier with rank less
// than or equal to its own.
var tierRank = map[Tier]int{
	TierVagrant:  0,
	TierRare:     1,
	TierUncommon: 2,
	TierCommon:   3,
}

// Valid reports whether the tier is one of the four pack tiers.
func (t Tier) Valid() bool {
	_, ok := tierRank[t]
	return ok
}

// blockedBy reports whether the tier falls inside the block set selected
// by the strictness tier. Strictness "vagrant" blocks only vagrants;
// "common" blocks every tier found in the pack.
func (t Tier) blockedBy(strictness Tier) bool {
	rank, ok := tierRank[t]
	if !ok {
		return false
	}
	limit, ok := tierRank[strictness]
	if !ok {
		return false
	}
	return rank <= limit
}

// Detection modes recognized by the filter.
const (
	ModeOff    = "off"
	ModeWarn   = "warn"
	ModeFilter = "filter"
)

// Behaviors applied when the regional pack has no entry for a species.
const (
	UnknownAllow = "allow"
	UnknownBlock = "block"
)

// Decision is the outcome of a regional filter evaluation.
type Decision struct {
	Blocked bool
	Tier    Tier   // resolved occurrence tier, TierUnknown when absent from the pack
	Region  string // matched region id, empty when no pack covers the point
	Reason  string // human readable explanation for logs and responses
}

// Allow is the pass-through decision used on every fail-open path.
func Allow(reason string) Decision {
	return Decision{Blocked: false, Reason: reason}
}
