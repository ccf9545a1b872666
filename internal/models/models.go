// Package models provides domain models for the alert platform.
package models

// Tier represents an ordered subscription level gating content visibility.
type Tier string

const (
	TierFree       Tier = "free"
	TierPaid       Tier = "paid"
	TierPremium    Tier = "premium"
	TierMentorship Tier = "mentorship"
)

// tierRanks maps each tier to its position in the total order.
var tierRanks = map[Tier]int{
	TierFree:       0,
	TierPaid:       1,
	TierPremium:    2,
	TierMentorship: 3,
}

// Rank returns the tier's position in the free < paid < premium < mentorship
// order. Unknown tiers rank below free.
func (t Tier) Rank() int {
	if r, ok := tierRanks[t]; ok {
		return r
	}
	return -1
}

// AtLeast reports whether t grants everything other grants.
func (t Tier) AtLeast(other Tier) bool {
	return t.Rank() >= other.Rank()
}

// IsValid reports whether t is a known tier.
func (t Tier) IsValid() bool {
	_, ok := tierRanks[t]
	return ok
}

// AlertStatus represents an alert's position in its lifecycle.
type AlertStatus string

const (
	StatusPending    AlertStatus = "pending"
	StatusInBuyZone  AlertStatus = "in_buy_zone"
	StatusTarget1Hit AlertStatus = "target1_hit"
	StatusTarget2Hit AlertStatus = "target2_hit"
	// StatusTarget3Hit is the closed state: all targets reached.
	StatusTarget3Hit AlertStatus = "target3_hit"
	StatusStoppedOut AlertStatus = "stopped_out"
)

// statusRanks orders the upward progression. stopped_out is terminal and
// sits outside the ladder.
var statusRanks = map[AlertStatus]int{
	StatusPending:    0,
	StatusInBuyZone:  1,
	StatusTarget1Hit: 2,
	StatusTarget2Hit: 3,
	StatusTarget3Hit: 4,
}

// Rank returns the status position on the upward ladder, or -1 for
// stopped_out and unknown statuses.
func (s AlertStatus) Rank() int {
	if r, ok := statusRanks[s]; ok {
		return r
	}
	return -1
}

// IsTerminal reports whether no further transitions are possible.
func (s AlertStatus) IsTerminal() bool {
	return s == StatusTarget3Hit || s == StatusStoppedOut
}

// IsValid reports whether s is a known status.
func (s AlertStatus) IsValid() bool {
	return s == StatusStoppedOut || s.Rank() >= 0
}

// ThresholdType identifies one of an alert's price thresholds.
type ThresholdType string

const (
	ThresholdEnteredBuyZone ThresholdType = "entered_buy_zone"
	ThresholdTarget1        ThresholdType = "target1"
	ThresholdTarget2        ThresholdType = "target2"
	ThresholdTarget3        ThresholdType = "target3"
	ThresholdStoppedOut     ThresholdType = "stopped_out"
)

// ThresholdForRank maps a ladder rank to the threshold crossed when an
// alert reaches that rank. Rank 0 (pending) has no threshold.
func ThresholdForRank(rank int) (ThresholdType, bool) {
	switch rank {
	case 1:
		return ThresholdEnteredBuyZone, true
	case 2:
		return ThresholdTarget1, true
	case 3:
		return ThresholdTarget2, true
	case 4:
		return ThresholdTarget3, true
	}
	return "", false
}

// StatusForRank maps a ladder rank back to its status.
func StatusForRank(rank int) (AlertStatus, bool) {
	for s, r := range statusRanks {
		if r == rank {
			return s, true
		}
	}
	return "", false
}

// ThresholdSet tracks which thresholds an alert has already fired.
// It only ever grows while the alert is open.
type ThresholdSet map[ThresholdType]bool

// NewThresholdSet returns an empty set.
func NewThresholdSet() ThresholdSet {
	return make(ThresholdSet)
}

// Has reports whether t has already fired.
func (s ThresholdSet) Has(t ThresholdType) bool {
	return s[t]
}

// Add marks t as fired.
func (s ThresholdSet) Add(t ThresholdType) {
	s[t] = true
}

// Clone returns an independent copy of the set.
func (s ThresholdSet) Clone() ThresholdSet {
	c := make(ThresholdSet, len(s))
	for t := range s {
		c[t] = true
	}
	return c
}

// Slice returns the fired thresholds in no particular order.
func (s ThresholdSet) Slice() []ThresholdType {
	out := make([]ThresholdType, 0, len(s))
	for t, ok := range s {
		if ok {
			out = append(out, t)
		}
	}
	return out
}
