package core

import "fmt"

// Tier is the ordinal complexity classification of an order. It drives
// model routing and the per-order cost ceiling.
type Tier string

const (
	TierA Tier = "A" // simple single-issue motions
	TierB Tier = "B" // standard motions
	TierC Tier = "C" // multi-issue or fact-heavy motions
	TierD Tier = "D" // complex dispositive motions
)

// Tiers lists all tiers in ascending complexity order.
var Tiers = []Tier{TierA, TierB, TierC, TierD}

// ValidTier reports whether t is a known tier.
func ValidTier(t Tier) bool {
	switch t {
	case TierA, TierB, TierC, TierD:
		return true
	default:
		return false
	}
}

// ParseTier converts a string to a Tier with validation.
func ParseTier(s string) (Tier, error) {
	t := Tier(s)
	if !ValidTier(t) {
		return "", fmt.Errorf("invalid tier: %s", s)
	}
	return t, nil
}

// CostCeilingUSD returns the maximum accumulated model spend permitted
// for an order of this tier. Exceeding it is a budget error, not a
// retryable condition.
func (t Tier) CostCeilingUSD() float64 {
	switch t {
	case TierA:
		return 15.0
	case TierB:
		return 35.0
	case TierC:
		return 75.0
	case TierD:
		return 150.0
	default:
		return 0
	}
}
