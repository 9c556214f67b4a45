package domain

import "fmt"

// SubscriptionTier is the billing plan of a tenant. Tiers are ordered.
type SubscriptionTier string

const (
	TierBasic        SubscriptionTier = "basic"
	TierProfessional SubscriptionTier = "professional"
	TierPremium      SubscriptionTier = "premium"
	TierEnterprise   SubscriptionTier = "enterprise"
)

// SubscriptionTiers lists every tier from lowest to highest.
var SubscriptionTiers = []SubscriptionTier{TierBasic, TierProfessional, TierPremium, TierEnterprise}

// Rank returns the ordinal of the tier, or -1 when the tier is unknown.
func (t SubscriptionTier) Rank() int {
	switch t {
	case TierBasic:
		return 0
	case TierProfessional:
		return 1
	case TierPremium:
		return 2
	case TierEnterprise:
		return 3
	}
	return -1
}

func (t SubscriptionTier) Valid() bool {
	return t.Rank() >= 0
}

// AtLeast reports whether t includes everything other includes.
// Unknown tiers never satisfy anything.
func (t SubscriptionTier) AtLeast(other SubscriptionTier) bool {
	if !t.Valid() || !other.Valid() {
		return false
	}
	return t.Rank() >= other.Rank()
}

func ParseSubscriptionTier(s string) (SubscriptionTier, error) {
	tier := SubscriptionTier(s)
	if !tier.Valid() {
		return "", fmt.Errorf("unknown subscription tier %q", s)
	}
	return tier, nil
}
