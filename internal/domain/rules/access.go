package rules

import "github.com/mbyo2/zambia-match-time/internal/domain/enums"

// HasAccess reports whether a caller on current may use a feature that
// requires the required tier.
func HasAccess(current, required enums.Tier) bool {
	return current.Order() >= required.Order()
}

// UpgradeTarget is the tier a free user is pointed at when a counted
// resource runs out.
func UpgradeTarget(current enums.Tier) enums.Tier {
	if current < enums.TierBasic {
		return enums.TierBasic
	}
	return current
}
