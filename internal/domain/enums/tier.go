package enums

import (
	"fmt"
	"strings"
)

// Tier is a subscription tier. The numeric value is the tier's rank and is
// the only thing entitlement comparisons look at.
type Tier int

const (
	TierFree Tier = iota
	TierBasic
	TierPremium
	TierElite
)

var tierNames = [...]string{
	TierFree:    "free",
	TierBasic:   "basic",
	TierPremium: "premium",
	TierElite:   "elite",
}

func Tiers() []Tier {
	return []Tier{TierFree, TierBasic, TierPremium, TierElite}
}

func ParseTier(value string) (Tier, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for i, name := range tierNames {
		if name == normalized {
			return Tier(i), nil
		}
	}
	return TierFree, fmt.Errorf("unknown subscription tier %q", value)
}

func (t Tier) Valid() bool {
	return t >= TierFree && t <= TierElite
}

func (t Tier) Order() int {
	return int(t)
}

// Compare returns -1, 0 or 1 when t ranks below, equal to or above other.
func (t Tier) Compare(other Tier) int {
	switch {
	case t < other:
		return -1
	case t > other:
		return 1
	default:
		return 0
	}
}

func (t Tier) AtLeast(other Tier) bool {
	return t.Compare(other) >= 0
}

func (t Tier) IsPaid() bool {
	return t > TierFree
}

func (t Tier) String() string {
	if !t.Valid() {
		return fmt.Sprintf("tier(%d)", int(t))
	}
	return tierNames[t]
}

func (t Tier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid subscription tier %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(text []byte) error {
	parsed, err := ParseTier(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
