package rules

import (
	"time"

	"github.com/mbyo2/zambia-match-time/internal/domain/enums"
)

const (
	FreeSwipesPerDay = 20

	// UnlimitedSwipesDisplay is what paid tiers see as their remaining swipes.
	// It is a display convention and is never written to a counter.
	UnlimitedSwipesDisplay = 999

	DiscoveryMaxAttempts = 30
	DiscoveryWindow      = 5 * time.Minute

	GenericMaxAttempts = 10
	GenericWindow      = 60 * time.Minute
)

func DayKey(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return now.In(loc).Format("2006-01-02")
}

func NextResetAt(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
	return next.UTC()
}

func RemainingFromUsed(limit, used int) int {
	left := limit - used
	if left < 0 {
		return 0
	}
	return left
}

func DisplaySwipes(tier enums.Tier, remaining int) int {
	if tier.IsPaid() {
		return UnlimitedSwipesDisplay
	}
	if remaining < 0 {
		return 0
	}
	return remaining
}
