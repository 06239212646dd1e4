package engine

import (
	"time"

	"github.com/forumgate/gatekeeper/engage/activitystore"
)

// Whether a user whose last accepted post was on date `last` is still inside the cooldown window at time `now`.
//
// Comparison is on civil dates (UTC): a post exactly `days` days after the last one is allowed. A zero `last` (never posted) is never in cooldown.
func InCooldown(last, now time.Time, days int) bool {
	if last.IsZero() || days <= 0 {
		return false
	}
	elapsed := activitystore.Day(now).Sub(activitystore.Day(last))
	return elapsed < time.Duration(days)*24*time.Hour
}

// First civil date on which the user may post again.
func CooldownEnds(last time.Time, days int) time.Time {
	return activitystore.Day(last).AddDate(0, 0, days)
}
