package activitystore

import (
	"context"
	"fmt"
	"time"
)

// Layout of the `last_post_date` column, and of the equivalent field in the other backends.
const DateLayout = time.DateOnly

// Engagement state for a single user.
//
// The zero value is a valid record: no banked comments, and no accepted post yet.
type Record struct {
	// Number of qualifying comments counted for this user since their last accepted post.
	QualifyingCommentCount int
	// Calendar date (UTC midnight) of the last accepted post. Zero if the user never had a post accepted.
	LastPostDate time.Time
}

func (r Record) HasPosted() bool {
	return !r.LastPostDate.IsZero()
}

// Returns the `YYYY-MM-DD` form of LastPostDate, or empty string if the user has never posted.
func (r Record) FormatDate() string {
	if !r.HasPosted() {
		return ""
	}
	return r.LastPostDate.UTC().Format(DateLayout)
}

// Truncates a timestamp to the calendar date (in UTC) on which it happened.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Parses a stored date column. Empty string is "never posted".
func ParseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid last_post_date %q: %w", s, err)
	}
	return t, nil
}

// Durable mapping from user identity to engagement record.
//
// Get returns a zero Record (and no error) for users which have never been written. Put replaces the whole record for a user; implementations must not corrupt other users' records if interrupted mid-write.
type ActivityStore interface {
	Get(ctx context.Context, user string) (Record, error)
	Put(ctx context.Context, user string, rec Record) error
}
