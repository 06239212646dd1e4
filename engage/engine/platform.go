package engine

import (
	"context"
	"errors"
	"time"
)

// A newly submitted post in the moderated forum.
type Submission struct {
	// Platform identity of the submission (eg, Reddit "fullname" like "t3_abc123")
	ID     string
	Author string
	Title  string
	// Self-text of the post; empty for pure link posts
	Body string
	// Outbound link of a link post; empty for self posts
	URL       string
	Permalink string
	CreatedAt time.Time
}

// A comment written by a user, as returned by the platform's per-user comment listing.
type Comment struct {
	ID     string
	Author string
	Body   string
	Forum  string
	// Identity, author, and content of the submission this comment was left on
	SubmissionID     string
	SubmissionAuthor string
	SubmissionTitle  string
	SubmissionBody   string
	SubmissionURL    string
	// True if the comment was removed by moderation action
	Removed bool
}

// The subset of the forum platform the engine talks to.
//
// Errors signalling a platform rate-limit must satisfy `interface{ IsThrottled() bool }` (returning true) somewhere in their wrap chain.
type Platform interface {
	// Recent comments by the user, restricted to the given forum.
	UserComments(ctx context.Context, user, forum string) ([]Comment, error)
	// Aggregate reputation ("karma") of the user across the platform.
	UserReputation(ctx context.Context, user string) (int, error)
	Moderators(ctx context.Context, forum string) ([]string, error)
	RemoveSubmission(ctx context.Context, submissionID string) error
	// Replies to a submission or comment; returns the identity of the new reply.
	Reply(ctx context.Context, parentID, text string) (string, error)
	// Marks a reply as a moderator action, optionally pinning it to the top of the thread.
	Distinguish(ctx context.Context, replyID string, sticky bool) error
}

type throttled interface {
	IsThrottled() bool
}

// Reports whether the error (or anything it wraps) is a platform rate-limit signal.
func IsRateLimited(err error) bool {
	var t throttled
	if errors.As(err, &t) {
		return t.IsThrottled()
	}
	return false
}
