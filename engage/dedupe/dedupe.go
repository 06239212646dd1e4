// Tracks which (user, submission) pairs have already contributed a qualifying comment towards a user's eligibility.
//
// Membership is monotonic: pairs are only ever added. The in-memory implementation loses its state on restart, which can cause a comment to be counted a second time (never fewer times). The redis implementation survives restarts.
package dedupe

import (
	"context"
)

// Composite identity of an evaluated comment: the commenting user, and the submission they commented on.
type Key struct {
	User       string
	Submission string
}

type Tracker interface {
	// Records the pair as evaluated. Returns true if the pair was not already present.
	MarkEvaluated(ctx context.Context, user, submission string) (bool, error)
	IsEvaluated(ctx context.Context, user, submission string) (bool, error)
}
