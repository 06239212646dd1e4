package engine

import (
	"context"
	"fmt"
	"regexp"

	"github.com/forumgate/gatekeeper/engage/dedupe"
	"github.com/forumgate/gatekeeper/engage/helpers"
)

const (
	ReasonModerator            = "moderator"
	ReasonLowReputation        = "low-reputation"
	ReasonInsufficientComments = "insufficient-comments"
	ReasonEngaged              = "engaged"
)

// Thresholds for deciding whether an author has engaged enough with the community.
type EligibilityPolicy struct {
	LinkPattern           *regexp.Regexp
	MinCommentWords       int
	MinQualifyingComments int
	MinReputation         int
}

// Everything the evaluator needs to know about the author of a submission. Fetched by the caller.
type EligibilityInput struct {
	User       string
	Reputation int
	// Forum moderator, or operator bypass list
	Moderator bool
	Comments  []Comment
	// Qualifying comments already counted since the author's last accepted post
	Banked int
}

type Verdict struct {
	Eligible bool
	// Banked plus newly qualified
	QualifyingComments int
	// Qualifying comments counted for the first time by this evaluation
	NewlyQualified int
	Reason         string
	// Identities of the newly qualified comments
	Counted []string
}

// Decides whether the author may post. The only side effect is marking newly counted (user, submission) pairs in the tracker, so that no comment is ever counted twice.
//
// Comments are skipped if they were removed, were left on the user's own submission, are on a submission without a qualifying link, or were already counted. At most one comment per submission is counted.
func (p *EligibilityPolicy) Evaluate(ctx context.Context, tracker dedupe.Tracker, in EligibilityInput) (Verdict, error) {
	if in.Moderator {
		return Verdict{Eligible: true, QualifyingComments: in.Banked, Reason: ReasonModerator}, nil
	}
	if in.Reputation < p.MinReputation {
		return Verdict{Eligible: false, QualifyingComments: in.Banked, Reason: ReasonLowReputation}, nil
	}

	var v Verdict
	newly := 0
	for _, c := range in.Comments {
		if c.Removed || c.SubmissionID == "" {
			continue
		}
		if c.SubmissionAuthor != "" && c.SubmissionAuthor == in.User {
			continue
		}
		if !helpers.ContainsLink(p.LinkPattern, c.SubmissionTitle, c.SubmissionBody, c.SubmissionURL) {
			continue
		}
		seen, err := tracker.IsEvaluated(ctx, in.User, c.SubmissionID)
		if err != nil {
			return Verdict{}, fmt.Errorf("checking evaluated comments: %w", err)
		}
		if seen {
			continue
		}
		if helpers.WordCount(c.Body) < p.MinCommentWords {
			continue
		}
		isNew, err := tracker.MarkEvaluated(ctx, in.User, c.SubmissionID)
		if err != nil {
			return Verdict{}, fmt.Errorf("marking evaluated comment: %w", err)
		}
		if isNew {
			newly++
			v.Counted = append(v.Counted, c.ID)
		}
	}

	total := in.Banked + newly
	v.Eligible = total >= p.MinQualifyingComments
	v.QualifyingComments = total
	v.NewlyQualified = newly
	v.Reason = ReasonInsufficientComments
	if v.Eligible {
		v.Reason = ReasonEngaged
	}
	return v, nil
}
