package engine

import (
	"context"

	"github.com/forumgate/gatekeeper/engage/countstore"
	"github.com/forumgate/gatekeeper/engage/helpers"
)

// countstore namespaces
const (
	counterDecision        = "decision"
	counterAuthorDecision  = "author-decision"
	counterDecisionAuthors = "decision-authors"
)

func authorDecisionKey(author string, d Decision) string {
	return author + "/" + string(d)
}

// Decision counts read back from the countstore. Zero counts are left out.
type DecisionStats struct {
	// decisions on this author's submissions, all time
	Author map[Decision]int `json:"author,omitempty"`
	// decisions across the forum today (UTC)
	ForumToday map[Decision]int `json:"forumToday,omitempty"`
	// distinct authors receiving each decision today
	AuthorsToday map[Decision]int `json:"authorsToday,omitempty"`
}

func (eng *Engine) countDecision(ctx context.Context, author string, d Decision) error {
	if err := eng.Counters.Increment(ctx, counterDecision, string(d)); err != nil {
		return err
	}
	if d == DecisionSkip {
		return nil
	}
	if err := eng.Counters.Increment(ctx, counterAuthorDecision, authorDecisionKey(author, d)); err != nil {
		return err
	}
	return eng.Counters.IncrementDistinct(ctx, counterDecisionAuthors, string(d), helpers.HashOfString(author))
}

func (eng *Engine) DecisionStats(ctx context.Context, author string) (*DecisionStats, error) {
	stats := DecisionStats{
		Author:       make(map[Decision]int),
		ForumToday:   make(map[Decision]int),
		AuthorsToday: make(map[Decision]int),
	}
	for _, d := range AllDecisions {
		n, err := eng.Counters.GetCount(ctx, counterDecision, string(d), countstore.PeriodDay)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			stats.ForumToday[d] = n
		}
		if d == DecisionSkip {
			continue
		}
		if author != "" {
			n, err = eng.Counters.GetCount(ctx, counterAuthorDecision, authorDecisionKey(author, d), countstore.PeriodTotal)
			if err != nil {
				return nil, err
			}
			if n > 0 {
				stats.Author[d] = n
			}
		}
		n, err = eng.Counters.GetCountDistinct(ctx, counterDecisionAuthors, string(d), countstore.PeriodDay)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			stats.AuthorsToday[d] = n
		}
	}
	return &stats, nil
}
