// Adapts the Reddit API client to the engine's platform interface and the consumer's submission source.
package platform

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/forumgate/gatekeeper/engage/cachestore"
	"github.com/forumgate/gatekeeper/engage/engine"
	"github.com/forumgate/gatekeeper/reddit"
)

const (
	redditHost              = "https://www.reddit.com"
	submissionBodyCacheName = "submission-body"
)

type RedditPlatform struct {
	Client *reddit.Client
	// Max comments to fetch per user (the API caps this at 100)
	CommentLimit int
	// Self-text of parent submissions, by fullname (optional)
	Cache cachestore.CacheStore
}

var _ engine.Platform = (*RedditPlatform)(nil)

func NewRedditPlatform(c *reddit.Client) *RedditPlatform {
	return &RedditPlatform{
		Client:       c,
		CommentLimit: reddit.MaxListingLimit,
		Cache:        cachestore.NewMemCacheStore(2048, 30*time.Minute),
	}
}

// Newest submissions in the subreddit, newest first.
func (p *RedditPlatform) NewSubmissions(ctx context.Context, forum string, limit int) ([]engine.Submission, error) {
	links, err := p.Client.SubredditNew(ctx, forum, limit)
	if err != nil {
		return nil, err
	}
	out := make([]engine.Submission, 0, len(links))
	for _, l := range links {
		out = append(out, submissionFromLink(l))
	}
	return out, nil
}

func submissionFromLink(l reddit.Link) engine.Submission {
	sub := engine.Submission{
		ID:        l.Name,
		Author:    l.Author,
		Title:     l.Title,
		Body:      l.Selftext,
		CreatedAt: l.CreatedAt(),
	}
	// deleted accounts show up as "[deleted]"
	if sub.Author == "[deleted]" {
		sub.Author = ""
	}
	// self posts link to themselves
	if !l.IsSelf {
		sub.URL = l.URL
	}
	if l.Permalink != "" {
		sub.Permalink = redditHost + l.Permalink
	}
	return sub
}

// The user's recent comments in the forum. Comment listings lack the parent submission's self-text, so that is looked up separately.
func (p *RedditPlatform) UserComments(ctx context.Context, user, forum string) ([]engine.Comment, error) {
	comments, err := p.Client.UserComments(ctx, user, p.CommentLimit)
	if err != nil {
		return nil, err
	}
	var out []engine.Comment
	for _, c := range comments {
		if !strings.EqualFold(c.Subreddit, forum) {
			continue
		}
		out = append(out, engine.Comment{
			ID:               c.Name,
			Author:           c.Author,
			Body:             c.Body,
			Forum:            c.Subreddit,
			SubmissionID:     c.LinkID,
			SubmissionAuthor: c.LinkAuthor,
			SubmissionTitle:  c.LinkTitle,
			SubmissionURL:    c.LinkURL,
			Removed:          c.IsRemoved(),
		})
	}
	if err := p.fillSubmissionBodies(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Sets SubmissionBody on each comment that could still count, from the cache or with batched info requests.
func (p *RedditPlatform) fillSubmissionBodies(ctx context.Context, comments []engine.Comment) error {
	bodies := make(map[string]string)
	var missing []string
	for _, c := range comments {
		if c.Removed || c.SubmissionID == "" {
			continue
		}
		if _, ok := bodies[c.SubmissionID]; ok {
			continue
		}
		if p.Cache != nil {
			// a cache read failure just means another fetch
			body, ok, err := cachestore.GetJSON[string](ctx, p.Cache, submissionBodyCacheName, c.SubmissionID)
			if err == nil && ok {
				bodies[c.SubmissionID] = body
				continue
			}
		}
		bodies[c.SubmissionID] = ""
		missing = append(missing, c.SubmissionID)
	}

	for start := 0; start < len(missing); start += reddit.MaxListingLimit {
		end := min(start+reddit.MaxListingLimit, len(missing))
		links, err := p.Client.Info(ctx, missing[start:end])
		if err != nil {
			return fmt.Errorf("fetching parent submissions: %w", err)
		}
		for _, l := range links {
			bodies[l.Name] = l.Selftext
			if p.Cache != nil {
				_ = cachestore.SetJSON(ctx, p.Cache, submissionBodyCacheName, l.Name, l.Selftext)
			}
		}
	}

	for i := range comments {
		comments[i].SubmissionBody = bodies[comments[i].SubmissionID]
	}
	return nil
}

func (p *RedditPlatform) UserReputation(ctx context.Context, user string) (int, error) {
	acct, err := p.Client.UserAbout(ctx, user)
	if err != nil {
		return 0, err
	}
	return acct.Karma(), nil
}

func (p *RedditPlatform) Moderators(ctx context.Context, forum string) ([]string, error) {
	return p.Client.SubredditModerators(ctx, forum)
}

func (p *RedditPlatform) RemoveSubmission(ctx context.Context, submissionID string) error {
	return p.Client.Remove(ctx, submissionID, false)
}

func (p *RedditPlatform) Reply(ctx context.Context, parentID, text string) (string, error) {
	return p.Client.Comment(ctx, parentID, text)
}

func (p *RedditPlatform) Distinguish(ctx context.Context, replyID string, sticky bool) error {
	return p.Client.Distinguish(ctx, replyID, sticky)
}
