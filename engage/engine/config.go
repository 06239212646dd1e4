package engine

import (
	"fmt"
	"regexp"
	"time"
)

const DefaultDisclaimer = "*I am a bot, and this action was performed automatically. Please contact the moderators of this subreddit if you have any questions or concerns.*"

// Operator-tunable thresholds and behaviors. Immutable once the engine is constructed.
type Config struct {
	// Forum (subreddit) being moderated
	Forum string
	// Regular expression identifying a "qualifying link" in submissions, and in the parent submissions of comments
	LinkPattern string
	// Minimum whitespace-delimited words for a comment to count towards engagement
	MinCommentWords int
	// Qualifying comments required since the last accepted post
	MinQualifyingComments int
	MinReputation         int
	CooldownDays          int
	// Minimum words in the submission body
	MinDescriptionWords int
	// Wait before the single retry of a rate-limited platform action
	RateLimitBackoff time.Duration
	// Wait after every successful platform action
	ActionPacing time.Duration
	// Appended to every message the bot posts
	Disclaimer string
	// Optional reply posted on accepted submissions. Empty disables the reply.
	AcceptMessage string
	// Reply to each comment the first time it counts towards its author's engagement
	CommentFeedback bool
}

func DefaultConfig() Config {
	return Config{
		Forum:                 "BandCamp",
		LinkPattern:           `bandcamp\.com`,
		MinCommentWords:       70,
		MinQualifyingComments: 5,
		MinReputation:         15,
		CooldownDays:          14,
		MinDescriptionWords:   100,
		RateLimitBackoff:      10 * time.Minute,
		ActionPacing:          3 * time.Second,
		Disclaimer:            DefaultDisclaimer,
	}
}

func (c Config) Validate() error {
	if c.Forum == "" {
		return &ConfigError{Field: "forum", Reason: "must not be empty"}
	}
	if c.LinkPattern == "" {
		return &ConfigError{Field: "link-pattern", Reason: "must not be empty"}
	}
	if _, err := regexp.Compile(c.LinkPattern); err != nil {
		return &ConfigError{Field: "link-pattern", Reason: err.Error()}
	}
	ints := []struct {
		name string
		val  int
	}{
		{"min-comment-words", c.MinCommentWords},
		{"min-qualifying-comments", c.MinQualifyingComments},
		{"min-reputation", c.MinReputation},
		{"cooldown-days", c.CooldownDays},
		{"min-description-words", c.MinDescriptionWords},
	}
	for _, f := range ints {
		if f.val < 0 {
			return &ConfigError{Field: f.name, Reason: fmt.Sprintf("must not be negative (got %d)", f.val)}
		}
	}
	if c.RateLimitBackoff < 0 {
		return &ConfigError{Field: "rate-limit-backoff", Reason: "must not be negative"}
	}
	if c.ActionPacing < 0 {
		return &ConfigError{Field: "action-pacing", Reason: "must not be negative"}
	}
	return nil
}

// Builds the eligibility policy described by the configuration. Config must already be valid.
func (c Config) Policy() (*EligibilityPolicy, error) {
	re, err := regexp.Compile(c.LinkPattern)
	if err != nil {
		return nil, &ConfigError{Field: "link-pattern", Reason: err.Error()}
	}
	return &EligibilityPolicy{
		LinkPattern:           re,
		MinCommentWords:       c.MinCommentWords,
		MinQualifyingComments: c.MinQualifyingComments,
		MinReputation:         c.MinReputation,
	}, nil
}
