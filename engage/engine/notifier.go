package engine

import (
	"context"
)

// Summary of a moderation decision, sent to the mod-log.
type Notification struct {
	Forum        string
	Author       string
	SubmissionID string
	Title        string
	Permalink    string
	Decision     Decision
	Reason       string
}

// Interface for a type that can handle sending notifications
type Notifier interface {
	SendDecision(ctx context.Context, n Notification) error
}
