package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

type ActionKind string

const (
	ActionReply             ActionKind = "reply"
	ActionRemoveReply       ActionKind = "remove-and-reply"
	ActionRemoveStickyReply ActionKind = "remove-and-sticky-reply"
)

// A moderation action against a single submission or comment.
type Action struct {
	Kind ActionKind
	// Submission (or, for plain replies, comment) the action targets
	Target string
	// Message body, without the disclaimer
	Message string
}

func (a Action) removes() bool {
	return a.Kind == ActionRemoveReply || a.Kind == ActionRemoveStickyReply
}

// Executes moderation actions against the platform, with a single backoff-and-retry on rate limits and pacing between actions.
type Dispatcher struct {
	Platform   Platform
	Logger     *slog.Logger
	Disclaimer string
	// Wait before retrying a rate-limited step
	RateLimitBackoff time.Duration
	// Wait after every successful action
	Pacing time.Duration
	// Context-aware sleep; replaced in tests
	Sleep func(ctx context.Context, d time.Duration) error
}

func NewDispatcher(p Platform, logger *slog.Logger, config Config) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		Platform:         p,
		Logger:           logger.With("component", "dispatcher"),
		Disclaimer:       config.Disclaimer,
		RateLimitBackoff: config.RateLimitBackoff,
		Pacing:           config.ActionPacing,
		Sleep:            SleepContext,
	}
}

// Sleeps for the duration, returning early with the context error if it is cancelled.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (d *Dispatcher) sleep(ctx context.Context, dur time.Duration) error {
	if d.Sleep == nil {
		return SleepContext(ctx, dur)
	}
	return d.Sleep(ctx, dur)
}

// Appends the disclaimer to an outbound message.
func (d *Dispatcher) Decorate(msg string) string {
	if d.Disclaimer == "" {
		return msg
	}
	return msg + "\n\n" + d.Disclaimer
}

// Carries out the action. Removal and reply are attempted as a pair: if removal fails the reply is not posted; if the reply fails after a successful removal, the returned error wraps ErrPartialAction. Distinguishing the reply is best-effort.
func (d *Dispatcher) Dispatch(ctx context.Context, act Action) error {
	start := time.Now()
	logger := d.Logger.With("action", act.Kind, "target", act.Target)
	defer func() {
		actionDuration.WithLabelValues(string(act.Kind)).Observe(time.Since(start).Seconds())
	}()

	if act.removes() {
		err := d.withRetry(ctx, logger, "remove", func() error {
			return d.Platform.RemoveSubmission(ctx, act.Target)
		})
		if err != nil {
			actionFailureCount.WithLabelValues(string(act.Kind), "remove").Inc()
			logger.Error("failed to remove submission", "err", err)
			return fmt.Errorf("removing submission %s: %w", act.Target, err)
		}
	}

	var replyID string
	err := d.withRetry(ctx, logger, "reply", func() error {
		var err error
		replyID, err = d.Platform.Reply(ctx, act.Target, d.Decorate(act.Message))
		return err
	})
	if err != nil {
		actionFailureCount.WithLabelValues(string(act.Kind), "reply").Inc()
		if act.removes() {
			logger.Warn("submission removed, but explanatory reply failed", "err", err)
			return fmt.Errorf("%w: %s: %w", ErrPartialAction, act.Target, err)
		}
		logger.Error("failed to reply", "err", err)
		return fmt.Errorf("replying to %s: %w", act.Target, err)
	}

	if replyID != "" {
		sticky := act.Kind == ActionRemoveStickyReply
		err := d.withRetry(ctx, logger, "distinguish", func() error {
			return d.Platform.Distinguish(ctx, replyID, sticky)
		})
		if err != nil {
			actionFailureCount.WithLabelValues(string(act.Kind), "distinguish").Inc()
			logger.Warn("failed to distinguish reply", "reply", replyID, "sticky", sticky, "err", err)
		}
	}

	actionCount.WithLabelValues(string(act.Kind)).Inc()
	logger.Info("moderation action complete", "reply", replyID)

	// the action already succeeded; an interrupted pacing wait is not a failure
	_ = d.sleep(ctx, d.Pacing)
	return nil
}

// Runs a platform step; if it is rate-limited, waits out the backoff and tries exactly once more.
func (d *Dispatcher) withRetry(ctx context.Context, logger *slog.Logger, step string, fn func() error) error {
	err := fn()
	if err == nil || !IsRateLimited(err) {
		return err
	}
	rateLimitCount.WithLabelValues(step).Inc()
	logger.Warn("platform rate-limited, backing off before retry", "step", step, "backoff", d.RateLimitBackoff, "err", err)
	if serr := d.sleep(ctx, d.RateLimitBackoff); serr != nil {
		return fmt.Errorf("waiting out rate-limit: %w", serr)
	}
	err = fn()
	if err != nil && IsRateLimited(err) {
		return fmt.Errorf("%w (%s): %w", ErrRateLimited, step, err)
	}
	return err
}
