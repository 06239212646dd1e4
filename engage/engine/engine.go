package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/forumgate/gatekeeper/engage/activitystore"
	"github.com/forumgate/gatekeeper/engage/cachestore"
	"github.com/forumgate/gatekeeper/engage/countstore"
	"github.com/forumgate/gatekeeper/engage/dedupe"
	"github.com/forumgate/gatekeeper/engage/helpers"
	"github.com/forumgate/gatekeeper/engage/setstore"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Cache namespace for forum moderator lists
const moderatorCacheName = "mods"

// runtime for gating submissions: fetches author context, evaluates eligibility, dispatches moderation actions, and persists per-author activity.
//
// Construct with NewEngine; the optional stores (Dedupe, Counters, Cache, Sets) default to in-process implementations and may be swapped before processing starts.
type Engine struct {
	Logger     *slog.Logger
	Platform   Platform
	Activity   activitystore.ActivityStore
	Dedupe     dedupe.Tracker
	Counters   countstore.CountStore
	Cache      cachestore.CacheStore
	Sets       setstore.SetStore
	Dispatcher *Dispatcher
	Policy     *EligibilityPolicy
	Config     Config
	// used to post rejections to a mod-log (optional)
	Notifier Notifier
	// defaults to time.Now
	Now func() time.Time
}

func NewEngine(config Config, platform Platform, activity activitystore.ActivityStore, logger *slog.Logger) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	policy, err := config.Policy()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		Logger:     logger,
		Platform:   platform,
		Activity:   activity,
		Dedupe:     dedupe.NewMemTracker(),
		Counters:   countstore.NewMemCountStore(),
		Cache:      cachestore.NewMemCacheStore(64, 30*time.Minute),
		Sets:       setstore.NewMemSetStore(),
		Dispatcher: NewDispatcher(platform, logger, config),
		Policy:     policy,
		Config:     config,
		Now:        time.Now,
	}, nil
}

func (eng *Engine) now() time.Time {
	if eng.Now == nil {
		return time.Now()
	}
	return eng.Now()
}

// Runs a single submission through the gate: link check, cooldown, description length, then author eligibility. Returns the decision reached.
//
// An error with a non-empty decision means the decision was reached but acting on it (or persisting it) failed. An error with an empty decision means processing was aborted before a decision, with no state changed beyond dedup marks.
func (eng *Engine) ProcessSubmission(ctx context.Context, sub Submission) (decision Decision, err error) {
	ctx, span := tracer.Start(ctx, "ProcessSubmission")
	defer span.End()
	span.SetAttributes(attribute.String("submission", sub.ID), attribute.String("author", sub.Author))

	start := time.Now()
	logger := eng.Logger.With("submission", sub.ID, "author", sub.Author)
	stage := "received"
	reason := ""

	// similar to an HTTP server, we want to recover any panics from processing
	defer func() {
		if r := recover(); r != nil {
			logger.Error("submission processing exception", "err", r)
			decision = ""
			err = fmt.Errorf("panic processing submission %s: %v", sub.ID, r)
		}
		if err != nil {
			submissionErrorCount.WithLabelValues(stage).Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("decision", string(decision)))
		eng.recordOutcome(ctx, logger, sub, decision, reason, err, time.Since(start))
	}()

	if sub.Author == "" {
		// deleted accounts have no author
		reason = "no-author"
		return DecisionSkip, nil
	}

	stage = "link"
	if !helpers.ContainsLink(eng.Policy.LinkPattern, sub.Title, sub.Body, sub.URL) {
		reason = "no-link"
		return DecisionSkip, nil
	}

	now := eng.now()
	rec := eng.readRecord(ctx, logger, sub.Author)

	stage = "cooldown"
	if InCooldown(rec.LastPostDate, now, eng.Config.CooldownDays) {
		reason = "posted " + rec.FormatDate()
		err = eng.Dispatcher.Dispatch(ctx, Action{
			Kind:    ActionRemoveStickyReply,
			Target:  sub.ID,
			Message: cooldownMessage(sub.Author, rec.LastPostDate, eng.Config.CooldownDays),
		})
		return DecisionRejectCooldown, err
	}

	stage = "description"
	if words := helpers.WordCount(sub.Body); words < eng.Config.MinDescriptionWords {
		reason = fmt.Sprintf("%d words", words)
		err = eng.Dispatcher.Dispatch(ctx, Action{
			Kind:    ActionRemoveStickyReply,
			Target:  sub.ID,
			Message: shortDescriptionMessage(sub.Author, eng.Config.MinDescriptionWords, words),
		})
		return DecisionRejectShortDescription, err
	}

	stage = "eligibility"
	in, err := eng.eligibilityInput(ctx, logger, sub.Author, rec)
	if err != nil {
		return "", err
	}
	verdict, err := eng.Policy.Evaluate(ctx, eng.Dedupe, in)
	if err != nil {
		return "", err
	}
	reason = verdict.Reason
	qualifyingCommentCount.Add(float64(verdict.NewlyQualified))
	logger = logger.With("reputation", in.Reputation, "qualifying", verdict.QualifyingComments, "newly_qualified", verdict.NewlyQualified)

	if eng.Config.CommentFeedback {
		eng.sendCommentFeedback(ctx, logger, verdict.Counted)
	}

	if verdict.Eligible {
		stage = "storage"
		err = eng.writeRecord(ctx, logger, sub.Author, activitystore.Record{
			QualifyingCommentCount: 0,
			LastPostDate:           activitystore.Day(now),
		})
		if eng.Config.AcceptMessage != "" {
			aerr := eng.Dispatcher.Dispatch(ctx, Action{Kind: ActionReply, Target: sub.ID, Message: eng.Config.AcceptMessage})
			if aerr != nil {
				logger.Warn("failed to post acceptance reply", "err", aerr)
			}
		}
		return DecisionAccept, err
	}

	if verdict.Reason == ReasonLowReputation {
		stage = "dispatch"
		err = eng.Dispatcher.Dispatch(ctx, Action{
			Kind:    ActionRemoveStickyReply,
			Target:  sub.ID,
			Message: lowReputationMessage(sub.Author),
		})
		return DecisionRejectLowReputation, err
	}

	stage = "dispatch"
	err = eng.Dispatcher.Dispatch(ctx, Action{
		Kind:    ActionRemoveStickyReply,
		Target:  sub.ID,
		Message: lowEngagementMessage(sub.Author, verdict, eng.Config),
	})

	// newly counted comments are banked even if the removal failed: they are already marked evaluated
	if verdict.NewlyQualified > 0 {
		rec.QualifyingCommentCount = verdict.QualifyingComments
		if werr := eng.writeRecord(ctx, logger, sub.Author, rec); werr != nil {
			if err == nil {
				stage = "storage"
			}
			err = errors.Join(err, werr)
		}
	}
	return DecisionRejectLowEngagement, err
}

// Fetches what the eligibility policy needs about the author, skipping platform reads whose results could not change the verdict.
func (eng *Engine) eligibilityInput(ctx context.Context, logger *slog.Logger, author string, rec activitystore.Record) (EligibilityInput, error) {
	in := EligibilityInput{
		User:   author,
		Banked: rec.QualifyingCommentCount,
	}

	mod, err := eng.IsModerator(ctx, author)
	if err != nil {
		return in, fmt.Errorf("checking moderator status: %w", err)
	}
	if mod {
		logger.Debug("author bypasses engagement check")
		in.Moderator = true
		return in, nil
	}

	rep, err := eng.Platform.UserReputation(ctx, author)
	if err != nil {
		return in, fmt.Errorf("fetching author reputation: %w", err)
	}
	in.Reputation = rep
	if rep < eng.Policy.MinReputation {
		return in, nil
	}

	comments, err := eng.Platform.UserComments(ctx, author, eng.Config.Forum)
	if err != nil {
		return in, fmt.Errorf("fetching author comments: %w", err)
	}
	in.Comments = comments
	return in, nil
}

// Whether the user is a forum moderator, or on the operator's bypass list. The moderator list is cached.
func (eng *Engine) IsModerator(ctx context.Context, user string) (bool, error) {
	bypass, err := eng.Sets.InSet(ctx, setstore.BypassUsers, user)
	if err != nil {
		return false, err
	}
	if bypass {
		return true, nil
	}

	mods, ok, err := cachestore.GetJSON[[]string](ctx, eng.Cache, moderatorCacheName, eng.Config.Forum)
	if err != nil {
		// a broken cache only costs an extra API call
		eng.Logger.Warn("failed reading moderator cache", "err", err)
	}
	if !ok {
		moderatorFetches.Inc()
		mods, err = eng.Platform.Moderators(ctx, eng.Config.Forum)
		if err != nil {
			return false, err
		}
		if err := cachestore.SetJSON(ctx, eng.Cache, moderatorCacheName, eng.Config.Forum, mods); err != nil {
			eng.Logger.Warn("failed writing moderator cache", "err", err)
		}
	}
	for _, m := range mods {
		if m == user {
			return true, nil
		}
	}
	return false, nil
}

// Reads the author's record. A failed read degrades to a fresh record.
func (eng *Engine) readRecord(ctx context.Context, logger *slog.Logger, user string) activitystore.Record {
	rec, err := eng.Activity.Get(ctx, user)
	if err != nil {
		submissionErrorCount.WithLabelValues("storage-read").Inc()
		logger.Error("failed to read activity record, treating author as new", "err", err)
		return activitystore.Record{}
	}
	return rec
}

func (eng *Engine) writeRecord(ctx context.Context, logger *slog.Logger, user string, rec activitystore.Record) error {
	if err := eng.Activity.Put(ctx, user, rec); err != nil {
		logger.Error("failed to persist activity record", "count", rec.QualifyingCommentCount, "last_post_date", rec.FormatDate(), "err", err)
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return nil
}

func (eng *Engine) sendCommentFeedback(ctx context.Context, logger *slog.Logger, commentIDs []string) {
	for _, id := range commentIDs {
		err := eng.Dispatcher.Dispatch(ctx, Action{Kind: ActionReply, Target: id, Message: commentFeedbackMessage})
		if err != nil {
			logger.Warn("failed to reply to qualifying comment", "comment", id, "err", err)
		}
	}
}

// Counters, notification, and the canonical log line for a processed submission.
func (eng *Engine) recordOutcome(ctx context.Context, logger *slog.Logger, sub Submission, decision Decision, reason string, err error, dur time.Duration) {
	submissionProcessDuration.Observe(dur.Seconds())
	if decision == "" {
		logger.Warn("canonical-log-line", "decision", "none", "duration", dur, "err", err)
		return
	}

	submissionDecisionCount.WithLabelValues(string(decision)).Inc()
	if cerr := eng.countDecision(ctx, sub.Author, decision); cerr != nil {
		logger.Error("failed to increment decision counters", "err", cerr)
	}

	if decision.IsRejection() && eng.Notifier != nil {
		nerr := eng.Notifier.SendDecision(ctx, Notification{
			Forum:        eng.Config.Forum,
			Author:       sub.Author,
			SubmissionID: sub.ID,
			Title:        sub.Title,
			Permalink:    sub.Permalink,
			Decision:     decision,
			Reason:       reason,
		})
		if nerr != nil {
			logger.Warn("failed to send decision notification", "err", nerr)
		}
	}

	if err != nil {
		logger.Warn("canonical-log-line", "decision", decision, "reason", reason, "duration", dur, "err", err)
		return
	}
	logger.Info("canonical-log-line", "decision", decision, "reason", reason, "duration", dur)
}

// Evaluates the user's eligibility as processing a submission would, without marking comments, dispatching actions, or changing any stored state.
func (eng *Engine) CheckEligibility(ctx context.Context, user string) (activitystore.Record, Verdict, error) {
	logger := eng.Logger.With("author", user, "dry_run", true)
	rec := eng.readRecord(ctx, logger, user)
	in, err := eng.eligibilityInput(ctx, logger, user, rec)
	if err != nil {
		return rec, Verdict{}, err
	}
	v, err := eng.Policy.Evaluate(ctx, dedupe.NewOverlayTracker(eng.Dedupe), in)
	return rec, v, err
}
