// Polls a forum for new submissions and feeds them, one at a time and oldest first, to the engine.
package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/forumgate/gatekeeper/engage/engine"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

var pollerCursorPrefix = "gatekeeper/submissionCursor/"

// Source of the forum's newest submissions.
type Source interface {
	NewSubmissions(ctx context.Context, forum string, limit int) ([]engine.Submission, error)
}

type Processor interface {
	ProcessSubmission(ctx context.Context, sub engine.Submission) (engine.Decision, error)
}

type Poller struct {
	Logger *slog.Logger
	// used to persist the cursor across restarts (optional)
	RedisClient *redis.Client
	Source      Source
	Engine      Processor
	Forum       string
	// Submissions requested per poll
	Limit int
	// Wait between polls that found nothing new
	Period time.Duration
	// Attempts at a submission whose processing was aborted before a decision
	MaxAttempts int

	// submission ID to attempt count
	attempts *lru.Cache[string, int]
	// submissions created at or before this time are never processed
	boundary time.Time
	// created-at timestamp (RFC 3339) of the newest submission handled so far. the value is a string.
	lastCursor atomic.Value
}

func NewPoller(logger *slog.Logger, src Source, eng Processor, forum string) (*Poller, error) {
	attempts, err := lru.New[string, int](4096)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		Logger:      logger.With("component", "poller", "forum", forum),
		Source:      src,
		Engine:      eng,
		Forum:       forum,
		Limit:       25,
		Period:      30 * time.Second,
		MaxAttempts: 3,
		attempts:    attempts,
	}, nil
}

// Processes new submissions until the context is cancelled. On first run (no persisted cursor) submissions which already exist are skipped.
//
// Cancellation is checked between submissions; the submission in flight is allowed to finish.
func (p *Poller) Run(ctx context.Context) error {
	if p.Engine == nil {
		return fmt.Errorf("nil engine")
	}
	if p.Source == nil {
		return fmt.Errorf("nil source")
	}

	cur, err := p.ReadLastCursor(ctx)
	if err != nil {
		return err
	}
	if cur == "" {
		cur = time.Now().UTC().Format(time.RFC3339Nano)
	}
	since, err := time.Parse(time.RFC3339Nano, cur)
	if err != nil {
		return fmt.Errorf("invalid submission cursor %q: %w", cur, err)
	}
	p.boundary = since
	p.lastCursor.Store(cur)

	p.Logger.Info("polling for new submissions", "cursor", cur, "period", p.Period.String())
	for {
		if ctx.Err() != nil {
			return nil
		}
		subs, err := p.Source.NewSubmissions(ctx, p.Forum, p.Limit)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			pollErrorCount.Inc()
			p.Logger.Warn("fetching new submissions failed; sleeping then will retry", "err", err, "period", p.Period.String())
			if engine.SleepContext(ctx, p.Period) != nil {
				return nil
			}
			continue
		}

		decided := p.ProcessBatch(ctx, subs)
		if ctx.Err() != nil {
			return nil
		}
		// a poll that only retried aborted submissions still waits out the period
		if decided == 0 {
			p.Logger.Debug("... submission poller sleeping", "period", p.Period.String())
			if engine.SleepContext(ctx, p.Period) != nil {
				return nil
			}
		}
	}
}

// Runs the not-yet-handled submissions of a listing through the engine, oldest first. Returns the number of submissions which reached a decision; aborted attempts are not counted.
func (p *Poller) ProcessBatch(ctx context.Context, subs []engine.Submission) int {
	if p.attempts == nil {
		p.attempts, _ = lru.New[string, int](4096)
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	sorted := make([]engine.Submission, len(subs))
	copy(sorted, subs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	decided := 0
	for _, sub := range sorted {
		if ctx.Err() != nil {
			break
		}
		if !sub.CreatedAt.After(p.boundary) {
			continue
		}
		n, _ := p.attempts.Get(sub.ID)
		if n >= maxAttempts {
			continue
		}
		submissionsPolled.Inc()

		// let the in-flight submission finish even if we are shutting down
		decision, err := p.Engine.ProcessSubmission(context.WithoutCancel(ctx), sub)
		if err != nil {
			p.Logger.Error("failed to process submission", "submission", sub.ID, "decision", decision, "err", err)
		}
		if decision == "" && err != nil {
			// aborted before a decision; try again on a later poll
			p.attempts.Add(sub.ID, n+1)
			if n+1 >= maxAttempts {
				p.Logger.Warn("giving up on submission", "submission", sub.ID, "attempts", n+1)
			}
		} else {
			decided++
			p.attempts.Add(sub.ID, maxAttempts)
		}
		p.advanceCursor(sub.CreatedAt)
	}
	return decided
}

func (p *Poller) advanceCursor(t time.Time) {
	if prev, ok := p.lastCursor.Load().(string); ok && prev != "" {
		if pt, err := time.Parse(time.RFC3339Nano, prev); err == nil && !t.After(pt) {
			return
		}
	}
	p.lastCursor.Store(t.UTC().Format(time.RFC3339Nano))
}

// Current cursor value, or empty string if none.
func (p *Poller) Cursor() string {
	s, _ := p.lastCursor.Load().(string)
	return s
}

func (p *Poller) cursorKey() string {
	return pollerCursorPrefix + p.Forum
}

func (p *Poller) ReadLastCursor(ctx context.Context) (string, error) {
	// if redis isn't configured, just skip
	if p.RedisClient == nil {
		p.Logger.Info("redis not configured, skipping submission cursor read")
		return "", nil
	}

	val, err := p.RedisClient.Get(ctx, p.cursorKey()).Result()
	if err == redis.Nil || val == "" {
		p.Logger.Info("no pre-existing submission cursor in redis")
		return "", nil
	} else if err != nil {
		return "", err
	}
	p.Logger.Info("successfully found prior submission cursor in redis", "cursor", val)
	return val, nil
}

func (p *Poller) PersistCursor(ctx context.Context) error {
	// if redis isn't configured, just skip
	if p.RedisClient == nil {
		return nil
	}
	cur := p.Cursor()
	if cur == "" {
		return nil
	}
	return p.RedisClient.Set(ctx, p.cursorKey(), cur, 14*24*time.Hour).Err()
}

// this method runs in a loop, persisting the current cursor state every 5 seconds
func (p *Poller) RunPersistCursor(ctx context.Context) error {

	// if redis isn't configured, just skip
	if p.RedisClient == nil {
		return nil
	}
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if cur := p.Cursor(); cur != "" {
				p.Logger.Info("persisting final submission cursor", "cursor", cur)
				// the parent context is already cancelled
				if err := p.PersistCursor(context.WithoutCancel(ctx)); err != nil {
					p.Logger.Error("failed to persist submission cursor", "err", err, "cursor", cur)
				}
			}
			return nil
		case <-ticker.C:
			if err := p.PersistCursor(ctx); err != nil {
				p.Logger.Error("failed to persist submission cursor", "err", err, "cursor", p.Cursor())
			}
		}
	}
}
