package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/forumgate/gatekeeper/engage/activitystore"
)

// Error returned by FakePlatform to simulate a platform rate-limit.
type ThrottledError struct{}

func (ThrottledError) Error() string     { return "fake platform: rate limited" }
func (ThrottledError) IsThrottled() bool { return true }

// One recorded call against a FakePlatform.
type FakeCall struct {
	// "remove", "reply", or "distinguish"
	Op     string
	Target string
	Text   string
	Sticky bool
}

// In-memory platform for tests. Reads come from the maps; writes are recorded in Calls. Errors queued in Fail[op] are returned, in order, by the next calls of that op ("comments", "reputation", "moderators", "remove", "reply", "distinguish").
type FakePlatform struct {
	mu         sync.Mutex
	Comments   map[string][]Comment
	Reputation map[string]int
	Mods       []string
	Fail       map[string][]error
	Calls      []FakeCall
	Reads      map[string]int
	replySeq   int
}

var _ Platform = (*FakePlatform)(nil)

func NewFakePlatform() *FakePlatform {
	return &FakePlatform{
		Comments:   make(map[string][]Comment),
		Reputation: make(map[string]int),
		Fail:       make(map[string][]error),
		Reads:      make(map[string]int),
	}
}

// Queues errors for upcoming calls of an op.
func (p *FakePlatform) FailNext(op string, errs ...error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Fail[op] = append(p.Fail[op], errs...)
}

// Calls recorded for an op.
func (p *FakePlatform) CallsFor(op string) []FakeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []FakeCall
	for _, c := range p.Calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (p *FakePlatform) popFail(op string) error {
	q := p.Fail[op]
	if len(q) == 0 {
		return nil
	}
	p.Fail[op] = q[1:]
	return q[0]
}

func (p *FakePlatform) UserComments(ctx context.Context, user, forum string) ([]Comment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Reads["comments"]++
	if err := p.popFail("comments"); err != nil {
		return nil, err
	}
	var out []Comment
	for _, c := range p.Comments[user] {
		if c.Forum == "" || strings.EqualFold(c.Forum, forum) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (p *FakePlatform) UserReputation(ctx context.Context, user string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Reads["reputation"]++
	if err := p.popFail("reputation"); err != nil {
		return 0, err
	}
	return p.Reputation[user], nil
}

func (p *FakePlatform) Moderators(ctx context.Context, forum string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Reads["moderators"]++
	if err := p.popFail("moderators"); err != nil {
		return nil, err
	}
	return append([]string{}, p.Mods...), nil
}

func (p *FakePlatform) RemoveSubmission(ctx context.Context, submissionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, FakeCall{Op: "remove", Target: submissionID})
	return p.popFail("remove")
}

func (p *FakePlatform) Reply(ctx context.Context, parentID, text string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, FakeCall{Op: "reply", Target: parentID, Text: text})
	if err := p.popFail("reply"); err != nil {
		return "", err
	}
	p.replySeq++
	return fmt.Sprintf("t1_reply%d", p.replySeq), nil
}

func (p *FakePlatform) Distinguish(ctx context.Context, replyID string, sticky bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, FakeCall{Op: "distinguish", Target: replyID, Sticky: sticky})
	return p.popFail("distinguish")
}

// Records the durations a Dispatcher would have slept, without sleeping.
type FakeSleeper struct {
	mu    sync.Mutex
	Waits []time.Duration
}

func (s *FakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Waits = append(s.Waits, d)
	return nil
}

func (s *FakeSleeper) Total() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var t time.Duration
	for _, d := range s.Waits {
		t += d
	}
	return t
}

// Engine over a FakePlatform and in-memory stores, with a fixed clock and a non-sleeping dispatcher.
func EngineTestFixture(now time.Time) (*Engine, *FakePlatform, *FakeSleeper) {
	p := NewFakePlatform()
	p.Mods = []string{"mod_jane"}
	eng, err := NewEngine(DefaultConfig(), p, activitystore.NewMemActivityStore(), slog.Default())
	if err != nil {
		panic(err)
	}
	sleeper := &FakeSleeper{}
	eng.Dispatcher.Sleep = sleeper.Sleep
	eng.Now = func() time.Time { return now }
	return eng, p, sleeper
}

// A comment of `words` words on someone else's submission carrying a qualifying link.
func QualifyingComment(author, submissionID string, words int) Comment {
	return Comment{
		ID:               "t1_" + submissionID,
		Author:           author,
		Body:             strings.TrimSpace(strings.Repeat("word ", words)),
		Forum:            "BandCamp",
		SubmissionID:     submissionID,
		SubmissionAuthor: "someone_else",
		SubmissionTitle:  "New album out now",
		SubmissionURL:    "https://artist.bandcamp.com/album/" + submissionID,
	}
}
