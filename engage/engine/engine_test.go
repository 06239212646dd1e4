package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/forumgate/gatekeeper/engage/activitystore"
	"github.com/forumgate/gatekeeper/engage/countstore"
	"github.com/forumgate/gatekeeper/engage/dedupe"
	"github.com/forumgate/gatekeeper/engage/setstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 9, 20, 15, 4, 5, 0, time.UTC)

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("lorem ", n))
}

func bandcampSubmission(id, author string, descWords int) Submission {
	return Submission{
		ID:     id,
		Author: author,
		Title:  "My new EP",
		Body:   words(descWords),
		URL:    "https://artist.bandcamp.com/album/ep",
	}
}

func engagedUser(p *FakePlatform, user string, rep int) {
	p.Reputation[user] = rep
	for _, id := range []string{"t3_a", "t3_b", "t3_c", "t3_d", "t3_e"} {
		p.Comments[user] = append(p.Comments[user], QualifyingComment(user, id, 70))
	}
}

func getRecord(t *testing.T, eng *Engine, user string) activitystore.Record {
	rec, err := eng.Activity.Get(context.Background(), user)
	require.NoError(t, err)
	return rec
}

func TestProcessSkipsWithoutLink(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, p, _ := EngineTestFixture(testNow)

	sub := Submission{ID: "t3_x", Author: "fan", Title: "what are you listening to?", Body: words(300)}
	d, err := eng.ProcessSubmission(ctx, sub)
	assert.NoError(err)
	assert.Equal(DecisionSkip, d)
	assert.Empty(p.Calls)
	assert.Equal(0, p.Reads["reputation"])

	// deleted author
	d, err = eng.ProcessSubmission(ctx, Submission{ID: "t3_y", URL: "https://x.bandcamp.com/"})
	assert.NoError(err)
	assert.Equal(DecisionSkip, d)

	n, err := eng.Counters.GetCount(ctx, counterDecision, string(DecisionSkip), countstore.PeriodTotal)
	assert.NoError(err)
	assert.Equal(2, n)
}

func TestProcessLowReputation(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, p, _ := EngineTestFixture(testNow)
	engagedUser(p, "newbie", 10)

	d, err := eng.ProcessSubmission(ctx, bandcampSubmission("t3_new", "newbie", 200))
	assert.NoError(err)
	assert.Equal(DecisionRejectLowReputation, d)
	assert.NotEqual(DecisionRejectLowEngagement, d)

	// comments were never fetched, and the record is unchanged
	assert.Equal(0, p.Reads["comments"])
	assert.Equal(activitystore.Record{}, getRecord(t, eng, "newbie"))
	assert.Equal(1, len(p.CallsFor("remove")))
	assert.Equal(1, len(p.CallsFor("reply")))
}

func TestProcessAcceptThenCooldown(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, p, _ := EngineTestFixture(testNow)
	engagedUser(p, "fan", 20)

	d, err := eng.ProcessSubmission(ctx, bandcampSubmission("t3_first", "fan", 200))
	assert.NoError(err)
	assert.Equal(DecisionAccept, d)
	assert.Empty(p.Calls)

	rec := getRecord(t, eng, "fan")
	assert.Equal(0, rec.QualifyingCommentCount)
	assert.Equal("2024-09-20", rec.FormatDate())

	// next day: cooldown
	eng.Now = func() time.Time { return testNow.AddDate(0, 0, 1) }
	d, err = eng.ProcessSubmission(ctx, bandcampSubmission("t3_second", "fan", 200))
	assert.NoError(err)
	assert.Equal(DecisionRejectCooldown, d)
	assert.Equal(rec, getRecord(t, eng, "fan"))

	// both halves of the action were attempted
	assert.Equal([]FakeCall{{Op: "remove", Target: "t3_second"}}, p.CallsFor("remove"))
	replies := p.CallsFor("reply")
	assert.Equal(1, len(replies))
	assert.Equal("t3_second", replies[0].Target)
	assert.Contains(replies[0].Text, "2024-10-04")

	// the window closes after exactly 14 days; the earlier comments are all spent
	eng.Now = func() time.Time { return testNow.AddDate(0, 0, 14) }
	d, err = eng.ProcessSubmission(ctx, bandcampSubmission("t3_third", "fan", 200))
	assert.NoError(err)
	assert.Equal(DecisionRejectLowEngagement, d)
	assert.Equal("2024-09-20", getRecord(t, eng, "fan").FormatDate())
}

func TestProcessShortDescription(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, p, _ := EngineTestFixture(testNow)
	engagedUser(p, "fan", 20)

	d, err := eng.ProcessSubmission(ctx, bandcampSubmission("t3_short", "fan", 99))
	assert.NoError(err)
	assert.Equal(DecisionRejectShortDescription, d)
	assert.Equal(activitystore.Record{}, getRecord(t, eng, "fan"))
	// eligibility was never evaluated, so nothing was spent
	assert.Equal(0, p.Reads["comments"])

	d, err = eng.ProcessSubmission(ctx, bandcampSubmission("t3_long", "fan", 100))
	assert.NoError(err)
	assert.Equal(DecisionAccept, d)
}

func TestProcessLowEngagementBanks(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, p, _ := EngineTestFixture(testNow)
	p.Reputation["fan"] = 50
	p.Comments["fan"] = []Comment{
		QualifyingComment("fan", "t3_a", 80),
		QualifyingComment("fan", "t3_b", 80),
		QualifyingComment("fan", "t3_c", 10),
	}

	d, err := eng.ProcessSubmission(ctx, bandcampSubmission("t3_one", "fan", 150))
	assert.NoError(err)
	assert.Equal(DecisionRejectLowEngagement, d)
	rec := getRecord(t, eng, "fan")
	assert.Equal(2, rec.QualifyingCommentCount)
	assert.False(rec.HasPosted())
	assert.Contains(p.CallsFor("reply")[0].Text, "So far 2 of your comments have counted")
	assert.True(p.CallsFor("distinguish")[0].Sticky)

	// re-processing with no new comments: banked count unchanged, still rejected
	d, err = eng.ProcessSubmission(ctx, bandcampSubmission("t3_two", "fan", 150))
	assert.NoError(err)
	assert.Equal(DecisionRejectLowEngagement, d)
	assert.Equal(2, getRecord(t, eng, "fan").QualifyingCommentCount)

	// three more comments tip the balance
	for _, id := range []string{"t3_d", "t3_e", "t3_f"} {
		p.Comments["fan"] = append(p.Comments["fan"], QualifyingComment("fan", id, 80))
	}
	d, err = eng.ProcessSubmission(ctx, bandcampSubmission("t3_three", "fan", 150))
	assert.NoError(err)
	assert.Equal(DecisionAccept, d)
	rec = getRecord(t, eng, "fan")
	assert.Equal(0, rec.QualifyingCommentCount)
	assert.Equal("2024-09-20", rec.FormatDate())
}

func TestProcessModerator(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, p, _ := EngineTestFixture(testNow)

	d, err := eng.ProcessSubmission(ctx, bandcampSubmission("t3_m1", "mod_jane", 150))
	assert.NoError(err)
	assert.Equal(DecisionAccept, d)
	assert.Equal(0, p.Reads["reputation"])

	// operator bypass list works the same way
	sets := setstore.NewMemSetStore()
	sets.Add(setstore.BypassUsers, "label_account")
	eng.Sets = sets
	d, err = eng.ProcessSubmission(ctx, bandcampSubmission("t3_m2", "label_account", 150))
	assert.NoError(err)
	assert.Equal(DecisionAccept, d)

	// the moderator list was fetched once and then cached
	assert.Equal(1, p.Reads["moderators"])
}

func TestProcessPlatformReadError(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, p, _ := EngineTestFixture(testNow)
	engagedUser(p, "fan", 20)

	p.FailNext("comments", errors.New("503 from upstream"))
	d, err := eng.ProcessSubmission(ctx, bandcampSubmission("t3_x", "fan", 150))
	assert.Error(err)
	assert.Equal(Decision(""), d)
	assert.Empty(p.Calls)
	assert.Equal(activitystore.Record{}, getRecord(t, eng, "fan"))

	// the next attempt goes through normally
	d, err = eng.ProcessSubmission(ctx, bandcampSubmission("t3_x", "fan", 150))
	assert.NoError(err)
	assert.Equal(DecisionAccept, d)
}

func TestProcessDispatchFailureSurfaces(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, p, _ := EngineTestFixture(testNow)
	p.Reputation["fan"] = 20
	p.Comments["fan"] = []Comment{QualifyingComment("fan", "t3_a", 80)}

	p.FailNext("remove", ThrottledError{}, ThrottledError{})
	d, err := eng.ProcessSubmission(ctx, bandcampSubmission("t3_x", "fan", 150))
	assert.Equal(DecisionRejectLowEngagement, d)
	assert.ErrorIs(err, ErrRateLimited)
	// the counted comment is still banked
	assert.Equal(1, getRecord(t, eng, "fan").QualifyingCommentCount)
}

type failingStore struct {
	activitystore.ActivityStore
}

func (failingStore) Put(ctx context.Context, user string, rec activitystore.Record) error {
	return errors.New("disk full")
}

type brokenStore struct{}

func (brokenStore) Get(ctx context.Context, user string) (activitystore.Record, error) {
	return activitystore.Record{}, errors.New("unreadable")
}

func (brokenStore) Put(ctx context.Context, user string, rec activitystore.Record) error {
	return nil
}

func TestProcessStorageErrors(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng, p, _ := EngineTestFixture(testNow)
	engagedUser(p, "fan", 20)
	eng.Activity = failingStore{activitystore.NewMemActivityStore()}
	d, err := eng.ProcessSubmission(ctx, bandcampSubmission("t3_x", "fan", 150))
	assert.Equal(DecisionAccept, d)
	assert.ErrorIs(err, ErrStorage)

	// unreadable records degrade to a fresh author
	eng, p, _ = EngineTestFixture(testNow)
	engagedUser(p, "fan", 20)
	eng.Activity = brokenStore{}
	d, err = eng.ProcessSubmission(ctx, bandcampSubmission("t3_y", "fan", 150))
	assert.NoError(err)
	assert.Equal(DecisionAccept, d)
}

type panicPlatform struct {
	*FakePlatform
}

func (panicPlatform) UserReputation(ctx context.Context, user string) (int, error) {
	panic("boom")
}

func TestProcessRecoversPanic(t *testing.T) {
	assert := assert.New(t)
	eng, p, _ := EngineTestFixture(testNow)
	eng.Platform = panicPlatform{p}

	d, err := eng.ProcessSubmission(context.Background(), bandcampSubmission("t3_x", "fan", 150))
	assert.Error(err)
	assert.Equal(Decision(""), d)
}

type captureNotifier struct {
	sent []Notification
}

func (n *captureNotifier) SendDecision(ctx context.Context, note Notification) error {
	n.sent = append(n.sent, note)
	return nil
}

func TestProcessOptionalReplies(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	eng, p, _ := EngineTestFixture(testNow)
	eng.Config.AcceptMessage = "Welcome aboard!"
	eng.Config.CommentFeedback = true
	notes := &captureNotifier{}
	eng.Notifier = notes
	engagedUser(p, "fan", 20)

	d, err := eng.ProcessSubmission(ctx, bandcampSubmission("t3_x", "fan", 150))
	assert.NoError(err)
	assert.Equal(DecisionAccept, d)

	replies := p.CallsFor("reply")
	// five comment acknowledgements, then the acceptance reply
	assert.Equal(6, len(replies))
	assert.Equal("t1_t3_a", replies[0].Target)
	assert.Equal("t3_x", replies[5].Target)
	assert.True(strings.HasPrefix(replies[5].Text, "Welcome aboard!"))
	assert.Empty(p.CallsFor("remove"))
	// acceptances are not sent to the mod-log
	assert.Empty(notes.sent)

	d, err = eng.ProcessSubmission(ctx, bandcampSubmission("t3_y", "fan", 150))
	assert.NoError(err)
	assert.Equal(DecisionRejectCooldown, d)
	assert.Equal(1, len(notes.sent))
	assert.Equal(DecisionRejectCooldown, notes.sent[0].Decision)
	assert.Equal("t3_y", notes.sent[0].SubmissionID)
}

func TestLastPostDateOnlyAdvancesOnAccept(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, p, _ := EngineTestFixture(testNow)

	last := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, eng.Activity.Put(ctx, "fan", activitystore.Record{QualifyingCommentCount: 1, LastPostDate: last}))
	p.Reputation["fan"] = 30
	p.Comments["fan"] = []Comment{QualifyingComment("fan", "t3_a", 80)}

	subs := []Submission{
		{ID: "t3_1", Author: "fan", Title: "no link here", Body: words(200)},
		bandcampSubmission("t3_2", "fan", 10),
		bandcampSubmission("t3_3", "fan", 200),
	}
	for _, sub := range subs {
		_, err := eng.ProcessSubmission(ctx, sub)
		assert.NoError(err)
		assert.True(last.Equal(getRecord(t, eng, "fan").LastPostDate))
	}

	// cooldown, from a recent accepted post
	require.NoError(t, eng.Activity.Put(ctx, "fan", activitystore.Record{LastPostDate: testNow.AddDate(0, 0, -3)}))
	d, err := eng.ProcessSubmission(ctx, bandcampSubmission("t3_4", "fan", 200))
	assert.NoError(err)
	assert.Equal(DecisionRejectCooldown, d)
	assert.Equal("2024-09-17", getRecord(t, eng, "fan").FormatDate())
}

func TestNewEngineValidatesConfig(t *testing.T) {
	assert := assert.New(t)

	cfg := DefaultConfig()
	cfg.LinkPattern = "bandcamp(["
	_, err := NewEngine(cfg, NewFakePlatform(), activitystore.NewMemActivityStore(), nil)
	var cerr *ConfigError
	assert.ErrorAs(err, &cerr)
	assert.Equal("link-pattern", cerr.Field)

	cfg = DefaultConfig()
	cfg.MinQualifyingComments = -1
	_, err = NewEngine(cfg, NewFakePlatform(), activitystore.NewMemActivityStore(), nil)
	assert.ErrorAs(err, &cerr)

	cfg = DefaultConfig()
	cfg.Forum = ""
	assert.Error(cfg.Validate())
	assert.NoError(DefaultConfig().Validate())
}

func TestCheckEligibilityIsReadOnly(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, p, _ := EngineTestFixture(testNow)
	engagedUser(p, "fan", 20)

	for i := 0; i < 2; i++ {
		_, v, err := eng.CheckEligibility(ctx, "fan")
		assert.NoError(err)
		assert.True(v.Eligible)
		assert.Equal(5, v.NewlyQualified)
	}
	assert.Empty(p.Calls)
	assert.Equal(0, eng.Dedupe.(*dedupe.MemTracker).Len())

	d, err := eng.ProcessSubmission(ctx, bandcampSubmission("t3_x", "fan", 150))
	assert.NoError(err)
	assert.Equal(DecisionAccept, d)
}

func TestDecisionStats(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	eng, p, _ := EngineTestFixture(testNow)
	engagedUser(p, "fan", 20)
	engagedUser(p, "newbie", 10)
	p.Reputation["other"] = 10

	subs := []Submission{
		bandcampSubmission("t3_1", "fan", 200),
		bandcampSubmission("t3_2", "fan", 200),
		bandcampSubmission("t3_3", "newbie", 200),
		bandcampSubmission("t3_4", "other", 200),
		{ID: "t3_5", Author: "fan", Title: "chat"},
	}
	for _, sub := range subs {
		_, err := eng.ProcessSubmission(ctx, sub)
		require.NoError(t, err)
	}

	stats, err := eng.DecisionStats(ctx, "fan")
	require.NoError(t, err)
	assert.Equal(map[Decision]int{DecisionAccept: 1, DecisionRejectCooldown: 1}, stats.Author)
	assert.Equal(map[Decision]int{
		DecisionSkip:                1,
		DecisionAccept:              1,
		DecisionRejectCooldown:      1,
		DecisionRejectLowReputation: 2,
	}, stats.ForumToday)
	assert.Equal(map[Decision]int{
		DecisionAccept:              1,
		DecisionRejectCooldown:      1,
		DecisionRejectLowReputation: 2,
	}, stats.AuthorsToday)

	stats, err = eng.DecisionStats(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(stats.Author)
	assert.Equal(2, stats.ForumToday[DecisionRejectLowReputation])
}
