package reddit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReddit struct {
	mux         *http.ServeMux
	tokenCalls  atomic.Int32
	tokenPrefix string
}

// Test server which issues numbered access tokens ("tok1", "tok2", ...) and serves whatever API handlers the test registers.
func newFakeReddit(t *testing.T) (*fakeReddit, *Client) {
	f := &fakeReddit{mux: http.NewServeMux(), tokenPrefix: "tok"}
	f.mux.HandleFunc("POST /api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "client-id", user)
		assert.Equal(t, "client-secret", pass)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "password", r.PostForm.Get("grant_type"))
		if r.PostForm.Get("password") != "hunter2" {
			fmt.Fprint(w, `{"error": "invalid_grant"}`)
			return
		}
		n := f.tokenCalls.Add(1)
		fmt.Fprintf(w, `{"access_token": "%s%d", "token_type": "bearer", "expires_in": 86400, "scope": "*"}`, f.tokenPrefix, n)
	})
	srv := httptest.NewServer(f.mux)
	t.Cleanup(srv.Close)

	c := &Client{
		Client:    srv.Client(),
		Host:      srv.URL,
		AuthHost:  srv.URL,
		UserAgent: DefaultUserAgent("gatekeeper_bot"),
		Creds: Credentials{
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			Username:     "gatekeeper_bot",
			Password:     "hunter2",
		},
	}
	return f, c
}

func TestSubredditNew(t *testing.T) {
	assert := assert.New(t)
	f, c := newFakeReddit(t)

	f.mux.HandleFunc("GET /r/BandCamp/new", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal("bearer tok1", r.Header.Get("Authorization"))
		assert.Contains(r.Header.Get("User-Agent"), "(by /u/gatekeeper_bot)")
		assert.Equal("5", r.URL.Query().Get("limit"))
		assert.Equal("1", r.URL.Query().Get("raw_json"))
		fmt.Fprint(w, `{"kind": "Listing", "data": {"after": "t3_b", "children": [
			{"kind": "t3", "data": {"id": "a", "name": "t3_a", "author": "fan", "subreddit": "BandCamp", "title": "EP", "selftext": "words & more", "url": "https://x.bandcamp.com/album/ep", "permalink": "/r/BandCamp/comments/a/ep/", "is_self": false, "created_utc": 1726844645.0}},
			{"kind": "t3", "data": {"id": "b", "name": "t3_b", "author": "[deleted]", "title": "gone", "created_utc": 1726844600.5}}
		]}}`)
	})

	links, err := c.SubredditNew(context.Background(), "BandCamp", 5)
	require.NoError(t, err)
	assert.Equal(2, len(links))
	assert.Equal("t3_a", links[0].Name)
	assert.Equal("words & more", links[0].Selftext)
	assert.Equal(time.Date(2024, 9, 20, 15, 4, 5, 0, time.UTC), links[0].CreatedAt())
	assert.Equal("[deleted]", links[1].Author)

	// token is reused
	_, err = c.SubredditNew(context.Background(), "BandCamp", 5)
	assert.NoError(err)
	assert.Equal(int32(1), f.tokenCalls.Load())
}

func TestUserCommentsAndAbout(t *testing.T) {
	assert := assert.New(t)
	f, c := newFakeReddit(t)

	f.mux.HandleFunc("GET /user/fan/comments", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal("100", r.URL.Query().Get("limit"))
		assert.Equal("new", r.URL.Query().Get("sort"))
		fmt.Fprint(w, `{"kind": "Listing", "data": {"children": [
			{"kind": "t1", "data": {"id": "c1", "name": "t1_c1", "author": "fan", "subreddit": "BandCamp", "body": "great record", "link_id": "t3_a", "link_author": "artist", "link_title": "LP", "link_url": "https://artist.bandcamp.com/album/lp"}},
			{"kind": "t1", "data": {"id": "c2", "name": "t1_c2", "author": "fan", "subreddit": "BandCamp", "body": "[removed]", "link_id": "t3_b"}},
			{"kind": "t1", "data": {"id": "c3", "name": "t1_c3", "author": "fan", "subreddit": "music", "body": "hm", "link_id": "t3_c", "banned_by": "automod"}}
		]}}`)
	})
	f.mux.HandleFunc("GET /user/fan/about", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"kind": "t2", "data": {"name": "fan", "link_karma": 3, "comment_karma": 40, "total_karma": 45}}`)
	})
	f.mux.HandleFunc("GET /user/old_timer/about", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"kind": "t2", "data": {"name": "old_timer", "link_karma": 3, "comment_karma": 40}}`)
	})

	ctx := context.Background()
	comments, err := c.UserComments(ctx, "fan", 0)
	require.NoError(t, err)
	assert.Equal(3, len(comments))
	assert.Equal("t3_a", comments[0].LinkID)
	assert.Equal("artist", comments[0].LinkAuthor)
	assert.False(comments[0].IsRemoved())
	assert.True(comments[1].IsRemoved())
	assert.True(comments[2].IsRemoved())

	acct, err := c.UserAbout(ctx, "fan")
	require.NoError(t, err)
	assert.Equal(45, acct.Karma())
	acct, err = c.UserAbout(ctx, "old_timer")
	require.NoError(t, err)
	assert.Equal(43, acct.Karma())
}

func TestSubredditModerators(t *testing.T) {
	f, c := newFakeReddit(t)
	f.mux.HandleFunc("GET /r/BandCamp/about/moderators", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"kind": "UserList", "data": {"children": [{"name": "mod_jane", "id": "t2_1"}, {"name": "AutoModerator", "id": "t2_2"}]}}`)
	})
	mods, err := c.SubredditModerators(context.Background(), "BandCamp")
	assert.NoError(t, err)
	assert.Equal(t, []string{"mod_jane", "AutoModerator"}, mods)
}

func TestInfo(t *testing.T) {
	assert := assert.New(t)
	f, c := newFakeReddit(t)
	f.mux.HandleFunc("GET /api/info", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal("t3_a,t3_gone", r.URL.Query().Get("id"))
		fmt.Fprint(w, `{"kind": "Listing", "data": {"children": [
			{"kind": "t3", "data": {"name": "t3_a", "author": "artist", "title": "My new EP", "selftext": "out now at https://artist.bandcamp.com", "is_self": true}}
		]}}`)
	})

	links, err := c.Info(context.Background(), []string{"t3_a", "t3_gone"})
	require.NoError(t, err)
	assert.Equal(1, len(links))
	assert.Equal("out now at https://artist.bandcamp.com", links[0].Selftext)

	links, err = c.Info(context.Background(), nil)
	assert.NoError(err)
	assert.Empty(links)

	_, err = c.Info(context.Background(), make([]string, MaxListingLimit+1))
	assert.Error(err)
}

func TestModerationActions(t *testing.T) {
	assert := assert.New(t)
	f, c := newFakeReddit(t)

	f.mux.HandleFunc("POST /api/remove", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(r.ParseForm())
		assert.Equal("t3_a", r.PostForm.Get("id"))
		assert.Equal("false", r.PostForm.Get("spam"))
		fmt.Fprint(w, `{}`)
	})
	f.mux.HandleFunc("POST /api/comment", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(r.ParseForm())
		assert.Equal("json", r.PostForm.Get("api_type"))
		assert.Equal("t3_a", r.PostForm.Get("thing_id"))
		assert.Equal("hello\n\nthere", r.PostForm.Get("text"))
		fmt.Fprint(w, `{"json": {"errors": [], "data": {"things": [{"kind": "t1", "data": {"id": "r1", "name": "t1_r1", "body": "hello"}}]}}}`)
	})
	f.mux.HandleFunc("POST /api/distinguish", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(r.ParseForm())
		assert.Equal("t1_r1", r.PostForm.Get("id"))
		assert.Equal("yes", r.PostForm.Get("how"))
		assert.Equal("true", r.PostForm.Get("sticky"))
		fmt.Fprint(w, `{"json": {"errors": []}}`)
	})

	ctx := context.Background()
	assert.NoError(c.Remove(ctx, "t3_a", false))
	id, err := c.Comment(ctx, "t3_a", "hello\n\nthere")
	assert.NoError(err)
	assert.Equal("t1_r1", id)
	assert.NoError(c.Distinguish(ctx, id, true))
}

func TestAPIErrorRatelimit(t *testing.T) {
	assert := assert.New(t)
	f, c := newFakeReddit(t)

	f.mux.HandleFunc("POST /api/comment", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"json": {"errors": [["RATELIMIT", "Looks like you've been doing that a lot. Take a break for 9 minutes before trying again.", "ratelimit"]]}}`)
	})
	f.mux.HandleFunc("POST /api/distinguish", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"json": {"errors": [["THREAD_LOCKED", "that thread is locked", "parent"]]}}`)
	})

	ctx := context.Background()
	_, err := c.Comment(ctx, "t3_a", "hi")
	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.True(rerr.IsThrottled())
	var apiErrs APIErrors
	assert.True(errors.As(err, &apiErrs))
	assert.Equal("RATELIMIT", apiErrs[0].Code)

	err = c.Distinguish(ctx, "t1_x", false)
	require.True(t, errors.As(err, &rerr))
	assert.False(rerr.IsThrottled())
	assert.Contains(err.Error(), "THREAD_LOCKED")
}

func TestHTTPThrottle(t *testing.T) {
	assert := assert.New(t)
	f, c := newFakeReddit(t)

	f.mux.HandleFunc("POST /api/remove", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-ratelimit-used", "100")
		w.Header().Set("x-ratelimit-remaining", "0.0")
		w.Header().Set("x-ratelimit-reset", "120")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"message": "Too Many Requests", "error": 429}`)
	})

	err := c.Remove(context.Background(), "t3_a", false)
	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(http.StatusTooManyRequests, rerr.StatusCode)
	assert.True(rerr.IsThrottled())
	require.NotNil(t, rerr.Ratelimit)
	assert.Equal(100, rerr.Ratelimit.Used)
	assert.Equal(0.0, rerr.Ratelimit.Remaining)
	assert.WithinDuration(time.Now().Add(2*time.Minute), rerr.Ratelimit.Reset, 10*time.Second)
	assert.NotNil(c.Ratelimit())
}

func TestReauthOnUnauthorized(t *testing.T) {
	assert := assert.New(t)
	f, c := newFakeReddit(t)

	var calls atomic.Int32
	f.mux.HandleFunc("GET /r/BandCamp/about/moderators", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Authorization") == "bearer tok1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"kind": "UserList", "data": {"children": []}}`)
	})

	mods, err := c.SubredditModerators(context.Background(), "BandCamp")
	assert.NoError(err)
	assert.Empty(mods)
	assert.Equal(int32(2), f.tokenCalls.Load())
	assert.Equal(int32(2), calls.Load())
}

func TestBadCredentials(t *testing.T) {
	_, c := newFakeReddit(t)
	c.Creds.Password = "wrong"
	_, err := c.AccessToken(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_grant")
}
