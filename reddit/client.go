// Minimal client for the subset of the Reddit API used to moderate a subreddit: listing new submissions, reading user comments and karma, and removing and replying to posts.
//
// Authenticates as a "script" app with the OAuth2 password grant. Requests are paced with a client-side token bucket, and transient failures (connection errors, 5xx) are retried by the underlying HTTP client. Rate-limit responses are never retried here; they are returned as an *Error for which IsThrottled() is true.
package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/forumgate/gatekeeper/util"

	"github.com/carlmjohnson/versioninfo"
	"golang.org/x/time/rate"
)

const (
	DefaultHost     = "https://oauth.reddit.com"
	DefaultAuthHost = "https://www.reddit.com"
)

type Credentials struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
}

type Client struct {
	// HTTP client to use. If not set, defaults to util.RobustHTTPClient().
	Client *http.Client
	// API host (for authenticated requests)
	Host string
	// Host of the token endpoint
	AuthHost  string
	UserAgent string
	Creds     Credentials
	// Paces outbound requests. Reddit allows 100 requests per minute for OAuth clients.
	Limiter *rate.Limiter
	Logger  *slog.Logger

	lk    sync.Mutex
	token *accessToken
	// most recent rate-limit headers seen
	ratelimit *RatelimitInfo
}

func NewClient(creds Credentials, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		Client:    util.RobustHTTPClient(logger),
		Host:      DefaultHost,
		AuthHost:  DefaultAuthHost,
		UserAgent: DefaultUserAgent(creds.Username),
		Creds:     creds,
		Limiter:   rate.NewLimiter(rate.Every(600*time.Millisecond), 10),
		Logger:    logger.With("component", "reddit"),
	}
}

// Reddit asks for user agents of the form `<platform>:<app ID>:<version> (by /u/<username>)`.
func DefaultUserAgent(username string) string {
	return fmt.Sprintf("go:gatekeeper:%s (by /u/%s)", versioninfo.Short(), username)
}

func (c *Client) getClient() *http.Client {
	if c.Client == nil {
		return util.RobustHTTPClient(c.Logger)
	}
	return c.Client
}

func (c *Client) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// Rate-limit state from the most recent API response, if any.
func (c *Client) Ratelimit() *RatelimitInfo {
	c.lk.Lock()
	defer c.lk.Unlock()
	return c.ratelimit
}

func (c *Client) wait(ctx context.Context) error {
	if c.Limiter == nil {
		return nil
	}
	return c.Limiter.Wait(ctx)
}

// Performs an authenticated API request. GET parameters go in the query string; POST parameters are form-encoded. The JSON response body is decoded into `out` (if not nil).
//
// An expired or revoked access token (HTTP 401) is refreshed and the request tried once more.
func (c *Client) Do(ctx context.Context, method, path string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		err = c.do(ctx, method, path, params, out)
		var rerr *Error
		if errors.As(err, &rerr) && rerr.StatusCode == http.StatusUnauthorized && attempt == 0 {
			c.logger().Info("access token rejected, re-authenticating", "path", path)
			c.clearToken()
			continue
		}
		return err
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, out any) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	tok, err := c.AccessToken(ctx)
	if err != nil {
		return err
	}

	host := c.Host
	if host == "" {
		host = DefaultHost
	}
	u := strings.TrimSuffix(host, "/") + path

	var body io.Reader
	switch method {
	case http.MethodGet:
		params.Set("raw_json", "1")
		u += "?" + params.Encode()
	case http.MethodPost:
		body = strings.NewReader(params.Encode())
	default:
		return fmt.Errorf("unsupported request method: %s", method)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Authorization", "bearer "+tok)
	req.Header.Set("User-Agent", c.UserAgent)

	resp, err := c.getClient().Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if rl := parseRatelimit(resp.Header, time.Now()); rl != nil {
		c.lk.Lock()
		c.ratelimit = rl
		c.lk.Unlock()
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return errorFromHTTPResponse(resp, fmt.Errorf("%s %s: %s", method, path, strings.TrimSpace(string(msg))))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", path, err)
	}
	return nil
}
