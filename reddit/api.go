package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Listings are capped at 100 items per page by the API.
const MaxListingLimit = 100

func clampLimit(limit int) int {
	if limit <= 0 || limit > MaxListingLimit {
		return MaxListingLimit
	}
	return limit
}

func decodeChildren[T any](l Listing, kind string) ([]T, error) {
	out := make([]T, 0, len(l.Children))
	for _, th := range l.Children {
		if th.Kind != kind {
			continue
		}
		var v T
		if err := json.Unmarshal(th.Data, &v); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", kind, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Newest submissions in the subreddit, newest first.
func (c *Client) SubredditNew(ctx context.Context, subreddit string, limit int) ([]Link, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(clampLimit(limit)))
	var out listingThing
	if err := c.Do(ctx, http.MethodGet, "/r/"+url.PathEscape(subreddit)+"/new", params, &out); err != nil {
		return nil, err
	}
	return decodeChildren[Link](out.Data, "t3")
}

// The user's most recent comments across all subreddits, newest first.
func (c *Client) UserComments(ctx context.Context, username string, limit int) ([]Comment, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(clampLimit(limit)))
	params.Set("sort", "new")
	var out listingThing
	if err := c.Do(ctx, http.MethodGet, "/user/"+url.PathEscape(username)+"/comments", params, &out); err != nil {
		return nil, err
	}
	return decodeChildren[Comment](out.Data, "t1")
}

func (c *Client) UserAbout(ctx context.Context, username string) (*Account, error) {
	var out struct {
		Kind string  `json:"kind"`
		Data Account `json:"data"`
	}
	if err := c.Do(ctx, http.MethodGet, "/user/"+url.PathEscape(username)+"/about", nil, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// Usernames of the subreddit's moderators.
func (c *Client) SubredditModerators(ctx context.Context, subreddit string) ([]string, error) {
	var out userListThing
	if err := c.Do(ctx, http.MethodGet, "/r/"+url.PathEscape(subreddit)+"/about/moderators", nil, &out); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(out.Data.Children))
	for _, u := range out.Data.Children {
		names = append(names, u.Name)
	}
	return names, nil
}

// Submissions by fullname (eg "t3_abc123"), at most MaxListingLimit per call. Unknown or inaccessible IDs are left out of the result.
func (c *Client) Info(ctx context.Context, fullnames []string) ([]Link, error) {
	if len(fullnames) == 0 {
		return nil, nil
	}
	if len(fullnames) > MaxListingLimit {
		return nil, fmt.Errorf("too many IDs for one info request: %d", len(fullnames))
	}
	params := url.Values{}
	params.Set("id", strings.Join(fullnames, ","))
	var out listingThing
	if err := c.Do(ctx, http.MethodGet, "/api/info", params, &out); err != nil {
		return nil, err
	}
	return decodeChildren[Link](out.Data, "t3")
}

// Removes a submission or comment, by fullname (eg "t3_abc123").
func (c *Client) Remove(ctx context.Context, fullname string, spam bool) error {
	params := url.Values{}
	params.Set("id", fullname)
	params.Set("spam", strconv.FormatBool(spam))
	return c.Do(ctx, http.MethodPost, "/api/remove", params, nil)
}

// Posts a reply (markdown) to a submission or comment. Returns the fullname of the new comment.
func (c *Client) Comment(ctx context.Context, parent, text string) (string, error) {
	params := url.Values{}
	params.Set("api_type", "json")
	params.Set("thing_id", parent)
	params.Set("text", text)
	var out jsonResponse
	if err := c.postJSON(ctx, "/api/comment", params, &out); err != nil {
		return "", err
	}
	for _, th := range out.JSON.Data.Things {
		var cm Comment
		if err := json.Unmarshal(th.Data, &cm); err != nil {
			return "", fmt.Errorf("decoding new comment: %w", err)
		}
		if cm.Name != "" {
			return cm.Name, nil
		}
	}
	return "", fmt.Errorf("reply to %s: no comment in response", parent)
}

// Marks a comment as a moderator comment; `sticky` also pins it to the top of the submission (top-level replies only).
func (c *Client) Distinguish(ctx context.Context, fullname string, sticky bool) error {
	params := url.Values{}
	params.Set("api_type", "json")
	params.Set("id", fullname)
	params.Set("how", "yes")
	params.Set("sticky", strconv.FormatBool(sticky))
	var out jsonResponse
	return c.postJSON(ctx, "/api/distinguish", params, &out)
}

// POSTs an "api_type=json" request, turning a non-empty `json.errors` array into an *Error.
func (c *Client) postJSON(ctx context.Context, path string, params url.Values, out *jsonResponse) error {
	if err := c.Do(ctx, http.MethodPost, path, params, out); err != nil {
		return err
	}
	if len(out.JSON.Errors) > 0 {
		return &Error{
			StatusCode: http.StatusOK,
			Wrapped:    parseAPIErrors(out.JSON.Errors),
			Ratelimit:  c.Ratelimit(),
		}
	}
	return nil
}
