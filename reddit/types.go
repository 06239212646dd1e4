package reddit

import (
	"encoding/json"
	"time"
)

// Generic envelope for API objects: `{"kind": "t3", "data": {...}}`.
type Thing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type Listing struct {
	After    string  `json:"after"`
	Before   string  `json:"before"`
	Children []Thing `json:"children"`
}

type listingThing struct {
	Kind string  `json:"kind"`
	Data Listing `json:"data"`
}

// A submission ("t3").
type Link struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Author     string  `json:"author"`
	Subreddit  string  `json:"subreddit"`
	Title      string  `json:"title"`
	Selftext   string  `json:"selftext"`
	URL        string  `json:"url"`
	Permalink  string  `json:"permalink"`
	IsSelf     bool    `json:"is_self"`
	CreatedUTC float64 `json:"created_utc"`
}

func (l *Link) CreatedAt() time.Time {
	return unixFloat(l.CreatedUTC)
}

// A comment ("t1"), as it appears in user comment listings.
type Comment struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Author        string  `json:"author"`
	Subreddit     string  `json:"subreddit"`
	Body          string  `json:"body"`
	LinkID        string  `json:"link_id"`
	LinkAuthor    string  `json:"link_author"`
	LinkTitle     string  `json:"link_title"`
	LinkURL       string  `json:"link_url"`
	LinkPermalink string  `json:"link_permalink"`
	BannedBy      *string `json:"banned_by"`
	Removed       bool    `json:"removed"`
	CreatedUTC    float64 `json:"created_utc"`
}

// Whether the comment was removed by moderators (or by its author).
func (c *Comment) IsRemoved() bool {
	return c.Removed || c.BannedBy != nil || c.Body == "[removed]" || c.Body == "[deleted]"
}

// A user account ("t2").
type Account struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	LinkKarma    int     `json:"link_karma"`
	CommentKarma int     `json:"comment_karma"`
	TotalKarma   int     `json:"total_karma"`
	CreatedUTC   float64 `json:"created_utc"`
}

// Aggregate karma. Older API responses lack `total_karma`.
func (a *Account) Karma() int {
	if a.TotalKarma != 0 {
		return a.TotalKarma
	}
	return a.LinkKarma + a.CommentKarma
}

type userListThing struct {
	Kind string `json:"kind"`
	Data struct {
		Children []struct {
			Name string `json:"name"`
		} `json:"children"`
	} `json:"data"`
}

type jsonResponse struct {
	JSON struct {
		Errors [][]string `json:"errors"`
		Data   struct {
			Things []Thing `json:"things"`
		} `json:"data"`
	} `json:"json"`
}

func unixFloat(f float64) time.Time {
	sec := int64(f)
	return time.Unix(sec, int64((f-float64(sec))*1e9)).UTC()
}
