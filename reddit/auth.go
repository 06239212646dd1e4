package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// refresh this long before the token actually expires
const tokenExpiryMargin = time.Minute

type accessToken struct {
	Value   string
	Expires time.Time
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
	Error       string `json:"error"`
}

// Returns a valid bearer token, fetching a new one if none is cached or the cached one is about to expire.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	c.lk.Lock()
	tok := c.token
	c.lk.Unlock()
	if tok != nil && time.Now().Add(tokenExpiryMargin).Before(tok.Expires) {
		return tok.Value, nil
	}

	tok, err := c.fetchToken(ctx)
	if err != nil {
		return "", err
	}
	c.lk.Lock()
	c.token = tok
	c.lk.Unlock()
	return tok.Value, nil
}

func (c *Client) clearToken() {
	c.lk.Lock()
	defer c.lk.Unlock()
	c.token = nil
}

func (c *Client) fetchToken(ctx context.Context) (*accessToken, error) {
	host := c.AuthHost
	if host == "" {
		host = DefaultAuthHost
	}
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", c.Creds.Username)
	form.Set("password", c.Creds.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(host, "/")+"/api/v1/access_token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.Creds.ClientID, c.Creds.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.UserAgent)

	resp, err := c.getClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, errorFromHTTPResponse(resp, fmt.Errorf("fetching access token: %s", strings.TrimSpace(string(msg))))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("decoding token response: %w", err)
	}
	// bad credentials come back as 200 with an error field
	if tr.Error != "" {
		return nil, &Error{StatusCode: resp.StatusCode, Wrapped: fmt.Errorf("fetching access token: %s", tr.Error)}
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("fetching access token: empty token in response")
	}
	c.logger().Debug("fetched access token", "expires_in", tr.ExpiresIn, "scope", tr.Scope)
	return &accessToken{
		Value:   tr.AccessToken,
		Expires: time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}, nil
}
