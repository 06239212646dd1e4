package reddit

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Error returned for a failed API request: either a non-2xx HTTP status, or a 200 response carrying API errors.
type Error struct {
	StatusCode int
	Wrapped    error
	Ratelimit  *RatelimitInfo
}

func (e *Error) Error() string {
	if e.Wrapped == nil {
		return fmt.Sprintf("reddit API error %d", e.StatusCode)
	}
	if e.IsThrottled() && e.Ratelimit != nil {
		return fmt.Sprintf("reddit API error %d: %s (throttled until %s)", e.StatusCode, e.Wrapped, e.Ratelimit.Reset.Local())
	}
	return fmt.Sprintf("reddit API error %d: %s", e.StatusCode, e.Wrapped)
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

// True for HTTP 429, and for "RATELIMIT" API errors (which Reddit returns with status 200).
func (e *Error) IsThrottled() bool {
	if e.StatusCode == http.StatusTooManyRequests {
		return true
	}
	if apiErrs, ok := e.Wrapped.(APIErrors); ok {
		for _, ae := range apiErrs {
			if ae.Code == "RATELIMIT" {
				return true
			}
		}
	}
	return false
}

// A single entry of the `json.errors` array in "api_type=json" responses: `["CODE", "message", "field"]`.
type APIError struct {
	Code    string
	Message string
	Field   string
}

func (ae APIError) Error() string {
	if ae.Field != "" {
		return fmt.Sprintf("%s: %s (%s)", ae.Code, ae.Message, ae.Field)
	}
	return fmt.Sprintf("%s: %s", ae.Code, ae.Message)
}

type APIErrors []APIError

func (errs APIErrors) Error() string {
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "; ")
}

func parseAPIErrors(raw [][]string) APIErrors {
	var out APIErrors
	for _, tuple := range raw {
		var ae APIError
		if len(tuple) > 0 {
			ae.Code = tuple[0]
		}
		if len(tuple) > 1 {
			ae.Message = tuple[1]
		}
		if len(tuple) > 2 {
			ae.Field = tuple[2]
		}
		out = append(out, ae)
	}
	return out
}

type RatelimitInfo struct {
	Used      int
	Remaining float64
	Reset     time.Time
}

// Parses Reddit's `x-ratelimit-*` response headers. Returns nil if they are absent.
func parseRatelimit(h http.Header, now time.Time) *RatelimitInfo {
	if h.Get("x-ratelimit-remaining") == "" {
		return nil
	}
	info := &RatelimitInfo{}
	if f, err := strconv.ParseFloat(h.Get("x-ratelimit-remaining"), 64); err == nil {
		info.Remaining = f
	}
	if n, err := strconv.Atoi(h.Get("x-ratelimit-used")); err == nil {
		info.Used = n
	}
	// reset is seconds until the current window ends
	if f, err := strconv.ParseFloat(h.Get("x-ratelimit-reset"), 64); err == nil {
		info.Reset = now.Add(time.Duration(f * float64(time.Second)))
	}
	return info
}

func errorFromHTTPResponse(resp *http.Response, err error) error {
	return &Error{
		StatusCode: resp.StatusCode,
		Wrapped:    err,
		Ratelimit:  parseRatelimit(resp.Header, time.Now()),
	}
}
