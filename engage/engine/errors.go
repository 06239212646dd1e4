package engine

import (
	"errors"
	"fmt"
)

var (
	// A platform action was still rate-limited after the single backoff retry.
	ErrRateLimited = errors.New("platform rate-limit persisted after retry")
	// The submission was removed, but the explanatory reply could not be posted.
	ErrPartialAction = errors.New("submission removed without explanatory reply")
	// The activity store could not persist a record update.
	ErrStorage = errors.New("activity store write failed")
)

// Invalid operator configuration. Fatal at startup.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}
