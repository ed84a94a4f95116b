package types

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound marks expected absence (missing file, unknown record).
// Callers skip it silently; it is never logged as an error.
var ErrNotFound = errors.New("not found")

// QuotaError indicates an external API rate or abuse limit. It is
// phase-fatal when raised before a batch starts and item-fatal mid-batch.
type QuotaError struct {
	API        string        // "github" or "directory"
	Secondary  bool          // abuse/secondary limit rather than primary quota
	RetryAfter time.Duration // server-specified delay, zero if unknown
	Remaining  int
	Reset      time.Time
}

func (e *QuotaError) Error() string {
	if e.Secondary {
		return fmt.Sprintf("%s secondary rate limit exceeded (retry after %s)", e.API, e.RetryAfter)
	}
	return fmt.Sprintf("%s rate limit exceeded (remaining %d, resets %s)", e.API, e.Remaining, e.Reset.Format(time.RFC3339))
}

// TransientError wraps a network failure that survived its retry budget.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ParseError indicates malformed content (manifest, readme). Analysis
// continues with partial data; the error is recorded as a warning.
type ParseError struct {
	File string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s: %v", e.File, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ConfigError indicates invalid run parameters. It is raised before any
// phase starts; a run never transitions to running on a ConfigError.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", e.Reason)
}
