// Package devmanerr defines DevMan's error taxonomy.
//
// Errors are kinds, not a hierarchy of concrete types: every failure path in
// the daemon produces an *Error tagged with one of the Kind constants below,
// so callers can branch with errors.As instead of type-switching across
// package boundaries.
package devmanerr

import (
	"errors"
	"fmt"
)

// Kind tags the taxonomy of error conditions described in the error handling
// design: what recovers automatically, what folds back into an LLM turn as a
// tool result, and what is fatal to its caller.
type Kind string

const (
	Unauthorized   Kind = "unauthorized"    // 401 after a refresh attempt
	RateLimited    Kind = "rate_limited"    // carries RetryAfter
	ContextOverflow Kind = "context_overflow" // mid-turn; triggers compaction + single retry
	StreamTimeout  Kind = "stream_timeout"
	Transport      Kind = "transport"        // generic network failure
	BadRequest     Kind = "bad_request"      // 4xx other than 401
	ServerError    Kind = "server_error"      // 5xx
	ToolFailure    Kind = "tool_failure"      // never surfaces past the turn loop
	PathEscape     Kind = "path_escape"       // sandbox violation; fatal to the tool call
	ConfigInvalid  Kind = "config_invalid"    // fails startup
	StateCorrupt   Kind = "state_corrupt"     // parse failure on a state file
	NotFound       Kind = "not_found"
)

// Error is the concrete error value carried through the system. It wraps an
// underlying cause when one exists so %w / errors.Is still works.
type Error struct {
	Kind       Kind
	Message    string
	ToolName   string // set for ToolFailure
	RetryAfter int    // seconds; set for RateLimited
	Err        error
}

func (e *Error) Error() string {
	if e.ToolName != "" {
		return fmt.Sprintf("%s: tool %q: %s", e.Kind, e.ToolName, e.Message)
	}
	if e.Message == "" && e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, devmanerr.New(PathEscape, "")).
func (e *Error) Is(target error) bool {
	var o *Error
	if errors.As(target, &o) {
		return o.Kind == e.Kind
	}
	return false
}

// New builds a bare *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error of the given kind around an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithRetryAfter attaches a retry-after duration (seconds) to a RateLimited error.
func WithRetryAfter(seconds int) *Error {
	return &Error{Kind: RateLimited, Message: "rate limited", RetryAfter: seconds}
}

// ToolErr builds a ToolFailure error, the only kind the agent turn-loop is
// required to fold back into the conversation instead of surfacing.
func ToolErr(toolName string, err error) *Error {
	return &Error{Kind: ToolFailure, ToolName: toolName, Message: err.Error(), Err: err}
}

// KindOf extracts the Kind from err if it is (or wraps) a *Error, with ok=false
// for any other error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsKind reports whether err is tagged with the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
