// Package errs defines the error taxonomy shared across prsentry.
//
// All fallible operations return typed errors; retry decisions are made on the
// error kind, never on unwinding. Wrap with %w so errors.Is/As keep working
// through pipeline layers.
package errs

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// Kind classifies an error for retry and reporting decisions.
type Kind int

const (
	KindOther Kind = iota
	KindConfig
	KindGitProvider
	KindAIHandler
	KindRateLimited
	KindHTTP
	KindTemplate
	KindYAMLParse
	KindTokenBudget
	KindIO
	KindJSON
	KindTOML
	KindUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindGitProvider:
		return "git_provider"
	case KindAIHandler:
		return "ai_handler"
	case KindRateLimited:
		return "rate_limited"
	case KindHTTP:
		return "http"
	case KindTemplate:
		return "template"
	case KindYAMLParse:
		return "yaml_parse"
	case KindTokenBudget:
		return "token_budget"
	case KindIO:
		return "io"
	case KindJSON:
		return "json"
	case KindTOML:
		return "toml"
	case KindUnsupported:
		return "unsupported"
	default:
		return "other"
	}
}

// Error is a kinded error with an optional wrapped cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a kinded error.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf creates a kinded error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an existing error.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the kind from an error chain. Unclassified errors are
// KindOther.
func KindOf(err error) Kind {
	var re *RateLimitedError
	if errors.As(err, &re) {
		return KindRateLimited
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindOther
}

// RateLimitedError is returned on a 429 from the LLM endpoint or the git
// platform. It is never auto-retried at the call site; the caller decides.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry after %v)", e.RetryAfter)
	}
	return "rate limited"
}

// IsRetryable reports whether a failed operation is worth retrying: transport
// timeouts and connect errors, 5xx-class provider errors, generic AI errors,
// and rate limits. Everything else is terminal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	switch KindOf(err) {
	case KindRateLimited, KindAIHandler, KindHTTP:
		return true
	default:
		return false
	}
}
