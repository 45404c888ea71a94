// Package apperr defines the error kinds shared by the reconciliation engine.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kinds. Match them with errors.Is.
var (
	ErrNotFound    = errors.New("not found")
	ErrUpstream    = errors.New("upstream failure")
	ErrDataFormat  = errors.New("data format error")
	ErrPersistence = errors.New("persistence failure")
)

// Error carries a kind plus the season/round the failure relates to.
// Season and Round are zero when not applicable.
type Error struct {
	Kind   error
	Op     string
	Season int
	Round  int
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Season != 0 {
		fmt.Fprintf(&b, " season=%d", e.Season)
	}
	if e.Round != 0 {
		fmt.Fprintf(&b, " round=%d", e.Round)
	}
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NotFound reports a season or race that is absent even after an upstream fetch.
func NotFound(op string, season int) error {
	return &Error{Kind: ErrNotFound, Op: op, Season: season}
}

// Upstream wraps a transport or non-2xx failure from the remote API.
func Upstream(op string, season, round int, err error) error {
	return &Error{Kind: ErrUpstream, Op: op, Season: season, Round: round, Err: err}
}

// DataFormat wraps an unexpected or unparsable upstream payload.
func DataFormat(op string, season, round int, err error) error {
	return &Error{Kind: ErrDataFormat, Op: op, Season: season, Round: round, Err: err}
}

// Persistence wraps a store failure.
func Persistence(op string, err error) error {
	return &Error{Kind: ErrPersistence, Op: op, Err: err}
}

// Recoverable reports whether a backfill may log err and move on.
// Persistence failures and context cancellation are never recoverable.
func Recoverable(err error) bool {
	return errors.Is(err, ErrUpstream) || errors.Is(err, ErrDataFormat)
}
