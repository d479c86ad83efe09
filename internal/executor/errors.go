package executor

import (
	"errors"
	"fmt"
)

// ErrorKind classifies execution failures so callers can decide between
// retrying, skipping the candidate, or escalating.
type ErrorKind string

const (
	KindRejected  ErrorKind = "rejected"
	KindLiquidity ErrorKind = "insufficient_liquidity"
	KindAuth      ErrorKind = "auth"
	KindNetwork   ErrorKind = "network"
	KindVenue     ErrorKind = "venue"
	KindTimeout   ErrorKind = "timeout"
)

// Error is a typed execution failure. Venue errors surface here instead of
// panicking; the position being opened or closed is left untouched.
type Error struct {
	Kind     ErrorKind
	Op       string // "open" | "close"
	MarketID string
	Msg      string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s (%s): %s: %v", e.Op, e.MarketID, e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s %s (%s): %s", e.Op, e.MarketID, e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, op, marketID, msg string, cause error) *Error {
	return &Error{Kind: kind, Op: op, MarketID: marketID, Msg: msg, Err: cause}
}

// KindOf extracts the error kind, or "" for non-execution errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
