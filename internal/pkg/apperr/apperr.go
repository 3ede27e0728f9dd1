// Package apperr defines the error taxonomy shared by the payment, order and
// refund components. Handlers map a Kind to a transport status; everything
// else only wraps and inspects.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindBadRequest
	KindConflict
	KindGateway
	KindInconsistency
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindBadRequest:
		return "bad_request"
	case KindConflict:
		return "conflict"
	case KindGateway:
		return "gateway_error"
	case KindInconsistency:
		return "internal_inconsistency"
	default:
		return "internal"
	}
}

// Error carries a Kind, the operation that failed and a message that is safe
// to show to the caller. Err holds the underlying cause, if any.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.message(), e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.message())
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.message(), e.Err)
	default:
		return e.message()
	}
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) message() string {
	if e.Msg != "" {
		return e.Msg
	}
	return e.Kind.String()
}

// New builds an error of the given kind.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap attaches a kind and operation to err. The message of the first
// *Error found in err's chain is kept so callers still see it.
func Wrap(kind Kind, op string, err error) *Error {
	var inner *Error
	msg := ""
	if errors.As(err, &inner) {
		msg = inner.Msg
	}
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

func NotFound(op, msg string) *Error   { return New(KindNotFound, op, msg) }
func BadRequest(op, msg string) *Error { return New(KindBadRequest, op, msg) }
func Conflict(op, msg string) *Error   { return New(KindConflict, op, msg) }

// Gateway wraps a failure talking to the external payment gateway.
func Gateway(op string, err error) *Error {
	return &Error{Kind: KindGateway, Op: op, Msg: "payment gateway error", Err: err}
}

// Inconsistency marks a state the system detected but could not repair.
func Inconsistency(op, msg string, err error) *Error {
	return &Error{Kind: KindInconsistency, Op: op, Msg: msg, Err: err}
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the caller-safe message of err, or fallback when err is
// not an *Error or has no message.
func Message(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	return fallback
}
