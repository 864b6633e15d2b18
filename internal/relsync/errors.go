package relsync

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies why an operation on an edge did not commit.
type ErrorKind int

const (
	// KindBusy: the edge already has a request in flight. No network call is made.
	KindBusy ErrorKind = iota + 1
	// KindNetwork: transport failure, no answer from the authority.
	KindNetwork
	// KindConflict: the authority already holds the requested state.
	KindConflict
	// KindUnauthorized: the bearer credential was rejected.
	KindUnauthorized
	// KindTimeout: no answer within the confirmation bound.
	KindTimeout
	// KindRejected: any other refusal, e.g. unknown target user.
	KindRejected
	// KindInvalid: the request was malformed and never left the client.
	KindInvalid
)

func (k ErrorKind) String() string {
	switch k {
	case KindBusy:
		return "busy"
	case KindNetwork:
		return "network_error"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindTimeout:
		return "timeout"
	case KindRejected:
		return "rejected"
	case KindInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Rollback reports whether a failure of this kind undoes an optimistic change.
// Busy and Invalid are raised before anything was applied.
func (k ErrorKind) Rollback() bool {
	return k != KindBusy && k != KindInvalid
}

// Sentinels for errors.Is matching on kind.
var (
	ErrBusy         = &Error{Kind: KindBusy}
	ErrNetwork      = &Error{Kind: KindNetwork}
	ErrConflict     = &Error{Kind: KindConflict}
	ErrUnauthorized = &Error{Kind: KindUnauthorized}
	ErrTimeout      = &Error{Kind: KindTimeout}
	ErrRejected     = &Error{Kind: KindRejected}
	ErrInvalid      = &Error{Kind: KindInvalid}
)

// Error is returned by the controller and by Gateway implementations.
type Error struct {
	Kind     ErrorKind
	Op       string
	TargetID string
	// Message is meant for the user, e.g. the authority's own reason.
	Message string
	Err     error
}

// NewError builds an Error of the given kind.
func NewError(kind ErrorKind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = e.Kind.String()
	}
	switch {
	case e.Op != "" && e.TargetID != "":
		return fmt.Sprintf("%s %s: %s: %s", e.Op, e.TargetID, e.Kind, msg)
	case e.Op != "":
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrBusy) works
// regardless of message or target.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf extracts the kind of err. Context deadline errors map to Timeout and
// any other unclassified error to NetworkError.
func KindOf(err error) ErrorKind {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindNetwork
}

// classify normalizes a gateway error into an *Error for the given edge.
// callCtx is the bounded context the call ran under; its deadline wins over
// whatever the transport reported.
func classify(callCtx context.Context, op, targetID string, err error) *Error {
	if err == nil {
		return nil
	}
	kind := KindOf(err)
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		kind = KindTimeout
	}
	out := &Error{Kind: kind, Op: op, TargetID: targetID, Err: err}
	var ge *Error
	if errors.As(err, &ge) {
		out.Message = ge.Message
		out.Err = ge.Err
		if out.Err == nil {
			out.Err = ge
		}
	}
	if kind == KindTimeout && out.Message == "" {
		out.Message = "the server did not answer in time"
	}
	return out
}
