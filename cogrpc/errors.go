package cogrpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind is a stable category for programmatic error handling.
// Callers should branch on Kind rather than matching error strings.
type Kind string

const (
	// KindGeneric covers every transport failure not classified below.
	KindGeneric Kind = "Generic"
	// KindDeadlineExceeded means the call deadline elapsed. It is a
	// specialisation of KindGeneric and may be worth retrying upstream.
	KindDeadlineExceeded Kind = "DeadlineExceeded"
	// KindCollectionRefused means the server rejected the CCA. Retrying
	// without a new CCA is pointless.
	KindCollectionRefused Kind = "CollectionRefused"
)

var (
	// ErrRelay matches every *Error via errors.Is.
	ErrRelay = errors.New("cogrpc: relay error")

	ErrStreamClosed     = errors.New("cogrpc: stream closed")
	ErrClientClosed     = errors.New("cogrpc: client closed")
	ErrDuplicateCargoID = errors.New("cogrpc: duplicate cargo id")
	ErrEmptyCargoID     = errors.New("cogrpc: empty cargo id")
	ErrInvalidAddress   = errors.New("cogrpc: invalid server address")
)

// Error is a classified relay failure. Cause is the transport error as
// returned by gRPC (or the local error that aborted the call).
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func (e *Error) Is(target error) bool {
	return target == ErrRelay
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// Classify maps a transport failure to a Kind. Unknown failures, including
// non-status errors, map to KindGeneric.
func Classify(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindDeadlineExceeded
	}
	st, ok := status.FromError(err)
	if !ok {
		return KindGeneric
	}
	switch st.Code() {
	case codes.DeadlineExceeded:
		return KindDeadlineExceeded
	case codes.PermissionDenied:
		return KindCollectionRefused
	default:
		return KindGeneric
	}
}

type direction int

const (
	delivery direction = iota
	collection
)

func (d direction) op() string {
	if d == collection {
		return "collectCargo"
	}
	return "deliverCargo"
}

// failure classifies err once, at the orchestrator boundary. Refusal only
// exists for collection; in the delivery direction it is a generic failure.
func failure(d direction, err error) *Error {
	kind := Classify(err)
	if kind == KindCollectionRefused && d != collection {
		kind = KindGeneric
	}
	var msg string
	switch kind {
	case KindDeadlineExceeded:
		msg = d.op() + ": deadline exceeded"
	case KindCollectionRefused:
		msg = d.op() + ": cca refused"
	default:
		msg = d.op() + ": relay failure"
	}
	return &Error{Kind: kind, Message: msg, Cause: err}
}
