package transform

import (
	"errors"
	"fmt"

	"framepump/internal/media"
)

// Status errors returned by a Transform.
var (
	ErrNoMoreTypes   = errors.New("no more types")
	ErrNotAccepting  = errors.New("transform not accepting input")
	ErrNeedMoreInput = errors.New("transform needs more input")
	ErrStreamChange  = errors.New("transform stream change")
	ErrTypeNotSet    = errors.New("media type not set")
	ErrInvalidType   = errors.New("invalid media type")
	ErrBufferSize    = errors.New("output buffer has the wrong size")
	ErrNoStorage     = errors.New("transform requires caller storage")
)

// Negotiation failures.
var (
	ErrNoMatchingOutputFormat = errors.New("no matching output format")
	ErrTransformRejectedInput = errors.New("transform rejected input type")
)

// NegotiationError is returned by Configure and Renegotiate. Reason is one
// of the negotiation sentinels, or nil when the transform failed outright.
type NegotiationError struct {
	Subtype media.Subtype
	Reason  error
	Err     error
}

func (e *NegotiationError) Error() string {
	switch {
	case e.Reason != nil && e.Err != nil:
		return fmt.Sprintf("negotiate %s: %v: %v", e.Subtype, e.Reason, e.Err)
	case e.Reason != nil:
		return fmt.Sprintf("negotiate %s: %v", e.Subtype, e.Reason)
	default:
		return fmt.Sprintf("negotiate %s: %v", e.Subtype, e.Err)
	}
}

func (e *NegotiationError) Unwrap() []error {
	var errs []error
	if e.Reason != nil {
		errs = append(errs, e.Reason)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// OpError is a fatal transform failure annotated with the operation that
// produced it.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string { return "transform: " + e.Op + ": " + e.Err.Error() }

func (e *OpError) Unwrap() error { return e.Err }

func opErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Err: err}
}
