// Package fault defines the structured error taxonomy shared by the exposure
// engine. Callers branch on Kind, never on message text.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

// Error kinds.
const (
	KindGeometry           Kind = "geometry"
	KindGatewayUnavailable Kind = "gateway_unavailable"
	KindInsufficientData   Kind = "insufficient_data"
	KindTimeout            Kind = "timeout"
)

// Error is a classified failure with a description of the offending input.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	// Input describes what was being processed (layer name, asset id, ...).
	Input string `json:"input,omitempty"`
	// Detail carries a kind-specific payload, e.g. the validation result for
	// geometry failures.
	Detail any   `json:"detail,omitempty"`
	Err    error `json:"-"`
}

func (e *Error) Error() string {
	msg := string(e.Kind) + ": " + e.Message
	if e.Input != "" {
		msg += " (" + e.Input + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error of the given kind.
func New(kind Kind, input, message string) *Error {
	return &Error{Kind: kind, Input: input, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, input, format string, args ...any) *Error {
	return &Error{Kind: kind, Input: input, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies cause under kind. A nil cause still yields an Error.
func Wrap(cause error, kind Kind, input, message string) *Error {
	return &Error{Kind: kind, Input: input, Message: message, Err: cause}
}

// Geometry returns a geometry error carrying the validation detail.
func Geometry(input, message string, detail any) *Error {
	return &Error{Kind: KindGeometry, Input: input, Message: message, Detail: detail}
}

// Unavailable returns a gateway-unavailable error for a hazard layer.
func Unavailable(layer string, cause error) *Error {
	return Wrap(cause, KindGatewayUnavailable, layer, "hazard layer unavailable")
}

// Timeout returns a timeout error for a hazard layer call.
func Timeout(layer string, cause error) *Error {
	return Wrap(cause, KindTimeout, layer, "hazard layer call timed out")
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// KindOf returns the Kind of the first *Error in err's chain, or "" when the
// error is unclassified.
func KindOf(err error) Kind {
	if fe, ok := As(err); ok {
		return fe.Kind
	}
	return ""
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
