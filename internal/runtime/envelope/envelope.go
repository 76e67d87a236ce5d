// Package envelope defines the serializable error shapes that cross the
// process boundary and the round-trip reconstruction between them.
//
// Two error kinds survive the boundary losslessly: validation errors (a code
// plus an ordered list of field-level issues) and handler errors (a code plus
// an optional numeric status and structured details). Anything else degrades
// to a generic envelope carrying at least a message.
package envelope

import (
	"errors"
	"fmt"

	jsoncodec "github.com/Michael--/electron-ipc-sub002/internal/runtime/jsoncodec"
)

// Kind discriminates the error shape carried by an Envelope.
type Kind string

const (
	KindValidation Kind = "validation"
	KindHandler    Kind = "handler"
	KindGeneric    Kind = "generic"
)

// Issue is a single field-level validation failure.
type Issue struct {
	Path     []string `json:"path"`
	Message  string   `json:"message"`
	Expected string   `json:"expected,omitempty"`
	Received string   `json:"received,omitempty"`
}

// Envelope is the wire shape of a typed error. It carries enough state to
// reconstruct a matching error value on the receiving side.
type Envelope struct {
	Kind    Kind           `json:"kind"`
	Name    string         `json:"name"`
	Message string         `json:"message"`
	Code    string         `json:"code,omitempty"`
	Status  int            `json:"status,omitempty"`
	Issues  []Issue        `json:"issues,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// ValidationError carries a code and an ordered list of field-level issues.
// Validators producing this shape round-trip across the boundary intact.
type ValidationError struct {
	Code    string
	Message string
	Issues  []Issue
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("validation failed with %d issue(s)", len(e.Issues))
}

// HandlerError carries a code, an optional numeric status, and optional
// structured details.
type HandlerError struct {
	Code    string
	Message string
	Status  int
	Details map[string]any
}

func (e *HandlerError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

// GenericError is the reconstruction of an error that was neither a
// validation nor a handler error on the sending side.
type GenericError struct {
	Name    string
	Message string
}

func (e *GenericError) Error() string { return e.Message }

// Serialize converts an error into its wire envelope. Validation and handler
// errors are captured losslessly; every other error degrades to a generic
// envelope with the error text as message.
func Serialize(err error) Envelope {
	if err == nil {
		return Envelope{Kind: KindGeneric, Name: "Error", Message: "unknown error"}
	}

	var verr *ValidationError
	if errors.As(err, &verr) {
		return Envelope{
			Kind:    KindValidation,
			Name:    "ValidationError",
			Message: verr.Error(),
			Code:    verr.Code,
			Issues:  verr.Issues,
		}
	}

	var herr *HandlerError
	if errors.As(err, &herr) {
		return Envelope{
			Kind:    KindHandler,
			Name:    "HandlerError",
			Message: herr.Error(),
			Code:    herr.Code,
			Status:  herr.Status,
			Details: herr.Details,
		}
	}

	return Envelope{Kind: KindGeneric, Name: "Error", Message: err.Error()}
}

// FromValue converts an arbitrary recovered value (for example a panic value)
// into an envelope. Errors go through Serialize; everything else becomes a
// generic envelope wrapping the value's string form.
func FromValue(v any) Envelope {
	switch val := v.(type) {
	case error:
		return Serialize(val)
	case string:
		return Envelope{Kind: KindGeneric, Name: "Error", Message: val}
	default:
		return Envelope{Kind: KindGeneric, Name: "Error", Message: fmt.Sprint(val)}
	}
}

// Deserialize reconstructs an error from its envelope. The returned error's
// kind is distinguishable via errors.As so callers can branch on
// validation-vs-handler failures, and all caller-relevant fields (message,
// code, status, issues, details) survive a full round trip.
func Deserialize(env Envelope) error {
	switch env.Kind {
	case KindValidation:
		return &ValidationError{
			Code:    env.Code,
			Message: env.Message,
			Issues:  env.Issues,
		}
	case KindHandler:
		return &HandlerError{
			Code:    env.Code,
			Message: env.Message,
			Status:  env.Status,
			Details: env.Details,
		}
	default:
		name := env.Name
		if name == "" {
			name = "Error"
		}
		return &GenericError{Name: name, Message: env.Message}
	}
}

// Encode marshals the envelope for the wire.
func Encode(env Envelope) ([]byte, error) {
	return jsoncodec.Marshal(env)
}

// Decode unmarshals an envelope from the wire. A payload that does not parse
// yields a generic envelope with the raw bytes as message, so a broken error
// report never masks the fact that the call failed.
func Decode(data []byte) Envelope {
	var env Envelope
	if err := jsoncodec.Unmarshal(data, &env); err != nil {
		return Envelope{Kind: KindGeneric, Name: "Error", Message: string(data)}
	}
	if env.Kind == "" {
		env.Kind = KindGeneric
	}
	return env
}
