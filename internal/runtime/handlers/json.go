package handlers

import (
	"context"
	"fmt"
	"reflect"

	envelopepkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/envelope"
	errspkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/errors"
	jsoncodec "github.com/Michael--/electron-ipc-sub002/internal/runtime/jsoncodec"
	loggingpkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/logging"
	metadatapkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/metadata"
)

// InvokeContext exposes the decoded request and metadata to a typed invoke
// handler.
type InvokeContext[T any] struct {
	MessageContextBase
	Payload T
}

// EventContext exposes the decoded payload and metadata to a typed event or
// broadcast handler.
type EventContext[T any] struct {
	MessageContextBase
	Payload T
}

// InvokeHandler processes a typed request and returns the typed response.
type InvokeHandler[T any, O any] func(ctx context.Context, call InvokeContext[T]) (O, error)

// EventHandler consumes a typed fire-and-forget payload.
type EventHandler[T any] func(ctx context.Context, event EventContext[T]) error

// Validator checks a decoded payload before the handler runs. Returning a
// *envelope.ValidationError keeps the issue list intact across the process
// boundary; any other error degrades to its generic envelope.
type Validator interface {
	Validate(value any) error
}

// RawInvoke is the untyped shape typed invoke handlers compile down to.
type RawInvoke func(ctx context.Context, payload []byte, md metadatapkg.Metadata, source int64) ([]byte, error)

// RawEvent is the untyped shape typed event handlers compile down to.
type RawEvent func(ctx context.Context, payload []byte, md metadatapkg.Metadata, source int64) error

// BuildInvokeHandler converts a typed invoke handler into its raw form. The
// request type must be a pointer so the decoder has a concrete value to fill.
func BuildInvokeHandler[T any, O any](handler InvokeHandler[T, O], validator Validator, logger loggingpkg.ServiceLogger) (RawInvoke, error) {
	if handler == nil {
		return nil, errspkg.ErrHandlerRequired
	}

	prototype, err := prototypeFactory[T]()
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, payload []byte, md metadatapkg.Metadata, source int64) ([]byte, error) {
		typed := prototype()
		if err := decodePayload(payload, typed); err != nil {
			return nil, err
		}
		if validator != nil {
			if err := validator.Validate(typed); err != nil {
				return nil, err
			}
		}

		out, err := handler(ctx, InvokeContext[T]{
			MessageContextBase: MessageContextBase{Metadata: md, Logger: logger, Source: source},
			Payload:            typed,
		})
		if err != nil {
			return nil, err
		}
		return jsoncodec.Marshal(out)
	}, nil
}

// BuildEventHandler converts a typed event handler into its raw form.
func BuildEventHandler[T any](handler EventHandler[T], validator Validator, logger loggingpkg.ServiceLogger) (RawEvent, error) {
	if handler == nil {
		return nil, errspkg.ErrHandlerRequired
	}

	prototype, err := prototypeFactory[T]()
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, payload []byte, md metadatapkg.Metadata, source int64) error {
		typed := prototype()
		if err := decodePayload(payload, typed); err != nil {
			return err
		}
		if validator != nil {
			if err := validator.Validate(typed); err != nil {
				return err
			}
		}

		return handler(ctx, EventContext[T]{
			MessageContextBase: MessageContextBase{Metadata: md, Logger: logger, Source: source},
			Payload:            typed,
		})
	}, nil
}

// decodePayload unmarshals a request, reporting failures as validation
// errors so the caller sees a structured issue instead of a bare string.
func decodePayload(payload []byte, target any) error {
	if err := jsoncodec.Unmarshal(payload, target); err != nil {
		return &envelopepkg.ValidationError{
			Code:    "INVALID_PAYLOAD",
			Message: "payload does not decode into the expected shape",
			Issues: []envelopepkg.Issue{{
				Message:  err.Error(),
				Expected: fmt.Sprintf("%T", target),
			}},
		}
	}
	return nil
}

func prototypeFactory[T any]() (func() T, error) {
	var zero T
	typ := reflect.TypeOf(zero)
	if typ == nil {
		return nil, errspkg.ErrPayloadTypeRequired
	}
	if typ.Kind() != reflect.Ptr {
		return nil, errspkg.ErrPayloadPointerType
	}
	elem := typ.Elem()
	return func() T {
		clone := reflect.New(elem).Interface()
		return clone.(T)
	}, nil
}
