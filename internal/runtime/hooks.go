package runtime

import (
	"context"
	"time"

	metadatapkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/metadata"
)

// CallInfo provides information about a dispatched call to hooks.
type CallInfo struct {
	// Namespace is the call pattern being dispatched.
	Namespace Namespace
	// Channel is the channel name the call arrived on.
	Channel string
	// CorrelationID is the call's correlation identifier, when present.
	CorrelationID string
	// Source is the window the call originated from (zero for main).
	Source WindowID
	// Metadata contains the call metadata.
	Metadata metadatapkg.Metadata
	// StartedAt is when dispatch began.
	StartedAt time.Time
	// Duration is how long the handler took (only set in OnCallDone and
	// OnCallError).
	Duration time.Duration
}

// CallHooks defines callbacks for dispatch lifecycle events. All hooks are
// optional; nil hooks are simply not called.
type CallHooks struct {
	// OnCallStart is called before the handler function is invoked.
	OnCallStart func(info CallInfo)

	// OnCallDone is called when a handler completes successfully.
	OnCallDone func(info CallInfo)

	// OnCallError is called when a handler returns an error.
	OnCallError func(info CallInfo, err error)
}

// Merge combines two CallHooks, creating a new CallHooks that calls both.
// The hooks from other are called after the hooks from h.
func (h CallHooks) Merge(other CallHooks) CallHooks {
	return CallHooks{
		OnCallStart: chainStartHooks(h.OnCallStart, other.OnCallStart),
		OnCallDone:  chainDoneHooks(h.OnCallDone, other.OnCallDone),
		OnCallError: chainErrorHooks(h.OnCallError, other.OnCallError),
	}
}

func chainStartHooks(a, b func(CallInfo)) func(CallInfo) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(info CallInfo) {
		a(info)
		b(info)
	}
}

func chainDoneHooks(a, b func(CallInfo)) func(CallInfo) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(info CallInfo) {
		a(info)
		b(info)
	}
}

func chainErrorHooks(a, b func(CallInfo, error)) func(CallInfo, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(info CallInfo, err error) {
		a(info, err)
		b(info, err)
	}
}

// CallHooksMiddleware creates a middleware that invokes the provided hooks
// around handler execution.
func CallHooksMiddleware(hooks CallHooks) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:       "call_hooks",
		Middleware: callHooksMiddleware(hooks),
	}
}

func callHooksMiddleware(hooks CallHooks) Middleware {
	return func(h HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *Call) ([]byte, error) {
			start := time.Now()
			info := CallInfo{
				Namespace:     call.Namespace,
				Channel:       call.Channel,
				CorrelationID: call.Metadata[MetadataKeyCorrelationID],
				Source:        call.Source,
				Metadata:      call.Metadata,
				StartedAt:     start,
			}

			if hooks.OnCallStart != nil {
				hooks.OnCallStart(info)
			}

			resp, err := h(ctx, call)

			info.Duration = time.Since(start)
			if err != nil {
				if hooks.OnCallError != nil {
					hooks.OnCallError(info, err)
				}
			} else if hooks.OnCallDone != nil {
				hooks.OnCallDone(info)
			}

			return resp, err
		}
	}
}

// LoggingHooks returns pre-built hooks that log call lifecycle events.
func LoggingHooks(logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, err error, fields map[string]interface{})
}) CallHooks {
	return CallHooks{
		OnCallStart: func(info CallInfo) {
			logger.Info("Call started", map[string]interface{}{
				"namespace":      string(info.Namespace),
				"channel":        info.Channel,
				"correlation_id": info.CorrelationID,
				"source":         int64(info.Source),
			})
		},
		OnCallDone: func(info CallInfo) {
			logger.Info("Call completed", map[string]interface{}{
				"namespace":   string(info.Namespace),
				"channel":     info.Channel,
				"duration_ms": info.Duration.Milliseconds(),
			})
		},
		OnCallError: func(info CallInfo, err error) {
			logger.Error("Call failed", err, map[string]interface{}{
				"namespace":   string(info.Namespace),
				"channel":     info.Channel,
				"duration_ms": info.Duration.Milliseconds(),
			})
		},
	}
}

// AlertingHooks returns pre-built hooks that trigger alerts on call errors.
func AlertingHooks(alertFunc func(info CallInfo, err error)) CallHooks {
	return CallHooks{
		OnCallError: alertFunc,
	}
}
