package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	envelopepkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/envelope"
	idspkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/ids"
	loggingpkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/logging"
)

// Middleware wraps an invoke handler. The chain is composed once at service
// construction and applied to every handler at registration time.
type Middleware func(HandlerFunc) HandlerFunc

// MiddlewareBuilder constructs a middleware using the service instance.
type MiddlewareBuilder func(*Service) (Middleware, error)

// MiddlewareRegistration captures how a middleware should be attached to a
// Service dispatch chain.
type MiddlewareRegistration struct {
	Name       string
	Middleware Middleware
	Builder    MiddlewareBuilder
}

// DefaultMiddlewares returns the standard chain used by the Service
// constructor: correlation ids, call logging, otel tracing, Prometheus
// metrics, and panic recovery, innermost last.
func DefaultMiddlewares() []MiddlewareRegistration {
	return []MiddlewareRegistration{
		CorrelationIDMiddleware(),
		LogCallsMiddleware(nil),
		TracerMiddleware(),
		MetricsMiddleware(),
		RecovererMiddleware(),
	}
}

// CorrelationIDMiddleware ensures each dispatched call carries a correlation
// identifier in its metadata.
func CorrelationIDMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "correlation_id",
		Middleware: func(h HandlerFunc) HandlerFunc {
			return func(ctx context.Context, call *Call) ([]byte, error) {
				if call.Metadata == nil {
					call.Metadata = map[string]string{}
				}
				if _, ok := call.Metadata[MetadataKeyCorrelationID]; !ok {
					call.Metadata[MetadataKeyCorrelationID] = idspkg.CreateULID()
				}
				return h(ctx, call)
			}
		},
	}
}

// LogCallsMiddleware logs the channel and metadata of handled calls at debug
// level.
func LogCallsMiddleware(logger loggingpkg.ServiceLogger) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "log_calls",
		Builder: func(s *Service) (Middleware, error) {
			l := logger
			if l == nil {
				l = s.Logger
			}
			if l == nil {
				return nil, errors.New("log calls middleware requires a logger")
			}
			return func(h HandlerFunc) HandlerFunc {
				return func(ctx context.Context, call *Call) ([]byte, error) {
					l.Debug("Dispatching call", loggingpkg.LogFields{
						"namespace": string(call.Namespace),
						"channel":   call.Channel,
						"source":    int64(call.Source),
						"metadata":  call.Metadata,
					})
					return h(ctx, call)
				}
			}, nil
		},
	}
}

// TracerMiddleware wraps handler execution in an OpenTelemetry span.
func TracerMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "tracer",
		Middleware: func(h HandlerFunc) HandlerFunc {
			return func(ctx context.Context, call *Call) ([]byte, error) {
				tracer := otel.Tracer("typedipc-dispatch")
				ctx, span := tracer.Start(ctx, "Dispatch "+call.Channel,
					trace.WithSpanKind(trace.SpanKindServer))
				defer span.End()

				span.SetAttributes(
					attribute.String("ipc.namespace", string(call.Namespace)),
					attribute.String("ipc.channel", call.Channel),
					attribute.String("ipc.correlation_id", call.Metadata[MetadataKeyCorrelationID]),
					attribute.Int64("ipc.source_window", int64(call.Source)),
				)
				return h(ctx, call)
			}
		},
	}
}

// MetricsMiddleware records Prometheus metrics for each dispatched call and
// exposes the scrape endpoint when a metrics port is configured.
func MetricsMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "metrics",
		Builder: func(s *Service) (Middleware, error) {
			if !s.Conf.MetricsEnabled {
				return nil, nil
			}

			if s.Conf.MetricsPort > 0 {
				s.RegisterHTTPHandler(s.Conf.MetricsPort, "/metrics", promhttp.Handler())
			}

			return s.getMetrics().middleware(), nil
		},
	}
}

// RecovererMiddleware converts handler panics into ordinary handler errors so
// a single bad caller never brings the process down. The panic value is
// normalized through the envelope layer, so a panicked typed error keeps its
// envelope kind across the wire instead of degrading to plain text.
func RecovererMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "recoverer",
		Middleware: func(h HandlerFunc) HandlerFunc {
			return func(ctx context.Context, call *Call) (resp []byte, err error) {
				defer func() {
					if r := recover(); r != nil {
						recovered := envelopepkg.Deserialize(envelopepkg.FromValue(r))
						err = fmt.Errorf("typedipc: handler panic on %q: %w", call.Channel, recovered)
					}
				}()
				return h(ctx, call)
			}
		},
	}
}

// RegisterMiddleware appends the supplied middleware to the service dispatch
// chain. Middlewares must be registered before handlers; handlers are wrapped
// with the chain as it exists when they are registered.
func (s *Service) RegisterMiddleware(cfg MiddlewareRegistration) error {
	var mw Middleware
	switch {
	case cfg.Middleware != nil:
		mw = cfg.Middleware
	case cfg.Builder != nil:
		var err error
		mw, err = cfg.Builder(s)
		if err != nil {
			return err
		}
	default:
		return errors.New("middleware registration requires Middleware or Builder")
	}

	if mw == nil {
		return nil
	}

	s.middlewaresMu.Lock()
	s.middlewares = append(s.middlewares, mw)
	s.middlewaresMu.Unlock()
	return nil
}

// applyMiddlewares wraps a handler with the registered chain. The first
// registered middleware ends up outermost.
func (s *Service) applyMiddlewares(h HandlerFunc) HandlerFunc {
	s.middlewaresMu.Lock()
	chain := make([]Middleware, len(s.middlewares))
	copy(chain, s.middlewares)
	s.middlewaresMu.Unlock()

	for i := len(chain) - 1; i >= 0; i-- {
		h = chain[i](h)
	}
	return h
}
