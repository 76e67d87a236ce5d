package runtime

import (
	"context"
	"errors"
	"strings"
	"testing"

	envelopepkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/envelope"
)

func TestCorrelationIDMiddleware(t *testing.T) {
	mw := CorrelationIDMiddleware().Middleware

	t.Run("assigns missing id", func(t *testing.T) {
		var seen string
		h := mw(func(ctx context.Context, call *Call) ([]byte, error) {
			seen = call.Metadata[MetadataKeyCorrelationID]
			return nil, nil
		})

		if _, err := h(context.Background(), &Call{Channel: "x"}); err != nil {
			t.Fatalf("handler failed: %v", err)
		}
		if seen == "" {
			t.Fatal("no correlation id assigned")
		}
	})

	t.Run("preserves existing id", func(t *testing.T) {
		var seen string
		h := mw(func(ctx context.Context, call *Call) ([]byte, error) {
			seen = call.Metadata[MetadataKeyCorrelationID]
			return nil, nil
		})

		call := &Call{Channel: "x", Metadata: map[string]string{MetadataKeyCorrelationID: "fixed"}}
		if _, err := h(context.Background(), call); err != nil {
			t.Fatalf("handler failed: %v", err)
		}
		if seen != "fixed" {
			t.Fatalf("existing correlation id replaced: %q", seen)
		}
	})
}

func TestRecovererMiddleware(t *testing.T) {
	mw := RecovererMiddleware().Middleware
	h := mw(func(ctx context.Context, call *Call) ([]byte, error) {
		panic("boom")
	})

	_, err := h(context.Background(), &Call{Channel: "explosive"})
	if err == nil {
		t.Fatal("panic was not converted to an error")
	}
	if !strings.Contains(err.Error(), "explosive") || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("error lost panic context: %v", err)
	}
}

func TestRecovererMiddlewareKeepsEnvelopeShape(t *testing.T) {
	mw := RecovererMiddleware().Middleware
	h := mw(func(ctx context.Context, call *Call) ([]byte, error) {
		panic(&envelopepkg.HandlerError{Code: "QUOTA_EXCEEDED", Message: "out of space"})
	})

	_, err := h(context.Background(), &Call{Channel: "files.write"})

	var herr *envelopepkg.HandlerError
	if !errors.As(err, &herr) {
		t.Fatalf("panicked handler error degraded to %T: %v", err, err)
	}
	if herr.Code != "QUOTA_EXCEEDED" {
		t.Fatalf("error code lost through the panic path: %q", herr.Code)
	}

	env := envelopepkg.Serialize(err)
	if env.Kind != envelopepkg.KindHandler || env.Code != "QUOTA_EXCEEDED" {
		t.Fatalf("wire envelope degraded: kind=%s code=%s", env.Kind, env.Code)
	}
}

func TestApplyMiddlewaresOrder(t *testing.T) {
	svc, _ := newTestService(t)

	var order []string
	tag := func(name string) MiddlewareRegistration {
		return MiddlewareRegistration{
			Name: name,
			Middleware: func(h HandlerFunc) HandlerFunc {
				return func(ctx context.Context, call *Call) ([]byte, error) {
					order = append(order, name)
					return h(ctx, call)
				}
			},
		}
	}

	if err := svc.RegisterMiddleware(tag("outer")); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := svc.RegisterMiddleware(tag("inner")); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	h := svc.applyMiddlewares(func(ctx context.Context, call *Call) ([]byte, error) {
		order = append(order, "handler")
		return nil, nil
	})
	if _, err := h(context.Background(), &Call{}); err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	if len(order) != 3 || order[0] != "outer" || order[1] != "inner" || order[2] != "handler" {
		t.Fatalf("wrong wrapping order: %v", order)
	}
}

func TestRegisterMiddlewareValidation(t *testing.T) {
	svc, _ := newTestService(t)

	if err := svc.RegisterMiddleware(MiddlewareRegistration{Name: "empty"}); err == nil {
		t.Fatal("registration without Middleware or Builder must fail")
	}

	// A builder returning a nil middleware opts out silently.
	err := svc.RegisterMiddleware(MiddlewareRegistration{
		Name:    "disabled",
		Builder: func(s *Service) (Middleware, error) { return nil, nil },
	})
	if err != nil {
		t.Fatalf("nil-middleware builder must not error: %v", err)
	}
	if len(svc.middlewares) != 0 {
		t.Fatal("nil middleware was appended to the chain")
	}
}
