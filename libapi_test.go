package typedipc

import (
	"errors"
	"io"
	"log/slog"
	"testing"
)

type echoPayload struct {
	Text string `json:"text"`
}

func TestHandlerExportsPropagateErrors(t *testing.T) {
	if err := RegisterInvokeHandler[*echoPayload, echoPayload](nil, InvokeRegistration[*echoPayload, echoPayload]{}); !errors.Is(err, ErrServiceRequired) {
		t.Fatalf("expected service required error, got %v", err)
	}

	if err := RegisterEventHandler[*echoPayload](nil, EventRegistration[*echoPayload]{}); !errors.Is(err, ErrServiceRequired) {
		t.Fatalf("expected service required error, got %v", err)
	}

	if err := RegisterClientInvokeHandler[*echoPayload, echoPayload](nil, InvokeRegistration[*echoPayload, echoPayload]{}); !errors.Is(err, ErrClientRequired) {
		t.Fatalf("expected client required error, got %v", err)
	}

	if err := RegisterBroadcastHandler[*echoPayload](nil, EventRegistration[*echoPayload]{}); !errors.Is(err, ErrClientRequired) {
		t.Fatalf("expected client required error, got %v", err)
	}
}

func TestLoggerExports(t *testing.T) {
	logger := NewSlogServiceLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	logger.Info("boot", LogFields{"component": "test"})
}

func TestEncodingExportAliases(t *testing.T) {
	payload := map[string]string{"hello": "world"}
	if _, err := Marshal(payload); err != nil {
		t.Fatalf("marshal alias failed: %v", err)
	}
	if _, err := MarshalIndent(payload, "", "  "); err != nil {
		t.Fatalf("marshal indent alias failed: %v", err)
	}
	if err := Unmarshal([]byte(`{"hello":"world"}`), &payload); err != nil {
		t.Fatalf("unmarshal alias failed: %v", err)
	}
}

func TestMetadataExport(t *testing.T) {
	md := NewMetadata("key", "value")
	if md["key"] != "value" {
		t.Fatalf("expected metadata to contain key, got %#v", md)
	}
}

func TestErrorSerializationExports(t *testing.T) {
	env := SerializeError(&HandlerError{Code: "NOT_FOUND", Message: "no such document"})
	if env.Kind != EnvelopeKind("handler") {
		t.Fatalf("expected handler envelope, got %q", env.Kind)
	}

	back := DeserializeError(env)
	var handlerErr *HandlerError
	if !errors.As(back, &handlerErr) {
		t.Fatalf("expected handler error back, got %T", back)
	}
	if handlerErr.Code != "NOT_FOUND" {
		t.Fatalf("expected code to survive, got %q", handlerErr.Code)
	}
}

func TestTopicExports(t *testing.T) {
	if TopicMain != "ipc.main" {
		t.Fatalf("expected main topic to be 'ipc.main', got %q", TopicMain)
	}
	if got := WindowTopic(7); got != "ipc.window.7" {
		t.Fatalf("expected window topic to be 'ipc.window.7', got %q", got)
	}
}

func TestNamespaceConstants(t *testing.T) {
	if NamespaceInvoke != "invoke" {
		t.Fatalf("expected NamespaceInvoke to be 'invoke', got %q", NamespaceInvoke)
	}
	if NamespaceEvent != "event" {
		t.Fatalf("expected NamespaceEvent to be 'event', got %q", NamespaceEvent)
	}
	if NamespaceBroadcast != "broadcast" {
		t.Fatalf("expected NamespaceBroadcast to be 'broadcast', got %q", NamespaceBroadcast)
	}
	if NamespaceStream != "stream" {
		t.Fatalf("expected NamespaceStream to be 'stream', got %q", NamespaceStream)
	}
}

func TestULIDExport(t *testing.T) {
	a := CreateULID()
	b := CreateULID()
	if a == "" || a == b {
		t.Fatalf("expected distinct non-empty ulids, got %q and %q", a, b)
	}
}
