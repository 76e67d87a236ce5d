package runtime

import (
	"errors"
	"strings"
	"testing"

	configpkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/config"
)

func inspectorConfig(maxEvents int, mode string) *configpkg.Config {
	return &configpkg.Config{
		InspectorEnabled:     true,
		InspectorMaxEvents:   maxEvents,
		InspectorPayloadMode: mode,
	}
}

func TestInspectorRingEviction(t *testing.T) {
	ins := NewInspector(inspectorConfig(3, configpkg.PayloadModeFull), nil)

	for _, channel := range []string{"a", "b", "c", "d", "e"} {
		h := ins.Begin(SpanInvoke, FlowRendererToMain, "invoke", channel, "", 0, nil)
		h.End(nil)
	}

	spans := ins.Snapshot()
	if len(spans) != 3 {
		t.Fatalf("expected 3 retained spans, got %d", len(spans))
	}
	got := []string{spans[0].Channel, spans[1].Channel, spans[2].Channel}
	if got[0] != "c" || got[1] != "d" || got[2] != "e" {
		t.Fatalf("expected oldest-first c,d,e, got %v", got)
	}
}

func TestInspectorOnlyStoresFinalizedSpans(t *testing.T) {
	ins := NewInspector(inspectorConfig(8, configpkg.PayloadModeFull), nil)

	pending := ins.Begin(SpanInvoke, FlowRendererToMain, "invoke", "slow", "", 0, nil)
	if len(ins.Snapshot()) != 0 {
		t.Fatal("pending span leaked into the ring")
	}

	pending.End(errors.New("boom"))
	spans := ins.Snapshot()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span after End, got %d", len(spans))
	}
	if spans[0].Status != SpanError || spans[0].Error != "boom" {
		t.Fatalf("outcome lost: %+v", spans[0])
	}

	// End is idempotent, a second call must not add another span.
	pending.End(nil)
	if len(ins.Snapshot()) != 1 {
		t.Fatal("second End duplicated the span")
	}
}

func TestInspectorPayloadModes(t *testing.T) {
	payload := []byte(`{"secret":"hunter2"}`)

	t.Run("full", func(t *testing.T) {
		ins := NewInspector(inspectorConfig(4, configpkg.PayloadModeFull), nil)
		ins.Begin(SpanInvoke, FlowRendererToMain, "invoke", "x", "", 0, payload).End(nil)
		if got := string(ins.Snapshot()[0].Request); got != string(payload) {
			t.Fatalf("full mode must keep the payload, got %q", got)
		}
	})

	t.Run("redacted", func(t *testing.T) {
		ins := NewInspector(inspectorConfig(4, configpkg.PayloadModeRedacted), nil)
		ins.Begin(SpanInvoke, FlowRendererToMain, "invoke", "x", "", 0, payload).End(nil)
		got := string(ins.Snapshot()[0].Request)
		if strings.Contains(got, "hunter2") {
			t.Fatalf("redacted mode leaked the payload: %q", got)
		}
		if !strings.Contains(got, "redacted_bytes") {
			t.Fatalf("redacted mode must keep the size, got %q", got)
		}
	})

	t.Run("none", func(t *testing.T) {
		ins := NewInspector(inspectorConfig(4, configpkg.PayloadModeNone), nil)
		ins.Begin(SpanInvoke, FlowRendererToMain, "invoke", "x", "", 0, payload).End(nil)
		if ins.Snapshot()[0].Request != nil {
			t.Fatal("none mode must drop the payload")
		}
	})
}

func TestInspectorDisabledIsNoOp(t *testing.T) {
	ins := NewInspector(&configpkg.Config{}, nil)
	if ins.Enabled() {
		t.Fatal("inspector must default to disabled")
	}

	h := ins.Begin(SpanInvoke, FlowRendererToMain, "invoke", "x", "", 0, nil)
	h.End(nil)
	h.SetResponse([]byte("ignored"))

	if got := ins.Snapshot(); got != nil {
		t.Fatalf("disabled inspector must record nothing, got %d", len(got))
	}
}

func TestInspectorSubscribeNeverBlocksRecording(t *testing.T) {
	ins := NewInspector(inspectorConfig(16, configpkg.PayloadModeNone), nil)

	feed, cancel := ins.Subscribe(1)
	defer cancel()

	// Nobody drains the feed; recording must still go through.
	for i := 0; i < 5; i++ {
		ins.Begin(SpanEvent, FlowRendererToMain, "event", "tick", "", 0, nil).End(nil)
	}
	if len(ins.Snapshot()) != 5 {
		t.Fatal("slow subscriber stalled recording")
	}

	// The one buffered span is still deliverable.
	select {
	case span := <-feed:
		if span.Channel != "tick" {
			t.Fatalf("unexpected span %+v", span)
		}
	default:
		t.Fatal("expected one buffered span")
	}
}

func TestInspectorSubscribeCancelIsIdempotent(t *testing.T) {
	ins := NewInspector(inspectorConfig(4, configpkg.PayloadModeNone), nil)
	_, cancel := ins.Subscribe(1)
	cancel()
	cancel()

	ins.Begin(SpanEvent, FlowRendererToMain, "event", "x", "", 0, nil).End(nil)
}

func TestInspectorChunkAccounting(t *testing.T) {
	ins := NewInspector(inspectorConfig(4, configpkg.PayloadModeNone), nil)

	h := ins.Begin(SpanStreamUpload, FlowRendererToMain, "stream", "files.up", "s1", 3, nil)
	h.AddChunk(100)
	h.AddChunk(50)
	h.End(nil)

	span := ins.Snapshot()[0]
	if span.Chunks != 2 || span.Bytes != 150 {
		t.Fatalf("chunk accounting lost: chunks=%d bytes=%d", span.Chunks, span.Bytes)
	}
	if span.Kind != SpanStreamUpload || span.WindowID != 3 {
		t.Fatalf("span identity lost: %+v", span)
	}
}
