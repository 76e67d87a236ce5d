package metadata

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
)

func TestCloneDetachesFrameHeaders(t *testing.T) {
	inbound := Metadata{"ipc_channel": "doc.save", "ipc_correlation_id": "01J9ZX"}
	forwarded := inbound.Clone()
	forwarded["ipc_correlation_id"] = "01J9ZY"

	if inbound["ipc_correlation_id"] != "01J9ZX" {
		t.Fatalf("relaying a frame mutated the inbound headers: %q", inbound["ipc_correlation_id"])
	}
	if len(forwarded) != len(inbound) {
		t.Fatalf("clone dropped headers: %d vs %d", len(forwarded), len(inbound))
	}
}

func TestCloneNilYieldsUsableMap(t *testing.T) {
	var m Metadata
	cloned := m.Clone()
	if cloned == nil {
		t.Fatal("expected a writable map for frames without headers")
	}
	if len(cloned) != 0 {
		t.Fatal("expected no headers")
	}
}

func TestWithStampsWithoutMutating(t *testing.T) {
	base := Metadata{"ipc_channel": "doc.save"}
	stamped := base.With("ipc_correlation_id", "01J9ZX")
	if base["ipc_correlation_id"] != "" {
		t.Fatal("stamping a correlation id mutated the shared base headers")
	}
	if stamped["ipc_correlation_id"] != "01J9ZX" {
		t.Fatalf("correlation id not stamped: %#v", stamped)
	}

	routed := stamped.WithAll(Metadata{"ipc_target_id": "2", "trace_id": "abc"})
	if routed["ipc_target_id"] != "2" || routed["trace_id"] != "abc" {
		t.Fatalf("route headers missing: %#v", routed)
	}
	if routed["ipc_channel"] != "doc.save" {
		t.Fatal("merging route headers lost the channel")
	}
}

func TestNewBuildsFromPairs(t *testing.T) {
	md := New("ipc_channel", "doc.save", "ipc_window_id", "1")
	if md["ipc_channel"] != "doc.save" {
		t.Fatalf("channel header missing: %#v", md)
	}
	if md["ipc_window_id"] != "1" {
		t.Fatalf("window header missing: %#v", md)
	}
	if len(New("dangling")) != 0 {
		t.Fatal("a dangling key must not produce an entry")
	}
}

func TestWatermillConversionCopies(t *testing.T) {
	md := Metadata{"ipc_channel": "doc.save"}
	wm := ToWatermill(md)
	if wm["ipc_channel"] != "doc.save" {
		t.Fatalf("headers lost on the way to the wire: %#v", wm)
	}
	wm["ipc_channel"] = "doc.delete"
	if md["ipc_channel"] != "doc.save" {
		t.Fatal("wire-side mutation leaked back into the frame headers")
	}

	if len(ToWatermill(nil)) != 0 {
		t.Fatal("expected empty wire metadata for a bare frame")
	}

	back := FromWatermill(message.Metadata{"ipc_stream_id": "s1", "ipc_seq": "3"})
	if back["ipc_stream_id"] != "s1" || back["ipc_seq"] != "3" {
		t.Fatalf("stream headers lost coming off the wire: %#v", back)
	}
}

func TestFromWatermillNil(t *testing.T) {
	md := FromWatermill(nil)
	if md == nil {
		t.Fatal("expected a writable map")
	}
	if len(md) != 0 {
		t.Fatal("expected no headers")
	}
}
