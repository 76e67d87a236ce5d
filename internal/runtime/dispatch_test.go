package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	errspkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/errors"
)

func noopInvoke(ctx context.Context, call *Call) ([]byte, error) { return nil, nil }

func noopEvent(ctx context.Context, call *Call) error { return nil }

func TestDispatcherRegisterValidatesInput(t *testing.T) {
	d := NewDispatcher(nil)

	if err := d.Register(NamespaceInvoke, "", HandlerFunc(noopInvoke)); !errors.Is(err, errspkg.ErrChannelRequired) {
		t.Fatalf("expected ErrChannelRequired, got %v", err)
	}
	if err := d.Register(NamespaceInvoke, "math.add", nil); !errors.Is(err, errspkg.ErrHandlerRequired) {
		t.Fatalf("expected ErrHandlerRequired, got %v", err)
	}
	// An event handler shape on an invoke channel must be refused.
	if err := d.Register(NamespaceInvoke, "math.add", EventHandlerFunc(noopEvent)); err == nil {
		t.Fatal("expected shape mismatch error")
	}
}

func TestDispatcherNamespacesAreIndependent(t *testing.T) {
	d := NewDispatcher(nil)

	if err := d.Register(NamespaceInvoke, "sync", HandlerFunc(noopInvoke)); err != nil {
		t.Fatalf("invoke registration failed: %v", err)
	}
	if err := d.Register(NamespaceEvent, "sync", EventHandlerFunc(noopEvent)); err != nil {
		t.Fatalf("event registration failed: %v", err)
	}

	if _, ok := d.LookupInvoke("sync"); !ok {
		t.Fatal("invoke handler not found")
	}
	if _, ok := d.LookupEvent("sync"); !ok {
		t.Fatal("event handler not found")
	}
	if _, ok := d.LookupBroadcast("sync"); ok {
		t.Fatal("broadcast namespace must stay empty")
	}
}

func TestDispatcherDuplicateRegistrationWarnsAndReplaces(t *testing.T) {
	log := &recordingLogger{}
	d := NewDispatcher(log)

	first := HandlerFunc(func(ctx context.Context, call *Call) ([]byte, error) {
		return []byte("first"), nil
	})
	second := HandlerFunc(func(ctx context.Context, call *Call) ([]byte, error) {
		return []byte("second"), nil
	})

	if err := d.Register(NamespaceInvoke, "math.add", first); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}
	if err := d.Register(NamespaceInvoke, "math.add", second); err != nil {
		t.Fatalf("second registration must not fail, got %v", err)
	}

	warnings := log.byLevel("error")
	if len(warnings) != 1 {
		t.Fatalf("expected exactly one conflict log, got %d", len(warnings))
	}

	handler, ok := d.LookupInvoke("math.add")
	if !ok {
		t.Fatal("handler not found after replacement")
	}
	resp, err := handler(context.Background(), &Call{})
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if string(resp) != "second" {
		t.Fatalf("expected replacement handler to win, got %q", resp)
	}
}

func TestDispatcherUnknownChannelLookupFails(t *testing.T) {
	d := NewDispatcher(nil)
	if _, ok := d.LookupInvoke("missing"); ok {
		t.Fatal("lookup of unregistered channel must fail")
	}
}

func TestChannelStatsAccounting(t *testing.T) {
	st := newChannelStats(NamespaceInvoke, "math.add")

	st.onCallStart()
	if st.InFlight != 1 {
		t.Fatalf("expected 1 in flight, got %d", st.InFlight)
	}
	st.onCallFinish(5*time.Millisecond, nil)
	st.onCallStart()
	st.onCallFinish(3*time.Millisecond, errors.New("boom"))

	if st.CallsProcessed != 2 {
		t.Fatalf("expected 2 processed, got %d", st.CallsProcessed)
	}
	if st.CallsFailed != 1 {
		t.Fatalf("expected 1 failed, got %d", st.CallsFailed)
	}
	if st.InFlight != 0 {
		t.Fatalf("expected 0 in flight, got %d", st.InFlight)
	}
	if st.LastError != "boom" {
		t.Fatalf("expected last error recorded, got %q", st.LastError)
	}
	if st.TotalDurationNs != int64(8*time.Millisecond) {
		t.Fatalf("unexpected total duration %d", st.TotalDurationNs)
	}
}

func TestDispatcherChannelsSnapshot(t *testing.T) {
	d := NewDispatcher(nil)
	if err := d.Register(NamespaceInvoke, "a", HandlerFunc(noopInvoke)); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := d.Register(NamespaceBroadcast, "b", EventHandlerFunc(noopEvent)); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	infos := d.Channels()
	if len(infos) != 2 {
		t.Fatalf("expected 2 channels, got %d", len(infos))
	}
}
