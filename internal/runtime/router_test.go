package runtime

import (
	"errors"
	"testing"
	"time"

	envelopepkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/envelope"
	errspkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/errors"
)

// roundTripRouteError pushes a routing failure through the same path a reply
// frame takes on the wire: envelope, JSON bytes, envelope, typed error.
func roundTripRouteError(t *testing.T, err error) error {
	t.Helper()
	payload, encErr := envelopepkg.Encode(routeErrorEnvelope(err))
	if encErr != nil {
		t.Fatalf("encode failed: %v", encErr)
	}
	return reconstructRouteError(envelopepkg.Deserialize(envelopepkg.Decode(payload)))
}

func TestTargetNotFoundSurvivesTheWire(t *testing.T) {
	got := roundTripRouteError(t, &errspkg.TargetNotFoundError{TargetID: 42})

	var notFound *errspkg.TargetNotFoundError
	if !errors.As(got, &notFound) {
		t.Fatalf("expected *TargetNotFoundError, got %T: %v", got, got)
	}
	if notFound.TargetID != 42 {
		t.Fatalf("target id lost in transit: %+v", notFound)
	}
}

func TestTargetNotFoundByRoleSurvivesTheWire(t *testing.T) {
	got := roundTripRouteError(t, &errspkg.TargetNotFoundError{TargetRole: "settings"})

	var notFound *errspkg.TargetNotFoundError
	if !errors.As(got, &notFound) {
		t.Fatalf("expected *TargetNotFoundError, got %T: %v", got, got)
	}
	if notFound.TargetRole != "settings" {
		t.Fatalf("target role lost in transit: %+v", notFound)
	}
}

func TestTargetUnresponsiveSurvivesTheWire(t *testing.T) {
	got := roundTripRouteError(t, &errspkg.TargetUnresponsiveError{
		TargetID: 7,
		Channel:  "doc.sync",
		Timeout:  1500 * time.Millisecond,
	})

	var unresponsive *errspkg.TargetUnresponsiveError
	if !errors.As(got, &unresponsive) {
		t.Fatalf("expected *TargetUnresponsiveError, got %T: %v", got, got)
	}
	if unresponsive.TargetID != 7 || unresponsive.Channel != "doc.sync" {
		t.Fatalf("fields lost in transit: %+v", unresponsive)
	}
	// Milliseconds survive the JSON number round trip as float64.
	if unresponsive.Timeout != 1500*time.Millisecond {
		t.Fatalf("timeout lost in transit: %s", unresponsive.Timeout)
	}
}

func TestOrdinaryHandlerErrorsPassThrough(t *testing.T) {
	original := &envelopepkg.HandlerError{Message: "disk full", Code: "DISK_FULL"}
	if got := reconstructRouteError(original); got != original {
		t.Fatalf("non-routing handler error was rewritten: %v", got)
	}

	plain := errors.New("not an envelope at all")
	if got := reconstructRouteError(plain); got != plain {
		t.Fatalf("plain error was rewritten: %v", got)
	}
}

func TestResolveRouteTargetRules(t *testing.T) {
	svc, _ := newTestService(t)
	svc.windows.Register(1, "editor")
	svc.windows.Register(2, "preview")
	svc.windows.Register(3, "preview")

	t.Run("by id", func(t *testing.T) {
		desc, err := svc.resolveRouteTarget(frame{Window: 1, TargetID: 2})
		if err != nil {
			t.Fatalf("resolve failed: %v", err)
		}
		if desc.ID != 2 {
			t.Fatalf("wrong target: %+v", desc)
		}
	})

	t.Run("by role picks oldest", func(t *testing.T) {
		desc, err := svc.resolveRouteTarget(frame{Window: 1, TargetRole: "preview"})
		if err != nil {
			t.Fatalf("resolve failed: %v", err)
		}
		if desc.ID != 2 {
			t.Fatalf("expected oldest preview window, got %+v", desc)
		}
	})

	t.Run("never routes to self", func(t *testing.T) {
		if _, err := svc.resolveRouteTarget(frame{Window: 2, TargetID: 2}); err == nil {
			t.Fatal("window routed to itself by id")
		}
		desc, err := svc.resolveRouteTarget(frame{Window: 2, TargetRole: "preview"})
		if err != nil {
			t.Fatalf("resolve failed: %v", err)
		}
		if desc.ID != 3 {
			t.Fatalf("expected the other preview window, got %+v", desc)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := svc.resolveRouteTarget(frame{Window: 1, TargetID: 99})
		var notFound *errspkg.TargetNotFoundError
		if !errors.As(err, &notFound) {
			t.Fatalf("expected *TargetNotFoundError, got %v", err)
		}
	})

	t.Run("no target at all", func(t *testing.T) {
		if _, err := svc.resolveRouteTarget(frame{Window: 1}); !errors.Is(err, errspkg.ErrRouteTargetRequired) {
			t.Fatalf("expected ErrRouteTargetRequired, got %v", err)
		}
	})
}
