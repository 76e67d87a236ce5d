package runtime

import (
	"errors"
	"testing"
)

func TestPendingCallsResolveOnce(t *testing.T) {
	p := newPendingCalls()
	ch := p.add("corr-1")

	if !p.resolve("corr-1", []byte("payload"), nil) {
		t.Fatal("resolve found no waiter")
	}
	res := <-ch
	if res.err != nil || string(res.payload) != "payload" {
		t.Fatalf("unexpected result: %+v", res)
	}

	if p.resolve("corr-1", []byte("again"), nil) {
		t.Fatal("second resolve must report no waiter")
	}
	if p.Len() != 0 {
		t.Fatalf("expected empty table, got %d", p.Len())
	}
}

func TestPendingCallsDropDiscardsLateReply(t *testing.T) {
	p := newPendingCalls()
	p.add("corr-1")
	p.drop("corr-1")

	if p.resolve("corr-1", []byte("late"), nil) {
		t.Fatal("dropped correlation still resolved")
	}
}

func TestPendingCallsFailAll(t *testing.T) {
	p := newPendingCalls()
	a := p.add("a")
	b := p.add("b")

	sentinel := errors.New("shutting down")
	p.failAll(sentinel)

	for _, ch := range []<-chan callResult{a, b} {
		res := <-ch
		if !errors.Is(res.err, sentinel) {
			t.Fatalf("expected sentinel error, got %v", res.err)
		}
	}
	if p.Len() != 0 {
		t.Fatalf("expected empty table, got %d", p.Len())
	}
}
