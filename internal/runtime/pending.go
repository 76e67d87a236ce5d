package runtime

import (
	"sync"
)

// callResult is the resolution of one outstanding request.
type callResult struct {
	payload []byte
	err     error
}

// pendingCalls tracks requests awaiting their reply frame, keyed by
// correlation id. Each entry resolves at most once; late replies for a
// dropped correlation are discarded, which is how timeouts stay safe against
// a slow responder racing the deadline.
type pendingCalls struct {
	mu      sync.Mutex
	waiting map[string]chan callResult
}

func newPendingCalls() *pendingCalls {
	return &pendingCalls{waiting: make(map[string]chan callResult)}
}

// add registers a correlation and returns the channel its reply arrives on.
func (p *pendingCalls) add(correlation string) <-chan callResult {
	ch := make(chan callResult, 1)
	p.mu.Lock()
	p.waiting[correlation] = ch
	p.mu.Unlock()
	return ch
}

// resolve delivers the reply for a correlation. Returns false when nobody is
// waiting anymore.
func (p *pendingCalls) resolve(correlation string, payload []byte, err error) bool {
	p.mu.Lock()
	ch, ok := p.waiting[correlation]
	if ok {
		delete(p.waiting, correlation)
	}
	p.mu.Unlock()

	if !ok {
		return false
	}
	ch <- callResult{payload: payload, err: err}
	return true
}

// drop abandons a correlation, typically after a timeout.
func (p *pendingCalls) drop(correlation string) {
	p.mu.Lock()
	delete(p.waiting, correlation)
	p.mu.Unlock()
}

// failAll resolves every outstanding call with the same error, used on peer
// shutdown.
func (p *pendingCalls) failAll(err error) {
	p.mu.Lock()
	waiting := p.waiting
	p.waiting = make(map[string]chan callResult)
	p.mu.Unlock()

	for _, ch := range waiting {
		ch <- callResult{err: err}
	}
}

// Len returns the number of outstanding calls.
func (p *pendingCalls) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiting)
}
