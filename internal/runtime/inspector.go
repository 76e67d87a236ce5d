package runtime

import (
	"sync"
	"time"

	configpkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/config"
	"github.com/Michael--/electron-ipc-sub002/internal/runtime/ids"
	"github.com/Michael--/electron-ipc-sub002/internal/runtime/jsoncodec"
	loggingpkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/logging"
)

// SpanKind classifies what a traced exchange was.
type SpanKind string

const (
	SpanInvoke         SpanKind = "invoke"
	SpanEvent          SpanKind = "event"
	SpanBroadcast      SpanKind = "broadcast"
	SpanStreamUpload   SpanKind = "stream-upload"
	SpanStreamDownload SpanKind = "stream-download"
	SpanStreamInvoke   SpanKind = "stream-invoke"
	SpanRoute          SpanKind = "route"
)

// SpanStatus is the terminal outcome of a span. Pending spans live only in
// their handle; the inspector stores finalized spans exclusively.
type SpanStatus string

const (
	SpanPending SpanStatus = "pending"
	SpanOK      SpanStatus = "ok"
	SpanError   SpanStatus = "error"
)

// Flow names the direction an exchange travelled.
type Flow string

const (
	FlowMainToRenderer     Flow = "main->renderer"
	FlowRendererToMain     Flow = "renderer->main"
	FlowRendererToRenderer Flow = "renderer->renderer"
)

// Span is one finalized traced exchange. Payload fields honor the configured
// capture mode and may be nil.
type Span struct {
	ID          string     `json:"id"`
	Kind        SpanKind   `json:"kind"`
	Namespace   string     `json:"namespace"`
	Channel     string     `json:"channel"`
	Correlation string     `json:"correlation_id,omitempty"`
	WindowID    WindowID   `json:"window_id,omitempty"`
	Flow        Flow       `json:"flow"`
	Status      SpanStatus `json:"status"`
	Error       string     `json:"error,omitempty"`
	Request     []byte     `json:"request,omitempty"`
	Response    []byte     `json:"response,omitempty"`
	Chunks      int64      `json:"chunks,omitempty"`
	Bytes       int64      `json:"bytes,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     time.Time  `json:"ended_at"`
	DurationNs  int64      `json:"duration_ns"`
}

// SpanHandle is the mutable in-flight side of a span. It is owned by the
// goroutine serving the exchange until End, which publishes the finalized
// span to the inspector. End is idempotent; only the first call records.
type SpanHandle struct {
	inspector *Inspector
	span      Span
	once      sync.Once
}

// SetResponse attaches the reply payload, subject to the capture mode.
func (h *SpanHandle) SetResponse(payload []byte) {
	if h == nil {
		return
	}
	h.span.Response = h.inspector.capture(payload)
}

// AddChunk accounts one stream chunk against the span.
func (h *SpanHandle) AddChunk(n int) {
	if h == nil {
		return
	}
	h.span.Chunks++
	h.span.Bytes += int64(n)
}

// End finalizes the span with the outcome of the exchange and hands it to
// the inspector ring. A nil error finalizes as ok.
func (h *SpanHandle) End(err error) {
	if h == nil || h.inspector == nil {
		return
	}
	h.once.Do(func() {
		h.span.EndedAt = time.Now().UTC()
		h.span.DurationNs = h.span.EndedAt.Sub(h.span.StartedAt).Nanoseconds()
		if err != nil {
			h.span.Status = SpanError
			h.span.Error = err.Error()
		} else {
			h.span.Status = SpanOK
		}
		h.inspector.record(h.span)
	})
}

// Inspector keeps the most recent finalized spans in a fixed-size ring and
// fans them out to live subscribers. When disabled every operation is a
// no-op so call sites never branch.
type Inspector struct {
	mu          sync.Mutex
	spans       []Span
	next        int
	filled      int
	payloadMode string
	subscribers map[int64]chan Span
	nextSubID   int64
	logger      loggingpkg.ServiceLogger
	enabled     bool
}

// NewInspector constructs an inspector per the runtime configuration. When
// tracing is disabled the returned inspector discards everything.
func NewInspector(conf *configpkg.Config, logger loggingpkg.ServiceLogger) *Inspector {
	if logger == nil {
		logger = loggingpkg.NewNopLogger()
	}
	if conf == nil || !conf.InspectorEnabled {
		return &Inspector{logger: logger}
	}
	return &Inspector{
		spans:       make([]Span, conf.EffectiveInspectorMaxEvents()),
		payloadMode: conf.EffectiveInspectorPayloadMode(),
		subscribers: make(map[int64]chan Span),
		logger:      logger,
		enabled:     true,
	}
}

// Enabled reports whether the inspector records anything at all.
func (i *Inspector) Enabled() bool {
	return i != nil && i.enabled
}

// Begin opens a span for an exchange. The returned handle must be finalized
// with End exactly once; when tracing is disabled Begin returns a handle
// whose End discards.
func (i *Inspector) Begin(kind SpanKind, flow Flow, namespace, channel, correlation string, window WindowID, request []byte) *SpanHandle {
	if !i.Enabled() {
		return nil
	}
	return &SpanHandle{
		inspector: i,
		span: Span{
			ID:          ids.CreateULID(),
			Kind:        kind,
			Namespace:   namespace,
			Channel:     channel,
			Correlation: correlation,
			WindowID:    window,
			Flow:        flow,
			Status:      SpanPending,
			Request:     i.capture(request),
			StartedAt:   time.Now().UTC(),
		},
	}
}

// capture applies the payload mode to an exchange payload.
func (i *Inspector) capture(payload []byte) []byte {
	if !i.Enabled() || payload == nil {
		return nil
	}
	switch i.payloadMode {
	case configpkg.PayloadModeNone:
		return nil
	case configpkg.PayloadModeRedacted:
		redacted, err := jsoncodec.Marshal(map[string]int{"redacted_bytes": len(payload)})
		if err != nil {
			return nil
		}
		return redacted
	default:
		captured := make([]byte, len(payload))
		copy(captured, payload)
		return captured
	}
}

// record appends a finalized span, evicting the oldest when the ring is
// full, and fans it out to subscribers without ever blocking the caller.
func (i *Inspector) record(span Span) {
	if !i.Enabled() {
		return
	}

	i.mu.Lock()
	if len(i.spans) > 0 {
		i.spans[i.next] = span
		i.next = (i.next + 1) % len(i.spans)
		if i.filled < len(i.spans) {
			i.filled++
		}
	}
	subs := make([]chan Span, 0, len(i.subscribers))
	for _, ch := range i.subscribers {
		subs = append(subs, ch)
	}
	i.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- span:
		default:
		}
	}
}

// Snapshot returns the retained spans oldest-first.
func (i *Inspector) Snapshot() []Span {
	if !i.Enabled() {
		return nil
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	out := make([]Span, 0, i.filled)
	if i.filled < len(i.spans) {
		out = append(out, i.spans[:i.filled]...)
		return out
	}
	out = append(out, i.spans[i.next:]...)
	out = append(out, i.spans[:i.next]...)
	return out
}

// Subscribe registers a live span feed. Slow consumers lose spans rather
// than stalling dispatch. The returned cancel func releases the feed.
func (i *Inspector) Subscribe(buffer int) (<-chan Span, func()) {
	if !i.Enabled() {
		ch := make(chan Span)
		close(ch)
		return ch, func() {}
	}
	if buffer <= 0 {
		buffer = 32
	}
	ch := make(chan Span, buffer)

	i.mu.Lock()
	id := i.nextSubID
	i.nextSubID++
	i.subscribers[id] = ch
	i.mu.Unlock()

	cancel := func() {
		i.mu.Lock()
		if _, ok := i.subscribers[id]; ok {
			delete(i.subscribers, id)
			close(ch)
		}
		i.mu.Unlock()
	}
	return ch, cancel
}
