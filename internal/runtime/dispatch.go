package runtime

import (
	"context"
	"sync"
	"time"

	errspkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/errors"
	jsoncodec "github.com/Michael--/electron-ipc-sub002/internal/runtime/jsoncodec"
	loggingpkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/logging"
	metadatapkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/metadata"
)

// Namespace identifies one of the four call patterns. Channel names are
// unique within a namespace, not globally: an invoke channel and an event
// channel may share a name without conflict.
type Namespace string

const (
	NamespaceInvoke    Namespace = "invoke"
	NamespaceEvent     Namespace = "event"
	NamespaceBroadcast Namespace = "broadcast"
	NamespaceStream    Namespace = "stream"
)

// Call carries one decoded request to a raw handler.
type Call struct {
	Namespace Namespace
	Channel   string
	Payload   []byte
	Metadata  metadatapkg.Metadata
	Source    WindowID
}

// HandlerFunc answers an invoke call with a response payload.
type HandlerFunc func(ctx context.Context, call *Call) ([]byte, error)

// EventHandlerFunc consumes a fire-and-forget event or broadcast.
type EventHandlerFunc func(ctx context.Context, call *Call) error

// UploadHandlerFunc consumes a client-to-server chunk stream.
type UploadHandlerFunc func(ctx context.Context, up *Upload) error

// DownloadHandlerFunc produces a server-to-client chunk stream. The same
// shape serves plain downloads and stream-invokes; only the session keying
// differs.
type DownloadHandlerFunc func(ctx context.Context, call *Call, w *ChunkWriter) error

// streamHandler binds a stream channel to the one shape it serves. The open
// frame's direction must match or the session is refused.
type streamHandler struct {
	direction StreamDirection
	upload    UploadHandlerFunc
	download  DownloadHandlerFunc
}

type handlerKey struct {
	ns      Namespace
	channel string
}

// Dispatcher owns the handler tables for all four namespaces. Handler values
// are validated against their namespace at registration time, not at call
// time. At most one handler exists per (namespace, channel); registering
// twice replaces the prior handler and logs a conflict.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[handlerKey]any
	stats    map[handlerKey]*ChannelStats
	logger   loggingpkg.ServiceLogger
}

// NewDispatcher constructs an empty dispatcher.
func NewDispatcher(logger loggingpkg.ServiceLogger) *Dispatcher {
	if logger == nil {
		logger = loggingpkg.NewNopLogger()
	}
	return &Dispatcher{
		handlers: make(map[handlerKey]any),
		stats:    make(map[handlerKey]*ChannelStats),
		logger:   logger,
	}
}

// Register installs a handler for (namespace, channel). The handler value
// must match the namespace: HandlerFunc for invoke, EventHandlerFunc for
// event and broadcast, streamHandler shapes for stream. A duplicate
// registration warns and overwrites; it is never silent and never fatal.
func (d *Dispatcher) Register(ns Namespace, channel string, handler any) error {
	if channel == "" {
		return errspkg.ErrChannelRequired
	}
	if handler == nil {
		return errspkg.ErrHandlerRequired
	}
	if err := checkHandlerShape(ns, handler); err != nil {
		return err
	}

	key := handlerKey{ns: ns, channel: channel}

	d.mu.Lock()
	_, duplicate := d.handlers[key]
	d.handlers[key] = handler
	if _, ok := d.stats[key]; !ok {
		d.stats[key] = newChannelStats(ns, channel)
	}
	d.mu.Unlock()

	if duplicate {
		d.logger.Error("Duplicate handler registration, replacing prior handler", nil, loggingpkg.LogFields{
			"namespace": string(ns),
			"channel":   channel,
		})
	}
	return nil
}

func checkHandlerShape(ns Namespace, handler any) error {
	switch ns {
	case NamespaceInvoke:
		if _, ok := handler.(HandlerFunc); !ok {
			return errspkg.ErrHandlerRequired
		}
	case NamespaceEvent, NamespaceBroadcast:
		if _, ok := handler.(EventHandlerFunc); !ok {
			return errspkg.ErrHandlerRequired
		}
	case NamespaceStream:
		if _, ok := handler.(streamHandler); !ok {
			return errspkg.ErrHandlerRequired
		}
	default:
		return errspkg.ErrHandlerRequired
	}
	return nil
}

// LookupInvoke resolves the invoke handler for a channel.
func (d *Dispatcher) LookupInvoke(channel string) (HandlerFunc, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[handlerKey{ns: NamespaceInvoke, channel: channel}].(HandlerFunc)
	return h, ok
}

// LookupEvent resolves the event handler for a channel.
func (d *Dispatcher) LookupEvent(channel string) (EventHandlerFunc, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[handlerKey{ns: NamespaceEvent, channel: channel}].(EventHandlerFunc)
	return h, ok
}

// LookupBroadcast resolves the broadcast subscriber for a channel.
func (d *Dispatcher) LookupBroadcast(channel string) (EventHandlerFunc, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[handlerKey{ns: NamespaceBroadcast, channel: channel}].(EventHandlerFunc)
	return h, ok
}

func (d *Dispatcher) lookupStream(channel string) (streamHandler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[handlerKey{ns: NamespaceStream, channel: channel}].(streamHandler)
	return h, ok
}

// StatsFor returns the stats record for a channel, creating it on demand.
func (d *Dispatcher) StatsFor(ns Namespace, channel string) *ChannelStats {
	key := handlerKey{ns: ns, channel: channel}
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.stats[key]
	if !ok {
		st = newChannelStats(ns, channel)
		d.stats[key] = st
	}
	return st
}

// Channels returns a snapshot of all registered channels with their stats,
// for the diagnostics API.
func (d *Dispatcher) Channels() []ChannelInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	infos := make([]ChannelInfo, 0, len(d.stats))
	for key, st := range d.stats {
		infos = append(infos, ChannelInfo{
			Namespace: key.ns,
			Channel:   key.channel,
			Stats:     st,
		})
	}
	return infos
}

// ChannelInfo pairs a channel identity with its live stats.
type ChannelInfo struct {
	Namespace Namespace     `json:"namespace"`
	Channel   string        `json:"channel"`
	Stats     *ChannelStats `json:"stats"`
}

// ChannelStats accumulates per-channel dispatch counters. All fields are
// guarded by the embedded mutex; MarshalJSON snapshots under the lock.
type ChannelStats struct {
	mu sync.Mutex `json:"-"`

	Namespace Namespace `json:"namespace"`
	Channel   string    `json:"channel"`

	CallsProcessed  uint64    `json:"calls_processed"`
	CallsFailed     uint64    `json:"calls_failed"`
	InFlight        uint64    `json:"in_flight"`
	LastDurationNs  int64     `json:"last_duration_ns"`
	TotalDurationNs int64     `json:"total_duration_ns"`
	LastProcessedAt time.Time `json:"last_processed_at"`
	LastError       string    `json:"last_error,omitempty"`
}

func newChannelStats(ns Namespace, channel string) *ChannelStats {
	return &ChannelStats{Namespace: ns, Channel: channel}
}

func (c *ChannelStats) onCallStart() {
	c.mu.Lock()
	c.InFlight++
	c.mu.Unlock()
}

func (c *ChannelStats) onCallFinish(duration time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.InFlight > 0 {
		c.InFlight--
	}
	c.CallsProcessed++
	if err != nil {
		c.CallsFailed++
		c.LastError = err.Error()
	}
	c.LastDurationNs = int64(duration)
	c.TotalDurationNs += int64(duration)
	c.LastProcessedAt = time.Now().UTC()
}

func (c *ChannelStats) MarshalJSON() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	type Alias ChannelStats
	return jsoncodec.Marshal((*Alias)(c))
}

// wrapWithStats surrounds an invoke handler with stats accounting.
func wrapWithStats(handler HandlerFunc, stats *ChannelStats) HandlerFunc {
	return func(ctx context.Context, call *Call) ([]byte, error) {
		stats.onCallStart()
		start := time.Now()
		resp, err := handler(ctx, call)
		stats.onCallFinish(time.Since(start), err)
		return resp, err
	}
}
