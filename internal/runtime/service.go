package runtime

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"

	configpkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/config"
	envelopepkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/envelope"
	errspkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/errors"
	idspkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/ids"
	loggingpkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/logging"
	metadatapkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/metadata"
	transportpkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/transport"
)

// ServiceDependencies holds the optional collaborators of a Service. Leave
// fields nil to take the defaults.
type ServiceDependencies struct {
	Middlewares               []MiddlewareRegistration // Appended after the default middleware chain.
	DisableDefaultMiddlewares bool                     // Skips registering the default middleware chain when true.
	TransportFactory          transportpkg.Factory
	Hooks                     CallHooks
	MetricsRegistry           prometheus.Registerer // Defaults to the global registry.
}

// Service is the main-process side of the IPC runtime. It owns the window
// registry, the handler tables, the stream engine, and the renderer router,
// and demultiplexes every frame arriving on the main topic.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	publisher  message.Publisher
	subscriber message.Subscriber

	dispatcher *Dispatcher
	windows    *WindowRegistry
	streams    *streamEngine
	pending    *pendingCalls
	inspector  *Inspector

	middlewares   []Middleware
	middlewaresMu sync.Mutex

	metrics     *dispatchMetrics
	metricsOnce sync.Once
	metricsReg  prometheus.Registerer

	httpServers   map[int]*http.ServeMux
	httpServersMu sync.Mutex

	resourceTracker *resourceTracker
	startedAt       time.Time
	ready           chan struct{}
	readyOnce       sync.Once
	closed          chan struct{}
	closeOnce       sync.Once
}

// NewService constructs the main-process runtime for the supplied
// configuration. Register handlers on the returned Service before calling
// Start. Construction failures panic: a process without its IPC runtime has
// nothing to fall back to.
func NewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps ServiceDependencies) *Service {
	if conf == nil {
		panic(errspkg.ErrConfigRequired)
	}
	if log == nil {
		panic(errspkg.ErrLoggerRequired)
	}

	wmLogger := loggingpkg.NewWatermillAdapter(log)
	log.Info("Creating IPC service", loggingpkg.LogFields{
		"bridge": conf.Bridge,
		"config": conf,
	})

	s := &Service{
		Conf:            conf,
		Logger:          log,
		dispatcher:      NewDispatcher(log),
		windows:         NewWindowRegistry(log),
		pending:         newPendingCalls(),
		inspector:       NewInspector(conf, log),
		metricsReg:      deps.MetricsRegistry,
		resourceTracker: newResourceTracker(),
		ready:           make(chan struct{}),
		closed:          make(chan struct{}),
	}

	var metrics *dispatchMetrics
	if conf.MetricsEnabled {
		metrics = s.getMetrics()
	}
	s.streams = newStreamEngine(conf, log, metrics)

	factory := deps.TransportFactory
	if factory == nil {
		factory = transportpkg.DefaultFactory()
	}
	transport, err := factory.Build(ctx, conf, wmLogger)
	if err != nil {
		panic(err)
	}
	if transport.Publisher == nil {
		panic(errspkg.ErrPublisherRequired)
	}
	s.publisher = transport.Publisher
	s.subscriber = transport.Subscriber

	s.registerConfiguredMiddlewares(deps)

	return s
}

func (s *Service) registerConfiguredMiddlewares(deps ServiceDependencies) {
	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(deps.Middlewares)+1)
	registrations = append(registrations, defaults...)
	if deps.Hooks.OnCallStart != nil || deps.Hooks.OnCallDone != nil || deps.Hooks.OnCallError != nil {
		registrations = append(registrations, CallHooksMiddleware(deps.Hooks))
	}
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := s.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			panic(fmt.Sprintf("failed to register middleware %s: %v", name, err))
		}
	}
}

func (s *Service) getMetrics() *dispatchMetrics {
	s.metricsOnce.Do(func() {
		reg := s.metricsReg
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		s.metrics = newDispatchMetrics(reg)
	})
	return s.metrics
}

func (s *Service) getResourceTracker() *resourceTracker {
	if s.resourceTracker == nil {
		s.resourceTracker = newResourceTracker()
	}
	return s.resourceTracker
}

// Windows exposes the window registry for host integration.
func (s *Service) Windows() *WindowRegistry {
	return s.windows
}

// Inspector exposes the span buffer for live tooling.
func (s *Service) Inspector() *Inspector {
	return s.inspector
}

// RegisterWindow adds a renderer window to the registry. Call it right after
// the host creates the window, before any frame from it can arrive.
func (s *Service) RegisterWindow(id WindowID, role string) *WindowDescriptor {
	return s.windows.Register(id, role)
}

// UnregisterWindow removes a window and tears down every stream bound to it.
// Call it synchronously with the window's close notification.
func (s *Service) UnregisterWindow(id WindowID) bool {
	ok := s.windows.Unregister(id)
	if ok {
		s.streams.closeForWindow(id, errspkg.ErrStreamErrored)
	}
	return ok
}

// Start consumes the main topic until the context is cancelled. It launches
// the diagnostics servers and the stream reaper, then runs the demux loop on
// the calling goroutine.
func (s *Service) Start(ctx context.Context) error {
	if s.Conf.InspectorOpenOnStart {
		s.StartInspectorServer()
	}
	s.startHTTPServers()

	messages, err := s.subscriber.Subscribe(ctx, TopicMain)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", TopicMain, err)
	}

	s.startedAt = time.Now()
	s.readyOnce.Do(func() { close(s.ready) })
	go s.streams.runReaper(ctx)

	return s.run(ctx, messages)
}

// Ready is closed once Start has subscribed to the main topic. Frames
// published before that can be lost on non-persistent bridges, so hosts
// should gate renderer startup on it.
func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

func (s *Service) run(ctx context.Context, messages <-chan *message.Message) error {
	defer func() {
		s.closeOnce.Do(func() { close(s.closed) })
		s.pending.failAll(errspkg.ErrServiceClosed)
		s.streams.closeAll(errspkg.ErrServiceClosed)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			f, err := decodeFrame(msg)
			msg.Ack()
			if err != nil {
				s.Logger.Error("Dropping malformed frame", err, nil)
				continue
			}
			s.demux(ctx, f)
		}
	}
}

// demux routes one decoded frame. Stream traffic is handled inline so chunk
// ordering survives; request work runs on its own goroutine so a slow
// handler never stalls the loop.
func (s *Service) demux(ctx context.Context, f frame) {
	switch f.Type {
	case frameRequest:
		go s.handleInvoke(ctx, f)
	case frameEvent:
		go s.handleEvent(ctx, f)
	case frameRoute:
		go s.handleRoute(ctx, f)
	case frameReply:
		s.resolveReply(f)
	case frameOpen:
		s.handleStreamOpen(ctx, f)
	case frameChunk:
		if session, ok := s.streams.get(f.StreamID); ok {
			session.onChunk(f.Seq, f.Payload)
		}
	case frameEnd:
		if session, ok := s.streams.get(f.StreamID); ok {
			session.onEnd()
		}
	case frameError:
		if session, ok := s.streams.get(f.StreamID); ok {
			session.onError(f.Payload)
		}
	case frameCancel:
		if session, ok := s.streams.get(f.StreamID); ok {
			session.onCancel()
		}
	case framePause:
		if session, ok := s.streams.get(f.StreamID); ok {
			session.onPause()
		}
	case frameResume:
		if session, ok := s.streams.get(f.StreamID); ok {
			session.onResume()
		}
	default:
		s.Logger.Error("Dropping frame of unknown type", nil, loggingpkg.LogFields{
			"frame": f.describe(),
		})
	}
}

func (s *Service) resolveReply(f frame) {
	var err error
	payload := f.Payload
	if f.Status == statusError {
		err = envelopepkg.Deserialize(envelopepkg.Decode(f.Payload))
		payload = nil
	}
	if !s.pending.resolve(f.Correlation, payload, err) {
		s.Logger.Debug("Dropping reply for unknown correlation", loggingpkg.LogFields{
			"correlation_id": f.Correlation,
			"channel":        f.Channel,
		})
	}
}

func callFromFrame(ns Namespace, f frame) *Call {
	md := f.Extra.Clone()
	if md == nil {
		md = metadatapkg.Metadata{}
	}
	if f.Correlation != "" {
		md[MetadataKeyCorrelationID] = f.Correlation
	}
	return &Call{
		Namespace: ns,
		Channel:   f.Channel,
		Payload:   f.Payload,
		Metadata:  md,
		Source:    f.Window,
	}
}

func (s *Service) handleInvoke(ctx context.Context, f frame) {
	span := s.inspector.Begin(SpanInvoke, FlowRendererToMain, string(NamespaceInvoke), f.Channel, f.Correlation, f.Window, f.Payload)

	handler, ok := s.dispatcher.LookupInvoke(f.Channel)
	if !ok {
		err := fmt.Errorf("%w: invoke %q", errspkg.ErrNoHandler, f.Channel)
		s.replyError(f, err)
		span.End(err)
		return
	}

	stats := s.dispatcher.StatsFor(NamespaceInvoke, f.Channel)
	wrapped := wrapWithStats(s.applyMiddlewares(handler), stats)

	resp, err := wrapped(ctx, callFromFrame(NamespaceInvoke, f))
	if err != nil {
		s.replyError(f, err)
		span.End(err)
		return
	}

	span.SetResponse(resp)
	span.End(nil)
	s.replyToWindow(f.Window, frame{
		Type:        frameReply,
		Namespace:   NamespaceInvoke,
		Channel:     f.Channel,
		Correlation: f.Correlation,
		Status:      statusOK,
		Payload:     resp,
	})
}

func (s *Service) replyError(f frame, err error) {
	payload, encErr := envelopepkg.Encode(envelopepkg.Serialize(err))
	if encErr != nil {
		s.Logger.Error("Failed to encode error envelope", encErr, loggingpkg.LogFields{"channel": f.Channel})
		payload = nil
	}
	s.replyToWindow(f.Window, frame{
		Type:        frameReply,
		Namespace:   NamespaceInvoke,
		Channel:     f.Channel,
		Correlation: f.Correlation,
		Status:      statusError,
		Payload:     payload,
	})
}

func (s *Service) handleEvent(ctx context.Context, f frame) {
	span := s.inspector.Begin(SpanEvent, FlowRendererToMain, string(NamespaceEvent), f.Channel, f.Correlation, f.Window, f.Payload)

	handler, ok := s.dispatcher.LookupEvent(f.Channel)
	if !ok {
		// Events are fire-and-forget, zero consumers is a valid state.
		s.Logger.Debug("Dropping event without handler", loggingpkg.LogFields{"channel": f.Channel})
		span.End(nil)
		return
	}

	stats := s.dispatcher.StatsFor(NamespaceEvent, f.Channel)
	stats.onCallStart()
	start := time.Now()
	err := handler(ctx, callFromFrame(NamespaceEvent, f))
	stats.onCallFinish(time.Since(start), err)

	if err != nil {
		s.Logger.Error("Event handler failed", err, loggingpkg.LogFields{"channel": f.Channel})
	}
	span.End(err)
}

// InvokeWindow sends a request to one renderer window and waits for its
// reply. The wait is bounded by both the context and the route timeout;
// whichever ends first wins and the pending slot is released either way.
func (s *Service) InvokeWindow(ctx context.Context, id WindowID, channel string, payload []byte) ([]byte, error) {
	if channel == "" {
		return nil, errspkg.ErrChannelRequired
	}
	target, ok := s.windows.GetByID(id)
	if !ok {
		return nil, &errspkg.TargetNotFoundError{TargetID: int64(id)}
	}

	correlation := idspkg.CreateULID()
	span := s.inspector.Begin(SpanInvoke, FlowMainToRenderer, string(NamespaceInvoke), channel, correlation, id, payload)
	reply := s.pending.add(correlation)

	err := s.publish(target.Topic, frame{
		Type:        frameRequest,
		Namespace:   NamespaceInvoke,
		Channel:     channel,
		Correlation: correlation,
		Payload:     payload,
	})
	if err != nil {
		s.pending.drop(correlation)
		span.End(err)
		return nil, err
	}

	timeout := s.Conf.EffectiveRouteTimeout()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-reply:
		span.SetResponse(res.payload)
		span.End(res.err)
		return res.payload, res.err
	case <-timer.C:
		s.pending.drop(correlation)
		err := &errspkg.TargetUnresponsiveError{TargetID: int64(id), Channel: channel, Timeout: timeout}
		span.End(err)
		return nil, err
	case <-ctx.Done():
		s.pending.drop(correlation)
		span.End(ctx.Err())
		return nil, ctx.Err()
	case <-s.closed:
		span.End(errspkg.ErrServiceClosed)
		return nil, errspkg.ErrServiceClosed
	}
}

// EmitToWindow delivers a fire-and-forget event to one renderer window.
func (s *Service) EmitToWindow(ctx context.Context, id WindowID, channel string, payload []byte) error {
	if channel == "" {
		return errspkg.ErrChannelRequired
	}
	target, ok := s.windows.GetByID(id)
	if !ok {
		return &errspkg.TargetNotFoundError{TargetID: int64(id)}
	}
	return s.publish(target.Topic, frame{
		Type:      frameEvent,
		Namespace: NamespaceEvent,
		Channel:   channel,
		Payload:   payload,
	})
}

// BroadcastToAll fans an event out to every live window. Delivery is
// per-window best effort: one dead window never blocks the rest, and the
// returned error joins the individual failures.
func (s *Service) BroadcastToAll(ctx context.Context, channel string, payload []byte) error {
	return s.broadcast(ctx, channel, payload, s.windows.GetAll())
}

// BroadcastToRole fans an event out to every window registered under the
// role. Zero matching windows is a no-op, not an error.
func (s *Service) BroadcastToRole(ctx context.Context, role, channel string, payload []byte) error {
	return s.broadcast(ctx, channel, payload, s.windows.ByRole(role))
}

func (s *Service) broadcast(ctx context.Context, channel string, payload []byte, targets []*WindowDescriptor) error {
	if channel == "" {
		return errspkg.ErrChannelRequired
	}

	span := s.inspector.Begin(SpanBroadcast, FlowMainToRenderer, string(NamespaceBroadcast), channel, "", 0, payload)

	var errs []error
	for _, target := range targets {
		err := s.publish(target.Topic, frame{
			Type:      frameBroadcast,
			Namespace: NamespaceBroadcast,
			Channel:   channel,
			Payload:   payload,
		})
		s.metrics.broadcastDelivered(channel, err)
		if err != nil {
			s.Logger.Error("Broadcast delivery failed", err, loggingpkg.LogFields{
				"channel":   channel,
				"window_id": int64(target.ID),
			})
			errs = append(errs, fmt.Errorf("window %d: %w", target.ID, err))
		}
	}

	joined := joinErrors(errs)
	span.End(joined)
	return joined
}

func joinErrors(errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return fmt.Errorf("%d deliveries failed, first: %w", len(errs), errs[0])
	}
}

// handleStreamOpen admits a new stream session. Session creation happens
// inline on the demux loop so chunks arriving right behind the open frame
// find their session; the handler itself runs on its own goroutine.
func (s *Service) handleStreamOpen(ctx context.Context, f frame) {
	sh, ok := s.dispatcher.lookupStream(f.Channel)
	if !ok {
		s.refuseStream(f, fmt.Errorf("%w: stream %q", errspkg.ErrNoHandler, f.Channel))
		return
	}
	if sh.direction != f.Direction {
		s.refuseStream(f, fmt.Errorf("typedipc: stream %q is %s, got %s open", f.Channel, sh.direction, f.Direction))
		return
	}
	if _, exists := s.streams.get(f.StreamID); exists {
		s.refuseStream(f, fmt.Errorf("typedipc: stream id %s already open", f.StreamID))
		return
	}

	window := f.Window
	send := func(out frame) error {
		return s.publish(WindowTopic(window), out)
	}

	switch f.Direction {
	case DirectionUpload:
		span := s.inspector.Begin(SpanStreamUpload, FlowRendererToMain, string(NamespaceStream), f.Channel, f.StreamID, f.Window, nil)
		session := s.streams.newSession(f.StreamID, f.Channel, f.Direction, f.Window, true, send, span)
		upload := &Upload{
			Channel:  f.Channel,
			StreamID: f.StreamID,
			Source:   f.Window,
			Metadata: f.Extra.Clone(),
			reader:   &StreamReader{s: session},
		}
		go s.runUploadHandler(ctx, sh.upload, upload, session)

	case DirectionDownload, DirectionInvoke:
		kind := SpanStreamDownload
		if f.Direction == DirectionInvoke {
			kind = SpanStreamInvoke
		}
		span := s.inspector.Begin(kind, FlowMainToRenderer, string(NamespaceStream), f.Channel, f.StreamID, f.Window, f.Payload)
		session := s.streams.newSession(f.StreamID, f.Channel, f.Direction, f.Window, false, send, span)
		writer := &ChunkWriter{s: session}
		go s.runDownloadHandler(ctx, sh.download, callFromFrame(NamespaceStream, f), writer, session)

	default:
		s.refuseStream(f, fmt.Errorf("typedipc: unknown stream direction %q", f.Direction))
	}
}

func (s *Service) runUploadHandler(ctx context.Context, handler UploadHandlerFunc, upload *Upload, session *streamSession) {
	stats := s.dispatcher.StatsFor(NamespaceStream, upload.Channel)
	stats.onCallStart()
	start := time.Now()
	err := handler(ctx, upload)
	stats.onCallFinish(time.Since(start), err)

	if err != nil {
		session.fail(err, true)
	}
}

func (s *Service) runDownloadHandler(ctx context.Context, handler DownloadHandlerFunc, call *Call, writer *ChunkWriter, session *streamSession) {
	stats := s.dispatcher.StatsFor(NamespaceStream, call.Channel)
	stats.onCallStart()
	start := time.Now()
	err := handler(ctx, call, writer)
	stats.onCallFinish(time.Since(start), err)

	if err != nil {
		session.fail(err, true)
		return
	}
	// A handler that already closed or was cancelled makes this a no-op.
	_ = writer.Close()
}

func (s *Service) refuseStream(f frame, err error) {
	s.Logger.Error("Refusing stream open", err, loggingpkg.LogFields{
		"channel":   f.Channel,
		"stream_id": f.StreamID,
	})
	payload, encErr := envelopepkg.Encode(envelopepkg.Serialize(err))
	if encErr != nil {
		payload = nil
	}
	s.replyToWindow(f.Window, frame{
		Type:     frameError,
		Channel:  f.Channel,
		StreamID: f.StreamID,
		Payload:  payload,
	})
}

// RegisterHTTPHandler attaches a handler to the shared mux for a port. All
// handlers registered before Start are served together per port.
func (s *Service) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	if s.httpServers == nil {
		s.httpServers = make(map[int]*http.ServeMux)
	}

	mux, ok := s.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		s.httpServers[port] = mux
	}

	mux.Handle(pattern, handler)
}

func (s *Service) startHTTPServers() {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	for port, mux := range s.httpServers {
		addr := fmt.Sprintf(":%d", port)
		s.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": addr})
		go func(addr string, handler http.Handler) {
			if err := http.ListenAndServe(addr, handler); err != nil {
				s.Logger.Error("Failed to start HTTP server", err, loggingpkg.LogFields{"address": addr})
			}
		}(addr, mux)
	}
}

func (s *Service) publish(topic string, f frame) error {
	return s.publisher.Publish(topic, newFrameMessage(f))
}

// Close releases the transport. Outstanding calls fail with
// ErrServiceClosed via the demux loop teardown.
func (s *Service) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	if err := s.subscriber.Close(); err != nil {
		return err
	}
	return s.publisher.Close()
}
