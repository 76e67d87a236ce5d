package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	configpkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/config"
	envelopepkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/envelope"
	errspkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/errors"
	idspkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/ids"
	loggingpkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/logging"
	transportpkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/transport"
)

// RouteTarget addresses another renderer window, either exactly by id or by
// role. Exactly one field should be set.
type RouteTarget struct {
	ID   WindowID
	Role string
}

// ClientDependencies holds the optional collaborators of a Client.
type ClientDependencies struct {
	TransportFactory transportpkg.Factory
}

// Client is the renderer-process side of the IPC runtime. One Client serves
// one window: it sends requests toward the main process and answers the
// requests, events, and streams addressed to its window topic.
type Client struct {
	Conf     *configpkg.Config
	Logger   loggingpkg.ServiceLogger
	WindowID WindowID
	Role     string

	publisher  message.Publisher
	subscriber message.Subscriber

	dispatcher *Dispatcher
	streams    *streamEngine
	pending    *pendingCalls

	ready     chan struct{}
	readyOnce sync.Once
	closed    chan struct{}
	closeOnce sync.Once
}

// NewClient constructs the runtime peer for one renderer window. The window
// must already be registered on the Service side before Start consumes the
// window topic.
func NewClient(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, id WindowID, role string, deps ClientDependencies) *Client {
	if conf == nil {
		panic(errspkg.ErrConfigRequired)
	}
	if log == nil {
		panic(errspkg.ErrLoggerRequired)
	}
	if id == 0 {
		panic(errspkg.ErrWindowRequired)
	}

	wmLogger := loggingpkg.NewWatermillAdapter(log)
	log.Info("Creating IPC client", loggingpkg.LogFields{
		"window_id": int64(id),
		"role":      role,
		"bridge":    conf.Bridge,
	})

	c := &Client{
		Conf:       conf,
		Logger:     log,
		WindowID:   id,
		Role:       role,
		dispatcher: NewDispatcher(log),
		streams:    newStreamEngine(conf, log, nil),
		pending:    newPendingCalls(),
		ready:      make(chan struct{}),
		closed:     make(chan struct{}),
	}

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
	c.publisher = transport.Publisher
	c.subscriber = transport.Subscriber

	return c
}

// Start consumes the window topic until the context is cancelled.
func (c *Client) Start(ctx context.Context) error {
	topic := WindowTopic(c.WindowID)
	messages, err := c.subscriber.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}

	c.readyOnce.Do(func() { close(c.ready) })
	go c.streams.runReaper(ctx)

	defer func() {
		c.closeOnce.Do(func() { close(c.closed) })
		c.pending.failAll(errspkg.ErrServiceClosed)
		c.streams.closeAll(errspkg.ErrServiceClosed)
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
				c.Logger.Error("Dropping malformed frame", err, nil)
				continue
			}
			c.demux(ctx, f)
		}
	}
}

func (c *Client) demux(ctx context.Context, f frame) {
	switch f.Type {
	case frameRequest, frameRoute:
		go c.handleInvoke(ctx, f)
	case frameEvent:
		go c.handleEvent(ctx, f)
	case frameBroadcast:
		go c.handleBroadcast(ctx, f)
	case frameReply:
		c.resolveReply(f)
	case frameChunk:
		if session, ok := c.streams.get(f.StreamID); ok {
			session.onChunk(f.Seq, f.Payload)
		}
	case frameEnd:
		if session, ok := c.streams.get(f.StreamID); ok {
			session.onEnd()
		}
	case frameError:
		if session, ok := c.streams.get(f.StreamID); ok {
			session.onError(f.Payload)
		}
	case frameCancel:
		if session, ok := c.streams.get(f.StreamID); ok {
			session.onCancel()
		}
	case framePause:
		if session, ok := c.streams.get(f.StreamID); ok {
			session.onPause()
		}
	case frameResume:
		if session, ok := c.streams.get(f.StreamID); ok {
			session.onResume()
		}
	default:
		c.Logger.Error("Dropping frame of unknown type", nil, loggingpkg.LogFields{
			"frame": f.describe(),
		})
	}
}

// Ready is closed once Start has subscribed to the window topic.
func (c *Client) Ready() <-chan struct{} {
	return c.ready
}

// resolveReply completes an outstanding call. Handler envelopes carrying
// router codes come back as their typed errors.
func (c *Client) resolveReply(f frame) {
	var err error
	payload := f.Payload
	if f.Status == statusError {
		err = reconstructRouteError(envelopepkg.Deserialize(envelopepkg.Decode(f.Payload)))
		payload = nil
	}
	if !c.pending.resolve(f.Correlation, payload, err) {
		c.Logger.Debug("Dropping reply for unknown correlation", loggingpkg.LogFields{
			"correlation_id": f.Correlation,
			"channel":        f.Channel,
		})
	}
}

// handleInvoke answers a request addressed to this window, whether it came
// from the main process or was relayed from another renderer. The reply goes
// to the main topic either way; for relayed requests the broker forwards it.
func (c *Client) handleInvoke(ctx context.Context, f frame) {
	handler, ok := c.dispatcher.LookupInvoke(f.Channel)
	if !ok {
		c.replyError(f, fmt.Errorf("%w: invoke %q", errspkg.ErrNoHandler, f.Channel))
		return
	}

	stats := c.dispatcher.StatsFor(NamespaceInvoke, f.Channel)
	wrapped := wrapWithStats(handler, stats)

	resp, err := wrapped(ctx, callFromFrame(NamespaceInvoke, f))
	if err != nil {
		c.replyError(f, err)
		return
	}
	c.reply(frame{
		Type:        frameReply,
		Namespace:   NamespaceInvoke,
		Channel:     f.Channel,
		Correlation: f.Correlation,
		Window:      c.WindowID,
		Status:      statusOK,
		Payload:     resp,
	})
}

func (c *Client) replyError(f frame, err error) {
	payload, encErr := envelopepkg.Encode(envelopepkg.Serialize(err))
	if encErr != nil {
		payload = nil
	}
	c.reply(frame{
		Type:        frameReply,
		Namespace:   NamespaceInvoke,
		Channel:     f.Channel,
		Correlation: f.Correlation,
		Window:      c.WindowID,
		Status:      statusError,
		Payload:     payload,
	})
}

func (c *Client) reply(f frame) {
	if err := c.publish(f); err != nil {
		c.Logger.Error("Failed to publish reply", err, loggingpkg.LogFields{"channel": f.Channel})
	}
}

func (c *Client) handleEvent(ctx context.Context, f frame) {
	handler, ok := c.dispatcher.LookupEvent(f.Channel)
	if !ok {
		c.Logger.Debug("Dropping event without handler", loggingpkg.LogFields{"channel": f.Channel})
		return
	}
	if err := handler(ctx, callFromFrame(NamespaceEvent, f)); err != nil {
		c.Logger.Error("Event handler failed", err, loggingpkg.LogFields{"channel": f.Channel})
	}
}

// handleBroadcast delivers a fan-out event. A window without a subscription
// for the channel drops the frame silently, that is the normal case for
// broadcasts not every window cares about.
func (c *Client) handleBroadcast(ctx context.Context, f frame) {
	handler, ok := c.dispatcher.LookupBroadcast(f.Channel)
	if !ok {
		return
	}
	if err := handler(ctx, callFromFrame(NamespaceBroadcast, f)); err != nil {
		c.Logger.Error("Broadcast handler failed", err, loggingpkg.LogFields{"channel": f.Channel})
	}
}

// Invoke sends a request to the main process and waits for the reply.
func (c *Client) Invoke(ctx context.Context, channel string, payload []byte) ([]byte, error) {
	if channel == "" {
		return nil, errspkg.ErrChannelRequired
	}
	return c.await(ctx, frame{
		Type:      frameRequest,
		Namespace: NamespaceInvoke,
		Channel:   channel,
		Window:    c.WindowID,
		Payload:   payload,
	})
}

// InvokeRenderer sends a request to another renderer window through the main
// process. Target resolution happens on the broker; a missing target comes
// back as TargetNotFoundError, a silent one as TargetUnresponsiveError.
func (c *Client) InvokeRenderer(ctx context.Context, target RouteTarget, channel string, payload []byte) ([]byte, error) {
	if channel == "" {
		return nil, errspkg.ErrChannelRequired
	}
	if target.ID == 0 && target.Role == "" {
		return nil, errspkg.ErrRouteTargetRequired
	}
	return c.await(ctx, frame{
		Type:       frameRoute,
		Namespace:  NamespaceInvoke,
		Channel:    channel,
		Window:     c.WindowID,
		TargetID:   int64(target.ID),
		TargetRole: target.Role,
		Payload:    payload,
	})
}

func (c *Client) await(ctx context.Context, f frame) ([]byte, error) {
	f.Correlation = idspkg.CreateULID()
	reply := c.pending.add(f.Correlation)

	if err := c.publish(f); err != nil {
		c.pending.drop(f.Correlation)
		return nil, err
	}

	timeout := c.Conf.EffectiveRouteTimeout()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-reply:
		return res.payload, res.err
	case <-timer.C:
		c.pending.drop(f.Correlation)
		return nil, &errspkg.TargetUnresponsiveError{TargetID: 0, Channel: f.Channel, Timeout: timeout}
	case <-ctx.Done():
		c.pending.drop(f.Correlation)
		return nil, ctx.Err()
	case <-c.closed:
		return nil, errspkg.ErrServiceClosed
	}
}

// Emit sends a fire-and-forget event to the main process.
func (c *Client) Emit(ctx context.Context, channel string, payload []byte) error {
	if channel == "" {
		return errspkg.ErrChannelRequired
	}
	return c.publish(frame{
		Type:      frameEvent,
		Namespace: NamespaceEvent,
		Channel:   channel,
		Window:    c.WindowID,
		Payload:   payload,
	})
}

// HandleInvoke registers the handler answering main-to-renderer and routed
// requests on a channel.
func (c *Client) HandleInvoke(channel string, handler HandlerFunc) error {
	return c.dispatcher.Register(NamespaceInvoke, channel, handler)
}

// OnEvent registers the consumer for main-to-renderer events on a channel.
func (c *Client) OnEvent(channel string, handler EventHandlerFunc) error {
	return c.dispatcher.Register(NamespaceEvent, channel, handler)
}

// OnBroadcast subscribes this window to a broadcast channel.
func (c *Client) OnBroadcast(channel string, handler EventHandlerFunc) error {
	return c.dispatcher.Register(NamespaceBroadcast, channel, handler)
}

// Upload opens a client-to-main chunk stream and returns its writer. The
// main process must have an upload handler registered on the channel; a
// missing handler fails the stream asynchronously through the writer.
func (c *Client) Upload(ctx context.Context, channel string) (*ChunkWriter, error) {
	if channel == "" {
		return nil, errspkg.ErrChannelRequired
	}

	id := idspkg.CreateULID()
	session := c.streams.newSession(id, channel, DirectionUpload, c.WindowID, false, c.streamSender(), nil)

	err := c.publish(frame{
		Type:      frameOpen,
		Namespace: NamespaceStream,
		Channel:   channel,
		Window:    c.WindowID,
		StreamID:  id,
		Direction: DirectionUpload,
	})
	if err != nil {
		session.fail(err, false)
		return nil, err
	}
	return &ChunkWriter{s: session}, nil
}

// Download opens a main-to-client chunk stream for the given request and
// returns its reader.
func (c *Client) Download(ctx context.Context, channel string, payload []byte) (*StreamReader, error) {
	return c.openReceiving(channel, DirectionDownload, payload)
}

// StreamInvoke sends a request whose reply is a stream of chunks instead of
// a single payload.
func (c *Client) StreamInvoke(ctx context.Context, channel string, payload []byte) (*StreamReader, error) {
	return c.openReceiving(channel, DirectionInvoke, payload)
}

func (c *Client) openReceiving(channel string, direction StreamDirection, payload []byte) (*StreamReader, error) {
	if channel == "" {
		return nil, errspkg.ErrChannelRequired
	}

	id := idspkg.CreateULID()
	session := c.streams.newSession(id, channel, direction, c.WindowID, true, c.streamSender(), nil)

	err := c.publish(frame{
		Type:      frameOpen,
		Namespace: NamespaceStream,
		Channel:   channel,
		Window:    c.WindowID,
		StreamID:  id,
		Direction: direction,
		Payload:   payload,
	})
	if err != nil {
		session.fail(err, false)
		return nil, err
	}
	return &StreamReader{s: session}, nil
}

func (c *Client) streamSender() frameSender {
	return func(f frame) error {
		f.Window = c.WindowID
		return c.publish(f)
	}
}

func (c *Client) publish(f frame) error {
	return c.publisher.Publish(TopicMain, newFrameMessage(f))
}

// Close releases the transport. Outstanding calls fail with
// ErrServiceClosed via the demux loop teardown.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	if err := c.subscriber.Close(); err != nil {
		return err
	}
	return c.publisher.Close()
}
