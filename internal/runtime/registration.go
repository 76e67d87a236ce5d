package runtime

import (
	"context"

	errspkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/errors"
	handlerpkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/handlers"
	jsoncodec "github.com/Michael--/electron-ipc-sub002/internal/runtime/jsoncodec"
)

// Raw registration surface of the main process. Handlers registered here
// answer frames from any window; per-window addressing happens on the
// sending side.

// RegisterInvoke installs a raw request handler on an invoke channel.
func (s *Service) RegisterInvoke(channel string, handler HandlerFunc) error {
	return s.dispatcher.Register(NamespaceInvoke, channel, handler)
}

// RegisterEvent installs a raw consumer on an event channel.
func (s *Service) RegisterEvent(channel string, handler EventHandlerFunc) error {
	return s.dispatcher.Register(NamespaceEvent, channel, handler)
}

// RegisterUpload installs the receiver for a client-to-main chunk stream.
func (s *Service) RegisterUpload(channel string, handler UploadHandlerFunc) error {
	if handler == nil {
		return errspkg.ErrHandlerRequired
	}
	return s.dispatcher.Register(NamespaceStream, channel, streamHandler{
		direction: DirectionUpload,
		upload:    handler,
	})
}

// RegisterDownload installs the producer for a main-to-client chunk stream.
func (s *Service) RegisterDownload(channel string, handler DownloadHandlerFunc) error {
	if handler == nil {
		return errspkg.ErrHandlerRequired
	}
	return s.dispatcher.Register(NamespaceStream, channel, streamHandler{
		direction: DirectionDownload,
		download:  handler,
	})
}

// RegisterStreamInvoke installs the producer for a request whose reply is a
// stream of chunks.
func (s *Service) RegisterStreamInvoke(channel string, handler DownloadHandlerFunc) error {
	if handler == nil {
		return errspkg.ErrHandlerRequired
	}
	return s.dispatcher.Register(NamespaceStream, channel, streamHandler{
		direction: DirectionInvoke,
		download:  handler,
	})
}

// InvokeRegistration wires a typed request handler to an invoke channel.
type InvokeRegistration[T any, O any] struct {
	Channel   string
	Handler   handlerpkg.InvokeHandler[T, O]
	Validator handlerpkg.Validator
}

// EventRegistration wires a typed consumer to an event channel.
type EventRegistration[T any] struct {
	Channel   string
	Handler   handlerpkg.EventHandler[T]
	Validator handlerpkg.Validator
}

// RegisterInvokeHandler converts the typed handler into a raw handler and
// registers it on the service.
func RegisterInvokeHandler[T any, O any](svc *Service, cfg InvokeRegistration[T, O]) error {
	if svc == nil {
		return errspkg.ErrServiceRequired
	}

	raw, err := handlerpkg.BuildInvokeHandler(cfg.Handler, cfg.Validator, svc.Logger)
	if err != nil {
		return err
	}
	return svc.RegisterInvoke(cfg.Channel, rawInvokeAdapter(raw))
}

// RegisterEventHandler converts the typed handler into a raw handler and
// registers it on the service.
func RegisterEventHandler[T any](svc *Service, cfg EventRegistration[T]) error {
	if svc == nil {
		return errspkg.ErrServiceRequired
	}

	raw, err := handlerpkg.BuildEventHandler(cfg.Handler, cfg.Validator, svc.Logger)
	if err != nil {
		return err
	}
	return svc.RegisterEvent(cfg.Channel, rawEventAdapter(raw))
}

// RegisterClientInvokeHandler registers a typed handler answering
// main-to-renderer and routed requests on the client.
func RegisterClientInvokeHandler[T any, O any](c *Client, cfg InvokeRegistration[T, O]) error {
	if c == nil {
		return errspkg.ErrClientRequired
	}

	raw, err := handlerpkg.BuildInvokeHandler(cfg.Handler, cfg.Validator, c.Logger)
	if err != nil {
		return err
	}
	return c.HandleInvoke(cfg.Channel, rawInvokeAdapter(raw))
}

// RegisterBroadcastHandler subscribes the client to a broadcast channel with
// a typed consumer.
func RegisterBroadcastHandler[T any](c *Client, cfg EventRegistration[T]) error {
	if c == nil {
		return errspkg.ErrClientRequired
	}

	raw, err := handlerpkg.BuildEventHandler(cfg.Handler, cfg.Validator, c.Logger)
	if err != nil {
		return err
	}
	return c.OnBroadcast(cfg.Channel, rawEventAdapter(raw))
}

func rawInvokeAdapter(raw handlerpkg.RawInvoke) HandlerFunc {
	return func(ctx context.Context, call *Call) ([]byte, error) {
		return raw(ctx, call.Payload, call.Metadata, int64(call.Source))
	}
}

func rawEventAdapter(raw handlerpkg.RawEvent) EventHandlerFunc {
	return func(ctx context.Context, call *Call) error {
		return raw(ctx, call.Payload, call.Metadata, int64(call.Source))
	}
}

// InvokeJSON performs a typed request from the renderer side: the input is
// marshalled, the reply decoded into O. Typed errors from the main process
// come back as their envelope reconstructions.
func InvokeJSON[T any, O any](c *Client, ctx context.Context, channel string, in T) (O, error) {
	var out O
	if c == nil {
		return out, errspkg.ErrClientRequired
	}

	payload, err := jsoncodec.Marshal(in)
	if err != nil {
		return out, err
	}
	resp, err := c.Invoke(ctx, channel, payload)
	if err != nil {
		return out, err
	}
	if err := jsoncodec.Unmarshal(resp, &out); err != nil {
		return out, err
	}
	return out, nil
}

// InvokeWindowJSON performs a typed request from the main process to one
// renderer window.
func InvokeWindowJSON[T any, O any](svc *Service, ctx context.Context, id WindowID, channel string, in T) (O, error) {
	var out O
	if svc == nil {
		return out, errspkg.ErrServiceRequired
	}

	payload, err := jsoncodec.Marshal(in)
	if err != nil {
		return out, err
	}
	resp, err := svc.InvokeWindow(ctx, id, channel, payload)
	if err != nil {
		return out, err
	}
	if err := jsoncodec.Unmarshal(resp, &out); err != nil {
		return out, err
	}
	return out, nil
}

// BroadcastJSON marshals the payload and fans it out to every live window.
func BroadcastJSON[T any](svc *Service, ctx context.Context, channel string, in T) error {
	if svc == nil {
		return errspkg.ErrServiceRequired
	}
	payload, err := jsoncodec.Marshal(in)
	if err != nil {
		return err
	}
	return svc.BroadcastToAll(ctx, channel, payload)
}
