package typedipc

import (
	"context"

	runtimepkg "github.com/Michael--/electron-ipc-sub002/internal/runtime"
	configpkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/config"
	envelopepkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/envelope"
	errspkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/errors"
	handlerpkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/handlers"
	idspkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/ids"
	jsoncodec "github.com/Michael--/electron-ipc-sub002/internal/runtime/jsoncodec"
	loggingpkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/logging"
	metadatapkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/metadata"
	transportpkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/transport"
	bridges "github.com/Michael--/electron-ipc-sub002/transport"
)

type (
	Config              = configpkg.Config
	Service             = runtimepkg.Service
	ServiceDependencies = runtimepkg.ServiceDependencies
	Client              = runtimepkg.Client
	ClientDependencies  = runtimepkg.ClientDependencies
	Transport           = transportpkg.Transport
	TransportFactory    = transportpkg.Factory

	Namespace = runtimepkg.Namespace
	Call      = runtimepkg.Call

	HandlerFunc         = runtimepkg.HandlerFunc
	EventHandlerFunc    = runtimepkg.EventHandlerFunc
	UploadHandlerFunc   = runtimepkg.UploadHandlerFunc
	DownloadHandlerFunc = runtimepkg.DownloadHandlerFunc

	InvokeRegistration[T any, O any] = runtimepkg.InvokeRegistration[T, O]
	EventRegistration[T any]         = runtimepkg.EventRegistration[T]
	InvokeContext[T any]             = handlerpkg.InvokeContext[T]
	EventContext[T any]              = handlerpkg.EventContext[T]
	InvokeHandler[T any, O any]      = handlerpkg.InvokeHandler[T, O]
	EventHandler[T any]              = handlerpkg.EventHandler[T]
	MessageContextBase               = handlerpkg.MessageContextBase
	Validator                        = handlerpkg.Validator

	WindowID         = runtimepkg.WindowID
	WindowDescriptor = runtimepkg.WindowDescriptor
	WindowRegistry   = runtimepkg.WindowRegistry
	RouteTarget      = runtimepkg.RouteTarget

	StreamDirection = runtimepkg.StreamDirection
	StreamState     = runtimepkg.StreamState
	StreamReader    = runtimepkg.StreamReader
	ChunkWriter     = runtimepkg.ChunkWriter
	Upload          = runtimepkg.Upload

	Middleware             = runtimepkg.Middleware
	MiddlewareBuilder      = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration = runtimepkg.MiddlewareRegistration
	CallInfo               = runtimepkg.CallInfo
	CallHooks              = runtimepkg.CallHooks

	Inspector    = runtimepkg.Inspector
	Span         = runtimepkg.Span
	SpanHandle   = runtimepkg.SpanHandle
	SpanKind     = runtimepkg.SpanKind
	SpanStatus   = runtimepkg.SpanStatus
	Flow         = runtimepkg.Flow
	ChannelInfo  = runtimepkg.ChannelInfo
	ChannelStats = runtimepkg.ChannelStats

	Envelope        = envelopepkg.Envelope
	EnvelopeKind    = envelopepkg.Kind
	Issue           = envelopepkg.Issue
	ValidationError = envelopepkg.ValidationError
	HandlerError    = envelopepkg.HandlerError
	GenericError    = envelopepkg.GenericError

	TargetNotFoundError     = errspkg.TargetNotFoundError
	TargetUnresponsiveError = errspkg.TargetUnresponsiveError
	SequenceError           = errspkg.SequenceError

	Metadata = metadatapkg.Metadata

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	ResourceUsage = runtimepkg.ResourceUsage

	// Modular bridge types
	BridgeBuilder      = bridges.Builder
	BridgeConfig       = bridges.Config
	BridgeRegistry     = bridges.Registry
	BridgeCapabilities = bridges.Capabilities
)

const (
	NamespaceInvoke    = runtimepkg.NamespaceInvoke
	NamespaceEvent     = runtimepkg.NamespaceEvent
	NamespaceBroadcast = runtimepkg.NamespaceBroadcast
	NamespaceStream    = runtimepkg.NamespaceStream

	DirectionUpload   = runtimepkg.DirectionUpload
	DirectionDownload = runtimepkg.DirectionDownload
	DirectionInvoke   = runtimepkg.DirectionInvoke

	StreamOpen      = runtimepkg.StreamOpen
	StreamClosed    = runtimepkg.StreamClosed
	StreamErrored   = runtimepkg.StreamErrored
	StreamCancelled = runtimepkg.StreamCancelled

	SpanInvoke         = runtimepkg.SpanInvoke
	SpanEvent          = runtimepkg.SpanEvent
	SpanBroadcast      = runtimepkg.SpanBroadcast
	SpanStreamUpload   = runtimepkg.SpanStreamUpload
	SpanStreamDownload = runtimepkg.SpanStreamDownload
	SpanStreamInvoke   = runtimepkg.SpanStreamInvoke

	FlowMainToRenderer     = runtimepkg.FlowMainToRenderer
	FlowRendererToMain     = runtimepkg.FlowRendererToMain
	FlowRendererToRenderer = runtimepkg.FlowRendererToRenderer

	TopicMain = runtimepkg.TopicMain

	MetadataKeyCorrelationID = runtimepkg.MetadataKeyCorrelationID
	MetadataKeyWindowID      = runtimepkg.MetadataKeyWindowID
	MetadataKeyChannel       = runtimepkg.MetadataKeyChannel
)

var (
	NewService = runtimepkg.NewService
	NewClient  = runtimepkg.NewClient

	DefaultMiddlewares      = runtimepkg.DefaultMiddlewares
	CorrelationIDMiddleware = runtimepkg.CorrelationIDMiddleware
	LogCallsMiddleware      = runtimepkg.LogCallsMiddleware
	TracerMiddleware        = runtimepkg.TracerMiddleware
	MetricsMiddleware       = runtimepkg.MetricsMiddleware
	RecovererMiddleware     = runtimepkg.RecovererMiddleware
	CallHooksMiddleware     = runtimepkg.CallHooksMiddleware
	LoggingHooks            = runtimepkg.LoggingHooks
	AlertingHooks           = runtimepkg.AlertingHooks

	WindowTopic = runtimepkg.WindowTopic

	SerializeError   = envelopepkg.Serialize
	DeserializeError = envelopepkg.Deserialize
	EncodeEnvelope   = envelopepkg.Encode
	DecodeEnvelope   = envelopepkg.Decode

	// Modular bridge registry. Import individual bridges via
	// _ "github.com/Michael--/electron-ipc-sub002/transport/channel" or call
	// nats.Register from transport/nats.
	DefaultBridgeRegistry = bridges.DefaultRegistry
	RegisterBridge        = bridges.Register
	BuildBridge           = bridges.Build
	FixedTransport        = transportpkg.Fixed

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	Decode        = jsoncodec.Decode

	ErrServiceRequired     = errspkg.ErrServiceRequired
	ErrClientRequired      = errspkg.ErrClientRequired
	ErrHandlerRequired     = errspkg.ErrHandlerRequired
	ErrChannelRequired     = errspkg.ErrChannelRequired
	ErrConfigRequired      = errspkg.ErrConfigRequired
	ErrLoggerRequired      = errspkg.ErrLoggerRequired
	ErrNoHandler           = errspkg.ErrNoHandler
	ErrServiceClosed       = errspkg.ErrServiceClosed
	ErrStreamClosed        = errspkg.ErrStreamClosed
	ErrStreamCancelled     = errspkg.ErrStreamCancelled
	ErrStreamErrored       = errspkg.ErrStreamErrored
	ErrRouteTargetRequired = errspkg.ErrRouteTargetRequired

	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger

	NewMetadata = metadatapkg.New

	CreateULID = idspkg.CreateULID
)

// RegisterInvokeHandler registers a typed request handler on the main
// process.
func RegisterInvokeHandler[T any, O any](svc *Service, cfg InvokeRegistration[T, O]) error {
	return runtimepkg.RegisterInvokeHandler(svc, cfg)
}

// RegisterEventHandler registers a typed event consumer on the main process.
func RegisterEventHandler[T any](svc *Service, cfg EventRegistration[T]) error {
	return runtimepkg.RegisterEventHandler(svc, cfg)
}

// RegisterClientInvokeHandler registers a typed handler answering requests
// addressed to a renderer window.
func RegisterClientInvokeHandler[T any, O any](c *Client, cfg InvokeRegistration[T, O]) error {
	return runtimepkg.RegisterClientInvokeHandler(c, cfg)
}

// RegisterBroadcastHandler subscribes a renderer window to a broadcast
// channel with a typed consumer.
func RegisterBroadcastHandler[T any](c *Client, cfg EventRegistration[T]) error {
	return runtimepkg.RegisterBroadcastHandler(c, cfg)
}

// InvokeJSON performs a typed renderer-to-main request.
func InvokeJSON[T any, O any](c *Client, ctx context.Context, channel string, in T) (O, error) {
	return runtimepkg.InvokeJSON[T, O](c, ctx, channel, in)
}

// InvokeWindowJSON performs a typed main-to-renderer request.
func InvokeWindowJSON[T any, O any](svc *Service, ctx context.Context, id WindowID, channel string, in T) (O, error) {
	return runtimepkg.InvokeWindowJSON[T, O](svc, ctx, id, channel, in)
}

// BroadcastJSON marshals a payload and fans it out to every live window.
func BroadcastJSON[T any](svc *Service, ctx context.Context, channel string, in T) error {
	return runtimepkg.BroadcastJSON(svc, ctx, channel, in)
}
