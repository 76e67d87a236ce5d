package transport

// Capabilities describes the features supported by a bridge backend. Use this
// to introspect what delivery guarantees are available at runtime.
type Capabilities struct {
	// CrossProcess indicates the bridge can connect peers in different OS
	// processes. When false, main and renderer peers must share a process.
	CrossProcess bool

	// SupportsOrdering indicates the bridge guarantees per-topic delivery
	// order. Stream sequencing relies on the engine's own seq numbers either
	// way, but ordered bridges surface sequence violations as hard protocol
	// errors rather than reordering artifacts.
	SupportsOrdering bool

	// SupportsAck indicates the bridge supports explicit message
	// acknowledgment.
	SupportsAck bool

	// SupportsTracing indicates the bridge propagates tracing headers
	// natively.
	SupportsTracing bool

	// MaxMessageSize is the maximum frame size in bytes (0 = unlimited or
	// unknown). Stream chunks larger than this must be split by the caller.
	MaxMessageSize int64

	// Name is the human-readable name of the bridge.
	Name string

	// Version is the transport/driver version.
	Version string
}

// InProcessOnly reports whether the bridge is restricted to a single process.
func (c Capabilities) InProcessOnly() bool {
	return !c.CrossProcess
}

// Predefined capability sets for the built-in bridges.
var (
	// ChannelCapabilities for the in-memory Go channel bridge.
	ChannelCapabilities = Capabilities{
		Name:             "channel",
		CrossProcess:     false,
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsTracing:  false,
	}

	// NATSCapabilities for the NATS Core bridge.
	NATSCapabilities = Capabilities{
		Name:             "nats",
		CrossProcess:     true,
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsTracing:  true,
	}
)
