// Package channel provides an in-memory Go channel bridge. This is the
// default transport for main and renderer peers hosted in a single process,
// and the harness used by the test suite.
package channel

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/Michael--/electron-ipc-sub002/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "channel"

// Factory allows overriding the channel creation for testing.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	pubSub := gochannel.NewGoChannel(cfg, logger)
	return pubSub, pubSub
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.ChannelCapabilities)
}

// Register registers the channel transport with the default registry. The
// init function already does this; Register exists so callers working with a
// fresh registry can re-attach it explicitly.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.ChannelCapabilities)
}

// Build creates a new Go channel bridge. All peers built from the same call
// share one pub/sub, which is what makes it an in-process boundary.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	pub, sub := Factory(gochannel.Config{}, logger)
	return transport.Transport{
		Publisher:  pub,
		Subscriber: sub,
	}, nil
}

// NewPair returns a shared in-memory bridge directly, bypassing the registry.
// Useful for embedding both ends in one binary or in tests.
func NewPair(logger watermill.LoggerAdapter) transport.Transport {
	pub, sub := Factory(gochannel.Config{}, logger)
	return transport.Transport{Publisher: pub, Subscriber: sub}
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.ChannelCapabilities
}
