package transport

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/Michael--/electron-ipc-sub002/internal/runtime/config"
	bridges "github.com/Michael--/electron-ipc-sub002/transport"

	// Import the built-in bridge packages to register them.
	_ "github.com/Michael--/electron-ipc-sub002/transport/channel"
)

// Transport combines a publisher and subscriber pair produced by a factory.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Factory abstracts how the runtime initialises its bridge transport.
type Factory interface {
	Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error)
}

// DefaultFactory returns the built-in factory that uses the modular bridge
// registry. The NATS bridge is not linked in by default; import
// transport/nats and call its Register before building a "nats" config.
func DefaultFactory() Factory {
	return defaultFactory{}
}

type defaultFactory struct{}

func (defaultFactory) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
	if conf == nil {
		return Transport{}, fmt.Errorf("config is required")
	}

	t, err := bridges.Build(ctx, conf, logger)
	if err != nil {
		return Transport{}, err
	}

	return Transport{
		Publisher:  t.Publisher,
		Subscriber: t.Subscriber,
	}, nil
}

// Fixed returns a Factory that always yields the supplied pair. Used when
// both peers must share one in-memory bridge instance.
func Fixed(t bridges.Transport) Factory {
	return fixedFactory{t: t}
}

type fixedFactory struct {
	t bridges.Transport
}

func (f fixedFactory) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
	return Transport{Publisher: f.t.Publisher, Subscriber: f.t.Subscriber}, nil
}
