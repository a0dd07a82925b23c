package bus

import (
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/fx"
)

var Module = fx.Module("bus",
	fx.Provide(
		NewPubSub,
		NewRouter,
		func(ps *gochannel.GoChannel) message.Subscriber { return ps },
		func(ps *gochannel.GoChannel) Dispatcher { return NewDispatcher(ps) },
	),
)
