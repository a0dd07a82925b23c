// Package bus is the in-process event pipeline: a watermill gochannel
// Pub/Sub plus the router that drives background consumers (replication
// fan-out). Publishing decouples request handlers from the fan-out work,
// which is best-effort by contract.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Topics carried on the bus.
const (
	// TopicReplicate carries leader-side fan-out jobs, one per
	// client-acknowledged write.
	TopicReplicate = "cluster.replicate.v1"
)

// NewPubSub builds the in-process Pub/Sub shared by publishers and the
// router.
func NewPubSub(logger *slog.Logger) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 256,
	}, watermill.NewSlogLogger(logger))
}

// NewRouter builds the consumer router with the shared middleware chain.
func NewRouter(logger *slog.Logger) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{}, watermill.NewSlogLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("bus: build router: %w", err)
	}
	router.AddMiddleware(
		middleware.Recoverer,
		middleware.Timeout(30*time.Second),
	)
	return router, nil
}

// Dispatcher is the high-level publish contract; consumers stay agnostic of
// the transport underneath.
type Dispatcher interface {
	Publish(ctx context.Context, topic string, v any) error
}

type dispatcher struct {
	publisher message.Publisher
}

func NewDispatcher(pub message.Publisher) Dispatcher {
	return &dispatcher{publisher: pub}
}

func (d *dispatcher) Publish(ctx context.Context, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("bus: marshal for %s: %w", topic, err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	if err := d.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("bus: publish to %s: %w", topic, err)
	}
	return nil
}
