package cluster

import (
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/fx"

	"github.com/courierchat/courier/config"
	"github.com/courierchat/courier/infra/metrics"
	"github.com/courierchat/courier/internal/bus"
)

var Module = fx.Module("cluster",
	fx.Provide(
		NewMembership,
		func(m *Membership, d bus.Dispatcher, logger *slog.Logger, mt *metrics.Metrics, cfg *config.Config) (*Replicator, error) {
			// Per-peer fan-out calls are bounded by the heartbeat interval
			// so a dead peer cannot stall a replication round.
			return NewReplicator(m, d, logger, mt, cfg.Heartbeat.Interval)
		},
		func(m *Membership, logger *slog.Logger, cfg *config.Config) *Heartbeat {
			return NewHeartbeat(m, logger, cfg.Heartbeat.Interval, cfg.FailAfter(), cfg.Probe.Timeout)
		},
	),
	// Consumers must be bound before the router starts.
	fx.Invoke(func(r *Replicator, router *message.Router, sub message.Subscriber) {
		r.RegisterHandlers(router, sub)
	}),
)
