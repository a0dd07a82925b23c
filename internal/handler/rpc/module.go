package rpc

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/courierchat/courier/config"
	"github.com/courierchat/courier/infra/metrics"
	"github.com/courierchat/courier/internal/cluster"
	"github.com/courierchat/courier/internal/domain/registry"
	"github.com/courierchat/courier/internal/service"
	"github.com/courierchat/courier/internal/transport"
)

var Module = fx.Module("rpc",
	fx.Provide(
		transport.NewMux,
		func(
			logger *slog.Logger,
			chat service.Chatter,
			hub *registry.Hub,
			m *cluster.Membership,
			r *cluster.Replicator,
			mt *metrics.Metrics,
			cfg *config.Config,
		) *Handler {
			return NewHandler(logger, chat, hub, m, r, mt, cfg.Probe.Timeout)
		},
	),
	fx.Invoke(func(h *Handler, mux *transport.Mux) {
		h.Register(mux)
	}),
)
