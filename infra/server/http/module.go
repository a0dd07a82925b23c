package http

import (
	"log/slog"
	"net"

	"go.uber.org/fx"

	"github.com/courierchat/courier/config"
	"github.com/courierchat/courier/infra/metrics"
	"github.com/courierchat/courier/internal/cluster"
	"github.com/courierchat/courier/internal/transport"
)

var Module = fx.Module("http_server",
	fx.Provide(
		func(logger *slog.Logger, cfg *config.Config, mux *transport.Mux, m *cluster.Membership, mt *metrics.Metrics) *Server {
			return NewServer(logger, net.JoinHostPort(cfg.IP, cfg.Port), mux, m, mt)
		},
	),
)
