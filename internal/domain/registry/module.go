package registry

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/courierchat/courier/config"
)

var Module = fx.Module("registry",
	fx.Provide(
		func(logger *slog.Logger, cfg *config.Config) *Hub {
			return NewHub(logger, WithMailboxSize(cfg.Hub.MailboxSize))
		},
	),
	fx.Invoke(func(lc fx.Lifecycle, h *Hub) {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				h.Shutdown()
				return nil
			},
		})
	}),
)
