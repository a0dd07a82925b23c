package service

import (
	"log/slog"

	"go.uber.org/fx"
)

var Module = fx.Module("service",
	fx.Provide(NewChatService),

	// Every consumer sees the timing-instrumented service.
	fx.Decorate(func(orig Chatter, logger *slog.Logger) Chatter {
		return NewChatMiddleware(orig, logger)
	}),
)
