package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"go.uber.org/fx"

	"github.com/courierchat/courier/config"
	"github.com/courierchat/courier/infra/metrics"
	httpsrv "github.com/courierchat/courier/infra/server/http"
	"github.com/courierchat/courier/internal/auth"
	"github.com/courierchat/courier/internal/bus"
	"github.com/courierchat/courier/internal/cluster"
	"github.com/courierchat/courier/internal/domain/model"
	"github.com/courierchat/courier/internal/domain/registry"
	rpchandler "github.com/courierchat/courier/internal/handler/rpc"
	"github.com/courierchat/courier/internal/service"
	"github.com/courierchat/courier/internal/storage"
)

func NewApp(cfg *config.Config) *fx.App {
	return fx.New(
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
			ProvideSelf,
			ProvideStore,
			auth.NewService,
			metrics.New,
		),
		registry.Module,
		service.Module,
		bus.Module,
		cluster.Module,
		rpchandler.Module,
		httpsrv.Module,
		fx.Invoke(run),
	)
}

func ProvideLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)
	return logger
}

// ProvideSelf mints this server's cluster identity. A fresh id per process
// keeps the minimum-id election free of address collisions across restarts.
func ProvideSelf(cfg *config.Config) model.PeerInfo {
	return model.PeerInfo{
		ID:   uuid.NewString(),
		IP:   cfg.IP,
		Port: cfg.Port,
	}
}

func ProvideStore(logger *slog.Logger, cfg *config.Config) (*storage.Store, error) {
	return storage.Open(logger, cfg.Data.Dir, cfg.IP, cfg.Port)
}

// run ties the pieces to the process lifecycle: bind the listener, take or
// join a cluster, then start the heartbeat and the bus router.
func run(
	lc fx.Lifecycle,
	logger *slog.Logger,
	cfg *config.Config,
	srv *httpsrv.Server,
	m *cluster.Membership,
	hb *cluster.Heartbeat,
	router *message.Router,
	ps *gochannel.GoChannel,
	store *storage.Store,
) {
	runCtx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := srv.Start(ctx); err != nil {
				cancel()
				return fmt.Errorf("bind %s: %w", net.JoinHostPort(cfg.IP, cfg.Port), err)
			}

			if cfg.BootstrapIP != "" && cfg.BootstrapPort != "" {
				boot := net.JoinHostPort(cfg.BootstrapIP, cfg.BootstrapPort)
				if err := cluster.Join(ctx, logger, m, boot); err != nil {
					return err
				}
			} else {
				cluster.Lead(m)
			}

			go func() {
				if err := router.Run(runCtx); err != nil {
					logger.Error("bus router stopped", "err", err)
				}
			}()
			go hb.Run(runCtx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			err := srv.Stop(ctx)
			m.Shutdown()
			ps.Close()
			store.Close()
			return err
		},
	})
}
