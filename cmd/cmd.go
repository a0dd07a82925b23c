package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/courierchat/courier/config"
)

const ServiceName = "courier"

func Run() error {
	app := &cli.App{
		Name:  ServiceName,
		Usage: "Replicated chat service cluster",
		Commands: []*cli.Command{
			serverCmd(),
			clientCmd(),
		},
	}

	return app.Run(os.Args)
}

func serverCmd() *cli.Command {
	return &cli.Command{
		Name:    "server",
		Aliases: []string{"s"},
		Usage:   "Run one chat server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "ip",
				Usage:    "Address this server binds and advertises",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "port",
				Usage: "Port this server binds and advertises",
				Value: "5001",
			},
			&cli.StringFlag{
				Name:  "ip_connect",
				Usage: "Bootstrap server address; with port_connect, join its cluster",
			},
			&cli.StringFlag{
				Name:  "port_connect",
				Usage: "Bootstrap server port",
			},
			&cli.StringFlag{
				Name:  "config_file",
				Usage: "Path to the configuration file",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.String("config_file"))
			if err != nil {
				return err
			}
			cfg.IP = c.String("ip")
			cfg.Port = c.String("port")
			cfg.BootstrapIP = c.String("ip_connect")
			cfg.BootstrapPort = c.String("port_connect")

			app := NewApp(cfg)
			if err := app.Start(c.Context); err != nil {
				return err
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			slog.Info("shutting down")
			return app.Stop(context.Background())
		},
	}
}

func clientCmd() *cli.Command {
	return &cli.Command{
		Name:    "client",
		Aliases: []string{"c"},
		Usage:   "Run the interactive chat client",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "ip",
				Usage:    "Preferred server address",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "port",
				Usage: "Preferred server port",
				Value: "5001",
			},
			&cli.StringFlag{
				Name:  "config_file",
				Usage: "Path to the configuration file",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.String("config_file"))
			if err != nil {
				return err
			}
			cfg.IP = c.String("ip")
			cfg.Port = c.String("port")
			return runClient(c.Context, cfg)
		},
	}
}
