package cmd

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/courierchat/courier/config"
)

func TestServerCmdFailsOnUnreadableConfig(t *testing.T) {
	app := &cli.App{Commands: []*cli.Command{serverCmd()}}

	err := app.Run([]string{
		"courier", "server",
		"--ip", "127.0.0.1",
		"--config_file", filepath.Join(t.TempDir(), "absent.yaml"),
	})
	// The error must surface to main, which exits non-zero on it.
	require.Error(t, err)
}

func TestServerCmdRequiresIP(t *testing.T) {
	app := &cli.App{Commands: []*cli.Command{serverCmd()}}
	require.Error(t, app.Run([]string{"courier", "server"}))
}

func TestClientCmdRequiresIP(t *testing.T) {
	app := &cli.App{Commands: []*cli.Command{clientCmd()}}
	require.Error(t, app.Run([]string{"courier", "client"}))
}

func TestClientServersPrefersFlagAddress(t *testing.T) {
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	cfg.IP = "10.0.0.9"
	cfg.Port = "5001"
	cfg.Client.Servers = []string{"10.0.0.1:5001", "10.0.0.9:5001"}

	servers := clientServers(cfg)
	require.Equal(t, []string{"10.0.0.9:5001", "10.0.0.1:5001"}, servers)
}
