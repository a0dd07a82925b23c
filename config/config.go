// Package config loads the process configuration: defaults, an optional
// courier.yaml, and the CLI flag overrides applied by cmd. The client side
// watches the file so server-list edits take effect without a restart.
package config

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

type HeartbeatConfig struct {
	// Interval between probe rounds; also the per-peer fan-out timeout.
	Interval time.Duration `mapstructure:"interval"`
	// FailFactor times Interval without a heartbeat marks a peer failed.
	FailFactor int `mapstructure:"fail_factor"`
}

type ProbeConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type HubConfig struct {
	MailboxSize int `mapstructure:"mailbox_size"`
}

type DataConfig struct {
	Dir string `mapstructure:"dir"`
}

type ClientConfig struct {
	// Servers is the preference-ordered failover list, "host:port" each.
	Servers    []string      `mapstructure:"servers"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

type Config struct {
	// Filled from CLI flags, not the file.
	IP            string `mapstructure:"-"`
	Port          string `mapstructure:"-"`
	BootstrapIP   string `mapstructure:"-"`
	BootstrapPort string `mapstructure:"-"`

	Heartbeat HeartbeatConfig `mapstructure:"heartbeat"`
	Probe     ProbeConfig     `mapstructure:"probe"`
	Hub       HubConfig       `mapstructure:"hub"`
	Data      DataConfig      `mapstructure:"data"`
	Client    ClientConfig    `mapstructure:"client"`

	mu sync.Mutex
	v  *viper.Viper
}

// FailAfter is the silence window after which a peer is declared failed.
func (c *Config) FailAfter() time.Duration {
	return c.Heartbeat.Interval * time.Duration(c.Heartbeat.FailFactor)
}

// LoadConfig reads defaults, then the config file if one exists. An explicit
// path that cannot be read is an error; a missing default courier.yaml is not.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("heartbeat.interval", time.Second)
	v.SetDefault("heartbeat.fail_factor", 3)
	v.SetDefault("probe.timeout", 2*time.Second)
	v.SetDefault("hub.mailbox_size", 256)
	v.SetDefault("data.dir", ".")
	v.SetDefault("client.servers", []string{})
	v.SetDefault("client.retry_delay", 3*time.Second)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else {
		v.SetConfigName("courier")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: read courier.yaml: %w", err)
			}
		}
	}

	cfg := &Config{v: v}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}

// Watch re-reads the file on every change and hands the fresh snapshot to
// onChange. Used by the client connector to pick up server-list edits.
func (c *Config) Watch(onChange func(*Config)) {
	c.v.OnConfigChange(func(_ fsnotify.Event) {
		c.mu.Lock()
		defer c.mu.Unlock()

		fresh := &Config{
			IP:            c.IP,
			Port:          c.Port,
			BootstrapIP:   c.BootstrapIP,
			BootstrapPort: c.BootstrapPort,
			v:             c.v,
		}
		if err := c.v.Unmarshal(fresh); err != nil {
			return
		}
		onChange(fresh)
	})
	c.v.WatchConfig()
}
