// Package connector is the client-side failover layer: it owns the
// preference-ordered server list, keeps one live handle, probes it before
// every call and walks the list when the current server dies. Callers never
// see which server answered.
package connector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/courierchat/courier/internal/domain/model"
	"github.com/courierchat/courier/internal/transport"
	"github.com/courierchat/courier/pkg/wire"
)

type Connector struct {
	logger       *slog.Logger
	probeTimeout time.Duration

	// retry paces full-list discovery sweeps when no server answers.
	retry *rate.Limiter

	mu      sync.Mutex
	servers []string
	current *transport.Conn
}

func New(logger *slog.Logger, servers []string, probeTimeout, retryDelay time.Duration) *Connector {
	return &Connector{
		logger:       logger,
		probeTimeout: probeTimeout,
		retry:        rate.NewLimiter(rate.Every(retryDelay), 1),
		servers:      append([]string(nil), servers...),
	}
}

// UpdateServers swaps in a fresh preference list, typically from a config
// file change. The current handle survives until it fails a probe.
func (c *Connector) UpdateServers(servers []string) {
	c.mu.Lock()
	c.servers = append([]string(nil), servers...)
	c.mu.Unlock()
	c.logger.Info("server list updated", "servers", servers)
}

// Conn returns a handle that answered a probe just now. It blocks through
// rate-limited discovery sweeps until a server answers or ctx ends.
func (c *Connector) Conn(ctx context.Context) (*transport.Conn, error) {
	for {
		c.mu.Lock()
		current := c.current
		c.mu.Unlock()

		if current != nil && !current.Closed() && c.probe(ctx, current) {
			return current, nil
		}
		if current != nil {
			c.dropCurrent(current)
		}

		if conn := c.discover(ctx); conn != nil {
			return conn, nil
		}
		if err := c.retry.Wait(ctx); err != nil {
			return nil, err
		}
		c.logger.Warn("no server reachable, retrying discovery")
	}
}

// Invalidate discards the current handle; the next Conn call rediscovers.
func (c *Connector) Invalidate() {
	c.mu.Lock()
	current := c.current
	c.current = nil
	c.mu.Unlock()
	if current != nil {
		current.Close()
	}
}

// Close releases the current handle.
func (c *Connector) Close() {
	c.Invalidate()
}

// discover walks the preference list in order and installs the first server
// that answers a probe.
func (c *Connector) discover(ctx context.Context) *transport.Conn {
	c.mu.Lock()
	servers := append([]string(nil), c.servers...)
	c.mu.Unlock()

	for _, addr := range servers {
		dialCtx, cancel := context.WithTimeout(ctx, c.probeTimeout)
		conn, err := transport.Dial(dialCtx, addr)
		cancel()
		if err != nil {
			c.logger.Debug("server unreachable", "addr", addr, "err", err)
			continue
		}
		if !c.probe(ctx, conn) {
			conn.Close()
			continue
		}

		c.mu.Lock()
		if c.current != nil && !c.current.Closed() {
			// Lost the race with a concurrent discover.
			prior := c.current
			c.mu.Unlock()
			conn.Close()
			return prior
		}
		c.current = conn
		c.mu.Unlock()

		c.logger.Info("connected to server", "addr", addr)
		return conn
	}
	return nil
}

func (c *Connector) probe(ctx context.Context, conn *transport.Conn) bool {
	probeCtx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	var resp wire.HeartbeatResponse
	err := conn.Call(probeCtx, wire.OpHeartbeat, wire.HeartbeatRequest{
		RequestorID: wire.ClientRequestorID,
	}, &resp)
	return err == nil
}

func (c *Connector) dropCurrent(conn *transport.Conn) {
	c.mu.Lock()
	if c.current == conn {
		c.current = nil
	}
	c.mu.Unlock()
	conn.Close()
	c.logger.Warn("server handle dropped", "addr", conn.Addr())
}

// do runs one RPC with a single failover retry: if the call dies on a
// transport error, the handle is invalidated and the call repeated against
// whatever discovery finds next.
func (c *Connector) do(ctx context.Context, f func(conn *transport.Conn) error) error {
	conn, err := c.Conn(ctx)
	if err != nil {
		return err
	}
	if err := f(conn); err == nil || ctx.Err() != nil {
		return err
	}

	c.Invalidate()
	conn, err = c.Conn(ctx)
	if err != nil {
		return err
	}
	if err := f(conn); err != nil {
		return fmt.Errorf("%w: %v", model.ErrPeerUnreachable, err)
	}
	return nil
}
