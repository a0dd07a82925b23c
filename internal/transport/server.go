package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/courierchat/courier/pkg/wire"
)

const (
	// writeWait bounds a single frame write to a slow or dead socket.
	writeWait = 10 * time.Second
	// pongWait is how long the read side tolerates silence before the
	// socket is considered dead.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10

	outboundBuffer = 256
)

// ServerStream lets a stream handler push ITEM frames for one call.
type ServerStream struct {
	id   string
	ctx  context.Context
	send func(wire.Envelope) error
}

// Context is cancelled when the socket closes or the caller cancels the call.
func (s *ServerStream) Context() context.Context { return s.ctx }

// Send marshals v and yields it as the next stream item.
func (s *ServerStream) Send(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.send(wire.Envelope{ID: s.id, Kind: wire.KindItem, Payload: payload})
}

// serverConn owns one accepted socket: a read loop dispatching calls and a
// single writer draining the outbound channel.
type serverConn struct {
	ws     *websocket.Conn
	logger *slog.Logger
	mux    *Mux

	out chan wire.Envelope

	mu    sync.Mutex
	calls map[string]context.CancelFunc

	closed    chan struct{}
	closeOnce sync.Once
}

// Serve runs the RPC loops for one upgraded connection and blocks until the
// socket closes. Each incoming call is handled on its own goroutine.
func Serve(ctx context.Context, logger *slog.Logger, mux *Mux, ws *websocket.Conn) {
	c := &serverConn{
		ws:     ws,
		logger: logger,
		mux:    mux,
		out:    make(chan wire.Envelope, outboundBuffer),
		calls:  make(map[string]context.CancelFunc),
		closed: make(chan struct{}),
	}

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writePump()
	c.readPump(connCtx)

	c.shutdown()
}

func (c *serverConn) readPump(ctx context.Context) {
	defer c.shutdown()

	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("socket closed unexpectedly", "err", err)
			}
			return
		}

		var env wire.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Warn("undecodable frame dropped", "err", err)
			continue
		}

		switch env.Kind {
		case wire.KindRequest:
			go c.dispatch(ctx, env)
		case wire.KindCancel:
			c.cancelCall(env.ID)
		default:
			c.logger.Warn("unexpected frame kind", "kind", env.Kind, "op", env.Op)
		}
	}
}

func (c *serverConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case env, ok := <-c.out:
			if !ok {
				return
			}
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			data, err := json.Marshal(env)
			if err != nil {
				c.logger.Error("outbound envelope marshal failed", "op", env.Op, "err", err)
				continue
			}
			if err := c.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *serverConn) dispatch(ctx context.Context, env wire.Envelope) {
	callCtx, cancel := context.WithCancel(ctx)
	c.trackCall(env.ID, cancel)
	defer c.untrackCall(env.ID)

	if h, ok := c.mux.lookupUnary(env.Op); ok {
		res, err := h(callCtx, env.Payload)
		if err != nil {
			c.enqueue(wire.Envelope{ID: env.ID, Op: env.Op, Kind: wire.KindError, Error: err.Error()})
			return
		}
		payload, err := json.Marshal(res)
		if err != nil {
			c.enqueue(wire.Envelope{ID: env.ID, Op: env.Op, Kind: wire.KindError, Error: "internal marshalling failure"})
			return
		}
		c.enqueue(wire.Envelope{ID: env.ID, Op: env.Op, Kind: wire.KindResponse, Payload: payload})
		return
	}

	if h, ok := c.mux.lookupStream(env.Op); ok {
		stream := &ServerStream{id: env.ID, ctx: callCtx, send: c.enqueue}
		if err := h(callCtx, env.Payload, stream); err != nil {
			c.enqueue(wire.Envelope{ID: env.ID, Op: env.Op, Kind: wire.KindError, Error: err.Error()})
			return
		}
		c.enqueue(wire.Envelope{ID: env.ID, Op: env.Op, Kind: wire.KindEnd})
		return
	}

	c.enqueue(wire.Envelope{ID: env.ID, Op: env.Op, Kind: wire.KindError, Error: "unknown operation"})
}

func (c *serverConn) enqueue(env wire.Envelope) error {
	select {
	case c.out <- env:
		return nil
	case <-c.closed:
		return ErrConnClosed
	}
}

func (c *serverConn) trackCall(id string, cancel context.CancelFunc) {
	c.mu.Lock()
	c.calls[id] = cancel
	c.mu.Unlock()
}

func (c *serverConn) untrackCall(id string) {
	c.mu.Lock()
	cancel, ok := c.calls[id]
	delete(c.calls, id)
	c.mu.Unlock()
	if ok {
		cancel()
	}
}

func (c *serverConn) cancelCall(id string) {
	c.mu.Lock()
	cancel, ok := c.calls[id]
	c.mu.Unlock()
	if ok {
		cancel()
	}
}

func (c *serverConn) shutdown() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.ws.Close()

		c.mu.Lock()
		for id, cancel := range c.calls {
			cancel()
			delete(c.calls, id)
		}
		c.mu.Unlock()
	})
}
