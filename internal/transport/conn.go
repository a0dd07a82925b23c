package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/courierchat/courier/pkg/wire"
)

// ErrConnClosed reports that the underlying socket is gone. Callers treat it
// as a dead handle and rediscover.
var ErrConnClosed = errors.New("transport: connection closed")

const callBuffer = 64

// Conn is the calling side of the RPC framing: one socket multiplexing any
// number of in-flight unary calls and server streams.
type Conn struct {
	addr string
	ws   *websocket.Conn

	out chan wire.Envelope

	mu      sync.Mutex
	pending map[string]chan wire.Envelope

	closed    chan struct{}
	closeOnce sync.Once
}

// Dial opens a connection to the RPC endpoint of the given host:port address.
func Dial(ctx context.Context, addr string) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, "ws://"+addr+"/rpc", nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}

	c := &Conn{
		addr:    addr,
		ws:      ws,
		out:     make(chan wire.Envelope, outboundBuffer),
		pending: make(map[string]chan wire.Envelope),
		closed:  make(chan struct{}),
	}
	go c.readPump()
	go c.writePump()
	return c, nil
}

// Addr returns the address this handle was dialed against.
func (c *Conn) Addr() string { return c.addr }

// Closed reports whether the handle is already known dead.
func (c *Conn) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Call performs a unary exchange. out may be nil when the response body is
// irrelevant (fan-out applies drain responses this way).
func (c *Conn) Call(ctx context.Context, op string, in, out any) error {
	id := uuid.NewString()
	ch := c.register(id)
	defer c.unregister(id)

	if err := c.sendRequest(ctx, id, op, in); err != nil {
		return err
	}

	select {
	case env := <-ch:
		switch env.Kind {
		case wire.KindResponse:
			if out == nil {
				return nil
			}
			return json.Unmarshal(env.Payload, out)
		case wire.KindError:
			return fmt.Errorf("transport: %s: %s", op, env.Error)
		default:
			return fmt.Errorf("transport: %s: unexpected frame kind %d", op, env.Kind)
		}
	case <-ctx.Done():
		c.enqueue(wire.Envelope{ID: id, Kind: wire.KindCancel})
		return ctx.Err()
	case <-c.closed:
		return ErrConnClosed
	}
}

// Stream opens a server-streaming call. The returned stream must be closed.
func (c *Conn) Stream(ctx context.Context, op string, in any) (*ClientStream, error) {
	id := uuid.NewString()
	ch := c.register(id)

	if err := c.sendRequest(ctx, id, op, in); err != nil {
		c.unregister(id)
		return nil, err
	}

	return &ClientStream{conn: c, id: id, op: op, ch: ch, ctx: ctx}, nil
}

// Close tears the socket down and fails every in-flight call.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.ws.Close()
	})
}

func (c *Conn) sendRequest(ctx context.Context, id, op string, in any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("transport: marshal %s request: %w", op, err)
	}
	env := wire.Envelope{ID: id, Op: op, Kind: wire.KindRequest, Payload: payload}
	select {
	case c.out <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closed:
		return ErrConnClosed
	}
}

func (c *Conn) enqueue(env wire.Envelope) {
	select {
	case c.out <- env:
	case <-c.closed:
	}
}

func (c *Conn) register(id string) chan wire.Envelope {
	ch := make(chan wire.Envelope, callBuffer)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	return ch
}

func (c *Conn) unregister(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Conn) readPump() {
	defer c.Close()

	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var env wire.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[env.ID]
		c.mu.Unlock()
		if !ok {
			// Late frame for an abandoned call.
			continue
		}
		select {
		case ch <- env:
		default:
			// A caller that stopped draining forfeits the call.
		}
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case env := <-c.out:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			data, err := json.Marshal(env)
			if err != nil {
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

// ClientStream consumes ITEM frames of one server-streaming call.
type ClientStream struct {
	conn *Conn
	id   string
	op   string
	ch   chan wire.Envelope
	ctx  context.Context

	closeOnce sync.Once
}

// Recv decodes the next stream item into out. It returns io.EOF on a clean
// END frame and ErrConnClosed when the handle died mid-stream.
func (s *ClientStream) Recv(out any) error {
	select {
	case env := <-s.ch:
		switch env.Kind {
		case wire.KindItem:
			return json.Unmarshal(env.Payload, out)
		case wire.KindEnd:
			return io.EOF
		case wire.KindError:
			return fmt.Errorf("transport: %s: %s", s.op, env.Error)
		default:
			return fmt.Errorf("transport: %s: unexpected frame kind %d", s.op, env.Kind)
		}
	case <-s.ctx.Done():
		return s.ctx.Err()
	case <-s.conn.closed:
		return ErrConnClosed
	}
}

// Close abandons the stream and releases the correlation slot.
func (s *ClientStream) Close() {
	s.closeOnce.Do(func() {
		s.conn.enqueue(wire.Envelope{ID: s.id, Kind: wire.KindCancel})
		s.conn.unregister(s.id)
	})
}
