package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/courierchat/courier/internal/transport"
	"github.com/courierchat/courier/pkg/wire"
)

// serveMux exposes the mux on a websocket endpoint for connector tests.
// shutdown also closes upgraded websockets: httptest.Server.Close skips
// hijacked connections, so the listener close alone would leave live
// handles answering probes.
func serveMux(t *testing.T, mux *transport.Mux) (addr string, shutdown func()) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var (
		mu    sync.Mutex
		conns []*websocket.Conn
	)
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		conns = append(conns, ws)
		mu.Unlock()
		transport.Serve(r.Context(), logger, mux, ws)
	}))
	return strings.TrimPrefix(srv.URL, "http://"), func() {
		mu.Lock()
		for _, ws := range conns {
			ws.Close()
		}
		mu.Unlock()
		srv.Close()
	}
}

func heartbeatMux(id string) *transport.Mux {
	mux := transport.NewMux()
	mux.Unary(wire.OpHeartbeat, func(context.Context, json.RawMessage) (any, error) {
		return wire.HeartbeatResponse{ResponderID: id, Status: "Heartbeat received"}, nil
	})
	return mux
}

// fakeServer answers heartbeats with its own id so tests can tell which
// server a handle landed on.
func fakeServer(t *testing.T, id string) (addr string, shutdown func()) {
	t.Helper()
	return serveMux(t, heartbeatMux(id))
}

func probeID(t *testing.T, conn *transport.Conn) string {
	t.Helper()
	var res wire.HeartbeatResponse
	require.NoError(t, conn.Call(context.Background(), wire.OpHeartbeat, wire.HeartbeatRequest{
		RequestorID: wire.ClientRequestorID,
	}, &res))
	return res.ResponderID
}

func newTestConnector(servers []string) *Connector {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(logger, servers, 500*time.Millisecond, 10*time.Millisecond)
}

func TestConnPrefersFirstReachableServer(t *testing.T) {
	addr1, shutdown1 := fakeServer(t, "one")
	defer shutdown1()
	addr2, shutdown2 := fakeServer(t, "two")
	defer shutdown2()

	c := newTestConnector([]string{addr1, addr2})
	defer c.Close()

	conn, err := c.Conn(context.Background())
	require.NoError(t, err)
	require.Equal(t, "one", probeID(t, conn))
}

func TestConnSkipsDeadServer(t *testing.T) {
	addr1, shutdown1 := fakeServer(t, "one")
	addr2, shutdown2 := fakeServer(t, "two")
	defer shutdown2()

	// The preferred server is already gone before the first call.
	shutdown1()

	c := newTestConnector([]string{addr1, addr2})
	defer c.Close()

	conn, err := c.Conn(context.Background())
	require.NoError(t, err)
	require.Equal(t, "two", probeID(t, conn))
}

func TestConnFailsOverWhenCurrentDies(t *testing.T) {
	addr1, shutdown1 := fakeServer(t, "one")
	addr2, shutdown2 := fakeServer(t, "two")
	defer shutdown2()

	c := newTestConnector([]string{addr1, addr2})
	defer c.Close()

	conn, err := c.Conn(context.Background())
	require.NoError(t, err)
	require.Equal(t, "one", probeID(t, conn))

	shutdown1()

	conn, err = c.Conn(context.Background())
	require.NoError(t, err)
	require.Equal(t, "two", probeID(t, conn))
}

func TestConnHonorsContextWhenAllServersDown(t *testing.T) {
	addr, shutdown := fakeServer(t, "one")
	shutdown()

	c := newTestConnector([]string{addr})
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := c.Conn(ctx)
	require.Error(t, err)
}

func TestInboxKeepsItemsAcrossMidStreamRetry(t *testing.T) {
	// First drain attempt yields one message and dies; the server has
	// already flipped it to delivered, so the client must keep it and only
	// fetch the remainder on the retry.
	var calls atomic.Int32
	mux := heartbeatMux("one")
	mux.Stream(wire.OpGetPendingMessage, func(_ context.Context, _ json.RawMessage, s *transport.ServerStream) error {
		if calls.Add(1) == 1 {
			if err := s.Send(wire.PendingMessageResponse{
				Status:  wire.StatusSuccess,
				Message: wire.Message{Sender: "alice", Recipient: "bob", Body: "first"},
			}); err != nil {
				return err
			}
			return fmt.Errorf("stream interrupted")
		}
		return s.Send(wire.PendingMessageResponse{
			Status:  wire.StatusSuccess,
			Message: wire.Message{Sender: "alice", Recipient: "bob", Body: "second"},
		})
	})

	addr, shutdown := serveMux(t, mux)
	defer shutdown()

	c := newTestConnector([]string{addr})
	defer c.Close()

	msgs, err := NewClient(c).Inbox(context.Background(), "bob", 50)
	require.NoError(t, err)
	require.Equal(t, int32(2), calls.Load())
	require.Len(t, msgs, 2)
	require.Equal(t, "first", msgs[0].Body)
	require.Equal(t, "second", msgs[1].Body)
}

func TestUpdateServersTakesEffect(t *testing.T) {
	addr1, shutdown1 := fakeServer(t, "one")
	shutdown1()
	addr2, shutdown2 := fakeServer(t, "two")
	defer shutdown2()

	c := newTestConnector([]string{addr1})
	defer c.Close()

	c.UpdateServers([]string{addr2})

	conn, err := c.Conn(context.Background())
	require.NoError(t, err)
	require.Equal(t, "two", probeID(t, conn))
}
