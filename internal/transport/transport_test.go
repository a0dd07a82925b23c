package transport

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
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type echoRequest struct {
	Text string `json:"text"`
}

type echoResponse struct {
	Text string `json:"text"`
}

type countRequest struct {
	N int `json:"n"`
}

type countItem struct {
	I int `json:"i"`
}

func newTestEndpoint(t *testing.T, mux *Mux) string {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rpc" {
			http.NotFound(w, r)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		Serve(r.Context(), logger, mux, ws)
	}))
	t.Cleanup(srv.Close)
	return strings.TrimPrefix(srv.URL, "http://")
}

func newEchoMux() *Mux {
	mux := NewMux()
	mux.Unary("Echo", func(_ context.Context, payload json.RawMessage) (any, error) {
		var req echoRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, err
		}
		return echoResponse{Text: req.Text}, nil
	})
	mux.Unary("Fail", func(context.Context, json.RawMessage) (any, error) {
		return nil, fmt.Errorf("boom")
	})
	mux.Stream("Count", func(_ context.Context, payload json.RawMessage, s *ServerStream) error {
		var req countRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return err
		}
		for i := 0; i < req.N; i++ {
			if err := s.Send(countItem{I: i}); err != nil {
				return err
			}
		}
		return nil
	})
	mux.Stream("Hang", func(ctx context.Context, _ json.RawMessage, _ *ServerStream) error {
		<-ctx.Done()
		return nil
	})
	return mux
}

func TestUnaryCall(t *testing.T) {
	addr := newTestEndpoint(t, newEchoMux())

	conn, err := Dial(context.Background(), addr)
	require.NoError(t, err)
	defer conn.Close()

	var res echoResponse
	require.NoError(t, conn.Call(context.Background(), "Echo", echoRequest{Text: "hello"}, &res))
	require.Equal(t, "hello", res.Text)
}

func TestUnaryHandlerError(t *testing.T) {
	addr := newTestEndpoint(t, newEchoMux())

	conn, err := Dial(context.Background(), addr)
	require.NoError(t, err)
	defer conn.Close()

	err = conn.Call(context.Background(), "Fail", echoRequest{}, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "boom")
}

func TestUnknownOperation(t *testing.T) {
	addr := newTestEndpoint(t, newEchoMux())

	conn, err := Dial(context.Background(), addr)
	require.NoError(t, err)
	defer conn.Close()

	err = conn.Call(context.Background(), "Nope", echoRequest{}, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown operation")
}

func TestServerStream(t *testing.T) {
	addr := newTestEndpoint(t, newEchoMux())

	conn, err := Dial(context.Background(), addr)
	require.NoError(t, err)
	defer conn.Close()

	st, err := conn.Stream(context.Background(), "Count", countRequest{N: 3})
	require.NoError(t, err)
	defer st.Close()

	var got []int
	for {
		var item countItem
		err := st.Recv(&item)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, item.I)
	}
	require.Equal(t, []int{0, 1, 2}, got)
}

func TestConcurrentCallsMultiplex(t *testing.T) {
	addr := newTestEndpoint(t, newEchoMux())

	conn, err := Dial(context.Background(), addr)
	require.NoError(t, err)
	defer conn.Close()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			text := fmt.Sprintf("call-%d", i)
			var res echoResponse
			require.NoError(t, conn.Call(context.Background(), "Echo", echoRequest{Text: text}, &res))
			require.Equal(t, text, res.Text)
		}(i)
	}
	wg.Wait()
}

func TestCallContextCancel(t *testing.T) {
	addr := newTestEndpoint(t, newEchoMux())

	conn, err := Dial(context.Background(), addr)
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	st, err := conn.Stream(ctx, "Hang", echoRequest{})
	require.NoError(t, err)
	defer st.Close()

	var item countItem
	err = st.Recv(&item)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClosedConnFailsCalls(t *testing.T) {
	addr := newTestEndpoint(t, newEchoMux())

	conn, err := Dial(context.Background(), addr)
	require.NoError(t, err)
	conn.Close()
	require.True(t, conn.Closed())

	err = conn.Call(context.Background(), "Echo", echoRequest{Text: "x"}, nil)
	require.ErrorIs(t, err, ErrConnClosed)
}
