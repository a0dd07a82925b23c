package registry

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/courierchat/courier/internal/domain/model"
)

func newTestHub(opts ...Option) *Hub {
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
}

func TestDeliverWithoutSubscription(t *testing.T) {
	h := newTestHub()
	require.False(t, h.Deliver(model.Message{Recipient: "bob", Body: "hi"}))
}

func TestDeliverToLiveSubscription(t *testing.T) {
	h := newTestHub()
	sess := h.Attach("bob")
	defer h.Detach("bob", sess.ID())

	require.True(t, h.IsConnected("bob"))
	require.True(t, h.Deliver(model.Message{Recipient: "bob", Body: "hi"}))

	m := <-sess.Recv()
	require.Equal(t, "hi", m.Body)
}

func TestAttachDisplacesPriorSession(t *testing.T) {
	h := newTestHub()
	first := h.Attach("bob")
	second := h.Attach("bob")
	defer h.Detach("bob", second.ID())

	select {
	case <-first.Done():
	default:
		t.Fatal("displaced session not closed")
	}

	require.True(t, h.Deliver(model.Message{Recipient: "bob", Body: "hi"}))
	m := <-second.Recv()
	require.Equal(t, "hi", m.Body)
}

func TestStaleDetachIsNoOp(t *testing.T) {
	h := newTestHub()
	first := h.Attach("bob")
	second := h.Attach("bob")

	h.Detach("bob", first.ID())
	require.True(t, h.IsConnected("bob"))

	h.Detach("bob", second.ID())
	require.False(t, h.IsConnected("bob"))
}

func TestFullMailboxSpillsToPending(t *testing.T) {
	h := newTestHub(WithMailboxSize(1))
	sess := h.Attach("bob")
	defer h.Detach("bob", sess.ID())

	require.True(t, h.Deliver(model.Message{Recipient: "bob", Body: "one"}))
	// Not drained; the second offer must fall through to the pending path.
	require.False(t, h.Deliver(model.Message{Recipient: "bob", Body: "two"}))
}

func TestShutdownClosesSessions(t *testing.T) {
	h := newTestHub()
	sess := h.Attach("bob")

	h.Shutdown()

	select {
	case <-sess.Done():
	default:
		t.Fatal("session not closed on shutdown")
	}
	require.False(t, h.IsConnected("bob"))
}
