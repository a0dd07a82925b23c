package cluster

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/require"

	"github.com/courierchat/courier/internal/bus"
	"github.com/courierchat/courier/internal/domain/model"
	"github.com/courierchat/courier/pkg/wire"
)

type capturingDispatcher struct {
	topic   string
	payload []byte
}

func (d *capturingDispatcher) Publish(_ context.Context, topic string, v any) error {
	d.topic = topic
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	d.payload = payload
	return nil
}

func newTestReplicator(t *testing.T, d bus.Dispatcher) *Replicator {
	t.Helper()
	m := newTestMembership("a")
	r, err := NewReplicator(m, d, discardLogger(), nil, 100*time.Millisecond)
	require.NoError(t, err)
	return r
}

func TestFanOutPublishesJob(t *testing.T) {
	d := &capturingDispatcher{}
	r := newTestReplicator(t, d)

	req := wire.Message{Sender: "alice", Recipient: "bob", Body: "hi", Source: "Leader"}
	r.FanOut(context.Background(), wire.OpSendMessage, req)

	require.Equal(t, bus.TopicReplicate, d.topic)

	var job Job
	require.NoError(t, json.Unmarshal(d.payload, &job))
	require.Equal(t, wire.OpSendMessage, job.Op)

	var got wire.Message
	require.NoError(t, json.Unmarshal(job.Payload, &got))
	require.Equal(t, req, got)
}

func TestSeenDeduplicatesByNaturalKey(t *testing.T) {
	r := newTestReplicator(t, &capturingDispatcher{})

	m := model.Message{Sender: "alice", Recipient: "bob", Body: "hi", Timestamp: "2026-01-02T10:00:00Z"}
	require.False(t, r.Seen(m))
	require.True(t, r.Seen(m))

	// Same text a moment later is a different message.
	m2 := m
	m2.Timestamp = "2026-01-02T10:00:01Z"
	require.False(t, r.Seen(m2))
}

func TestHandleReplicateWithoutPeers(t *testing.T) {
	r := newTestReplicator(t, &capturingDispatcher{})

	payload, err := json.Marshal(Job{Op: wire.OpSendMessage, Payload: json.RawMessage(`{}`)})
	require.NoError(t, err)

	msg := message.NewMessage("1", payload)
	require.NoError(t, r.handleReplicate(msg))
}

func TestHandleReplicatePoisonJobIsTerminal(t *testing.T) {
	r := newTestReplicator(t, &capturingDispatcher{})

	msg := message.NewMessage("1", []byte("not json"))
	// A job that cannot decode must not be retried forever.
	require.NoError(t, r.handleReplicate(msg))
}

func TestHandleReplicateSwallowsUnreachablePeers(t *testing.T) {
	r := newTestReplicator(t, &capturingDispatcher{})
	require.NoError(t, r.membership.AddPeer(context.Background(),
		model.PeerInfo{ID: "b", IP: "127.0.0.1", Port: "5002"}))

	payload, err := json.Marshal(Job{Op: wire.OpSendMessage, Payload: json.RawMessage(`{}`)})
	require.NoError(t, err)

	// The peer is unreachable; fan-out is best-effort and must not error.
	require.NoError(t, r.handleReplicate(message.NewMessage("1", payload)))
}
