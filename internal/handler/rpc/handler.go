// Package rpc exposes the wire protocol: every operation handler, plus the
// routing rule that funnels client writes through the leader and fans
// leader-applied writes out to the replicas.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/courierchat/courier/infra/metrics"
	"github.com/courierchat/courier/internal/cluster"
	"github.com/courierchat/courier/internal/domain/model"
	"github.com/courierchat/courier/internal/domain/registry"
	"github.com/courierchat/courier/internal/service"
	"github.com/courierchat/courier/internal/transport"
	"github.com/courierchat/courier/pkg/wire"
)

type Handler struct {
	logger     *slog.Logger
	chat       service.Chatter
	hub        *registry.Hub
	membership *cluster.Membership
	replicator *cluster.Replicator
	metrics    *metrics.Metrics

	// forwardTimeout bounds a replica's unary forward to the leader.
	forwardTimeout time.Duration
}

func NewHandler(
	logger *slog.Logger,
	chat service.Chatter,
	hub *registry.Hub,
	membership *cluster.Membership,
	replicator *cluster.Replicator,
	mt *metrics.Metrics,
	forwardTimeout time.Duration,
) *Handler {
	return &Handler{
		logger:         logger,
		chat:           chat,
		hub:            hub,
		membership:     membership,
		replicator:     replicator,
		metrics:        mt,
		forwardTimeout: forwardTimeout,
	}
}

// Register wires every operation into the transport mux.
func (h *Handler) Register(mux *transport.Mux) {
	mux.Unary(wire.OpRegister, h.register)
	mux.Unary(wire.OpLogin, h.login)
	mux.Unary(wire.OpGetSettings, h.getSettings)
	mux.Unary(wire.OpSaveSettings, h.saveSettings)
	mux.Unary(wire.OpDeleteAccount, h.deleteAccount)
	mux.Unary(wire.OpSendMessage, h.sendMessage)
	mux.Unary(wire.OpHeartbeat, h.heartbeat)
	mux.Unary(wire.OpNewReplica, h.newReplica)

	mux.Stream(wire.OpGetUsers, h.getUsers)
	mux.Stream(wire.OpGetPendingMessage, h.getPendingMessage)
	mux.Stream(wire.OpGetMessageHistory, h.getMessageHistory)
	mux.Stream(wire.OpMonitorMessages, h.monitorMessages)
	mux.Stream(wire.OpGetServers, h.getServers)
}

func decode[T any](payload json.RawMessage) (T, error) {
	var req T
	if err := json.Unmarshal(payload, &req); err != nil {
		return req, fmt.Errorf("malformed request: %w", err)
	}
	return req, nil
}

// forwardUnary relays a client write to the leader and returns the leader's
// response verbatim.
func forwardUnary[Res any](ctx context.Context, h *Handler, op string, req any) (Res, error) {
	var res Res

	callCtx, cancel := context.WithTimeout(ctx, h.forwardTimeout)
	defer cancel()

	conn, err := h.membership.LeaderConn(callCtx)
	if err != nil {
		h.metrics.ForwardFailures.Inc()
		return res, err
	}
	if err := conn.Call(callCtx, op, req, &res); err != nil {
		h.metrics.ForwardFailures.Inc()
		h.logger.Warn("forward to leader failed", "op", op, "err", err)
		return res, err
	}
	return res, nil
}

// relayStream routes the caller's channel directly onto the leader's stream:
// every item frame the leader produces is forwarded verbatim. The relay ends
// with the leader's stream, the caller's socket, or a leader change.
func relayStream[Item any](ctx context.Context, h *Handler, op string, req any, out *transport.ServerStream) error {
	epoch := h.membership.Epoch()

	relayCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-epoch:
			cancel()
		case <-relayCtx.Done():
		}
	}()

	conn, err := h.membership.LeaderConn(relayCtx)
	if err != nil {
		return err
	}
	st, err := conn.Stream(relayCtx, op, req)
	if err != nil {
		return err
	}
	defer st.Close()

	for {
		var item Item
		if err := st.Recv(&item); err != nil {
			if isStreamEnd(err) {
				return nil
			}
			return err
		}
		if err := out.Send(item); err != nil {
			return err
		}
	}
}

func isStreamEnd(err error) bool {
	return errors.Is(err, io.EOF)
}

func toWireMessage(m model.Message) wire.Message {
	return wire.Message{
		Sender:    m.Sender,
		Recipient: m.Recipient,
		Body:      m.Body,
		Timestamp: m.Timestamp,
	}
}

func toModelMessage(m wire.Message) model.Message {
	return model.Message{
		Sender:    m.Sender,
		Recipient: m.Recipient,
		Body:      m.Body,
		Timestamp: m.Timestamp,
	}
}
