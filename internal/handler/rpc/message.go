package rpc

import (
	"context"
	"encoding/json"

	"github.com/courierchat/courier/internal/domain/model"
	"github.com/courierchat/courier/internal/transport"
	"github.com/courierchat/courier/pkg/wire"
)

func (h *Handler) sendMessage(ctx context.Context, payload json.RawMessage) (any, error) {
	req, err := decode[wire.Message](payload)
	if err != nil {
		return nil, err
	}
	src := model.ParseSource(req.Source)
	msg := toModelMessage(req)

	if src == model.SourceClient && !h.membership.IsLeader() {
		res, err := forwardUnary[wire.MessageResponse](ctx, h, wire.OpSendMessage, req)
		if err != nil {
			return wire.MessageResponse{Status: wire.StatusFailure}, nil
		}
		return res, nil
	}

	// A leader re-issue the replica already applied is acknowledged without
	// a second insert.
	if src == model.SourceLeader && h.replicator.Seen(msg) {
		return wire.MessageResponse{Status: wire.StatusSuccess}, nil
	}

	if err := h.chat.Send(ctx, msg); err != nil {
		h.logger.Error("send message failed", "sender", msg.Sender, "recipient", msg.Recipient, "err", err)
		return wire.MessageResponse{Status: wire.StatusFailure}, nil
	}

	if src == model.SourceClient && h.membership.IsLeader() {
		fanned := req
		fanned.Source = model.SourceLeader.String()
		h.replicator.FanOut(ctx, wire.OpSendMessage, fanned)
	}
	return wire.MessageResponse{Status: wire.StatusSuccess}, nil
}

// getPendingMessage drains the caller's inbox. On a replica a client drain is
// relayed to the leader, whose pending flags are authoritative; the flip then
// fans out so every copy of the inbox converges.
func (h *Handler) getPendingMessage(ctx context.Context, payload json.RawMessage, stream *transport.ServerStream) error {
	req, err := decode[wire.PendingMessageRequest](payload)
	if err != nil {
		return err
	}
	src := model.ParseSource(req.Source)

	if src == model.SourceClient && !h.membership.IsLeader() {
		return relayStream[wire.PendingMessageResponse](ctx, h, wire.OpGetPendingMessage, req, stream)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = model.DefaultInboxLimit
	}

	drainErr := h.chat.DrainPending(ctx, req.Username, limit, func(m model.Message) error {
		return stream.Send(wire.PendingMessageResponse{
			Status:  wire.StatusSuccess,
			Message: toWireMessage(m),
		})
	})
	if drainErr != nil {
		h.logger.Error("pending drain failed", "username", req.Username, "err", drainErr)
		return drainErr
	}

	if src == model.SourceClient && h.membership.IsLeader() {
		fanned := req
		fanned.Source = model.SourceLeader.String()
		h.replicator.FanOut(ctx, wire.OpGetPendingMessage, fanned)
	}
	return nil
}

func (h *Handler) getMessageHistory(ctx context.Context, payload json.RawMessage, stream *transport.ServerStream) error {
	req, err := decode[wire.MessageHistoryRequest](payload)
	if err != nil {
		return err
	}
	return h.chat.History(ctx, req.Username, func(m model.Message) error {
		return stream.Send(toWireMessage(m))
	})
}

// monitorMessages is the live delivery stream. Subscriptions live at the
// leader so its pending flags stay authoritative: a replica relays the
// leader's stream frame-for-frame, the leader attaches the session locally.
// Either side ends the stream on a leader change and the client resubscribes.
func (h *Handler) monitorMessages(ctx context.Context, payload json.RawMessage, stream *transport.ServerStream) error {
	req, err := decode[wire.MonitorMessagesRequest](payload)
	if err != nil {
		return err
	}
	src := model.ParseSource(req.Source)

	if src == model.SourceClient && !h.membership.IsLeader() {
		return relayStream[wire.Message](ctx, h, wire.OpMonitorMessages, req, stream)
	}

	epoch := h.membership.Epoch()
	sess := h.hub.Attach(req.Username)
	defer h.hub.Detach(req.Username, sess.ID())

	h.logger.Info("monitor stream opened", "username", req.Username, "session_id", sess.ID())
	for {
		select {
		case m := <-sess.Recv():
			if err := stream.Send(toWireMessage(m)); err != nil {
				return err
			}
		case <-sess.Done():
			// Displaced by a newer subscription for the same user.
			return nil
		case <-epoch:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}
