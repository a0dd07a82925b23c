package rpc

import (
	"context"
	"encoding/json"

	"github.com/courierchat/courier/internal/domain/model"
	"github.com/courierchat/courier/internal/transport"
	"github.com/courierchat/courier/pkg/wire"
)

// heartbeat answers liveness probes. Client probes carry the reserved
// requestor id and never touch the peer table; an unknown server id is
// ignored by Touch and must rejoin through the handshake.
func (h *Handler) heartbeat(_ context.Context, payload json.RawMessage) (any, error) {
	req, err := decode[wire.HeartbeatRequest](payload)
	if err != nil {
		return nil, err
	}
	if req.RequestorID != wire.ClientRequestorID {
		h.membership.Touch(req.RequestorID)
	}
	return wire.HeartbeatResponse{
		ResponderID: h.membership.Self().ID,
		Status:      "Heartbeat received",
	}, nil
}

// newReplica admits a joiner. The bootstrap server records it immediately;
// an untagged join on a non-leader is also forwarded so the leader learns
// the joiner, and the leader re-announces it to every peer.
func (h *Handler) newReplica(ctx context.Context, payload json.RawMessage) (any, error) {
	req, err := decode[wire.NewReplicaRequest](payload)
	if err != nil {
		return nil, err
	}
	src := model.ParseSource(req.Source)
	info := model.PeerInfo{ID: req.NewReplicaID, IP: req.IP, Port: req.Port}

	if err := h.membership.AddPeer(ctx, info); err != nil {
		h.logger.Error("admit replica failed", "peer_id", info.ID, "err", err)
	}

	if src == model.SourceClient && !h.membership.IsLeader() {
		res, err := forwardUnary[wire.LeaderResponse](ctx, h, wire.OpNewReplica, req)
		if err == nil {
			return res, nil
		}
		// Leader unreachable: answer with our current view so the joiner
		// can still bootstrap.
		h.logger.Warn("join forward failed, answering with local leader view", "peer_id", info.ID, "err", err)
	}

	if src == model.SourceClient && h.membership.IsLeader() {
		fanned := req
		fanned.Source = model.SourceLeader.String()
		h.replicator.FanOut(ctx, wire.OpNewReplica, fanned)
	}

	leader := h.membership.Leader()
	return wire.LeaderResponse{ID: leader.ID, IP: leader.IP, Port: leader.Port}, nil
}

// getServers streams the peer table, excluding the requestor itself.
func (h *Handler) getServers(_ context.Context, payload json.RawMessage, stream *transport.ServerStream) error {
	req, err := decode[wire.GetServersRequest](payload)
	if err != nil {
		return err
	}
	for _, p := range h.membership.Peers() {
		if p.ID == req.RequestorID {
			continue
		}
		if err := stream.Send(wire.ServerInfo{ID: p.ID, IP: p.IP, Port: p.Port}); err != nil {
			return err
		}
	}
	return nil
}
