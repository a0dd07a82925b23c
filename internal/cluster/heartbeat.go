package cluster

import (
	"context"
	"log/slog"
	"time"

	"github.com/courierchat/courier/internal/domain/model"
	"github.com/courierchat/courier/pkg/wire"
)

// Heartbeat drives liveness: one ticker per server runs both the outgoing
// probe round and the failure sweep, so tear-down is a single context
// cancel.
type Heartbeat struct {
	membership *Membership
	interval   time.Duration
	failAfter  time.Duration
	probeTO    time.Duration
	logger     *slog.Logger
}

func NewHeartbeat(m *Membership, logger *slog.Logger, interval, failAfter, probeTimeout time.Duration) *Heartbeat {
	return &Heartbeat{
		membership: m,
		interval:   interval,
		failAfter:  failAfter,
		probeTO:    probeTimeout,
		logger:     logger,
	}
}

// Run blocks until ctx is cancelled.
func (h *Heartbeat) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.tick(ctx)
		}
	}
}

func (h *Heartbeat) tick(ctx context.Context) {
	// The leader does not probe; its table is refreshed by the heartbeats
	// replicas send it. Everyone sweeps.
	if !h.membership.IsLeader() {
		for _, peer := range h.membership.Peers() {
			go h.probe(ctx, peer)
		}
	}

	removed, leaderLost := h.membership.Sweep(h.failAfter)
	for _, p := range removed {
		h.logger.Warn("peer declared failed", "peer_id", p.ID, "addr", p.Addr())
	}
	if leaderLost {
		h.logger.Warn("leader lost, running election")
		h.membership.ElectLeader()
	}
}

func (h *Heartbeat) probe(ctx context.Context, peer model.PeerInfo) {
	probeCtx, cancel := context.WithTimeout(ctx, h.probeTO)
	defer cancel()

	conn, err := h.membership.PeerHandle(probeCtx, peer.ID)
	if err != nil {
		return
	}

	req := wire.HeartbeatRequest{
		RequestorID: h.membership.Self().ID,
		ServerID:    peer.ID,
	}
	var resp wire.HeartbeatResponse
	if err := conn.Call(probeCtx, wire.OpHeartbeat, req, &resp); err != nil {
		h.logger.Debug("heartbeat probe failed", "peer_id", peer.ID, "err", err)
		return
	}
	// A successful round trip is as good as an incoming heartbeat.
	h.membership.Touch(peer.ID)
}
