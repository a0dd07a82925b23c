// Package cluster implements the replication core: the membership view
// (peer table + leader reference), heartbeat-driven failure detection,
// minimum-identifier leader election, the join handshake and the leader-side
// fan-out engine.
package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/courierchat/courier/infra/metrics"
	"github.com/courierchat/courier/internal/domain/model"
	"github.com/courierchat/courier/internal/transport"
)

// Peer is one live entry in the peer table: identity, RPC handle and the
// last time we heard from it.
type Peer struct {
	Info     model.PeerInfo
	conn     *transport.Conn
	lastSeen time.Time
}

// Membership owns the peer table and the leader reference under one lock;
// they share a lifecycle and are swapped together on election. The lock is
// never held across an RPC call.
type Membership struct {
	mu     sync.Mutex
	self   model.PeerInfo
	peers  map[string]*Peer
	leader model.LeaderInfo

	// leaderConn is nil while self is leader.
	leaderConn *transport.Conn

	// epoch is closed on every leader change; monitor streams wait on the
	// channel they captured at stream start.
	epoch chan struct{}

	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewMembership(logger *slog.Logger, m *metrics.Metrics, self model.PeerInfo) *Membership {
	return &Membership{
		self:    self,
		peers:   make(map[string]*Peer),
		epoch:   make(chan struct{}),
		logger:  logger,
		metrics: m,
	}
}

func (m *Membership) Self() model.PeerInfo { return m.self }

func (m *Membership) IsLeader() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leader.ID == m.self.ID
}

func (m *Membership) Leader() model.LeaderInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leader
}

// Epoch returns the channel closed on the next leader change.
func (m *Membership) Epoch() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch
}

// SetLeader installs the leader reference and signals the epoch change.
func (m *Membership) SetLeader(info model.LeaderInfo) {
	m.mu.Lock()
	changed := m.leader.ID != info.ID
	m.leader = info
	if changed {
		if m.leaderConn != nil {
			m.leaderConn.Close()
			m.leaderConn = nil
		}
		close(m.epoch)
		m.epoch = make(chan struct{})
	}
	isSelf := info.ID == m.self.ID
	m.mu.Unlock()

	if m.metrics != nil {
		if isSelf {
			m.metrics.Leader.Set(1)
		} else {
			m.metrics.Leader.Set(0)
		}
	}
	if changed {
		m.logger.Info("leader installed", "leader_id", info.ID, "leader_addr", info.Addr(), "self", isSelf)
	}
}

// LeaderConn returns a live handle to the current leader, redialing a dead
// one. It fails when this server is itself the leader.
func (m *Membership) LeaderConn(ctx context.Context) (*transport.Conn, error) {
	m.mu.Lock()
	leader := m.leader
	conn := m.leaderConn
	m.mu.Unlock()

	if leader.ID == "" || leader.ID == m.self.ID {
		return nil, model.ErrLeaderUnavailable
	}
	if conn != nil && !conn.Closed() {
		return conn, nil
	}

	fresh, err := transport.Dial(ctx, leader.Addr())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrLeaderUnavailable, err)
	}

	m.mu.Lock()
	// The leader may have changed while we were dialing.
	if m.leader.ID != leader.ID {
		m.mu.Unlock()
		fresh.Close()
		return nil, model.ErrLeaderUnavailable
	}
	if m.leaderConn != nil && !m.leaderConn.Closed() {
		conn = m.leaderConn
		m.mu.Unlock()
		fresh.Close()
		return conn, nil
	}
	m.leaderConn = fresh
	m.mu.Unlock()
	return fresh, nil
}

// AddPeer inserts or refreshes a peer table entry. The RPC handle is dialed
// outside the table lock; a peer we cannot dial is still recorded and will
// be reaped by the failure sweep unless it starts heartbeating.
func (m *Membership) AddPeer(ctx context.Context, info model.PeerInfo) error {
	if info.ID == m.self.ID {
		return nil
	}

	conn, err := transport.Dial(ctx, info.Addr())
	if err != nil {
		m.logger.Warn("peer dial failed on add", "peer_id", info.ID, "addr", info.Addr(), "err", err)
	}

	m.mu.Lock()
	if existing, ok := m.peers[info.ID]; ok {
		if conn != nil {
			if existing.conn != nil {
				existing.conn.Close()
			}
			existing.conn = conn
		}
		existing.Info = info
		existing.lastSeen = time.Now()
	} else {
		m.peers[info.ID] = &Peer{Info: info, conn: conn, lastSeen: time.Now()}
	}
	n := len(m.peers)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.Peers.Set(float64(n))
	}
	m.logger.Info("peer added", "peer_id", info.ID, "addr", info.Addr(), "peers", n)
	return nil
}

// RemovePeer drops the entry and closes its handle.
func (m *Membership) RemovePeer(id string) {
	m.mu.Lock()
	p, ok := m.peers[id]
	delete(m.peers, id)
	n := len(m.peers)
	m.mu.Unlock()

	if ok {
		if p.conn != nil {
			p.conn.Close()
		}
		if m.metrics != nil {
			m.metrics.Peers.Set(float64(n))
		}
		m.logger.Info("peer removed", "peer_id", id, "peers", n)
	}
}

// Touch refreshes the liveness record for a peer. Unknown ids are ignored;
// a removed peer must rejoin through the handshake.
func (m *Membership) Touch(id string) {
	m.mu.Lock()
	if p, ok := m.peers[id]; ok {
		p.lastSeen = time.Now()
	}
	m.mu.Unlock()
}

// Peers snapshots the table.
func (m *Membership) Peers() []model.PeerInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.PeerInfo, 0, len(m.peers))
	for _, p := range m.peers {
		out = append(out, p.Info)
	}
	return out
}

// PeerHandle returns a live RPC handle to the peer, redialing if needed.
func (m *Membership) PeerHandle(ctx context.Context, id string) (*transport.Conn, error) {
	m.mu.Lock()
	p, ok := m.peers[id]
	var (
		conn *transport.Conn
		addr string
	)
	if ok {
		conn = p.conn
		addr = p.Info.Addr()
	}
	m.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: unknown peer %s", model.ErrPeerUnreachable, id)
	}
	if conn != nil && !conn.Closed() {
		return conn, nil
	}

	fresh, err := transport.Dial(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrPeerUnreachable, err)
	}

	m.mu.Lock()
	if p, ok := m.peers[id]; ok {
		if p.conn != nil {
			p.conn.Close()
		}
		p.conn = fresh
	}
	m.mu.Unlock()
	return fresh, nil
}

// Sweep removes peers whose last heartbeat is older than failAfter and
// reports whether the current leader was among them.
func (m *Membership) Sweep(failAfter time.Duration) (removed []model.PeerInfo, leaderLost bool) {
	cutoff := time.Now().Add(-failAfter)

	m.mu.Lock()
	leaderID := m.leader.ID
	var stale []*Peer
	for id, p := range m.peers {
		if p.lastSeen.Before(cutoff) {
			stale = append(stale, p)
			delete(m.peers, id)
			if id == leaderID {
				leaderLost = true
			}
		}
	}
	n := len(m.peers)
	m.mu.Unlock()

	for _, p := range stale {
		if p.conn != nil {
			p.conn.Close()
		}
		removed = append(removed, p.Info)
		m.logger.Warn("peer failed heartbeat check", "peer_id", p.Info.ID, "addr", p.Info.Addr())
	}
	if len(stale) > 0 && m.metrics != nil {
		m.metrics.Peers.Set(float64(n))
	}
	return removed, leaderLost
}

// Shutdown closes every handle.
func (m *Membership) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.peers {
		if p.conn != nil {
			p.conn.Close()
		}
	}
	if m.leaderConn != nil {
		m.leaderConn.Close()
		m.leaderConn = nil
	}
}
