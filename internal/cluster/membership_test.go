package cluster

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/courierchat/courier/internal/domain/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMembership(selfID string) *Membership {
	return NewMembership(discardLogger(), nil, model.PeerInfo{ID: selfID, IP: "127.0.0.1", Port: "5001"})
}

func TestAddAndRemovePeer(t *testing.T) {
	m := newTestMembership("a")
	ctx := context.Background()

	// Dialing fails (nothing listening); the entry is still recorded.
	require.NoError(t, m.AddPeer(ctx, model.PeerInfo{ID: "b", IP: "127.0.0.1", Port: "5002"}))
	require.NoError(t, m.AddPeer(ctx, model.PeerInfo{ID: "c", IP: "127.0.0.1", Port: "5003"}))
	require.Len(t, m.Peers(), 2)

	// Self never enters the table.
	require.NoError(t, m.AddPeer(ctx, model.PeerInfo{ID: "a", IP: "127.0.0.1", Port: "5001"}))
	require.Len(t, m.Peers(), 2)

	m.RemovePeer("b")
	peers := m.Peers()
	require.Len(t, peers, 1)
	require.Equal(t, "c", peers[0].ID)
}

func TestSetLeaderSignalsEpoch(t *testing.T) {
	m := newTestMembership("a")

	epoch := m.Epoch()
	m.SetLeader(model.LeaderInfo{ID: "b", IP: "127.0.0.1", Port: "5002"})

	select {
	case <-epoch:
	default:
		t.Fatal("epoch channel not closed on leader change")
	}
	require.False(t, m.IsLeader())
	require.Equal(t, "b", m.Leader().ID)

	// Re-installing the same leader is not a change.
	epoch = m.Epoch()
	m.SetLeader(model.LeaderInfo{ID: "b", IP: "127.0.0.1", Port: "5002"})
	select {
	case <-epoch:
		t.Fatal("epoch closed without a leader change")
	default:
	}
}

func TestLeaderConnWhileSelfIsLeader(t *testing.T) {
	m := newTestMembership("a")
	Lead(m)
	require.True(t, m.IsLeader())

	_, err := m.LeaderConn(context.Background())
	require.ErrorIs(t, err, model.ErrLeaderUnavailable)
}

func TestSweepRemovesStalePeers(t *testing.T) {
	m := newTestMembership("b")
	ctx := context.Background()

	require.NoError(t, m.AddPeer(ctx, model.PeerInfo{ID: "a", IP: "127.0.0.1", Port: "5002"}))
	require.NoError(t, m.AddPeer(ctx, model.PeerInfo{ID: "c", IP: "127.0.0.1", Port: "5003"}))
	m.SetLeader(model.LeaderInfo{ID: "a", IP: "127.0.0.1", Port: "5002"})

	// Keep c alive, let a go stale.
	time.Sleep(20 * time.Millisecond)
	m.Touch("c")

	removed, leaderLost := m.Sweep(10 * time.Millisecond)
	require.Len(t, removed, 1)
	require.Equal(t, "a", removed[0].ID)
	require.True(t, leaderLost)

	peers := m.Peers()
	require.Len(t, peers, 1)
	require.Equal(t, "c", peers[0].ID)
}

func TestTouchUnknownPeerIgnored(t *testing.T) {
	m := newTestMembership("a")
	m.Touch("ghost")
	require.Empty(t, m.Peers())
}

func TestElectLeaderPicksMinimumID(t *testing.T) {
	m := newTestMembership("b")
	ctx := context.Background()

	require.NoError(t, m.AddPeer(ctx, model.PeerInfo{ID: "c", IP: "127.0.0.1", Port: "5003"}))
	require.NoError(t, m.AddPeer(ctx, model.PeerInfo{ID: "d", IP: "127.0.0.1", Port: "5004"}))

	winner := m.ElectLeader()
	require.Equal(t, "b", winner.ID)
	require.True(t, m.IsLeader())
}

func TestElectLeaderPrefersPeerWithSmallerID(t *testing.T) {
	m := newTestMembership("m")
	ctx := context.Background()

	require.NoError(t, m.AddPeer(ctx, model.PeerInfo{ID: "z", IP: "127.0.0.1", Port: "5003"}))
	require.NoError(t, m.AddPeer(ctx, model.PeerInfo{ID: "c", IP: "127.0.0.1", Port: "5004"}))

	winner := m.ElectLeader()
	require.Equal(t, "c", winner.ID)
	require.False(t, m.IsLeader())
	require.Equal(t, "c", m.Leader().ID)
}

func TestElectionAfterLeaderSweep(t *testing.T) {
	// Three-node view on "b": leader "a" dies, survivors are b and c.
	m := newTestMembership("b")
	ctx := context.Background()

	require.NoError(t, m.AddPeer(ctx, model.PeerInfo{ID: "a", IP: "127.0.0.1", Port: "5002"}))
	require.NoError(t, m.AddPeer(ctx, model.PeerInfo{ID: "c", IP: "127.0.0.1", Port: "5003"}))
	m.SetLeader(model.LeaderInfo{ID: "a", IP: "127.0.0.1", Port: "5002"})

	time.Sleep(20 * time.Millisecond)
	m.Touch("c")

	epoch := m.Epoch()
	_, leaderLost := m.Sweep(10 * time.Millisecond)
	require.True(t, leaderLost)

	winner := m.ElectLeader()
	require.Equal(t, "b", winner.ID)
	require.True(t, m.IsLeader())

	select {
	case <-epoch:
	default:
		t.Fatal("election did not signal the epoch change")
	}
}
