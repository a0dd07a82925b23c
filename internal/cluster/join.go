package cluster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/courierchat/courier/internal/domain/model"
	"github.com/courierchat/courier/internal/transport"
	"github.com/courierchat/courier/pkg/wire"
)

// Lead installs this server as the cluster's initial leader. Used when no
// bootstrap address was configured.
func Lead(m *Membership) {
	self := m.Self()
	m.SetLeader(model.LeaderInfo{ID: self.ID, IP: self.IP, Port: self.Port})
}

// Join performs the startup handshake through one known bootstrap address:
// announce ourselves, learn the leader, then pull the leader's peer table.
// The heartbeat task is started by the caller once Join returns.
func Join(ctx context.Context, logger *slog.Logger, m *Membership, bootstrapAddr string) error {
	boot, err := transport.Dial(ctx, bootstrapAddr)
	if err != nil {
		return fmt.Errorf("cluster: dial bootstrap %s: %w", bootstrapAddr, err)
	}
	defer boot.Close()

	self := m.Self()
	var leader wire.LeaderResponse
	err = boot.Call(ctx, wire.OpNewReplica, wire.NewReplicaRequest{
		NewReplicaID: self.ID,
		IP:           self.IP,
		Port:         self.Port,
	}, &leader)
	if err != nil {
		return fmt.Errorf("cluster: join handshake: %w", err)
	}

	m.SetLeader(model.LeaderInfo{ID: leader.ID, IP: leader.IP, Port: leader.Port})
	logger.Info("joined cluster", "leader_id", leader.ID, "leader_addr", m.Leader().Addr())

	// The leader is a peer like any other: it is heartbeated and swept, and
	// its loss triggers the election.
	if err := m.AddPeer(ctx, model.PeerInfo{ID: leader.ID, IP: leader.IP, Port: leader.Port}); err != nil {
		return err
	}

	leaderConn, err := m.LeaderConn(ctx)
	if err != nil {
		return fmt.Errorf("cluster: connect to leader: %w", err)
	}

	st, err := leaderConn.Stream(ctx, wire.OpGetServers, wire.GetServersRequest{RequestorID: self.ID})
	if err != nil {
		return fmt.Errorf("cluster: fetch peer table: %w", err)
	}
	defer st.Close()

	for {
		var info wire.ServerInfo
		if err := st.Recv(&info); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("cluster: read peer table: %w", err)
		}
		if info.ID == self.ID {
			continue
		}
		if err := m.AddPeer(ctx, model.PeerInfo{ID: info.ID, IP: info.IP, Port: info.Port}); err != nil {
			logger.Warn("could not add peer from leader table", "peer_id", info.ID, "err", err)
		}
	}
	return nil
}
