package cluster

import (
	"github.com/courierchat/courier/internal/domain/model"
)

// ElectLeader runs the deterministic minimum-identifier election over the
// surviving peer table plus self and installs the winner. Every surviving
// detector computes the same winner from its (eventually identical) table;
// no vote exchange is needed.
func (m *Membership) ElectLeader() model.LeaderInfo {
	m.mu.Lock()
	winner := model.LeaderInfo{ID: m.self.ID, IP: m.self.IP, Port: m.self.Port}
	for _, p := range m.peers {
		if p.Info.ID < winner.ID {
			winner = model.LeaderInfo{ID: p.Info.ID, IP: p.Info.IP, Port: p.Info.Port}
		}
	}
	m.mu.Unlock()

	m.logger.Info("election complete", "winner_id", winner.ID, "winner_addr", winner.Addr())
	m.SetLeader(winner)
	return winner
}
