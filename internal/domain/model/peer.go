package model

import (
	"net"
	"time"
)

// PeerInfo describes one known server process. The identifier is unique per
// process lifetime; a restarted server joins as a brand new peer.
type PeerInfo struct {
	ID   string
	IP   string
	Port string
}

// Addr returns the host:port network address of the peer.
func (p PeerInfo) Addr() string {
	return net.JoinHostPort(p.IP, p.Port)
}

// LeaderInfo names the server currently believed to sequence writes.
type LeaderInfo struct {
	ID   string
	IP   string
	Port string
}

func (l LeaderInfo) Addr() string {
	return net.JoinHostPort(l.IP, l.Port)
}

// HeartbeatState is the liveness record kept per peer.
type HeartbeatState struct {
	LastSeen time.Time
}
