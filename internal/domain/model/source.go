package model

// Source identifies who issued a write request. It is decided once at
// request ingress; handlers branch on the typed value, never on the wire
// string.
type Source int8

const (
	// SourceClient marks a request that originated outside the cluster.
	SourceClient Source = iota
	// SourceLeader marks a request re-issued by the leader during fan-out.
	// Recipients apply the effect locally and never re-forward.
	SourceLeader
)

const (
	wireSourceClient = "Client"
	wireSourceLeader = "Leader"
)

// ParseSource maps the wire tag to a typed Source. Anything that is not the
// leader tag is treated as client-originated, which keeps old clients that
// omit the field on the safe (forwarded) path.
func ParseSource(s string) Source {
	if s == wireSourceLeader {
		return SourceLeader
	}
	return SourceClient
}

func (s Source) String() string {
	if s == SourceLeader {
		return wireSourceLeader
	}
	return wireSourceClient
}
