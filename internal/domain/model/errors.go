package model

import "errors"

// Error kinds surfaced by the core. Wire handlers map these onto
// SUCCESS/FAILURE statuses; the kinds themselves never cross the wire.
var (
	ErrDuplicateKey      = errors.New("duplicate key")
	ErrNotFound          = errors.New("not found")
	ErrAuthFailure       = errors.New("authentication failed")
	ErrStoreFailure      = errors.New("store failure")
	ErrStreamClosed      = errors.New("stream closed")
	ErrLeaderUnavailable = errors.New("leader unavailable")
	ErrPeerUnreachable   = errors.New("peer unreachable")
)
