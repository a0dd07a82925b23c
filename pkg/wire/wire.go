// Package wire defines the binary RPC framing shared by servers, peers and
// clients: JSON envelopes carried on WebSocket binary frames, multiplexed by
// correlation id. A unary exchange is REQ -> RES; a server stream is
// REQ -> ITEM* -> END, with ERR terminating either shape.
package wire

import "encoding/json"

// Kind discriminates envelope frames.
type Kind int8

const (
	KindRequest Kind = iota + 1
	KindResponse
	KindItem
	KindEnd
	KindError
	// KindCancel is sent by the caller to abandon an in-flight stream.
	KindCancel
)

// Envelope is the framing unit. ID correlates every frame of one call.
type Envelope struct {
	ID      string          `json:"id"`
	Op      string          `json:"op,omitempty"`
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Operation names. These are the wire contract; renaming one is a protocol
// break for every deployed client and peer.
const (
	OpRegister          = "Register"
	OpLogin             = "Login"
	OpGetUsers          = "GetUsers"
	OpGetSettings       = "GetSettings"
	OpSaveSettings      = "SaveSettings"
	OpDeleteAccount     = "DeleteAccount"
	OpSendMessage       = "SendMessage"
	OpGetPendingMessage = "GetPendingMessage"
	OpGetMessageHistory = "GetMessageHistory"
	OpMonitorMessages   = "MonitorMessages"
	OpHeartbeat         = "Heartbeat"
	OpNewReplica        = "NewReplica"
	OpGetServers        = "GetServers"
)

// Status is the client-visible outcome of an operation.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
)

// ClientRequestorID is the reserved requestor id for client-side heartbeat
// probes. Servers answer them but never add the prober to the peer table.
const ClientRequestorID = "Client"
