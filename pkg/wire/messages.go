package wire

// Request and response payloads for every operation. Fields mirror the
// protocol contract; Source carries the origin tag on writes and is decoded
// into a typed value exactly once at ingress.

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
	Source   string `json:"source"`
}

type RegisterResponse struct {
	Status  Status `json:"status"`
	Message string `json:"message"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Source   string `json:"source"`
}

type LoginResponse struct {
	Status  Status `json:"status"`
	Message string `json:"message"`
}

type GetUsersRequest struct {
	Username string `json:"username"`
}

type GetUsersResponse struct {
	Status   Status `json:"status"`
	Username string `json:"username"`
}

type GetSettingsRequest struct {
	Username string `json:"username"`
}

type GetSettingsResponse struct {
	Status  Status `json:"status"`
	Setting int32  `json:"setting"`
}

type SaveSettingsRequest struct {
	Username string `json:"username"`
	Setting  int32  `json:"setting"`
	Source   string `json:"source"`
}

type SaveSettingsResponse struct {
	Status Status `json:"status"`
}

type DeleteAccountRequest struct {
	Username string `json:"username"`
	Source   string `json:"source"`
}

type DeleteAccountResponse struct {
	Status Status `json:"status"`
}

// Message is the wire shape of one chat message. Timestamp is an ISO-8601
// string assigned by the sender; ordering relies on it sorting correctly.
type Message struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Body      string `json:"message"`
	Timestamp string `json:"timestamp"`
	Source    string `json:"source"`
}

type MessageResponse struct {
	Status Status `json:"status"`
}

type PendingMessageRequest struct {
	Username string `json:"username"`
	Limit    int32  `json:"inbox_limit"`
	Source   string `json:"source"`
}

type PendingMessageResponse struct {
	Status  Status  `json:"status"`
	Message Message `json:"message"`
}

type MessageHistoryRequest struct {
	Username string `json:"username"`
}

type MonitorMessagesRequest struct {
	Username string `json:"username"`
	Source   string `json:"source"`
}

type HeartbeatRequest struct {
	RequestorID string `json:"requestor_id"`
	ServerID    string `json:"server_id"`
}

type HeartbeatResponse struct {
	ResponderID string `json:"responder_id"`
	Status      string `json:"status"`
}

type NewReplicaRequest struct {
	NewReplicaID string `json:"new_replica_id"`
	IP           string `json:"ip"`
	Port         string `json:"port"`
	Source       string `json:"source,omitempty"`
}

// LeaderResponse answers a join handshake with the current leader identity.
type LeaderResponse struct {
	ID   string `json:"id"`
	IP   string `json:"ip"`
	Port string `json:"port"`
}

type GetServersRequest struct {
	RequestorID string `json:"requestor_id"`
}

type ServerInfo struct {
	ID   string `json:"id"`
	IP   string `json:"ip"`
	Port string `json:"port"`
}
