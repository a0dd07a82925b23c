package model

import "time"

// TimestampLayout is the wire format for message timestamps. Ordering
// guarantees rely on lexicographic order of this layout matching time order.
const TimestampLayout = time.RFC3339Nano

// Message is one point-to-point chat message as stored and replicated.
type Message struct {
	ID        int64
	Sender    string
	Recipient string
	Body      string
	Timestamp string
	Pending   bool
}

// Key returns the natural key used for replay deduplication on replicas.
// Synthetic ids are per-server and cannot be compared across the cluster.
func (m Message) Key() string {
	return m.Sender + "\x00" + m.Recipient + "\x00" + m.Timestamp + "\x00" + m.Body
}

// User is one registered account.
type User struct {
	Username     string
	PasswordHash string
	Email        string
	CreatedAt    time.Time
	LastLogin    time.Time
	InboxLimit   int32
}

// DefaultInboxLimit is applied to accounts that never saved a setting.
const DefaultInboxLimit int32 = 50
