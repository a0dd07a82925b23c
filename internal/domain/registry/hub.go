/*
Package registry is the in-memory delivery hub: per-user sessions bridging
durable storage and live monitor streams.

Each online user owns exactly one Session, a mailbox channel feeding the
user's single live subscription. Delivery and the pending-flag decision are
made under one lock so a message is either handed to a live stream or
persisted as pending, never both.
*/
package registry

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/courierchat/courier/internal/domain/model"
)

const defaultMailboxSize = 256

// Option configures the Hub.
type Option func(*Hub)

// WithMailboxSize sets the per-user mailbox capacity. A full mailbox routes
// new messages to durable pending storage instead of blocking the sender.
func WithMailboxSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.mailboxSize = n
		}
	}
}

// Hub keys every live session by recipient username. One map, one lock; the
// subscription and its mailbox live in the same entry.
type Hub struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	mailboxSize int
	logger      *slog.Logger
}

func NewHub(logger *slog.Logger, opts ...Option) *Hub {
	h := &Hub{
		sessions:    make(map[string]*Session),
		mailboxSize: defaultMailboxSize,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Attach registers the user's live subscription. A prior session for the
// same user is displaced first; its monitor loop observes Done and exits.
func (h *Hub) Attach(user string) *Session {
	s := newSession(user, h.mailboxSize)

	h.mu.Lock()
	if prior, ok := h.sessions[user]; ok {
		prior.close()
		h.logger.Info("prior subscription displaced", "user", user, "prior_id", prior.id)
	}
	h.sessions[user] = s
	h.mu.Unlock()

	h.logger.Debug("subscription attached", "user", user, "session_id", s.id)
	return s
}

// Detach removes the session if it is still the current one for the user. A
// stale detach from a displaced session is a no-op.
func (h *Hub) Detach(user string, id uuid.UUID) {
	h.mu.Lock()
	if s, ok := h.sessions[user]; ok && s.id == id {
		s.close()
		delete(h.sessions, user)
	}
	h.mu.Unlock()
}

// Deliver offers the message to the recipient's live session. It reports
// whether a live subscription accepted the message; the caller persists the
// pending flag accordingly, atomically with this decision.
func (h *Hub) Deliver(m model.Message) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[m.Recipient]
	if !ok {
		return false
	}
	select {
	case s.mailbox <- m:
		return true
	case <-s.done:
		return false
	default:
		// Mailbox saturated; the message takes the durable pending path
		// and reaches the client on its next inbox drain.
		h.logger.Warn("mailbox full, message spilled to pending", "user", m.Recipient)
		return false
	}
}

// IsConnected reports whether the user holds a live subscription here.
func (h *Hub) IsConnected(user string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.sessions[user]
	return ok
}

// Shutdown closes every live session.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	for user, s := range h.sessions {
		s.close()
		delete(h.sessions, user)
	}
	h.mu.Unlock()
}
