package registry

import (
	"sync"

	"github.com/google/uuid"

	"github.com/courierchat/courier/internal/domain/model"
)

// Session is one user's live presence on this server: the single
// subscription plus its mailbox. Created by Attach, destroyed by Detach or
// displacement.
type Session struct {
	user    string
	id      uuid.UUID
	mailbox chan model.Message

	done      chan struct{}
	closeOnce sync.Once
}

func newSession(user string, mailboxSize int) *Session {
	return &Session{
		user:    user,
		id:      uuid.New(),
		mailbox: make(chan model.Message, mailboxSize),
		done:    make(chan struct{}),
	}
}

func (s *Session) ID() uuid.UUID { return s.id }

func (s *Session) User() string { return s.user }

// Recv is the mailbox feed for the monitor loop. Waiting on it is the
// notification primitive; there is no polling anywhere in the hub.
func (s *Session) Recv() <-chan model.Message { return s.mailbox }

// Done is closed when the session is detached or displaced.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}
