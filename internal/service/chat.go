// Package service holds the local-effect implementations of every chat
// operation. Routing (forward to leader, fan out to replicas) is the RPC
// layer's concern; everything here acts on this server's store and hub only.
package service

import (
	"context"
	"log/slog"

	"github.com/courierchat/courier/infra/metrics"
	"github.com/courierchat/courier/internal/auth"
	"github.com/courierchat/courier/internal/domain/model"
	"github.com/courierchat/courier/internal/domain/registry"
	"github.com/courierchat/courier/internal/storage"
)

// Chatter is the contract the RPC surface programs against.
type Chatter interface {
	Register(ctx context.Context, username, password, email string) error
	Login(ctx context.Context, username, password string) error
	Usernames(ctx context.Context) ([]string, error)
	Settings(ctx context.Context, username string) (int32, error)
	SaveSettings(ctx context.Context, username string, limit int32) error
	DeleteAccount(ctx context.Context, username string) error
	Send(ctx context.Context, m model.Message) error
	DrainPending(ctx context.Context, username string, limit int32, yield func(model.Message) error) error
	History(ctx context.Context, username string, yield func(model.Message) error) error
}

type chatService struct {
	store   *storage.Store
	auth    *auth.Service
	hub     *registry.Hub
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewChatService(store *storage.Store, a *auth.Service, hub *registry.Hub, mt *metrics.Metrics, logger *slog.Logger) Chatter {
	return &chatService{
		store:   store,
		auth:    a,
		hub:     hub,
		metrics: mt,
		logger:  logger,
	}
}

func (s *chatService) Register(ctx context.Context, username, password, email string) error {
	return s.auth.Register(ctx, username, password, email)
}

func (s *chatService) Login(ctx context.Context, username, password string) error {
	return s.auth.Authenticate(ctx, username, password)
}

func (s *chatService) Usernames(ctx context.Context) ([]string, error) {
	return s.store.ListUsernames(ctx)
}

func (s *chatService) Settings(ctx context.Context, username string) (int32, error) {
	return s.store.InboxLimit(ctx, username)
}

func (s *chatService) SaveSettings(ctx context.Context, username string, limit int32) error {
	if limit <= 0 {
		limit = model.DefaultInboxLimit
	}
	return s.store.SaveInboxLimit(ctx, username, limit)
}

func (s *chatService) DeleteAccount(ctx context.Context, username string) error {
	// Messages are not cascaded; the peer side keeps its history.
	return s.store.DeleteUser(ctx, username)
}

// Send attempts live delivery and persists the message. The pending flag is
// decided by whether a live subscription on this server accepted the
// message, atomically with the hub's decision.
func (s *chatService) Send(ctx context.Context, m model.Message) error {
	delivered := s.hub.Deliver(m)
	m.Pending = !delivered

	if err := s.store.InsertMessage(ctx, m); err != nil {
		return err
	}

	if delivered {
		s.metrics.MessagesDelivered.Inc()
	} else {
		s.metrics.MessagesPending.Inc()
	}
	return nil
}

// DrainPending yields up to limit pending messages for the user, flipping
// each to delivered as it is yielded. A message is flipped in its own store
// transaction immediately before the yield; a failed yield stops the drain.
func (s *chatService) DrainPending(ctx context.Context, username string, limit int32, yield func(model.Message) error) error {
	pending, err := s.store.PendingFor(ctx, username)
	if err != nil {
		return err
	}

	for i, m := range pending {
		if int32(i) >= limit {
			break
		}
		if err := s.store.MarkDelivered(ctx, m.ID); err != nil {
			return err
		}
		m.Pending = false
		if err := yield(m); err != nil {
			return err
		}
	}
	return nil
}

func (s *chatService) History(ctx context.Context, username string, yield func(model.Message) error) error {
	history, err := s.store.HistoryFor(ctx, username)
	if err != nil {
		return err
	}
	for _, m := range history {
		if err := yield(m); err != nil {
			return err
		}
	}
	return nil
}
