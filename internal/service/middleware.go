package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/courierchat/courier/internal/domain/model"
)

// chatMiddleware decorates a Chatter with debug timing on the write paths.
// Installed through fx.Decorate so every consumer sees the wrapped service.
type chatMiddleware struct {
	next   Chatter
	logger *slog.Logger
}

func NewChatMiddleware(next Chatter, logger *slog.Logger) Chatter {
	return &chatMiddleware{next: next, logger: logger}
}

func (m *chatMiddleware) observe(op string, start time.Time, err error) {
	m.logger.Debug("op served",
		"op", op,
		"duration_ms", time.Since(start).Milliseconds(),
		"success", err == nil,
	)
}

func (m *chatMiddleware) Register(ctx context.Context, username, password, email string) error {
	start := time.Now()
	err := m.next.Register(ctx, username, password, email)
	m.observe("register", start, err)
	return err
}

func (m *chatMiddleware) Login(ctx context.Context, username, password string) error {
	start := time.Now()
	err := m.next.Login(ctx, username, password)
	m.observe("login", start, err)
	return err
}

func (m *chatMiddleware) Usernames(ctx context.Context) ([]string, error) {
	return m.next.Usernames(ctx)
}

func (m *chatMiddleware) Settings(ctx context.Context, username string) (int32, error) {
	return m.next.Settings(ctx, username)
}

func (m *chatMiddleware) SaveSettings(ctx context.Context, username string, limit int32) error {
	start := time.Now()
	err := m.next.SaveSettings(ctx, username, limit)
	m.observe("save_settings", start, err)
	return err
}

func (m *chatMiddleware) DeleteAccount(ctx context.Context, username string) error {
	start := time.Now()
	err := m.next.DeleteAccount(ctx, username)
	m.observe("delete_account", start, err)
	return err
}

func (m *chatMiddleware) Send(ctx context.Context, msg model.Message) error {
	start := time.Now()
	err := m.next.Send(ctx, msg)
	m.observe("send", start, err)
	return err
}

func (m *chatMiddleware) DrainPending(ctx context.Context, username string, limit int32, yield func(model.Message) error) error {
	start := time.Now()
	err := m.next.DrainPending(ctx, username, limit, yield)
	m.observe("drain_pending", start, err)
	return err
}

func (m *chatMiddleware) History(ctx context.Context, username string, yield func(model.Message) error) error {
	return m.next.History(ctx, username, yield)
}
