// Package auth implements the credential check over the durable store. The
// hashing primitive is a fixed one-way function; the rest of the core only
// sees opaque digests.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/courierchat/courier/internal/domain/model"
	"github.com/courierchat/courier/internal/storage"
)

// Failure messages surfaced to clients. The login message deliberately does
// not disambiguate unknown users from wrong passwords.
const (
	MsgUsernameExists     = "Username already exists."
	MsgInvalidCredentials = "Invalid username or password"
)

type Service struct {
	store  *storage.Store
	logger *slog.Logger
}

func NewService(store *storage.Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// HashPassword digests the password with SHA-256 and hex-encodes it.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// Register creates the account. A taken username yields ErrDuplicateKey with
// the canonical client message.
func (s *Service) Register(ctx context.Context, username, password, email string) error {
	if username == "" || password == "" {
		return fmt.Errorf("%w: empty username or password", model.ErrAuthFailure)
	}
	err := s.store.CreateUser(ctx, username, HashPassword(password), email)
	if errors.Is(err, model.ErrDuplicateKey) {
		s.logger.Warn("registration rejected, username taken", "username", username)
		return err
	}
	if err != nil {
		return err
	}
	s.logger.Info("user registered", "username", username)
	return nil
}

// Authenticate verifies the credentials and records the login time on
// success. Every failure path maps to ErrAuthFailure.
func (s *Service) Authenticate(ctx context.Context, username, password string) error {
	stored, err := s.store.PasswordHash(ctx, username)
	if errors.Is(err, model.ErrNotFound) {
		return model.ErrAuthFailure
	}
	if err != nil {
		return err
	}

	supplied := HashPassword(password)
	if subtle.ConstantTimeCompare([]byte(stored), []byte(supplied)) != 1 {
		s.logger.Warn("login rejected", "username", username)
		return model.ErrAuthFailure
	}

	if err := s.store.UpdateLastLogin(ctx, username, time.Now()); err != nil {
		// The credential check already passed; a failed bookkeeping write
		// must not lock the user out.
		s.logger.Error("last_login update failed", "username", username, "err", err)
	}
	s.logger.Info("user logged in", "username", username)
	return nil
}
