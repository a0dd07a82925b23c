package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/courierchat/courier/internal/domain/model"
)

// CreateUser inserts a new account. A taken username maps to
// model.ErrDuplicateKey; the existing row is left untouched.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash, email string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", model.ErrStoreFailure, err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE username = ?`, username).Scan(&exists)
	switch {
	case err == nil:
		return model.ErrDuplicateKey
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%w: lookup: %v", model.ErrStoreFailure, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, email) VALUES (?, ?, ?)`,
		username, passwordHash, email,
	); err != nil {
		return fmt.Errorf("%w: insert user: %v", model.ErrStoreFailure, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", model.ErrStoreFailure, err)
	}
	return nil
}

// PasswordHash fetches the stored credential for the username.
func (s *Store) PasswordHash(ctx context.Context, username string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT password_hash FROM users WHERE username = ?`, username,
	).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", model.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: password lookup: %v", model.ErrStoreFailure, err)
	}
	return hash, nil
}

func (s *Store) UpdateLastLogin(ctx context.Context, username string, at time.Time) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_login = ? WHERE username = ?`,
		at.UTC().Format(time.RFC3339), username,
	); err != nil {
		return fmt.Errorf("%w: update last_login: %v", model.ErrStoreFailure, err)
	}
	return nil
}

// ListUsernames returns every registered username on this server.
func (s *Store) ListUsernames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT username FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("%w: list users: %v", model.ErrStoreFailure, err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("%w: scan user: %v", model.ErrStoreFailure, err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// DeleteUser removes the account row. Messages are deliberately not
// cascaded; history involving the account survives its deletion.
func (s *Store) DeleteUser(ctx context.Context, username string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE username = ?`, username)
	if err != nil {
		return fmt.Errorf("%w: delete user: %v", model.ErrStoreFailure, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %v", model.ErrStoreFailure, err)
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// InboxLimit reads the user's pending-drain limit.
func (s *Store) InboxLimit(ctx context.Context, username string) (int32, error) {
	var limit int32
	err := s.db.QueryRowContext(ctx,
		`SELECT inbox_limit FROM users WHERE username = ?`, username,
	).Scan(&limit)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, model.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("%w: inbox limit lookup: %v", model.ErrStoreFailure, err)
	}
	return limit, nil
}

// SaveInboxLimit updates the user's pending-drain limit. Idempotent on equal
// inputs.
func (s *Store) SaveInboxLimit(ctx context.Context, username string, limit int32) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET inbox_limit = ? WHERE username = ?`, limit, username,
	)
	if err != nil {
		return fmt.Errorf("%w: save inbox limit: %v", model.ErrStoreFailure, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %v", model.ErrStoreFailure, err)
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}
