package storage

import (
	"context"
	"fmt"

	"github.com/courierchat/courier/internal/domain/model"
)

// InsertMessage persists one message with its pending flag.
func (s *Store) InsertMessage(ctx context.Context, m model.Message) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (sender, recipient, body, timestamp, pending) VALUES (?, ?, ?, ?, ?)`,
		m.Sender, m.Recipient, m.Body, m.Timestamp, m.Pending,
	); err != nil {
		return fmt.Errorf("%w: insert message: %v", model.ErrStoreFailure, err)
	}
	return nil
}

// PendingFor lists the recipient's undelivered messages, oldest first.
func (s *Store) PendingFor(ctx context.Context, recipient string) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender, recipient, body, timestamp, pending
		 FROM messages
		 WHERE recipient = ? AND pending = TRUE
		 ORDER BY timestamp ASC`, recipient)
	if err != nil {
		return nil, fmt.Errorf("%w: pending messages: %v", model.ErrStoreFailure, err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// MarkDelivered flips one message to non-pending.
func (s *Store) MarkDelivered(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE messages SET pending = FALSE WHERE id = ?`, id,
	); err != nil {
		return fmt.Errorf("%w: mark delivered: %v", model.ErrStoreFailure, err)
	}
	return nil
}

// HistoryFor lists delivered messages the user sent or received, ordered by
// timestamp ascending.
func (s *Store) HistoryFor(ctx context.Context, username string) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender, recipient, body, timestamp, pending
		 FROM messages
		 WHERE pending = FALSE AND (sender = ? OR recipient = ?)
		 ORDER BY timestamp ASC`, username, username)
	if err != nil {
		return nil, fmt.Errorf("%w: message history: %v", model.ErrStoreFailure, err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanMessages(rows rowScanner) ([]model.Message, error) {
	var out []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.Sender, &m.Recipient, &m.Body, &m.Timestamp, &m.Pending); err != nil {
			return nil, fmt.Errorf("%w: scan message: %v", model.ErrStoreFailure, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
