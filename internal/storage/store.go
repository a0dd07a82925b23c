// Package storage is the per-server durable store: one SQLite database per
// process, named after the server's address so several servers can share a
// host. Every operation runs in its own implicit transaction; the store is
// never shared between servers.
package storage

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	username      TEXT PRIMARY KEY,
	password_hash TEXT NOT NULL,
	email         TEXT,
	created_at    TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	last_login    TIMESTAMP,
	inbox_limit   INTEGER DEFAULT 50
);
CREATE TABLE IF NOT EXISTS messages (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	sender    TEXT NOT NULL,
	recipient TEXT NOT NULL,
	body      TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	pending   BOOLEAN NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_recipient_pending
	ON messages (recipient, pending, timestamp);
`

type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// DBFileName derives the database file name from the server's address.
func DBFileName(ip, port string) string {
	return fmt.Sprintf("%s_%s.db", ip, port)
}

// Open creates or opens the database at dir/<ip>_<port>.db and applies the
// schema.
func Open(logger *slog.Logger, dir, ip, port string) (*Store, error) {
	path := filepath.Join(dir, DBFileName(ip, port))
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", url.PathEscape(path))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: apply schema: %w", err)
	}

	logger.Info("store opened", "path", path)
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
