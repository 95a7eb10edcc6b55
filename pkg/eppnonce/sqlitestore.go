package eppnonce

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is an optional durable nonce Store backend for deployments
// that need replay protection to survive a process restart (spec §4.5
// notes the default store is process-local; this is the out-of-band
// mirroring operators may choose).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps db, creating the backing table if needed.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const query = `
	CREATE TABLE IF NOT EXISTS epp_nonces (
		nonce TEXT PRIMARY KEY,
		expires_at DATETIME NOT NULL
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// Seen implements Store.
func (s *SQLiteStore) Seen(nonce string) bool {
	var n string
	err := s.db.QueryRowContext(context.Background(),
		"SELECT nonce FROM epp_nonces WHERE nonce = ?", nonce).Scan(&n)
	return err == nil
}

// Put implements Store. The primary key constraint on nonce is the source
// of truth for duplicate detection, not a prior Seen check, so that two
// concurrent Put calls for the same nonce can never both succeed.
func (s *SQLiteStore) Put(nonce string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(context.Background(),
		"INSERT INTO epp_nonces (nonce, expires_at) VALUES (?, ?)",
		nonce, expiresAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		if s.Seen(nonce) {
			return ErrDuplicate
		}
		return fmt.Errorf("eppnonce: insert: %w", err)
	}
	return nil
}

// Sweep implements Store.
func (s *SQLiteStore) Sweep(now time.Time) int {
	res, err := s.db.ExecContext(context.Background(),
		"DELETE FROM epp_nonces WHERE julianday(expires_at) < julianday(?)", now.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0
	}
	n, _ := res.RowsAffected()
	return int(n)
}
