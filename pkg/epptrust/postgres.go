package epptrust

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore is the optional durable trust-registry backend (spec §4.4
// Open Questions: FileStore is normative, Postgres is an additive option
// for operators who need multi-instance convergence without a shared disk).
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an already-opened *sql.DB. The caller owns the
// connection's lifecycle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const postgresTrustSchema = `
CREATE TABLE IF NOT EXISTS epp_trust_entries (
	sender_key TEXT PRIMARY KEY,
	entry_json JSONB NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`

// Init creates the backing table if it does not already exist.
func (s *PostgresStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, postgresTrustSchema)
	return err
}

// Load returns every trust entry currently stored.
func (s *PostgresStore) Load() (map[string]Entry, error) {
	ctx := context.Background()
	rows, err := s.db.QueryContext(ctx, "SELECT sender_key, entry_json FROM epp_trust_entries")
	if err != nil {
		return nil, fmt.Errorf("epptrust: query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make(map[string]Entry)
	for rows.Next() {
		var senderKey string
		var raw []byte
		if err := rows.Scan(&senderKey, &raw); err != nil {
			return nil, fmt.Errorf("epptrust: scan: %w", err)
		}
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("epptrust: decode entry for %s: %w", senderKey, err)
		}
		entries[senderKey] = e
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Save replaces the entire trust table contents with entries.
func (s *PostgresStore) Save(entries map[string]Entry) error {
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("epptrust: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM epp_trust_entries"); err != nil {
		return fmt.Errorf("epptrust: clear table: %w", err)
	}

	now := time.Now().UTC()
	for senderKey, e := range entries {
		raw, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("epptrust: marshal entry for %s: %w", senderKey, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO epp_trust_entries (sender_key, entry_json, updated_at) VALUES ($1, $2, $3)
			 ON CONFLICT (sender_key) DO UPDATE SET entry_json = $2, updated_at = $3`,
			senderKey, raw, now)
		if err != nil {
			return fmt.Errorf("epptrust: upsert entry for %s: %w", senderKey, err)
		}
	}

	return tx.Commit()
}
