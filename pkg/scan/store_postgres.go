package scan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSessionStore persists session records as JSONB rows. Unlike the
// Redis store it doubles as a durable archive: ended sessions stay queryable
// until purged.
type PostgresSessionStore struct {
	pool  *pgxpool.Pool
	table string
}

// PostgresStoreOption configures a PostgresSessionStore.
type PostgresStoreOption func(*PostgresSessionStore)

// WithPostgresTable overrides the default "bastion_sessions" table name.
func WithPostgresTable(table string) PostgresStoreOption {
	return func(s *PostgresSessionStore) { s.table = table }
}

// NewPostgresSessionStore wraps an existing connection pool.
func NewPostgresSessionStore(pool *pgxpool.Pool, opts ...PostgresStoreOption) *PostgresSessionStore {
	s := &PostgresSessionStore{
		pool:  pool,
		table: "bastion_sessions",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureSchema creates the session table if it does not exist.
func (s *PostgresSessionStore) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id            TEXT PRIMARY KEY,
			record        JSONB NOT NULL,
			active        BOOLEAN NOT NULL,
			last_activity TIMESTAMPTZ NOT NULL
		)`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Get fetches a record. Returns nil, nil when no row exists.
func (s *PostgresSessionStore) Get(ctx context.Context, id string) (*SessionRecord, error) {
	var data []byte
	query := fmt.Sprintf("SELECT record FROM %s WHERE id = $1", s.table)
	err := s.pool.QueryRow(ctx, query, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres get session %s: %w", id, err)
	}

	var rec SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &rec, nil
}

// Save upserts the record.
func (s *PostgresSessionStore) Save(ctx context.Context, rec *SessionRecord) error {
	if rec == nil {
		return &ValidationError{Field: "record", Reason: "nil"}
	}
	if rec.ID == "" {
		return &ValidationError{Field: "record", Reason: "empty session id"}
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", rec.ID, err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, record, active, last_activity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			record = EXCLUDED.record,
			active = EXCLUDED.active,
			last_activity = EXCLUDED.last_activity`, s.table)
	if _, err := s.pool.Exec(ctx, query, rec.ID, data, rec.Active, rec.LastActivity); err != nil {
		return fmt.Errorf("postgres save session %s: %w", rec.ID, err)
	}
	return nil
}

// Delete removes the record.
func (s *PostgresSessionStore) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.table)
	if _, err := s.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("postgres delete session %s: %w", id, err)
	}
	return nil
}

// PurgeInactive removes inactive sessions idle since before cutoff. Returns
// the number of rows removed.
func (s *PostgresSessionStore) PurgeInactive(ctx context.Context, cutoff time.Time) (int64, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE NOT active AND last_activity < $1", s.table)
	tag, err := s.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres purge: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Close releases the pool.
func (s *PostgresSessionStore) Close() error {
	s.pool.Close()
	return nil
}

var _ SessionStore = (*PostgresSessionStore)(nil)
