// Package postgres provides a PostgreSQL ExecutionStore built on pgx/v5.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/codexec/pkg/api"
	"github.com/rhuss/codexec/pkg/storage"
)

// Store is a PostgreSQL-backed ExecutionStore.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.ExecutionStore = (*Store)(nil)

// New connects to the database described by cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.applyDefaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}
	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}
	return s, nil
}

const selectColumns = `id, request_id, language, code_sha256, success, error_kind,
	passed, total, duration_ms, created_at`

// Save implements storage.ExecutionStore.
func (s *Store) Save(ctx context.Context, rec *storage.Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO executions (
			id, tenant_id, request_id, language, code_sha256, success, error_kind,
			passed, total, duration_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID, storage.GetTenant(ctx), nullString(rec.RequestID), string(rec.Language),
		rec.CodeSHA256, rec.Success, nullString(string(rec.ErrorKind)),
		rec.Passed, rec.Total, rec.DurationMS, rec.CreatedAt,
	)
	if isDuplicateKey(err) {
		return storage.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("inserting execution: %w", err)
	}
	return nil
}

// Get implements storage.ExecutionStore.
func (s *Store) Get(ctx context.Context, id string) (*storage.Record, error) {
	query := "SELECT " + selectColumns + " FROM executions WHERE id = $1"
	args := []any{id}
	if tenant := storage.GetTenant(ctx); tenant != "" {
		query += " AND tenant_id = $2"
		args = append(args, tenant)
	}

	rec, err := scanRecord(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying execution: %w", err)
	}
	return rec, nil
}

// List implements storage.ExecutionStore.
func (s *Store) List(ctx context.Context, limit int) ([]*storage.Record, error) {
	query := "SELECT " + selectColumns + " FROM executions"
	args := []any{storage.ClampLimit(limit)}
	if tenant := storage.GetTenant(ctx); tenant != "" {
		query += " WHERE tenant_id = $2"
		args = append(args, tenant)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT $1"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing executions: %w", err)
	}
	defer rows.Close()

	out := []*storage.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning execution: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// HealthCheck pings the database.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanRecord(row pgx.Row) (*storage.Record, error) {
	var (
		rec       storage.Record
		requestID *string
		language  string
		errorKind *string
	)
	err := row.Scan(&rec.ID, &requestID, &language, &rec.CodeSHA256, &rec.Success, &errorKind,
		&rec.Passed, &rec.Total, &rec.DurationMS, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	rec.Language = api.Language(language)
	if requestID != nil {
		rec.RequestID = *requestID
	}
	if errorKind != nil {
		rec.ErrorKind = api.ErrorKind(*errorKind)
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return &rec, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// isDuplicateKey reports a unique_violation.
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
