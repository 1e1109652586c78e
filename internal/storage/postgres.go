package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/alenia-group/quotation-cli/internal/model"
)

// Pool abstracts the pgx connection pool for tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresStorage implements Storage using pgxpool. Expiry is lazy, same as
// the SQLite backend.
type PostgresStorage struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS batches (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	status     TEXT NOT NULL,
	payload    JSONB NOT NULL,
	progress   JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_batches_user_id ON batches(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_batches_expires_at ON batches(expires_at);
`

// NewPostgres creates a PostgresStorage with its own connection pool and
// ensures the schema exists.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStorage, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}

	s := &PostgresStorage{pool: pool, closeFn: pool.Close}
	if _, err := pool.Exec(ctx, postgresMigration); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: migrate")
	}
	return s, nil
}

// NewPostgresWithPool wraps an existing pool, used by tests.
func NewPostgresWithPool(pool Pool) *PostgresStorage {
	return &PostgresStorage{pool: pool}
}

func (s *PostgresStorage) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStorage) SaveBatch(ctx context.Context, batch *model.QuotationBatch, ttl time.Duration) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal batch")
	}
	progress, err := json.Marshal(batch.Snapshot())
	if err != nil {
		return eris.Wrap(err, "postgres: marshal progress")
	}
	expiresAt := time.Now().UTC().Add(ttl)

	_, err = s.pool.Exec(ctx,
		`INSERT INTO batches (id, user_id, status, payload, progress, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
		   status = $3, payload = $4, progress = $5, expires_at = $7`,
		batch.ID, batch.UserID, string(batch.Status),
		payload, progress, batch.CreatedAt.UTC(), expiresAt,
	)
	return eris.Wrapf(err, "postgres: save batch %s", batch.ID)
}

func (s *PostgresStorage) GetBatch(ctx context.Context, id string) (*model.QuotationBatch, error) {
	var payload []byte
	var expiresAt time.Time

	err := s.pool.QueryRow(ctx,
		`SELECT payload, expires_at FROM batches WHERE id = $1`, id,
	).Scan(&payload, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get batch %s", id)
	}
	if !expiresAt.After(time.Now().UTC()) {
		return nil, ErrExpired
	}

	var batch model.QuotationBatch
	if err := json.Unmarshal(payload, &batch); err != nil {
		return nil, eris.Wrapf(err, "postgres: unmarshal batch %s", id)
	}
	if err := batch.ValidateStatuses(); err != nil {
		return nil, eris.Wrapf(err, "postgres: batch %s", id)
	}
	return &batch, nil
}

func (s *PostgresStorage) GetBatchProgress(ctx context.Context, id string) (*model.Progress, error) {
	var progressJSON []byte
	var expiresAt time.Time

	err := s.pool.QueryRow(ctx,
		`SELECT progress, expires_at FROM batches WHERE id = $1`, id,
	).Scan(&progressJSON, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get progress %s", id)
	}
	if !expiresAt.After(time.Now().UTC()) {
		return nil, ErrExpired
	}

	var progress model.Progress
	if err := json.Unmarshal(progressJSON, &progress); err != nil {
		return nil, eris.Wrapf(err, "postgres: unmarshal progress %s", id)
	}
	if _, err := model.ParseBatchStatus(string(progress.Status)); err != nil {
		return nil, eris.Wrapf(err, "postgres: progress %s", id)
	}
	return &progress, nil
}

func (s *PostgresStorage) ListUserBatches(ctx context.Context, userID string, limit int) ([]model.QuotationBatch, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx,
		`SELECT payload FROM batches
		 WHERE user_id = $1 AND expires_at > now()
		 ORDER BY created_at DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list batches for %s", userID)
	}
	defer rows.Close()

	var batches []model.QuotationBatch
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan batch")
		}
		var batch model.QuotationBatch
		if err := json.Unmarshal(payload, &batch); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal batch")
		}
		if err := batch.ValidateStatuses(); err != nil {
			return nil, eris.Wrap(err, "postgres: list batches")
		}
		batches = append(batches, batch)
	}
	return batches, eris.Wrap(rows.Err(), "postgres: list batches iterate")
}

// DeleteExpired removes rows whose TTL has lapsed and reports the count.
func (s *PostgresStorage) DeleteExpired(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM batches WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired")
	}
	return int(tag.RowsAffected()), nil
}
