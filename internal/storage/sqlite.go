package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/alenia-group/quotation-cli/internal/model"
)

// SQLiteStorage implements Storage using modernc.org/sqlite. Expiry is
// lazy: reads check expires_at, and DeleteExpired sweeps stale rows.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path, configures WAL mode
// and creates the schema.
func NewSQLite(ctx context.Context, dsn string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}

	s := &SQLiteStorage{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS batches (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	status     TEXT NOT NULL,
	payload    TEXT NOT NULL,
	progress   TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_batches_user_id ON batches(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_batches_expires_at ON batches(expires_at);
`

func (s *SQLiteStorage) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) SaveBatch(ctx context.Context, batch *model.QuotationBatch, ttl time.Duration) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal batch")
	}
	progress, err := json.Marshal(batch.Snapshot())
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal progress")
	}
	expiresAt := time.Now().UTC().Add(ttl)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO batches (id, user_id, status, payload, progress, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   status = excluded.status, payload = excluded.payload,
		   progress = excluded.progress, expires_at = excluded.expires_at`,
		batch.ID, batch.UserID, string(batch.Status),
		string(payload), string(progress), batch.CreatedAt.UTC(), expiresAt,
	)
	return eris.Wrapf(err, "sqlite: save batch %s", batch.ID)
}

func (s *SQLiteStorage) GetBatch(ctx context.Context, id string) (*model.QuotationBatch, error) {
	var payload string
	var expiresAt time.Time

	err := s.db.QueryRowContext(ctx,
		`SELECT payload, expires_at FROM batches WHERE id = ?`, id,
	).Scan(&payload, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "sqlite: get batch %s", id)
	}
	if !expiresAt.After(time.Now().UTC()) {
		return nil, ErrExpired
	}

	var batch model.QuotationBatch
	if err := json.Unmarshal([]byte(payload), &batch); err != nil {
		return nil, eris.Wrapf(err, "sqlite: unmarshal batch %s", id)
	}
	if err := batch.ValidateStatuses(); err != nil {
		return nil, eris.Wrapf(err, "sqlite: batch %s", id)
	}
	return &batch, nil
}

func (s *SQLiteStorage) GetBatchProgress(ctx context.Context, id string) (*model.Progress, error) {
	var progressJSON string
	var expiresAt time.Time

	err := s.db.QueryRowContext(ctx,
		`SELECT progress, expires_at FROM batches WHERE id = ?`, id,
	).Scan(&progressJSON, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "sqlite: get progress %s", id)
	}
	if !expiresAt.After(time.Now().UTC()) {
		return nil, ErrExpired
	}

	var progress model.Progress
	if err := json.Unmarshal([]byte(progressJSON), &progress); err != nil {
		return nil, eris.Wrapf(err, "sqlite: unmarshal progress %s", id)
	}
	if _, err := model.ParseBatchStatus(string(progress.Status)); err != nil {
		return nil, eris.Wrapf(err, "sqlite: progress %s", id)
	}
	return &progress, nil
}

func (s *SQLiteStorage) ListUserBatches(ctx context.Context, userID string, limit int) ([]model.QuotationBatch, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM batches
		 WHERE user_id = ? AND expires_at > ?
		 ORDER BY created_at DESC LIMIT ?`,
		userID, time.Now().UTC(), limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list batches for %s", userID)
	}
	defer rows.Close()

	var batches []model.QuotationBatch
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan batch")
		}
		var batch model.QuotationBatch
		if err := json.Unmarshal([]byte(payload), &batch); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal batch")
		}
		if err := batch.ValidateStatuses(); err != nil {
			return nil, eris.Wrap(err, "sqlite: list batches")
		}
		batches = append(batches, batch)
	}
	return batches, eris.Wrap(rows.Err(), "sqlite: list batches iterate")
}

// DeleteExpired removes rows whose TTL has lapsed and reports the count.
func (s *SQLiteStorage) DeleteExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM batches WHERE expires_at <= ?`, time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return int(n), nil
}
