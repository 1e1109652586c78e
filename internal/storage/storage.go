// Package storage persists quotation batches under explicit TTLs: a short
// window while a batch awaits confirmation, an extended one once it is
// terminal so the download window is guaranteed. Entries expire on their
// own; nothing is ever partially deleted.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/alenia-group/quotation-cli/internal/model"
)

var (
	// ErrNotFound is returned when no batch exists under the given id.
	ErrNotFound = errors.New("storage: batch not found")

	// ErrExpired is returned when a batch exists but its TTL has lapsed.
	// Backends that physically drop expired entries return ErrNotFound
	// instead.
	ErrExpired = errors.New("storage: batch expired")
)

// Storage is the persistence port for quotation batches. Only the
// background unit running a batch mutates its record; concurrent reads are
// lock-free and may observe an in-progress snapshot.
type Storage interface {
	// SaveBatch persists the full batch state under the given TTL,
	// replacing any previous snapshot.
	SaveBatch(ctx context.Context, batch *model.QuotationBatch, ttl time.Duration) error

	// GetBatch loads the full batch state.
	GetBatch(ctx context.Context, id string) (*model.QuotationBatch, error)

	// GetBatchProgress loads the cheap polling projection.
	GetBatchProgress(ctx context.Context, id string) (*model.Progress, error)

	// ListUserBatches returns a user's batches, most recent first.
	ListUserBatches(ctx context.Context, userID string, limit int) ([]model.QuotationBatch, error)

	Close() error
}

// Factory opens an independent storage session. Background units use it to
// get a connection lifetime of their own, released when the unit finishes.
type Factory func(ctx context.Context) (Storage, error)
