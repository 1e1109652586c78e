package generator

import (
	"context"

	"github.com/alenia-group/quotation-cli/internal/model"
	"github.com/alenia-group/quotation-cli/internal/storage"
)

// Reader serves the read-side projections. Pure reads, safe at any time
// including mid-run; a snapshot may be in progress but is always coherent.
type Reader struct {
	storage storage.Storage
}

// NewReader creates a Reader.
func NewReader(st storage.Storage) *Reader {
	return &Reader{storage: st}
}

// Progress returns the lightweight polling snapshot.
func (r *Reader) Progress(ctx context.Context, batchID string) (*model.Progress, error) {
	progress, err := r.storage.GetBatchProgress(ctx, batchID)
	if err != nil {
		return nil, mapStorageErr(err, batchID)
	}
	return progress, nil
}

// Details returns the full batch with per-quotation state.
func (r *Reader) Details(ctx context.Context, batchID string) (*model.QuotationBatch, error) {
	batch, err := r.storage.GetBatch(ctx, batchID)
	if err != nil {
		return nil, mapStorageErr(err, batchID)
	}
	return batch, nil
}

// ListUserBatches returns a user's batches, most recent first.
func (r *Reader) ListUserBatches(ctx context.Context, userID string, limit int) ([]model.QuotationBatch, error) {
	return r.storage.ListUserBatches(ctx, userID, limit)
}
