package generator

import (
	"errors"
	"fmt"

	"github.com/alenia-group/quotation-cli/internal/storage"
)

// BatchNotFoundError is a precondition failure: no batch exists under the
// id. Never retried; batch existence is the caller's responsibility.
type BatchNotFoundError struct {
	BatchID string
}

func (e *BatchNotFoundError) Error() string {
	return fmt.Sprintf("generator: batch %s not found", e.BatchID)
}

// BatchExpiredError is a precondition failure: the batch existed but its
// storage TTL lapsed before generation or download.
type BatchExpiredError struct {
	BatchID string
}

func (e *BatchExpiredError) Error() string {
	return fmt.Sprintf("generator: batch %s expired", e.BatchID)
}

// TemplateNotFoundError is a precondition failure: the named template does
// not exist. The batch is marked failed without any per-item processing.
type TemplateNotFoundError struct {
	Name string
}

func (e *TemplateNotFoundError) Error() string {
	return fmt.Sprintf("generator: template %q not found", e.Name)
}

// GenerationInProgressError refuses a second launch while a batch's job is
// still running: only one background unit of work may mutate a batch.
type GenerationInProgressError struct {
	BatchID string
}

func (e *GenerationInProgressError) Error() string {
	return fmt.Sprintf("generator: batch %s generation already in progress", e.BatchID)
}

// DownloadNotReadyError refuses a download with the specific reason: wrong
// batch state or missing artifact, never a bare I/O error.
type DownloadNotReadyError struct {
	BatchID string
	Reason  string
}

func (e *DownloadNotReadyError) Error() string {
	return fmt.Sprintf("generator: batch %s not ready for download: %s", e.BatchID, e.Reason)
}

// mapStorageErr translates storage sentinels into the typed precondition
// errors of the use-case layer.
func mapStorageErr(err error, batchID string) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return &BatchNotFoundError{BatchID: batchID}
	case errors.Is(err, storage.ErrExpired):
		return &BatchExpiredError{BatchID: batchID}
	default:
		return err
	}
}
