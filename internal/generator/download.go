package generator

import (
	"context"
	"fmt"
	"os"

	"github.com/rotisserie/eris"

	"github.com/alenia-group/quotation-cli/internal/model"
	"github.com/alenia-group/quotation-cli/internal/storage"
)

// Downloader gates access to a batch's artifacts: a file is released only
// once the batch is terminal with at least one success, and only while the
// artifact is still on disk.
type Downloader struct {
	storage storage.Storage
}

// NewDownloader creates a Downloader.
func NewDownloader(st storage.Storage) *Downloader {
	return &Downloader{storage: st}
}

// Merged returns the merged PDF covering every successful quotation.
func (d *Downloader) Merged(ctx context.Context, batchID string) (*os.File, error) {
	batch, err := d.gate(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return d.open(batch.ID, batch.MergedPDFPath, "merged PDF")
}

// Zip returns the archive of individual quotation PDFs.
func (d *Downloader) Zip(ctx context.Context, batchID string) (*os.File, error) {
	batch, err := d.gate(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return d.open(batch.ID, batch.ZipFilePath, "zip archive")
}

// Item returns a single quotation's PDF by row index.
func (d *Downloader) Item(ctx context.Context, batchID string, rowIndex int) (*os.File, error) {
	batch, err := d.gate(ctx, batchID)
	if err != nil {
		return nil, err
	}

	for i := range batch.Quotations {
		q := &batch.Quotations[i]
		if q.RowIndex != rowIndex {
			continue
		}
		if q.Status != model.QuotationStatusCompleted {
			return nil, &DownloadNotReadyError{
				BatchID: batchID,
				Reason:  fmt.Sprintf("quotation at row %d is %s", rowIndex, q.Status),
			}
		}
		return d.open(batch.ID, q.PDFPath, fmt.Sprintf("PDF for row %d", rowIndex))
	}
	return nil, &DownloadNotReadyError{
		BatchID: batchID,
		Reason:  fmt.Sprintf("no quotation at row %d", rowIndex),
	}
}

// gate loads the batch and enforces the download-readiness rule.
func (d *Downloader) gate(ctx context.Context, batchID string) (*model.QuotationBatch, error) {
	batch, err := d.storage.GetBatch(ctx, batchID)
	if err != nil {
		return nil, mapStorageErr(err, batchID)
	}

	if batch.Status != model.BatchStatusCompleted && batch.Status != model.BatchStatusPartial {
		return nil, &DownloadNotReadyError{
			BatchID: batchID,
			Reason:  fmt.Sprintf("batch status is %s", batch.Status),
		}
	}
	return batch, nil
}

// open returns the artifact file, translating any filesystem problem into
// a typed refusal.
func (d *Downloader) open(batchID, path, label string) (*os.File, error) {
	if path == "" {
		return nil, &DownloadNotReadyError{BatchID: batchID, Reason: label + " was not produced"}
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &DownloadNotReadyError{BatchID: batchID, Reason: label + " is no longer on disk"}
		}
		return nil, eris.Wrapf(err, "generator: open %s for batch %s", label, batchID)
	}
	return f, nil
}
