package model

import (
	"fmt"
	"time"
)

// Storage TTLs. A batch is held briefly while awaiting confirmation, then
// re-persisted with an extended window once terminal so downloads stay
// available.
const (
	ConfirmTTL  = 1 * time.Hour
	DownloadTTL = 24 * time.Hour
)

// BatchStatus represents the overall state of a quotation batch.
type BatchStatus string

const (
	BatchStatusPending    BatchStatus = "pending"
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusPartial    BatchStatus = "partial"
	BatchStatusFailed     BatchStatus = "failed"
)

// ParseBatchStatus validates a persisted status string.
func ParseBatchStatus(s string) (BatchStatus, error) {
	switch st := BatchStatus(s); st {
	case BatchStatusPending,
		BatchStatusProcessing,
		BatchStatusCompleted,
		BatchStatusPartial,
		BatchStatusFailed:
		return st, nil
	default:
		return "", fmt.Errorf("model: unknown batch status %q", s)
	}
}

// Terminal reports whether the batch has reached an end state.
func (s BatchStatus) Terminal() bool {
	return s == BatchStatusCompleted || s == BatchStatusPartial || s == BatchStatusFailed
}

// QuotationBatch is the set of quotations submitted together (one
// spreadsheet upload) and generated together as a unit.
type QuotationBatch struct {
	ID         string      `json:"id"`
	UserID     string      `json:"user_id"`
	Quotations []Quotation `json:"quotations"`
	Status     BatchStatus `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	MergedPDFPath string `json:"merged_pdf_path,omitempty"`
	ZipFilePath   string `json:"zip_file_path,omitempty"`
	ErrorMessage  string `json:"error_message,omitempty"`
}

// TotalCount is the number of quotations in the batch.
func (b *QuotationBatch) TotalCount() int { return len(b.Quotations) }

// CompletedCount is the number of quotations that finished successfully.
func (b *QuotationBatch) CompletedCount() int {
	return b.countStatus(QuotationStatusCompleted)
}

// FailedCount is the number of quotations that terminated in failure.
func (b *QuotationBatch) FailedCount() int {
	return b.countStatus(QuotationStatusFailed)
}

// PendingCount is the number of quotations not yet terminal, including
// those currently mid-pipeline.
func (b *QuotationBatch) PendingCount() int {
	n := 0
	for i := range b.Quotations {
		if !b.Quotations[i].Status.Terminal() {
			n++
		}
	}
	return n
}

func (b *QuotationBatch) countStatus(s QuotationStatus) int {
	n := 0
	for i := range b.Quotations {
		if b.Quotations[i].Status == s {
			n++
		}
	}
	return n
}

// IsComplete reports whether no quotation is pending or mid-pipeline.
func (b *QuotationBatch) IsComplete() bool {
	return b.PendingCount() == 0
}

// ProgressPercentage is the share of quotations that reached a terminal
// state, 0 for an empty batch.
func (b *QuotationBatch) ProgressPercentage() float64 {
	total := b.TotalCount()
	if total == 0 {
		return 0
	}
	return float64(b.CompletedCount()+b.FailedCount()) / float64(total) * 100
}

// FinalStatus derives the terminal batch status from per-item outcomes:
// completed iff every item completed, partial iff some but not all did,
// failed iff none did (including a batch that never started processing).
func (b *QuotationBatch) FinalStatus() BatchStatus {
	completed := b.CompletedCount()
	failed := b.FailedCount()
	switch {
	case completed > 0 && failed == 0 && completed == b.TotalCount():
		return BatchStatusCompleted
	case completed > 0 && failed > 0:
		return BatchStatusPartial
	default:
		// No item succeeded, including the empty batch and a run that
		// never started processing.
		return BatchStatusFailed
	}
}

// MarkProcessing records the start of generation.
func (b *QuotationBatch) MarkProcessing(now time.Time) {
	b.Status = BatchStatusProcessing
	b.StartedAt = &now
}

// MarkFailed terminates the whole batch with a reason, used for
// precondition failures before any item is touched and by the launcher
// safety net.
func (b *QuotationBatch) MarkFailed(message string, now time.Time) {
	b.Status = BatchStatusFailed
	b.ErrorMessage = message
	b.CompletedAt = &now
}

// Finalize computes and records the terminal status after a full run.
func (b *QuotationBatch) Finalize(now time.Time) {
	b.Status = b.FinalStatus()
	b.CompletedAt = &now
}

// ValidateStatuses rejects a batch whose persisted status strings are not
// members of the closed enums. Storage adapters call this after decoding.
func (b *QuotationBatch) ValidateStatuses() error {
	if _, err := ParseBatchStatus(string(b.Status)); err != nil {
		return err
	}
	for i := range b.Quotations {
		if _, err := ParseQuotationStatus(string(b.Quotations[i].Status)); err != nil {
			return err
		}
	}
	return nil
}

// Progress is a lightweight snapshot of a batch for polling, cheap to
// compute and serialize while a run is in flight.
type Progress struct {
	BatchID            string      `json:"batch_id"`
	Status             BatchStatus `json:"status"`
	TotalCount         int         `json:"total_count"`
	CompletedCount     int         `json:"completed_count"`
	FailedCount        int         `json:"failed_count"`
	PendingCount       int         `json:"pending_count"`
	ProgressPercentage float64     `json:"progress_percentage"`
	ErrorMessage       string      `json:"error_message,omitempty"`
}

// Snapshot builds the polling projection for the batch.
func (b *QuotationBatch) Snapshot() Progress {
	return Progress{
		BatchID:            b.ID,
		Status:             b.Status,
		TotalCount:         b.TotalCount(),
		CompletedCount:     b.CompletedCount(),
		FailedCount:        b.FailedCount(),
		PendingCount:       b.PendingCount(),
		ProgressPercentage: b.ProgressPercentage(),
		ErrorMessage:       b.ErrorMessage,
	}
}
