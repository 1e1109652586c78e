package generator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alenia-group/quotation-cli/internal/model"
)

func writeArtifact(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 stub\n"), 0o644))
	return path
}

// downloadableBatch is a terminal batch with artifacts on disk.
func downloadableBatch(t *testing.T, st *memStorage) *model.QuotationBatch {
	t.Helper()
	dir := t.TempDir()

	q1 := validQuotation(1, "R1", "Jean Dupont")
	q1.MarkCompleted(writeArtifact(t, dir, "001_Jean_Dupont.pdf"))
	q2 := validQuotation(2, "R2", "Marie Curie")
	q2.MarkFailed("BoondManager: api error 400")

	batch := testBatch(q1, q2)
	batch.Status = model.BatchStatusPartial
	batch.MergedPDFPath = writeArtifact(t, dir, "quotations_merged.pdf")
	batch.ZipFilePath = writeArtifact(t, dir, "quotations.zip")

	require.NoError(t, st.SaveBatch(context.Background(), batch, model.DownloadTTL))
	return batch
}

func TestDownloader_MergedAndZip(t *testing.T) {
	st := newMemStorage()
	batch := downloadableBatch(t, st)
	d := NewDownloader(st)

	f, err := d.Merged(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, batch.MergedPDFPath, f.Name())
	f.Close()

	f, err = d.Zip(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, batch.ZipFilePath, f.Name())
	f.Close()
}

func TestDownloader_Item(t *testing.T) {
	st := newMemStorage()
	batch := downloadableBatch(t, st)
	d := NewDownloader(st)

	f, err := d.Item(context.Background(), batch.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, batch.Quotations[0].PDFPath, f.Name())
	f.Close()

	// A failed quotation has nothing to download.
	_, err = d.Item(context.Background(), batch.ID, 2)
	var notReady *DownloadNotReadyError
	require.ErrorAs(t, err, &notReady)
	assert.Contains(t, notReady.Reason, "row 2")

	// Unknown row index.
	_, err = d.Item(context.Background(), batch.ID, 99)
	require.ErrorAs(t, err, &notReady)
	assert.Contains(t, notReady.Reason, "no quotation at row 99")
}

func TestDownloader_RefusesNonTerminalBatch(t *testing.T) {
	st := newMemStorage()
	d := NewDownloader(st)

	for _, status := range []model.BatchStatus{
		model.BatchStatusPending,
		model.BatchStatusProcessing,
	} {
		batch := testBatch(validQuotation(1, "R1", "Jean Dupont"))
		batch.ID = "batch-" + string(status)
		batch.Status = status
		require.NoError(t, st.SaveBatch(context.Background(), batch, model.ConfirmTTL))

		_, err := d.Merged(context.Background(), batch.ID)
		var notReady *DownloadNotReadyError
		require.ErrorAs(t, err, &notReady, "status %s must refuse downloads", status)
		assert.Contains(t, notReady.Reason, string(status))
	}
}

func TestDownloader_RefusesFullyFailedBatch(t *testing.T) {
	st := newMemStorage()
	d := NewDownloader(st)

	q := validQuotation(1, "R1", "Jean Dupont")
	q.MarkFailed("Validation errors")
	batch := testBatch(q)
	batch.Status = model.BatchStatusFailed
	require.NoError(t, st.SaveBatch(context.Background(), batch, model.DownloadTTL))

	_, err := d.Zip(context.Background(), batch.ID)
	var notReady *DownloadNotReadyError
	require.ErrorAs(t, err, &notReady)
}

func TestDownloader_MissingArtifact(t *testing.T) {
	st := newMemStorage()
	d := NewDownloader(st)

	q := validQuotation(1, "R1", "Jean Dupont")
	q.MarkCompleted(filepath.Join(t.TempDir(), "gone.pdf"))
	batch := testBatch(q)
	batch.Status = model.BatchStatusCompleted
	require.NoError(t, st.SaveBatch(context.Background(), batch, model.DownloadTTL))

	// Merged PDF was never produced.
	_, err := d.Merged(context.Background(), batch.ID)
	var notReady *DownloadNotReadyError
	require.ErrorAs(t, err, &notReady)
	assert.Contains(t, notReady.Reason, "not produced")

	// Item artifact existed but was removed from disk.
	_, err = d.Item(context.Background(), batch.ID, 1)
	require.ErrorAs(t, err, &notReady)
	assert.Contains(t, notReady.Reason, "no longer on disk")
}

func TestDownloader_UnknownBatch(t *testing.T) {
	d := NewDownloader(newMemStorage())

	_, err := d.Merged(context.Background(), "ghost")
	var notFound *BatchNotFoundError
	require.ErrorAs(t, err, &notFound)
}
