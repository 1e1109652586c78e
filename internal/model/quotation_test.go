package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuotationStatusValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status QuotationStatus
		want   string
	}{
		{QuotationStatusPending, "pending"},
		{QuotationStatusCreatingBoond, "creating_boond"},
		{QuotationStatusFillingTemplate, "filling_template"},
		{QuotationStatusConvertingPDF, "converting_pdf"},
		{QuotationStatusCompleted, "completed"},
		{QuotationStatusFailed, "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, string(tt.status))
		})
	}
}

func TestParseQuotationStatus(t *testing.T) {
	t.Parallel()

	for _, valid := range []string{
		"pending", "creating_boond", "filling_template",
		"converting_pdf", "completed", "failed",
	} {
		st, err := ParseQuotationStatus(valid)
		require.NoError(t, err)
		assert.Equal(t, valid, string(st))
	}

	for _, invalid := range []string{"", "done", "PENDING", "in_progress"} {
		_, err := ParseQuotationStatus(invalid)
		assert.Error(t, err, "expected %q to be rejected", invalid)
	}
}

func TestQuotationStatusTerminal(t *testing.T) {
	t.Parallel()

	assert.True(t, QuotationStatusCompleted.Terminal())
	assert.True(t, QuotationStatusFailed.Terminal())

	for _, st := range []QuotationStatus{
		QuotationStatusPending,
		QuotationStatusCreatingBoond,
		QuotationStatusFillingTemplate,
		QuotationStatusConvertingPDF,
	} {
		assert.False(t, st.Terminal(), "%s should not be terminal", st)
	}
}

func TestQuotationTransitions(t *testing.T) {
	t.Parallel()

	q := Quotation{Status: QuotationStatusPending, IsValid: true}

	q.MarkCreatingBoond()
	assert.Equal(t, QuotationStatusCreatingBoond, q.Status)

	q.MarkFillingTemplate("boond-42", "DEV-202608-0001")
	assert.Equal(t, QuotationStatusFillingTemplate, q.Status)
	assert.Equal(t, "boond-42", q.BoondQuotationID)
	assert.Equal(t, "DEV-202608-0001", q.BoondReference)

	q.MarkConvertingPDF()
	assert.Equal(t, QuotationStatusConvertingPDF, q.Status)

	q.MarkCompleted("/out/001_dupont.pdf")
	assert.Equal(t, QuotationStatusCompleted, q.Status)
	assert.Equal(t, "/out/001_dupont.pdf", q.PDFPath)
	assert.Empty(t, q.ErrorMessage)
}

func TestQuotationMarkFailed(t *testing.T) {
	t.Parallel()

	q := Quotation{Status: QuotationStatusCreatingBoond}
	q.MarkFailed("BoondManager: api error 400")

	assert.Equal(t, QuotationStatusFailed, q.Status)
	assert.Equal(t, "BoondManager: api error 400", q.ErrorMessage)
}
