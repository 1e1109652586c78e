package ingest

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/alenia-group/quotation-cli/internal/model"
)

var header = []string{
	"resource_id", "resource_name", "trigramme", "opportunity_id",
	"company_id", "contact_id", "tjm", "quantity", "period_start",
	"period_end", "max_price", "complexity", "domain_code",
	"activity_code", "sow_reference", "comments",
}

func validRow(name, trigramme string) []string {
	return []string{
		"res-1", name, trigramme, "opp-1",
		"co-1", "ct-1", "650,00", "20", "01/09/2026",
		"31/12/2026", "14000", "standard", "D12",
		"A3", "SOW-77", "RAS",
	}
}

func buildWorkbook(t *testing.T, rows [][]string) *bytes.Reader {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Devis")
	require.NoError(t, err)
	for _, rowData := range rows {
		row := sheet.AddRow()
		for _, cellData := range rowData {
			row.AddCell().SetString(cellData)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return bytes.NewReader(buf.Bytes())
}

func TestParseWorkbook_ValidRows(t *testing.T) {
	r := buildWorkbook(t, [][]string{
		header,
		validRow("Jean Dupont", "JDU"),
		validRow("Marie Curie", "MCU"),
	})

	batch, err := ParseWorkbook(r, "alice")
	require.NoError(t, err)

	assert.NotEmpty(t, batch.ID)
	assert.Equal(t, "alice", batch.UserID)
	assert.Equal(t, model.BatchStatusPending, batch.Status)
	require.Len(t, batch.Quotations, 2)

	q := batch.Quotations[0]
	assert.True(t, q.IsValid)
	assert.Empty(t, q.ValidationErrors)
	assert.Equal(t, 1, q.RowIndex)
	assert.Equal(t, "Jean Dupont", q.ResourceName)
	assert.Equal(t, "JDU", q.ResourceTrigramme)
	assert.Equal(t, model.QuotationStatusPending, q.Status)

	// French comma decimals parse; totals are derived.
	assert.InDelta(t, 650.0, q.TJM, 0.001)
	assert.InDelta(t, 20.0, q.Quantity, 0.001)
	assert.InDelta(t, 13000.0, q.TotalHT, 0.001)
	assert.InDelta(t, 15600.0, q.TotalTTC, 0.001)

	assert.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), q.Period.Start)
	assert.Equal(t, time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC), q.Period.End)
}

func TestParseWorkbook_TrigrammeIsUppercased(t *testing.T) {
	row := validRow("Jean Dupont", "jdu")
	r := buildWorkbook(t, [][]string{header, row})

	batch, err := ParseWorkbook(r, "alice")
	require.NoError(t, err)
	assert.Equal(t, "JDU", batch.Quotations[0].ResourceTrigramme)
	assert.True(t, batch.Quotations[0].IsValid)
}

func TestParseWorkbook_InvalidRowsAreKept(t *testing.T) {
	missing := validRow("Jean Dupont", "JDU")
	missing[3] = "" // opportunity_id

	badAmount := validRow("Marie Curie", "MCU")
	badAmount[6] = "six cents" // tjm

	badTrigramme := validRow("Ada Lovelace", "ADAL")

	inverted := validRow("Alan Turing", "ATU")
	inverted[8], inverted[9] = "31/12/2026", "01/09/2026"

	r := buildWorkbook(t, [][]string{header, missing, badAmount, badTrigramme, inverted})

	batch, err := ParseWorkbook(r, "alice")
	require.NoError(t, err)
	require.Len(t, batch.Quotations, 4)

	for i, wantErr := range []string{
		"missing opportunity_id",
		"invalid tjm",
		"must be 3 letters",
		"period ends before it starts",
	} {
		q := batch.Quotations[i]
		assert.False(t, q.IsValid, "row %d should be invalid", q.RowIndex)
		require.NotEmpty(t, q.ValidationErrors, "row %d", q.RowIndex)
		assert.Contains(t, q.ValidationErrors[0], wantErr)
	}
}

func TestParseWorkbook_NonPositiveAmountsAreInvalid(t *testing.T) {
	zeroTJM := validRow("Jean Dupont", "JDU")
	zeroTJM[6] = "0"

	negativeQty := validRow("Marie Curie", "MCU")
	negativeQty[7] = "-5"

	zeroMax := validRow("Ada Lovelace", "ADA")
	zeroMax[10] = "0,00"

	r := buildWorkbook(t, [][]string{header, zeroTJM, negativeQty, zeroMax})

	batch, err := ParseWorkbook(r, "alice")
	require.NoError(t, err)
	require.Len(t, batch.Quotations, 3)

	for i, wantErr := range []string{
		"tjm must be positive",
		"quantity must be positive",
		"max_price must be positive",
	} {
		q := batch.Quotations[i]
		assert.False(t, q.IsValid, "row %d should be invalid", q.RowIndex)
		require.NotEmpty(t, q.ValidationErrors, "row %d", q.RowIndex)
		assert.Contains(t, q.ValidationErrors[0], wantErr)
	}
}

func TestParseWorkbook_BlankRowsAreSkipped(t *testing.T) {
	r := buildWorkbook(t, [][]string{
		header,
		validRow("Jean Dupont", "JDU"),
		{"", "", "", ""},
		validRow("Marie Curie", "MCU"),
	})

	batch, err := ParseWorkbook(r, "alice")
	require.NoError(t, err)
	require.Len(t, batch.Quotations, 2)
	// Row indices reflect spreadsheet positions, not compacted order.
	assert.Equal(t, 1, batch.Quotations[0].RowIndex)
	assert.Equal(t, 3, batch.Quotations[1].RowIndex)
}

func TestParseWorkbook_NoQuotationRows(t *testing.T) {
	r := buildWorkbook(t, [][]string{header})

	_, err := ParseWorkbook(r, "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no quotation rows")
}

func TestParseWorkbook_NotASpreadsheet(t *testing.T) {
	_, err := ParseWorkbook(bytes.NewReader([]byte("not an xlsx file")), "alice")
	assert.Error(t, err)
}

func TestParseDate_Layouts(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"01/09/2026", "2026-09-01"} {
		d, err := parseDate(s)
		require.NoError(t, err, s)
		assert.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), d)
	}

	_, err := parseDate("septembre 2026")
	assert.Error(t, err)
}

func TestParseAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"650", 650, false},
		{"650,50", 650.50, false},
		{"1 250,75", 1250.75, false},
		{"14000.00", 14000, false},
		{"", 0, true},
		{"abc", 0, true},
	}

	for _, tt := range tests {
		got, err := parseAmount(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.InDelta(t, tt.want, got, 0.001, tt.in)
	}
}
