// Package ingest turns an uploaded spreadsheet into a quotation batch.
// It performs structural parsing and required-field checks only; business
// rules (pricing grids, GFA ceilings) are validated upstream and arrive as
// per-row verdicts the pipeline trusts.
package ingest

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/alenia-group/quotation-cli/internal/model"
)

// Column layout of the quotation spreadsheet, zero-based.
const (
	colResourceID = iota
	colResourceName
	colTrigramme
	colOpportunityID
	colCompanyID
	colContactID
	colTJM
	colQuantity
	colPeriodStart
	colPeriodEnd
	colMaxPrice
	colComplexity
	colDomainCode
	colActivityCode
	colSowReference
	colComments
	columnCount
)

const vatRate = 0.20

var dateLayouts = []string{"02/01/2006", "2006-01-02", "01-02-06"}

// ParseWorkbook reads the first sheet of an xlsx workbook and builds a
// batch for the given user. The first row is treated as a header. Rows
// that fail structural checks are kept with is_valid=false so the
// generator can report them, never silently dropped.
func ParseWorkbook(r io.Reader, userID string) (*model.QuotationBatch, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: read workbook")
	}

	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open workbook")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("ingest: workbook has no sheets")
	}

	batch := &model.QuotationBatch{
		ID:        uuid.New().String(),
		UserID:    userID,
		Status:    model.BatchStatusPending,
		CreatedAt: time.Now().UTC(),
	}

	for i, row := range f.Sheets[0].Rows {
		if i == 0 {
			continue // header
		}
		cells := rowToStrings(row)
		if blankRow(cells) {
			continue
		}
		batch.Quotations = append(batch.Quotations, parseRow(cells, i))
	}

	if len(batch.Quotations) == 0 {
		return nil, eris.New("ingest: workbook has no quotation rows")
	}
	return batch, nil
}

func parseRow(cells []string, rowIndex int) model.Quotation {
	q := model.Quotation{
		ID:       uuid.New().String(),
		RowIndex: rowIndex,
		Status:   model.QuotationStatusPending,
		IsValid:  true,
	}

	get := func(col int) string {
		if col < len(cells) {
			return strings.TrimSpace(cells[col])
		}
		return ""
	}
	fail := func(msg string) {
		q.IsValid = false
		q.ValidationErrors = append(q.ValidationErrors, msg)
	}

	q.ResourceID = get(colResourceID)
	q.ResourceName = get(colResourceName)
	q.ResourceTrigramme = strings.ToUpper(get(colTrigramme))
	q.OpportunityID = get(colOpportunityID)
	q.CompanyID = get(colCompanyID)
	q.ContactID = get(colContactID)
	q.Complexity = get(colComplexity)
	q.DomainCode = get(colDomainCode)
	q.ActivityCode = get(colActivityCode)
	q.SowReference = get(colSowReference)
	q.Comments = get(colComments)

	for _, required := range []struct {
		label string
		value string
	}{
		{"resource_id", q.ResourceID},
		{"resource_name", q.ResourceName},
		{"opportunity_id", q.OpportunityID},
		{"company_id", q.CompanyID},
	} {
		if required.value == "" {
			fail(fmt.Sprintf("missing %s", required.label))
		}
	}

	if len(q.ResourceTrigramme) != 3 {
		fail(fmt.Sprintf("trigramme %q must be 3 letters", q.ResourceTrigramme))
	}

	var err error
	if q.TJM, err = parseAmount(get(colTJM)); err != nil {
		fail("invalid tjm: " + get(colTJM))
	} else if q.TJM <= 0 {
		fail("tjm must be positive: " + get(colTJM))
	}
	if q.Quantity, err = parseAmount(get(colQuantity)); err != nil {
		fail("invalid quantity: " + get(colQuantity))
	} else if q.Quantity <= 0 {
		fail("quantity must be positive: " + get(colQuantity))
	}
	if q.MaxPrice, err = parseAmount(get(colMaxPrice)); err != nil {
		fail("invalid max_price: " + get(colMaxPrice))
	} else if q.MaxPrice <= 0 {
		fail("max_price must be positive: " + get(colMaxPrice))
	}

	if q.Period.Start, err = parseDate(get(colPeriodStart)); err != nil {
		fail("invalid period start: " + get(colPeriodStart))
	}
	if q.Period.End, err = parseDate(get(colPeriodEnd)); err != nil {
		fail("invalid period end: " + get(colPeriodEnd))
	}
	if q.IsValid && q.Period.End.Before(q.Period.Start) {
		fail("period ends before it starts")
	}

	q.TotalHT = q.TJM * q.Quantity
	q.TotalTTC = q.TotalHT * (1 + vatRate)

	return q
}

func parseAmount(s string) (float64, error) {
	if s == "" {
		return 0, eris.New("empty")
	}
	// French spreadsheets use comma decimals.
	s = strings.ReplaceAll(strings.ReplaceAll(s, " ", ""), ",", ".")
	return strconv.ParseFloat(s, 64)
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.Errorf("unrecognized date %q", s)
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

func blankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
