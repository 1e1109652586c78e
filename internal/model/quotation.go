package model

import (
	"fmt"
	"time"
)

// QuotationStatus represents the pipeline state of a single quotation.
type QuotationStatus string

const (
	QuotationStatusPending         QuotationStatus = "pending"
	QuotationStatusCreatingBoond   QuotationStatus = "creating_boond"
	QuotationStatusFillingTemplate QuotationStatus = "filling_template"
	QuotationStatusConvertingPDF   QuotationStatus = "converting_pdf"
	QuotationStatusCompleted       QuotationStatus = "completed"
	QuotationStatusFailed          QuotationStatus = "failed"
)

// ParseQuotationStatus validates a persisted status string. Unknown values
// are rejected rather than carried through as opaque strings.
func ParseQuotationStatus(s string) (QuotationStatus, error) {
	switch st := QuotationStatus(s); st {
	case QuotationStatusPending,
		QuotationStatusCreatingBoond,
		QuotationStatusFillingTemplate,
		QuotationStatusConvertingPDF,
		QuotationStatusCompleted,
		QuotationStatusFailed:
		return st, nil
	default:
		return "", fmt.Errorf("model: unknown quotation status %q", s)
	}
}

// Terminal reports whether no further transitions are defined from s.
func (s QuotationStatus) Terminal() bool {
	return s == QuotationStatusCompleted || s == QuotationStatusFailed
}

// Period is a date range for a quoted engagement.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Quotation is one priced line item (resource x period x rate) to be
// registered in BoondManager and turned into a filled, converted document.
type Quotation struct {
	ID       string `json:"id"`
	RowIndex int    `json:"row_index"`

	// Resource reference.
	ResourceID        string `json:"resource_id"`
	ResourceName      string `json:"resource_name"`
	ResourceTrigramme string `json:"resource_trigramme"`

	// CRM linkage.
	OpportunityID string `json:"opportunity_id"`
	CompanyID     string `json:"company_id"`
	ContactID     string `json:"contact_id"`

	// Commercial fields.
	TJM          float64 `json:"tjm"`
	Quantity     float64 `json:"quantity"`
	TotalHT      float64 `json:"total_ht"`
	TotalTTC     float64 `json:"total_ttc"`
	Period       Period  `json:"period"`
	MaxPrice     float64 `json:"max_price"`
	Complexity   string  `json:"complexity"`
	DomainCode   string  `json:"domain_code"`
	ActivityCode string  `json:"activity_code"`

	// Free-form metadata.
	SowReference   string `json:"sow_reference,omitempty"`
	Comments       string `json:"comments,omitempty"`
	Renewal        bool   `json:"renewal"`
	Subcontracting bool   `json:"subcontracting"`

	// Pipeline state.
	Status           QuotationStatus `json:"status"`
	BoondQuotationID string          `json:"boond_quotation_id,omitempty"`
	BoondReference   string          `json:"boond_reference,omitempty"`
	ErrorMessage     string          `json:"error_message,omitempty"`
	PDFPath          string          `json:"pdf_path,omitempty"`

	// Pre-flight verdict, set during ingestion. An invalid quotation must
	// never reach a CRM-calling state.
	IsValid          bool     `json:"is_valid"`
	ValidationErrors []string `json:"validation_errors,omitempty"`
}

// MarkCreatingBoond moves the quotation into the CRM registration step.
func (q *Quotation) MarkCreatingBoond() {
	q.Status = QuotationStatusCreatingBoond
}

// MarkFillingTemplate records the CRM outcome and moves to template filling.
func (q *Quotation) MarkFillingTemplate(boondID, reference string) {
	q.BoondQuotationID = boondID
	q.BoondReference = reference
	q.Status = QuotationStatusFillingTemplate
}

// MarkConvertingPDF moves the quotation into PDF conversion.
func (q *Quotation) MarkConvertingPDF() {
	q.Status = QuotationStatusConvertingPDF
}

// MarkCompleted records the final artifact path and terminates the pipeline.
func (q *Quotation) MarkCompleted(pdfPath string) {
	q.PDFPath = pdfPath
	q.Status = QuotationStatusCompleted
}

// MarkFailed terminates the pipeline with a human-readable reason.
func (q *Quotation) MarkFailed(message string) {
	q.ErrorMessage = message
	q.Status = QuotationStatusFailed
}
