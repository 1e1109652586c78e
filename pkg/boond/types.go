package boond

import (
	"fmt"
	"time"
)

// QuotationRequest is the payload for registering a quotation in
// BoondManager.
type QuotationRequest struct {
	Reference     string    `json:"reference"`
	OpportunityID string    `json:"opportunity_id"`
	ResourceID    string    `json:"resource_id"`
	CompanyID     string    `json:"company_id"`
	ContactID     string    `json:"contact_id"`
	TJM           float64   `json:"daily_rate"`
	Quantity      float64   `json:"quantity"`
	TotalHT       float64   `json:"total_excl_tax"`
	TotalTTC      float64   `json:"total_incl_tax"`
	StartDate     time.Time `json:"start_date"`
	EndDate       time.Time `json:"end_date"`
	SowReference  string    `json:"sow_reference,omitempty"`
	Comments      string    `json:"comments,omitempty"`
}

// CreatedQuotation is the outcome of a successful registration.
type CreatedQuotation struct {
	ID        string `json:"id"`
	Reference string `json:"reference"`
}

// APIError is a failure reported by the BoondManager API. Transient
// failures (429, 5xx, network) are retried by the client before this
// error surfaces to callers.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("boond: api error %d: %s", e.StatusCode, e.Message)
}
