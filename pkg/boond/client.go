// Package boond is a client for the BoondManager staffing ERP, covering the
// quotation-registration and existence-check endpoints used by the
// generation pipeline.
package boond

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/alenia-group/quotation-cli/internal/resilience"
)

const (
	defaultBaseURL         = "https://ui.boondmanager.com/api"
	defaultReferencePrefix = "DEV"
)

// Client registers quotations and validates entity references against
// BoondManager.
type Client interface {
	// CreateQuotation registers a quotation and returns its BoondManager id
	// and assigned reference.
	CreateQuotation(ctx context.Context, req QuotationRequest) (*CreatedQuotation, error)

	// Existence checks for the entities a quotation links to.
	ValidateOpportunity(ctx context.Context, id string) (bool, error)
	ValidateResource(ctx context.Context, id string) (bool, error)
	ValidateCompany(ctx context.Context, id string) (bool, error)
	ValidateContact(ctx context.Context, id string) (bool, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithReferencePrefix overrides the default quotation reference prefix.
func WithReferencePrefix(prefix string) Option {
	return func(c *httpClient) {
		c.refPrefix = prefix
	}
}

// WithRateLimit sets the requests-per-second limit for API calls.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithRetryConfig overrides the default retry profile (3 attempts,
// 1s/2s/4s backoff).
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

// WithClock overrides the time source used for reference numbering.
func WithClock(now func() time.Time) Option {
	return func(c *httpClient) {
		c.now = now
	}
}

type httpClient struct {
	apiKey    string
	baseURL   string
	refPrefix string
	http      *http.Client
	limiter   *rate.Limiter
	retry     resilience.RetryConfig
	breaker   *resilience.Breaker
	seq       SequenceAllocator
	now       func() time.Time
}

// NewClient creates a BoondManager API client. The sequence allocator is
// required and should be scoped to the caller's run so reference numbering
// never crosses batches.
func NewClient(apiKey string, seq SequenceAllocator, opts ...Option) Client {
	c := &httpClient{
		apiKey:    apiKey,
		baseURL:   defaultBaseURL,
		refPrefix: defaultReferencePrefix,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(5, 1),
		retry:   resilience.DefaultRetryConfig(),
		breaker: resilience.NewBreaker(resilience.BreakerConfig{
			// Hard API errors (4xx) must not trip the breaker.
			Trips: resilience.IsTransient,
		}),
		seq: seq,
		now: time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type createResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

type apiErrorResponse struct {
	Errors []struct {
		Detail string `json:"detail"`
	} `json:"errors"`
}

func (c *httpClient) CreateQuotation(ctx context.Context, req QuotationRequest) (*CreatedQuotation, error) {
	if req.Reference == "" {
		month := c.now().UTC()
		req.Reference = FormatReference(c.refPrefix, month, c.seq.Next(c.refPrefix, month))
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "boond: marshal quotation")
	}

	cfg := c.retry
	cfg.OnRetry = resilience.RetryLogger("boond", "create_quotation")

	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (*CreatedQuotation, error) {
		respBody, err := c.do(ctx, http.MethodPost, "/quotations", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}

		var result createResponse
		if err := json.Unmarshal(respBody, &result); err != nil {
			return nil, eris.Wrap(err, "boond: unmarshal create response")
		}
		return &CreatedQuotation{ID: result.Data.ID, Reference: req.Reference}, nil
	})
}

func (c *httpClient) ValidateOpportunity(ctx context.Context, id string) (bool, error) {
	return c.exists(ctx, "/opportunities/"+id)
}

func (c *httpClient) ValidateResource(ctx context.Context, id string) (bool, error) {
	return c.exists(ctx, "/resources/"+id)
}

func (c *httpClient) ValidateCompany(ctx context.Context, id string) (bool, error) {
	return c.exists(ctx, "/companies/"+id)
}

func (c *httpClient) ValidateContact(ctx context.Context, id string) (bool, error) {
	return c.exists(ctx, "/contacts/"+id)
}

func (c *httpClient) exists(ctx context.Context, path string) (bool, error) {
	cfg := c.retry
	cfg.OnRetry = resilience.RetryLogger("boond", "exists "+path)

	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (bool, error) {
		_, err := c.do(ctx, http.MethodGet, path, nil)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
				return false, nil
			}
			return false, err
		}
		return true, nil
	})
}

// do performs one HTTP exchange through the circuit breaker. Transient
// statuses are wrapped so the retry layer can distinguish them from hard
// failures; repeated transient failures open the breaker and fail fast.
func (c *httpClient) do(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "boond: rate limit wait")
	}

	return resilience.Guard(ctx, c.breaker, func(ctx context.Context) ([]byte, error) {
		return c.exchange(ctx, method, path, body)
	})
}

func (c *httpClient) exchange(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, eris.Wrap(err, "boond: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "boond: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "boond: read response")
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: errorDetail(respBody)}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(apiErr, resp.StatusCode)
		}
		return nil, apiErr
	}

	return respBody, nil
}

func errorDetail(body []byte) string {
	var parsed apiErrorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && len(parsed.Errors) > 0 {
		return parsed.Errors[0].Detail
	}
	return string(body)
}
