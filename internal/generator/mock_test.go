package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/alenia-group/quotation-cli/internal/model"
	"github.com/alenia-group/quotation-cli/internal/storage"
	"github.com/alenia-group/quotation-cli/internal/template"
	"github.com/alenia-group/quotation-cli/pkg/boond"
)

// --- BoondManager Mock ---

type mockERP struct {
	mock.Mock
}

func (m *mockERP) CreateQuotation(ctx context.Context, req boond.QuotationRequest) (*boond.CreatedQuotation, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*boond.CreatedQuotation), args.Error(1)
}

func (m *mockERP) ValidateOpportunity(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockERP) ValidateResource(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockERP) ValidateCompany(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockERP) ValidateContact(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

// --- In-memory Storage ---

// memStorage is an in-memory Storage that keeps a history of progress
// snapshots, one per save, so tests can assert on checkpoint ordering.
type memStorage struct {
	mu      sync.Mutex
	batches map[string]*model.QuotationBatch
	saves   []model.Progress
	saveErr error
	closed  bool
}

func newMemStorage() *memStorage {
	return &memStorage{batches: make(map[string]*model.QuotationBatch)}
}

func copyBatch(b *model.QuotationBatch) *model.QuotationBatch {
	data, err := json.Marshal(b)
	if err != nil {
		panic(err)
	}
	var out model.QuotationBatch
	if err := json.Unmarshal(data, &out); err != nil {
		panic(err)
	}
	return &out
}

func (s *memStorage) SaveBatch(_ context.Context, batch *model.QuotationBatch, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.batches[batch.ID] = copyBatch(batch)
	s.saves = append(s.saves, batch.Snapshot())
	return nil
}

func (s *memStorage) GetBatch(_ context.Context, id string) (*model.QuotationBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyBatch(b), nil
}

func (s *memStorage) GetBatchProgress(_ context.Context, id string) (*model.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	p := b.Snapshot()
	return &p, nil
}

func (s *memStorage) ListUserBatches(_ context.Context, userID string, limit int) ([]model.QuotationBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.QuotationBatch
	for _, b := range s.batches {
		if b.UserID == userID {
			out = append(out, *copyBatch(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memStorage) snapshots() []model.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Progress(nil), s.saves...)
}

// --- Template Repository ---

type memTemplates struct {
	templates map[string][]byte
	fileNames map[string]string
}

func newMemTemplates() *memTemplates {
	return &memTemplates{
		templates: map[string][]byte{
			"standard": []byte("Devis {{REFERENCE}} / {{RESOURCE_NAME}} / {{TJM}}"),
		},
		fileNames: map[string]string{"standard": "standard.txt"},
	}
}

func (r *memTemplates) Get(name string) ([]byte, string, error) {
	data, ok := r.templates[name]
	if !ok {
		return nil, "", template.ErrTemplateNotFound
	}
	return data, r.fileNames[name], nil
}

func (r *memTemplates) List() ([]string, error) {
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	return names, nil
}

// --- PDF Converter ---

// fakeConverter writes a stub PDF next to the source document. Conversions
// for documents whose path contains failOn fail.
type fakeConverter struct {
	mu       sync.Mutex
	failOn   string
	mergeErr error
	merges   [][]string
}

func (c *fakeConverter) ConvertToPDF(_ context.Context, docPath string) (string, error) {
	if c.failOn != "" && strings.Contains(docPath, c.failOn) {
		return "", fmt.Errorf("soffice: conversion failed for %s", docPath)
	}
	pdfPath := strings.TrimSuffix(docPath, ".txt") + ".pdf"
	if err := os.WriteFile(pdfPath, []byte("%PDF-1.4 stub\n"), 0o644); err != nil {
		return "", err
	}
	return pdfPath, nil
}

func (c *fakeConverter) MergePDFs(_ context.Context, paths []string, outPath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.merges = append(c.merges, append([]string(nil), paths...))
	if c.mergeErr != nil {
		return c.mergeErr
	}
	return os.WriteFile(outPath, []byte("%PDF-1.4 merged\n"), 0o644)
}

// --- Fixtures ---

func validQuotation(row int, resourceID, name string) model.Quotation {
	return model.Quotation{
		ID:                fmt.Sprintf("q-%d", row),
		RowIndex:          row,
		ResourceID:        resourceID,
		ResourceName:      name,
		ResourceTrigramme: "ABC",
		OpportunityID:     "opp-1",
		CompanyID:         "co-1",
		ContactID:         "ct-1",
		TJM:               650,
		Quantity:          20,
		TotalHT:           13000,
		TotalTTC:          15600,
		Period: model.Period{
			Start: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		},
		Status:  model.QuotationStatusPending,
		IsValid: true,
	}
}

func testBatch(quotations ...model.Quotation) *model.QuotationBatch {
	return &model.QuotationBatch{
		ID:         "batch-test",
		UserID:     "user-1",
		Quotations: quotations,
		Status:     model.BatchStatusPending,
		CreatedAt:  time.Now().UTC(),
	}
}
