// Package generator drives quotation batches through the generation
// pipeline: register each quotation in BoondManager, fill the document
// template, convert to PDF, and assemble the batch artifacts.
package generator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/alenia-group/quotation-cli/internal/model"
	"github.com/alenia-group/quotation-cli/internal/pdf"
	"github.com/alenia-group/quotation-cli/internal/storage"
	"github.com/alenia-group/quotation-cli/internal/template"
	"github.com/alenia-group/quotation-cli/pkg/boond"
)

// Generator runs the full generation pipeline for one batch. Quotations
// are processed strictly sequentially: BoondManager numbering must be
// assigned in deterministic order and each conversion holds a LibreOffice
// subprocess.
type Generator struct {
	storage    storage.Storage
	templates  template.Repository
	erp        boond.Client
	converter  pdf.Converter
	outputRoot string
	now        func() time.Time
}

// New creates a Generator writing artifacts under outputRoot/<batch-id>.
func New(st storage.Storage, templates template.Repository, erp boond.Client, converter pdf.Converter, outputRoot string) *Generator {
	return &Generator{
		storage:    st,
		templates:  templates,
		erp:        erp,
		converter:  converter,
		outputRoot: outputRoot,
		now:        time.Now,
	}
}

// WithClock overrides the time source, used by tests.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Execute runs the pipeline for the batch. Precondition failures (unknown
// batch, missing template) short-circuit before any quotation is touched; a
// single quotation's failure never aborts the batch. Progress is persisted
// after every item so pollers observe monotonic progress.
func (g *Generator) Execute(ctx context.Context, batchID, templateName string) error {
	log := zap.L().With(zap.String("batch_id", batchID))

	batch, err := g.storage.GetBatch(ctx, batchID)
	if err != nil {
		return mapStorageErr(err, batchID)
	}

	tmplData, tmplFile, err := g.templates.Get(templateName)
	if err != nil {
		if errors.Is(err, template.ErrTemplateNotFound) {
			// No per-item processing, no ERP calls: the whole batch fails.
			batch.MarkFailed(fmt.Sprintf("template %q not found", templateName), g.now())
			g.persist(ctx, batch, model.DownloadTTL, log)
			return &TemplateNotFoundError{Name: templateName}
		}
		return eris.Wrapf(err, "generator: load template %q", templateName)
	}

	outDir := filepath.Join(g.outputRoot, batch.ID)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		batch.MarkFailed("failed to create output directory", g.now())
		g.persist(ctx, batch, model.DownloadTTL, log)
		return eris.Wrapf(err, "generator: create output dir %s", outDir)
	}

	// First checkpoint: makes "started" observable to pollers.
	batch.MarkProcessing(g.now())
	g.persist(ctx, batch, model.ConfirmTTL, log)

	log.Info("generation started",
		zap.String("template", templateName),
		zap.Int("quotations", batch.TotalCount()),
	)

	var pdfPaths []string
	for i := range batch.Quotations {
		q := &batch.Quotations[i]
		g.processQuotation(ctx, q, tmplData, tmplFile, outDir, log)
		if q.Status == model.QuotationStatusCompleted {
			pdfPaths = append(pdfPaths, q.PDFPath)
		}
		// Persist after every item, not batched.
		g.persist(ctx, batch, model.ConfirmTTL, log)
	}

	if len(pdfPaths) > 0 {
		g.assembleArtifacts(ctx, batch, outDir, pdfPaths, log)
	}

	batch.Finalize(g.now())
	if err := g.storage.SaveBatch(ctx, batch, model.DownloadTTL); err != nil {
		return eris.Wrapf(err, "generator: persist final batch %s", batch.ID)
	}

	log.Info("generation finished",
		zap.String("status", string(batch.Status)),
		zap.Int("completed", batch.CompletedCount()),
		zap.Int("failed", batch.FailedCount()),
	)
	return nil
}

// processQuotation advances one quotation to a terminal state. All
// failures are recorded on the quotation itself.
func (g *Generator) processQuotation(ctx context.Context, q *model.Quotation, tmplData []byte, tmplFile, outDir string, log *zap.Logger) {
	log = log.With(zap.Int("row", q.RowIndex), zap.String("trigramme", q.ResourceTrigramme))

	// Pre-flight verdict: invalid quotations never reach a CRM-calling
	// state.
	if !q.IsValid {
		q.MarkFailed("Validation errors")
		log.Warn("quotation skipped", zap.Strings("validation_errors", q.ValidationErrors))
		return
	}

	q.MarkCreatingBoond()
	created, err := g.erp.CreateQuotation(ctx, toBoondRequest(q))
	if err != nil {
		q.MarkFailed(fmt.Sprintf("BoondManager: %s", eris.Cause(err).Error()))
		log.Warn("quotation registration failed", zap.Error(err))
		return
	}

	q.MarkFillingTemplate(created.ID, created.Reference)
	filled, err := template.Fill(tmplData, tmplFile, template.FieldsFor(*q, created.Reference))
	if err != nil {
		q.MarkFailed(fmt.Sprintf("template fill: %s", err))
		log.Warn("template fill failed", zap.Error(err))
		return
	}

	docPath := filepath.Join(outDir, documentName(q, tmplFile))
	if err := os.WriteFile(docPath, filled, 0o644); err != nil {
		q.MarkFailed(fmt.Sprintf("write document: %s", err))
		log.Warn("document write failed", zap.Error(err))
		return
	}

	q.MarkConvertingPDF()
	pdfPath, err := g.converter.ConvertToPDF(ctx, docPath)
	if err != nil {
		q.MarkFailed(fmt.Sprintf("PDF conversion: %s", eris.Cause(err).Error()))
		log.Warn("pdf conversion failed", zap.Error(err))
		return
	}

	q.MarkCompleted(pdfPath)
	log.Info("quotation generated", zap.String("reference", created.Reference))
}

// assembleArtifacts merges the produced PDFs and zips the individual
// files. Failures here are recorded on the batch but do not change the
// per-item derived status.
func (g *Generator) assembleArtifacts(ctx context.Context, batch *model.QuotationBatch, outDir string, pdfPaths []string, log *zap.Logger) {
	mergedPath := filepath.Join(outDir, "quotations_merged.pdf")
	if err := g.converter.MergePDFs(ctx, pdfPaths, mergedPath); err != nil {
		batch.ErrorMessage = fmt.Sprintf("PDF merge: %s", eris.Cause(err).Error())
		log.Warn("pdf merge failed", zap.Error(err))
	} else {
		batch.MergedPDFPath = mergedPath
	}

	zipPath := filepath.Join(outDir, "quotations.zip")
	if err := pdf.BuildZip(zipPath, pdfPaths); err != nil {
		batch.ErrorMessage = fmt.Sprintf("zip build: %s", eris.Cause(err).Error())
		log.Warn("zip build failed", zap.Error(err))
	} else {
		batch.ZipFilePath = zipPath
	}
}

// persist saves an in-flight snapshot. A failed checkpoint is logged but
// never aborts the run; the next checkpoint will carry the same state
// forward.
func (g *Generator) persist(ctx context.Context, batch *model.QuotationBatch, ttl time.Duration, log *zap.Logger) {
	if err := g.storage.SaveBatch(ctx, batch, ttl); err != nil {
		log.Warn("failed to persist batch snapshot", zap.Error(err))
	}
}

func toBoondRequest(q *model.Quotation) boond.QuotationRequest {
	return boond.QuotationRequest{
		OpportunityID: q.OpportunityID,
		ResourceID:    q.ResourceID,
		CompanyID:     q.CompanyID,
		ContactID:     q.ContactID,
		TJM:           q.TJM,
		Quantity:      q.Quantity,
		TotalHT:       q.TotalHT,
		TotalTTC:      q.TotalTTC,
		StartDate:     q.Period.Start,
		EndDate:       q.Period.End,
		SowReference:  q.SowReference,
		Comments:      q.Comments,
	}
}

func documentName(q *model.Quotation, tmplFile string) string {
	name := template.SafeFileName(q.ResourceName)
	if name == "" {
		name = "quotation"
	}
	return fmt.Sprintf("%03d_%s%s", q.RowIndex, name, filepath.Ext(tmplFile))
}
