// Package pdf converts filled documents to PDF and assembles batch
// artifacts. Conversion shells out to LibreOffice; merging to pdfunite.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ConvertTimeout bounds a single document conversion. A stuck LibreOffice
// process fails only its own item.
const ConvertTimeout = 120 * time.Second

// Converter turns documents into PDFs and merges them.
type Converter interface {
	// ConvertToPDF converts the document at path and returns the PDF path,
	// written next to the input.
	ConvertToPDF(ctx context.Context, path string) (string, error)

	// MergePDFs concatenates the given PDFs into outPath.
	MergePDFs(ctx context.Context, paths []string, outPath string) error
}

// ConversionError is a per-item PDF conversion failure.
type ConversionError struct {
	Path string
	Err  error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("pdf: convert %s: %v", e.Path, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// MergeError is a failure assembling the batch-level merged document.
type MergeError struct {
	Err error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("pdf: merge: %v", e.Err)
}

func (e *MergeError) Unwrap() error { return e.Err }

// LibreOffice converts documents using the soffice and pdfunite CLI tools.
type LibreOffice struct {
	sofficePath  string
	pdfunitePath string
}

// NewLibreOffice creates a converter. Empty paths default to "soffice" and
// "pdfunite" on PATH.
func NewLibreOffice(sofficePath, pdfunitePath string) *LibreOffice {
	if sofficePath == "" {
		sofficePath = "soffice"
	}
	if pdfunitePath == "" {
		pdfunitePath = "pdfunite"
	}
	return &LibreOffice{sofficePath: sofficePath, pdfunitePath: pdfunitePath}
}

func (c *LibreOffice) ConvertToPDF(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, ConvertTimeout)
	defer cancel()

	outDir := filepath.Dir(path)
	cmd := exec.CommandContext(ctx, c.sofficePath,
		"--headless", "--norestore",
		"--convert-to", "pdf",
		"--outdir", outDir,
		path,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", &ConversionError{Path: path, Err: eris.Errorf("timed out after %s", ConvertTimeout)}
		}
		return "", &ConversionError{Path: path, Err: eris.Wrap(err, strings.TrimSpace(stderr.String()))}
	}

	pdfPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".pdf"
	if _, err := os.Stat(pdfPath); err != nil {
		return "", &ConversionError{Path: path, Err: eris.Wrap(err, "output missing")}
	}

	zap.L().Debug("converted document",
		zap.String("path", path),
		zap.Duration("took", time.Since(start)),
	)
	return pdfPath, nil
}

func (c *LibreOffice) MergePDFs(ctx context.Context, paths []string, outPath string) error {
	if len(paths) == 0 {
		return &MergeError{Err: eris.New("no input documents")}
	}

	args := append(append([]string{}, paths...), outPath)
	cmd := exec.CommandContext(ctx, c.pdfunitePath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return &MergeError{Err: eris.Wrap(err, strings.TrimSpace(stderr.String()))}
	}
	if _, err := os.Stat(outPath); err != nil {
		return &MergeError{Err: eris.Wrap(err, "output missing")}
	}
	return nil
}
