package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/alenia-group/quotation-cli/internal/generator"
	"github.com/alenia-group/quotation-cli/internal/pdf"
	"github.com/alenia-group/quotation-cli/internal/resilience"
	"github.com/alenia-group/quotation-cli/internal/storage"
	"github.com/alenia-group/quotation-cli/internal/template"
	"github.com/alenia-group/quotation-cli/pkg/boond"
)

// openStorage opens a batch storage session for the configured backend.
// Each call returns an independent session so background jobs get their
// own connection lifetime.
func openStorage(ctx context.Context) (storage.Storage, error) {
	switch cfg.Storage.Driver {
	case "redis":
		return storage.NewRedis(ctx, cfg.Storage.Redis)
	case "sqlite":
		return storage.NewSQLite(ctx, cfg.Storage.SQLitePath)
	case "postgres":
		return storage.NewPostgres(ctx, cfg.Storage.DatabaseURL, &cfg.Storage.Pool)
	default:
		return nil, eris.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// newTemplateRepo loads the template directory.
func newTemplateRepo() (template.Repository, error) {
	return template.NewDirRepository(cfg.Templates.Dir)
}

// newBoondClient builds a BoondManager client with a run-scoped sequence
// allocator, so reference numbering never crosses batches.
func newBoondClient() boond.Client {
	return boond.NewClient(cfg.Boond.Key, boond.NewRunSequence(),
		boond.WithBaseURL(cfg.Boond.BaseURL),
		boond.WithReferencePrefix(cfg.Boond.ReferencePrefix),
		boond.WithRateLimit(cfg.Boond.RateLimitRPS),
		boond.WithRetryConfig(resilience.FromRetryConfig(cfg.Boond.RetryMaxAttempts, cfg.Boond.RetryBackoffMs)),
	)
}

// buildGenerator is the generator factory handed to the launcher: a fresh
// pipeline bound to the given storage session.
func buildGenerator(templates template.Repository) generator.Build {
	converter := pdf.NewLibreOffice(cfg.PDF.SofficePath, cfg.PDF.PdfunitePath)
	return func(st storage.Storage) *generator.Generator {
		return generator.New(st, templates, newBoondClient(), converter, cfg.Output.Dir)
	}
}
