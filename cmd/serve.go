package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/alenia-group/quotation-cli/internal/generator"
	"github.com/alenia-group/quotation-cli/internal/ingest"
	"github.com/alenia-group/quotation-cli/internal/model"
	"github.com/alenia-group/quotation-cli/internal/storage"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the batch generation HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort > 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := openStorage(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		templates, err := newTemplateRepo()
		if err != nil {
			return err
		}

		runner := generator.NewRunner(ctx)
		launcher := generator.NewLauncher(st, openStorage, buildGenerator(templates), runner)

		api := &apiServer{
			storage:    st,
			launcher:   launcher,
			reader:     generator.NewReader(st),
			downloader: generator.NewDownloader(st),
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
			Handler: api.routes(),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		// Let in-flight generation jobs run to completion.
		zap.L().Info("waiting for in-flight batches")
		runner.Wait()
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

type apiServer struct {
	storage    storage.Storage
	launcher   *generator.Launcher
	reader     *generator.Reader
	downloader *generator.Downloader
}

func (s *apiServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/batches", func(r chi.Router) {
		r.Post("/", s.handleUpload)
		r.Get("/", s.handleList)
		r.Route("/{batchID}", func(r chi.Router) {
			r.Get("/", s.handleDetails)
			r.Get("/progress", s.handleProgress)
			r.Post("/generate", s.handleGenerate)
			r.Get("/download/merged", s.handleDownloadMerged)
			r.Get("/download/zip", s.handleDownloadZip)
			r.Get("/download/items/{rowIndex}", s.handleDownloadItem)
		})
	})

	return r
}

func (s *apiServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user query parameter is required")
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	batch, err := ingest.ParseWorkbook(file, userID)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := s.storage.SaveBatch(r.Context(), batch, model.ConfirmTTL); err != nil {
		s.writeFailure(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"batch_id":    batch.ID,
		"total_count": batch.TotalCount(),
	})
}

func (s *apiServer) handleGenerate(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")
	templateName := r.URL.Query().Get("template")
	if templateName == "" {
		templateName = "standard"
	}

	if _, err := s.launcher.Start(r.Context(), batchID, templateName); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"batch_id": batchID,
		"status":   string(model.BatchStatusPending),
	})
}

func (s *apiServer) handleProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := s.reader.Progress(r.Context(), chi.URLParam(r, "batchID"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (s *apiServer) handleDetails(w http.ResponseWriter, r *http.Request) {
	batch, err := s.reader.Details(r.Context(), chi.URLParam(r, "batchID"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (s *apiServer) handleList(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user query parameter is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	batches, err := s.reader.ListUserBatches(r.Context(), userID, limit)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, batches)
}

func (s *apiServer) handleDownloadMerged(w http.ResponseWriter, r *http.Request) {
	f, err := s.downloader.Merged(r.Context(), chi.URLParam(r, "batchID"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	serveFile(w, f, "application/pdf")
}

func (s *apiServer) handleDownloadZip(w http.ResponseWriter, r *http.Request) {
	f, err := s.downloader.Zip(r.Context(), chi.URLParam(r, "batchID"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	serveFile(w, f, "application/zip")
}

func (s *apiServer) handleDownloadItem(w http.ResponseWriter, r *http.Request) {
	rowIndex, err := strconv.Atoi(chi.URLParam(r, "rowIndex"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid row index")
		return
	}

	f, err := s.downloader.Item(r.Context(), chi.URLParam(r, "batchID"), rowIndex)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	serveFile(w, f, "application/pdf")
}

// writeFailure maps the typed use-case errors onto HTTP statuses.
func (s *apiServer) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	var (
		notFound   *generator.BatchNotFoundError
		expired    *generator.BatchExpiredError
		noTemplate *generator.TemplateNotFoundError
		notReady   *generator.DownloadNotReadyError
		inProgress *generator.GenerationInProgressError
	)
	switch {
	case errors.As(err, &notFound), errors.As(err, &noTemplate):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &expired):
		writeError(w, http.StatusGone, err.Error())
	case errors.As(err, &notReady), errors.As(err, &inProgress):
		writeError(w, http.StatusConflict, err.Error())
	default:
		zap.L().Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func serveFile(w http.ResponseWriter, f *os.File, contentType string) {
	defer f.Close()
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(filepath.Base(f.Name())))
	_, _ = io.Copy(w, f)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
