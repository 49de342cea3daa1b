package httpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/kirillkom/medscript-analyzer/internal/config"
	"github.com/kirillkom/medscript-analyzer/internal/core/domain"
	"github.com/kirillkom/medscript-analyzer/internal/core/ports"
	"github.com/kirillkom/medscript-analyzer/internal/observability/metrics"
)

const (
	serviceName         = "api"
	multipartMemory     = 8 << 20
	healthCheckTimeout  = 2 * time.Second
	uploadFormFieldName = "file"
)

type Router struct {
	cfg      config.Config
	uploader ports.DocumentUploader
	reader   ports.AnalysisReader
	metrics  *metrics.HTTPServerMetrics
	health   func(context.Context) error
	logger   *slog.Logger
}

type Option func(*Router)

func WithMetrics(m *metrics.HTTPServerMetrics) Option {
	return func(rt *Router) {
		rt.metrics = m
	}
}

// WithHealthCheck makes /healthz report 503 while check fails.
func WithHealthCheck(check func(context.Context) error) Option {
	return func(rt *Router) {
		rt.health = check
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(rt *Router) {
		if logger != nil {
			rt.logger = logger
		}
	}
}

func NewRouter(cfg config.Config, uploader ports.DocumentUploader, reader ports.AnalysisReader, opts ...Option) *Router {
	rt := &Router{
		cfg:      cfg,
		uploader: uploader,
		reader:   reader,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := chi.NewRouter()
	mux.Use(requestIDMiddleware)
	mux.Use(processTimeMiddleware)
	mux.Use(accessLogMiddleware(rt.logger))
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   rt.cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader, processTimeHeader, "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	mux.Get("/healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Method(http.MethodGet, "/metrics", rt.metrics.Handler())
	}

	mux.Route("/api/v1", func(r chi.Router) {
		r.With(
			rateLimitMiddleware(rt.cfg.RateLimitRPS, rt.cfg.RateLimitBurst),
			maxBodyMiddleware(rt.cfg.MaxUploadBytes),
		).Post("/documents/upload", rt.uploadDocument)
		r.Get("/analysis/{documentID}/status", rt.getAnalysisStatus)
		r.Get("/analysis/{documentID}", rt.getAnalysisResult)
	})

	if rt.metrics != nil {
		return rt.metrics.Middleware(serviceName, mux)
	}
	return mux
}

func (rt *Router) healthz(w http.ResponseWriter, r *http.Request) {
	if rt.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := rt.health(ctx); err != nil {
			rt.logger.Warn("health_check_failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type uploadResponse struct {
	DocumentID  string                  `json:"document_id"`
	FileName    string                  `json:"file_name"`
	StoragePath string                  `json:"storage_path"`
	Status      domain.ProcessingStatus `json:"status"`
	Message     string                  `json:"message"`
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if isBodyTooLarge(err) {
			rt.writeDomainError(w, r, err)
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, fileHeader, err := r.FormFile(uploadFormFieldName)
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	job, err := rt.uploader.Upload(r.Context(), fileHeader.Filename, fileHeader.Header.Get("Content-Type"), file)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordUpload(serviceName, job.ContentType)
	}

	writeJSON(w, http.StatusAccepted, uploadResponse{
		DocumentID:  job.DocumentID,
		FileName:    job.FileName,
		StoragePath: job.StoragePath,
		Status:      job.Status,
		Message:     job.Message,
	})
}

type statusResponse struct {
	DocumentID string                  `json:"document_id"`
	Status     domain.ProcessingStatus `json:"status"`
	Message    string                  `json:"message"`
}

func (rt *Router) getAnalysisStatus(w http.ResponseWriter, r *http.Request) {
	job, err := rt.reader.GetStatus(r.Context(), documentIDParam(r))
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		DocumentID: job.DocumentID,
		Status:     job.Status,
		Message:    job.Message,
	})
}

func (rt *Router) getAnalysisResult(w http.ResponseWriter, r *http.Request) {
	job, err := rt.reader.GetResult(r.Context(), documentIDParam(r))
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func documentIDParam(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "documentID"))
}

func (rt *Router) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		rt.logger.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	writeError(w, status, publicErrorMessage(status, err))
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
