// Package api exposes the reconcile service over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/staff-eval/internal/model"
	"github.com/sells-group/staff-eval/internal/reconcile"
)

// Service is the part of reconcile.Service the handlers drive.
type Service interface {
	Ingest(ctx context.Context, projectID string, data []byte) (*model.IngestionRun, error)
	Project(ctx context.Context, projectID string) (*model.Project, error)
	Enroll(ctx context.Context, projectID, collaboratorID string) (*model.CollaboratorState, error)
	EditState(ctx context.Context, projectID, collaboratorID string, edit reconcile.StateEdit) (*model.CollaboratorState, error)
	Runs(ctx context.Context, projectID string, limit int) ([]model.IngestionRun, error)
}

// Options configures the router.
type Options struct {
	AllowedOrigins []string
	// MaxUploadBytes caps an imported workbook.
	MaxUploadBytes int64
}

type handler struct {
	svc       Service
	maxUpload int64
}

// NewRouter builds the HTTP routes.
func NewRouter(svc Service, opts Options) http.Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 32 << 20
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	h := &handler{svc: svc, maxUpload: opts.MaxUploadBytes}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/projects/{projectID}", func(r chi.Router) {
		r.Get("/", h.getProject)
		r.Post("/imports", h.importWorkbook)
		r.Get("/runs", h.listRuns)
		r.Post("/collaborators", h.enroll)
		r.Patch("/collaborators/{collaboratorID}", h.editState)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
