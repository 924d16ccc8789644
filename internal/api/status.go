package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"i2v-dispatch/internal/database"
	"i2v-dispatch/internal/dispatch"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 100
)

type ProgressSource interface {
	Progress() dispatch.Progress
}

type RunLedger interface {
	ListRuns(ctx context.Context, limit int) ([]database.Run, error)
	FailedJobs(ctx context.Context, runId uuid.UUID) ([]database.JobResult, error)
}

// StatusService exposes the progress of the running dispatcher and, when a
// ledger is configured, the history of past runs.
type StatusService struct {
	progress ProgressSource
	ledger   RunLedger
}

// NewStatusService creates the service. ledger may be nil.
func NewStatusService(progress ProgressSource, ledger RunLedger) *StatusService {
	return &StatusService{progress: progress, ledger: ledger}
}

func (s *StatusService) AddRoutes(r chi.Router) {
	r.Method(http.MethodGet, "/health", endpoint(func(r *http.Request) (any, error) { return nil, nil }))
	r.Route("/api/v1", func(r chi.Router) {
		r.Method(http.MethodGet, "/status", endpoint(s.GetStatus))
		r.Route("/runs", func(r chi.Router) {
			r.Method(http.MethodGet, "/", endpoint(s.ListRuns))
			r.Method(http.MethodGet, "/{run_id}/failures", endpoint(s.GetFailedJobs))
		})
	})
}

func (s *StatusService) GetStatus(r *http.Request) (any, error) {
	return s.progress.Progress(), nil
}

type ListRunsParams struct {
	Limit int `schema:"limit"`
}

func (s *StatusService) ListRuns(r *http.Request) (any, error) {
	if s.ledger == nil {
		return nil, statusErrorf(http.StatusNotFound, "run ledger is not configured")
	}

	var params ListRunsParams
	if err := decodeQuery(r, &params); err != nil {
		return nil, err
	}

	limit := params.Limit
	if limit <= 0 {
		limit = defaultRunsLimit
	}
	limit = min(limit, maxRunsLimit)

	runs, err := s.ledger.ListRuns(r.Context(), limit)
	if err != nil {
		slog.Error("error listing runs", "error", err)
		return nil, statusErrorf(http.StatusInternalServerError, "failed to list runs")
	}

	return convertRuns(runs), nil
}

func (s *StatusService) GetFailedJobs(r *http.Request) (any, error) {
	if s.ledger == nil {
		return nil, statusErrorf(http.StatusNotFound, "run ledger is not configured")
	}

	runId, err := uuidParam(r, "run_id")
	if err != nil {
		return nil, err
	}

	results, err := s.ledger.FailedJobs(r.Context(), runId)
	if err != nil {
		slog.Error("error listing failed jobs", "run_id", runId, "error", err)
		return nil, statusErrorf(http.StatusInternalServerError, "failed to list failed jobs")
	}

	return convertFailedJobs(results), nil
}

// NewServer builds the status server. Only GET requests are served, from any
// origin, so dashboards can poll it directly.
func NewServer(port int, service *StatusService) *http.Server {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	service.AddRoutes(r)

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: r,
	}
}
