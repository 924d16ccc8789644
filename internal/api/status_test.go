package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"i2v-dispatch/internal/api"
	"i2v-dispatch/internal/assets"
	"i2v-dispatch/internal/database"
	"i2v-dispatch/internal/dispatch"
	"i2v-dispatch/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticProgress dispatch.Progress

func (p staticProgress) Progress() dispatch.Progress {
	return dispatch.Progress(p)
}

func newRouter(service *api.StatusService) http.Handler {
	router := chi.NewRouter()
	service.AddRoutes(router)
	return router
}

func get(t *testing.T, handler http.Handler, endpoint string, dest any) int {
	req := httptest.NewRequest(http.MethodGet, endpoint, nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code == http.StatusOK && dest != nil {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), dest))
	}
	return rr.Code
}

func TestHealthAndStatus(t *testing.T) {
	runId := uuid.New()
	progress := staticProgress{
		RunId:       runId,
		Running:     true,
		DeviceCount: 2,
		Total:       10,
		Succeeded:   3,
		Failed:      1,
		Remaining:   6,
		Active:      map[int]string{0: "gs://bucket/Inputs/a.png"},
	}
	router := newRouter(api.NewStatusService(progress, nil))

	assert.Equal(t, http.StatusOK, get(t, router, "/health", nil))

	var status dispatch.Progress
	require.Equal(t, http.StatusOK, get(t, router, "/api/v1/status", &status))
	assert.Equal(t, runId, status.RunId)
	assert.True(t, status.Running)
	assert.Equal(t, 6, status.Remaining)
	assert.Equal(t, "gs://bucket/Inputs/a.png", status.Active[0])

	assert.Equal(t, http.StatusNotFound, get(t, router, "/api/v1/runs", nil))
}

func TestRunsEndpoints(t *testing.T) {
	ctx := context.Background()

	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	recorder := database.NewRecorder(db)

	runIds := make([]uuid.UUID, 3)
	for i := range runIds {
		runIds[i] = uuid.New()
		require.NoError(t, recorder.StartRun(ctx, dispatch.RunInfo{
			RunId:       runIds[i],
			Source:      storage.Location{Scheme: "gs", Bucket: "bucket", Prefix: "Inputs"},
			Destination: storage.Location{Scheme: "gs", Bucket: "bucket", Prefix: "Outputs"},
			DeviceCount: 1,
			TotalJobs:   2,
			StartTime:   time.Now().Add(time.Duration(i) * time.Minute),
		}))
	}

	now := time.Now()
	require.NoError(t, recorder.RecordOutcome(ctx, runIds[2], dispatch.Outcome{
		Job: assets.Job{
			Input:  storage.Locator{Scheme: "gs", Bucket: "bucket", Key: "Inputs/a.png"},
			Output: storage.Locator{Scheme: "gs", Bucket: "bucket", Key: "Outputs/a.mp4"},
		},
		Status:    dispatch.StatusFailed,
		Stage:     dispatch.StageUploading,
		Err:       errors.New("permission denied"),
		StartTime: now,
		EndTime:   now,
	}))
	require.NoError(t, recorder.FinishRun(ctx, dispatch.Summary{RunId: runIds[2], Failed: 1, Succeeded: 1, EndTime: now}))

	router := newRouter(api.NewStatusService(staticProgress{}, recorder))

	var runs []api.RunResponse
	require.Equal(t, http.StatusOK, get(t, router, "/api/v1/runs", &runs))
	require.Len(t, runs, 3)
	assert.Equal(t, runIds[2], runs[0].Id)
	assert.Equal(t, database.RunCompleted, runs[0].Status)
	assert.NotNil(t, runs[0].CompletionTime)
	assert.Nil(t, runs[1].CompletionTime)

	require.Equal(t, http.StatusOK, get(t, router, "/api/v1/runs?limit=1", &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, runIds[2], runs[0].Id)

	assert.Equal(t, http.StatusBadRequest, get(t, router, "/api/v1/runs?limit=abc", nil))

	var failures []api.FailedJobResponse
	require.Equal(t, http.StatusOK, get(t, router, fmt.Sprintf("/api/v1/runs/%s/failures", runIds[2]), &failures))
	require.Len(t, failures, 1)
	assert.Equal(t, "gs://bucket/Inputs/a.png", failures[0].Input)
	assert.Equal(t, "uploading", failures[0].Stage)
	assert.Equal(t, "permission denied", failures[0].Error)

	require.Equal(t, http.StatusOK, get(t, router, fmt.Sprintf("/api/v1/runs/%s/failures", runIds[0]), &failures))
	assert.Empty(t, failures)

	assert.Equal(t, http.StatusBadRequest, get(t, router, "/api/v1/runs/not-a-uuid/failures", nil))
}

func TestServerAllowsCrossOriginGet(t *testing.T) {
	server := api.NewServer(8080, api.NewStatusService(staticProgress{}, nil))
	assert.Equal(t, ":8080", server.Addr)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	rr := httptest.NewRecorder()
	server.Handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

type brokenLedger struct{}

func (brokenLedger) ListRuns(ctx context.Context, limit int) ([]database.Run, error) {
	return nil, errors.New("connection refused")
}

func (brokenLedger) FailedJobs(ctx context.Context, runId uuid.UUID) ([]database.JobResult, error) {
	return nil, errors.New("connection refused")
}

func TestErrorsAreJson(t *testing.T) {
	router := newRouter(api.NewStatusService(staticProgress{}, brokenLedger{}))

	failuresEndpoint := fmt.Sprintf("/api/v1/runs/%s/failures", uuid.New())

	cases := []struct {
		endpoint string
		status   int
	}{
		{"/api/v1/runs", http.StatusInternalServerError},
		{"/api/v1/runs?limit=abc", http.StatusBadRequest},
		{failuresEndpoint, http.StatusInternalServerError},
	}

	for _, c := range cases {
		endpoint, status := c.endpoint, c.status
		req := httptest.NewRequest(http.MethodGet, endpoint, nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, status, rr.Code, endpoint)
		assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

		var body struct {
			Error string `json:"error"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.NotEmpty(t, body.Error)
		assert.NotContains(t, body.Error, "connection refused")
	}
}
