package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/lienledger/api/internal/logger"
	"github.com/lienledger/api/internal/models"
	"github.com/lienledger/api/internal/repository"
	"github.com/lienledger/api/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSourceTestRouter(t *testing.T, collect services.CollectorFunc) (*gin.Engine, *repository.MemoryStore, services.RecorderService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := repository.NewMemoryStore()
	log := logger.New("test")
	clock := clockwork.NewFakeClockAt(fixtureTime)
	recorder := services.NewRecorderService(store, log, clock)
	scheduler := services.NewSchedulerService(store, recorder, log, clock, time.Minute)
	handler := NewSourceHandler(scheduler, recorder, collect)

	router := gin.New()
	router.GET("/api/v1/sources", handler.List)
	router.GET("/api/v1/sources/due", handler.ListDue)
	router.POST("/api/v1/sources/:id/collect", handler.Collect)
	router.GET("/api/v1/sources/:id/runs/latest", handler.LatestRun)
	router.GET("/api/v1/sources/:id/runs/stats", handler.RunStats)
	return router, store, recorder
}

func seedTestSource(t *testing.T, store repository.Store, id string, lastCollected time.Time) {
	t.Helper()
	source := models.DataSource{
		ID:            id,
		Name:          id,
		URL:           "https://feeds.example.com/" + id,
		Schedule:      models.Schedule{Frequency: models.FrequencyDaily},
		LastCollected: &lastCollected,
		Status:        models.SourceStatusActive,
		CreatedAt:     fixtureTime,
		UpdatedAt:     fixtureTime,
	}
	err := store.RunInTransaction(context.Background(), func(tx repository.Tx) error {
		return tx.PutDataSource(context.Background(), &source)
	})
	require.NoError(t, err)
}

func okCollector(count int) services.CollectorFunc {
	return func(ctx context.Context, source models.DataSource) (*services.CollectorResult, error) {
		return &services.CollectorResult{
			Properties: make([]models.Property, count),
			Duration:   time.Second,
			Success:    true,
		}, nil
	}
}

func TestSourceHandler_List(t *testing.T) {
	router, store, _ := newSourceTestRouter(t, okCollector(0))
	seedTestSource(t, store, "src-a", fixtureTime.Add(-time.Hour))
	seedTestSource(t, store, "src-b", fixtureTime.Add(-time.Hour))

	w := doJSON(t, router, http.MethodGet, "/api/v1/sources", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp SourceListResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Sources, 2)
}

func TestSourceHandler_ListDue(t *testing.T) {
	router, store, _ := newSourceTestRouter(t, okCollector(0))
	seedTestSource(t, store, "src-due", fixtureTime.Add(-48*time.Hour))
	seedTestSource(t, store, "src-fresh", fixtureTime.Add(-time.Hour))

	w := doJSON(t, router, http.MethodGet, "/api/v1/sources/due", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp SourceListResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "src-due", resp.Sources[0].ID)
}

func TestSourceHandler_Collect(t *testing.T) {
	router, store, _ := newSourceTestRouter(t, okCollector(7))
	seedTestSource(t, store, "src-a", fixtureTime.Add(-time.Hour))

	w := doJSON(t, router, http.MethodPost, "/api/v1/sources/src-a/collect", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var result services.CollectionResult
	require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
	assert.True(t, result.Success)
	assert.Equal(t, 7, result.PropertyCount)

	w = doJSON(t, router, http.MethodPost, "/api/v1/sources/src-missing/collect", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSourceHandler_Collect_Failure(t *testing.T) {
	failing := func(ctx context.Context, source models.DataSource) (*services.CollectorResult, error) {
		return nil, errors.New("upstream unreachable")
	}
	router, store, _ := newSourceTestRouter(t, failing)
	seedTestSource(t, store, "src-a", fixtureTime.Add(-time.Hour))

	// The collection itself failing is still a 200; the outcome travels in
	// the result body.
	w := doJSON(t, router, http.MethodPost, "/api/v1/sources/src-a/collect", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var result services.CollectionResult
	require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "upstream unreachable")
}

func TestSourceHandler_LatestRun(t *testing.T) {
	router, store, recorder := newSourceTestRouter(t, okCollector(0))
	seedTestSource(t, store, "src-a", fixtureTime.Add(-time.Hour))

	// No history yet.
	w := doJSON(t, router, http.MethodGet, "/api/v1/sources/src-a/runs/latest", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	runID, err := recorder.RecordRun(context.Background(), "src-a", make([]models.Property, 3), time.Second, true, nil)
	require.NoError(t, err)

	w = doJSON(t, router, http.MethodGet, "/api/v1/sources/src-a/runs/latest", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp RunResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotNil(t, resp.Run)
	assert.Equal(t, runID, resp.Run.ID)
	assert.Equal(t, models.RunStatusSuccess, resp.Run.Status)
}

func TestSourceHandler_RunStats(t *testing.T) {
	router, store, recorder := newSourceTestRouter(t, okCollector(0))
	seedTestSource(t, store, "src-a", fixtureTime.Add(-time.Hour))

	// No history yet.
	w := doJSON(t, router, http.MethodGet, "/api/v1/sources/src-a/runs/stats", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	_, err := recorder.RecordRun(context.Background(), "src-a", make([]models.Property, 4), 2*time.Second, true, nil)
	require.NoError(t, err)
	details := "boom"
	_, err = recorder.RecordRun(context.Background(), "src-a", nil, time.Second, false, &details)
	require.NoError(t, err)

	w = doJSON(t, router, http.MethodGet, "/api/v1/sources/src-a/runs/stats", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var summary models.SourceRunSummary
	require.NoError(t, json.NewDecoder(w.Body).Decode(&summary))
	assert.Equal(t, "src-a", summary.SourceID)
	assert.Equal(t, 2, summary.RunCount)
	assert.InDelta(t, 0.5, summary.SuccessRate, 0.0001)

	w = doJSON(t, router, http.MethodGet, "/api/v1/sources/src-a/runs/stats?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/sources/src-a/runs/stats?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
