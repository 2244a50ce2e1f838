package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/lienledger/api/internal/logger"
	"github.com/lienledger/api/internal/models"
	"github.com/lienledger/api/internal/repository"
	"github.com/lienledger/api/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStateTestRouter(t *testing.T) (*gin.Engine, *repository.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := repository.NewMemoryStore()
	seedTestHierarchy(t, store)

	svc := services.NewStatsService(store, logger.New("test"), clockwork.NewFakeClockAt(fixtureTime))
	handler := NewStateHandler(svc)

	router := gin.New()
	router.GET("/api/v1/states/:id", handler.GetState)
	router.POST("/api/v1/states/:id/recalculate", handler.RecalculateState)
	router.GET("/api/v1/counties/:id", handler.GetCounty)
	router.POST("/api/v1/counties/:id/recalculate", handler.RecalculateCounty)
	return router, store
}

func TestStateHandler_GetState(t *testing.T) {
	router, _ := newStateTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/states/st-tx", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp StateResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotNil(t, resp.State)
	assert.Equal(t, "Texas", resp.State.Name)

	w = doJSON(t, router, http.MethodGet, "/api/v1/states/st-nowhere", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStateHandler_GetCounty(t *testing.T) {
	router, _ := newStateTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/counties/cty-travis", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp CountyResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotNil(t, resp.County)
	assert.Equal(t, "st-tx", resp.County.StateID)

	w = doJSON(t, router, http.MethodGet, "/api/v1/counties/cty-nowhere", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStateHandler_RecalculateCounty(t *testing.T) {
	router, store := newStateTestRouter(t)

	// A property inserted behind the bookkeeping leaves the county stale
	// until recalculation.
	err := store.RunInTransaction(context.Background(), func(tx repository.Tx) error {
		return tx.InsertProperty(context.Background(), &models.Property{
			ID:       "p1",
			CountyID: "cty-travis",
			StateID:  "st-tx",
			TaxStatus: models.TaxStatus{
				TaxLienStatus: models.TaxLienStatusActive,
				AssessedValue: 80000,
			},
		})
	})
	require.NoError(t, err)

	w := doJSON(t, router, http.MethodPost, "/api/v1/counties/cty-travis/recalculate", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp CountyResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotNil(t, resp.County)
	assert.Equal(t, 1, resp.County.Statistics.TotalProperties)
	assert.Equal(t, 1, resp.County.Statistics.TotalTaxLiens)
	assert.InDelta(t, 80000, resp.County.Statistics.TotalValue, 0.0001)

	w = doJSON(t, router, http.MethodPost, "/api/v1/counties/cty-nowhere/recalculate", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStateHandler_RecalculateState(t *testing.T) {
	router, _ := newStateTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/states/st-tx/recalculate", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp StateResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotNil(t, resp.State)
	assert.Equal(t, 2, resp.State.TotalCounties)
	assert.Equal(t, 0, resp.State.Statistics.TotalProperties)

	w = doJSON(t, router, http.MethodPost, "/api/v1/states/st-nowhere/recalculate", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
