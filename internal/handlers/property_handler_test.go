package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
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

var fixtureTime = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// seedTestHierarchy loads one state with two counties plus a second state
// with one county.
func seedTestHierarchy(t *testing.T, store repository.Store) {
	t.Helper()
	err := store.RunInTransaction(context.Background(), func(tx repository.Tx) error {
		states := []models.State{
			{ID: "st-tx", Name: "Texas", CreatedAt: fixtureTime, UpdatedAt: fixtureTime},
			{ID: "st-ok", Name: "Oklahoma", CreatedAt: fixtureTime, UpdatedAt: fixtureTime},
		}
		counties := []models.County{
			{ID: "cty-travis", StateID: "st-tx", Name: "Travis", CreatedAt: fixtureTime, UpdatedAt: fixtureTime},
			{ID: "cty-harris", StateID: "st-tx", Name: "Harris", CreatedAt: fixtureTime, UpdatedAt: fixtureTime},
			{ID: "cty-tulsa", StateID: "st-ok", Name: "Tulsa", CreatedAt: fixtureTime, UpdatedAt: fixtureTime},
		}
		for i := range states {
			if err := tx.PutState(context.Background(), &states[i]); err != nil {
				return err
			}
		}
		for i := range counties {
			if err := tx.PutCounty(context.Background(), &counties[i]); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func newPropertyTestRouter(t *testing.T) (*gin.Engine, services.HierarchyService, *repository.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := repository.NewMemoryStore()
	seedTestHierarchy(t, store)

	svc := services.NewHierarchyService(store, logger.New("test"), clockwork.NewFakeClockAt(fixtureTime))
	handler := NewPropertyHandler(svc)

	router := gin.New()
	router.POST("/api/v1/properties", handler.Create)
	router.GET("/api/v1/properties/:id", handler.Get)
	router.PATCH("/api/v1/properties/:id", handler.Update)
	router.POST("/api/v1/properties/:id/move", handler.Move)
	router.DELETE("/api/v1/properties/:id", handler.Delete)
	return router, svc, store
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func validCreateBody(countyID string) map[string]interface{} {
	return map[string]interface{}{
		"countyId":     countyID,
		"parcelNumber": "123-456-789",
		"address":      "600 Congress Ave",
		"taxStatus": map[string]interface{}{
			"taxLienStatus": "Active",
			"assessedValue": 100000,
			"marketValue":   110000,
		},
	}
}

func TestPropertyHandler_Create(t *testing.T) {
	router, _, _ := newPropertyTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/properties", validCreateBody("cty-travis"))
	assert.Equal(t, http.StatusCreated, w.Code)

	var resp PropertyResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotNil(t, resp.Property)
	assert.NotEmpty(t, resp.Property.ID)
	assert.Equal(t, "cty-travis", resp.Property.CountyID)
	assert.Equal(t, "st-tx", resp.Property.StateID)
	assert.Equal(t, "Active", resp.Property.TaxStatus.TaxLienStatus)
}

func TestPropertyHandler_Create_Invalid(t *testing.T) {
	router, _, _ := newPropertyTestRouter(t)

	tests := []struct {
		name     string
		body     interface{}
		wantCode int
	}{
		{
			name: "missing countyId",
			body: map[string]interface{}{
				"taxStatus": map[string]interface{}{"taxLienStatus": "Active"},
			},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "malformed json",
			body:     "not-json",
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown county",
			body:     validCreateBody("cty-nowhere"),
			wantCode: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, http.MethodPost, "/api/v1/properties", tt.body)
			assert.Equal(t, tt.wantCode, w.Code)
		})
	}
}

func TestPropertyHandler_Get(t *testing.T) {
	router, svc, _ := newPropertyTestRouter(t)

	created, err := svc.CreateProperty(context.Background(), services.CreatePropertyInput{
		CountyID:  "cty-travis",
		TaxStatus: models.TaxStatus{TaxLienStatus: "Paid", AssessedValue: 50000},
	})
	require.NoError(t, err)

	w := doJSON(t, router, http.MethodGet, "/api/v1/properties/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp PropertyResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, created.ID, resp.Property.ID)

	w = doJSON(t, router, http.MethodGet, "/api/v1/properties/prop-missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPropertyHandler_Update(t *testing.T) {
	router, svc, _ := newPropertyTestRouter(t)

	created, err := svc.CreateProperty(context.Background(), services.CreatePropertyInput{
		CountyID:  "cty-travis",
		TaxStatus: models.TaxStatus{TaxLienStatus: "Active", AssessedValue: 100000},
	})
	require.NoError(t, err)

	w := doJSON(t, router, http.MethodPatch, "/api/v1/properties/"+created.ID, map[string]interface{}{
		"assessedValue": 125000,
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var resp PropertyResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.InDelta(t, 125000, resp.Property.TaxStatus.AssessedValue, 0.0001)

	// Parent changes must go through the move endpoint.
	w = doJSON(t, router, http.MethodPatch, "/api/v1/properties/"+created.ID, map[string]interface{}{
		"countyId": "cty-harris",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodPatch, "/api/v1/properties/prop-missing", map[string]interface{}{
		"assessedValue": 1,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPropertyHandler_Move(t *testing.T) {
	router, svc, _ := newPropertyTestRouter(t)

	created, err := svc.CreateProperty(context.Background(), services.CreatePropertyInput{
		CountyID:  "cty-travis",
		TaxStatus: models.TaxStatus{TaxLienStatus: "Active", AssessedValue: 100000},
	})
	require.NoError(t, err)

	w := doJSON(t, router, http.MethodPost, "/api/v1/properties/"+created.ID+"/move", map[string]interface{}{
		"countyId": "cty-tulsa",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var resp PropertyResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "cty-tulsa", resp.Property.CountyID)
	assert.Equal(t, "st-ok", resp.Property.StateID)

	w = doJSON(t, router, http.MethodPost, "/api/v1/properties/"+created.ID+"/move", map[string]interface{}{
		"countyId": "cty-nowhere",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPropertyHandler_Delete(t *testing.T) {
	router, svc, _ := newPropertyTestRouter(t)

	created, err := svc.CreateProperty(context.Background(), services.CreatePropertyInput{
		CountyID:  "cty-travis",
		TaxStatus: models.TaxStatus{TaxLienStatus: "Active", AssessedValue: 100000},
	})
	require.NoError(t, err)

	w := doJSON(t, router, http.MethodDelete, "/api/v1/properties/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp DeletePropertyResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Deleted)

	// Deleting again reports nothing removed.
	w = doJSON(t, router, http.MethodDelete, "/api/v1/properties/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.False(t, resp.Deleted)
}
