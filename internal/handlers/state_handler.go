package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	apierrors "github.com/lienledger/api/internal/errors"
	"github.com/lienledger/api/internal/models"
	"github.com/lienledger/api/internal/services"
)

// StateHandler handles state and county statistics endpoints.
type StateHandler struct {
	stats services.StatsService
}

// NewStateHandler creates a new StateHandler instance.
func NewStateHandler(stats services.StatsService) *StateHandler {
	return &StateHandler{
		stats: stats,
	}
}

// StateResponse wraps a single state.
type StateResponse struct {
	State *models.State `json:"state"`
}

// CountyResponse wraps a single county.
type CountyResponse struct {
	County *models.County `json:"county"`
}

// GetState handles GET /api/v1/states/:id.
func (h *StateHandler) GetState(c *gin.Context) {
	state, err := h.stats.GetState(c.Request.Context(), c.Param("id"))
	if err != nil {
		apierrors.InternalServerError(c, "Failed to load state", err)
		return
	}
	if state == nil {
		apierrors.NotFound(c, "State not found")
		return
	}

	c.JSON(http.StatusOK, StateResponse{State: state})
}

// RecalculateState handles POST /api/v1/states/:id/recalculate.
// It authoritatively rederives the state's statistics from its counties.
func (h *StateHandler) RecalculateState(c *gin.Context) {
	state, err := h.stats.RecalculateState(c.Request.Context(), c.Param("id"))
	if err != nil {
		apierrors.InternalServerError(c, "Failed to recalculate state statistics", err)
		return
	}
	if state == nil {
		apierrors.NotFound(c, "State not found")
		return
	}

	c.JSON(http.StatusOK, StateResponse{State: state})
}

// GetCounty handles GET /api/v1/counties/:id.
func (h *StateHandler) GetCounty(c *gin.Context) {
	county, err := h.stats.GetCounty(c.Request.Context(), c.Param("id"))
	if err != nil {
		apierrors.InternalServerError(c, "Failed to load county", err)
		return
	}
	if county == nil {
		apierrors.NotFound(c, "County not found")
		return
	}

	c.JSON(http.StatusOK, CountyResponse{County: county})
}

// RecalculateCounty handles POST /api/v1/counties/:id/recalculate.
func (h *StateHandler) RecalculateCounty(c *gin.Context) {
	county, err := h.stats.RecalculateCounty(c.Request.Context(), c.Param("id"))
	if err != nil {
		apierrors.InternalServerError(c, "Failed to recalculate county statistics", err)
		return
	}
	if county == nil {
		apierrors.NotFound(c, "County not found")
		return
	}

	c.JSON(http.StatusOK, CountyResponse{County: county})
}
