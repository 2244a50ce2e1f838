package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	apierrors "github.com/lienledger/api/internal/errors"
	"github.com/lienledger/api/internal/models"
	"github.com/lienledger/api/internal/services"
)

// SourceHandler handles data source and collection run endpoints.
type SourceHandler struct {
	scheduler services.SchedulerService
	recorder  services.RecorderService
	collect   services.CollectorFunc
}

// NewSourceHandler creates a new SourceHandler instance. The collect func is
// invoked for on-demand collections triggered through the API.
func NewSourceHandler(scheduler services.SchedulerService, recorder services.RecorderService, collect services.CollectorFunc) *SourceHandler {
	return &SourceHandler{
		scheduler: scheduler,
		recorder:  recorder,
		collect:   collect,
	}
}

// SourceListResponse wraps a list of data sources.
type SourceListResponse struct {
	Sources []models.DataSource `json:"sources"`
	Count   int                 `json:"count"`
}

// RunResponse wraps a single collection run.
type RunResponse struct {
	Run *models.CollectionRun `json:"run"`
}

// List handles GET /api/v1/sources.
func (h *SourceHandler) List(c *gin.Context) {
	sources, err := h.scheduler.ListSources(c.Request.Context())
	if err != nil {
		apierrors.InternalServerError(c, "Failed to list data sources", err)
		return
	}

	c.JSON(http.StatusOK, SourceListResponse{Sources: sources, Count: len(sources)})
}

// ListDue handles GET /api/v1/sources/due. It returns the sources whose
// schedules make them eligible for collection right now.
func (h *SourceHandler) ListDue(c *gin.Context) {
	sources, err := h.scheduler.FindDueSources(c.Request.Context())
	if err != nil {
		apierrors.InternalServerError(c, "Failed to find due data sources", err)
		return
	}

	c.JSON(http.StatusOK, SourceListResponse{Sources: sources, Count: len(sources)})
}

// Collect handles POST /api/v1/sources/:id/collect. It runs a collection for
// one source immediately, regardless of its schedule.
func (h *SourceHandler) Collect(c *gin.Context) {
	result, err := h.scheduler.CollectSource(c.Request.Context(), c.Param("id"), h.collect)
	if err != nil {
		if errors.Is(err, services.ErrSourceNotFound) {
			apierrors.NotFound(c, "Data source not found")
			return
		}
		apierrors.InternalServerError(c, "Failed to collect from data source", err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// LatestRun handles GET /api/v1/sources/:id/runs/latest.
func (h *SourceHandler) LatestRun(c *gin.Context) {
	run, err := h.recorder.GetLatestRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		apierrors.InternalServerError(c, "Failed to load latest run", err)
		return
	}
	if run == nil {
		apierrors.NotFound(c, "No collection runs recorded for this source")
		return
	}

	c.JSON(http.StatusOK, RunResponse{Run: run})
}

// RunStats handles GET /api/v1/sources/:id/runs/stats. An optional ?limit=N
// query parameter bounds how many recent runs feed the summary.
func (h *SourceHandler) RunStats(c *gin.Context) {
	limit := services.DefaultRunStatsLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			apierrors.BadRequest(c, "Invalid limit parameter", map[string]interface{}{
				"limit": "must be a positive integer",
			})
			return
		}
		limit = parsed
	}

	summary, err := h.recorder.GetRunStats(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		apierrors.InternalServerError(c, "Failed to load run statistics", err)
		return
	}
	if summary == nil {
		apierrors.NotFound(c, "No collection runs recorded for this source")
		return
	}

	c.JSON(http.StatusOK, summary)
}
