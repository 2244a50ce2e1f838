package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	apierrors "github.com/lienledger/api/internal/errors"
	"github.com/lienledger/api/internal/middleware"
	"github.com/lienledger/api/internal/models"
	"github.com/lienledger/api/internal/services"
)

// PropertyHandler handles property-related HTTP requests.
type PropertyHandler struct {
	hierarchy services.HierarchyService
}

// NewPropertyHandler creates a new PropertyHandler instance.
func NewPropertyHandler(hierarchy services.HierarchyService) *PropertyHandler {
	return &PropertyHandler{
		hierarchy: hierarchy,
	}
}

// TaxStatusPayload is the tax sub-record in property requests.
type TaxStatusPayload struct {
	TaxLienStatus string     `json:"taxLienStatus" binding:"required"`
	AssessedValue float64    `json:"assessedValue" binding:"min=0"`
	MarketValue   float64    `json:"marketValue" binding:"min=0"`
	LienAmount    *float64   `json:"lienAmount"`
	SaleDate      *time.Time `json:"saleDate"`
}

// CreatePropertyRequest is the body for POST /api/v1/properties.
type CreatePropertyRequest struct {
	CountyID     string           `json:"countyId" binding:"required"`
	ParcelNumber *string          `json:"parcelNumber"`
	Address      *string          `json:"address"`
	OwnerName    *string          `json:"ownerName"`
	Geometry     models.Geometry  `json:"geometry"`
	TaxStatus    TaxStatusPayload `json:"taxStatus" binding:"required"`
}

// UpdatePropertyRequest is the body for PATCH /api/v1/properties/:id.
// All fields are optional; countyId is rejected by the service so parent
// changes go through the move endpoint.
type UpdatePropertyRequest struct {
	CountyID      *string         `json:"countyId"`
	ParcelNumber  *string         `json:"parcelNumber"`
	Address       *string         `json:"address"`
	OwnerName     *string         `json:"ownerName"`
	Geometry      models.Geometry `json:"geometry"`
	TaxLienStatus *string         `json:"taxLienStatus"`
	AssessedValue *float64        `json:"assessedValue"`
	MarketValue   *float64        `json:"marketValue"`
	LienAmount    *float64        `json:"lienAmount"`
	SaleDate      *time.Time      `json:"saleDate"`
}

// MovePropertyRequest is the body for POST /api/v1/properties/:id/move.
type MovePropertyRequest struct {
	CountyID string `json:"countyId" binding:"required"`
}

// PropertyResponse wraps a single property.
type PropertyResponse struct {
	Property *models.Property `json:"property"`
}

// DeletePropertyResponse reports whether a delete removed anything.
type DeletePropertyResponse struct {
	Deleted bool `json:"deleted"`
}

// Create handles POST /api/v1/properties.
func (h *PropertyHandler) Create(c *gin.Context) {
	var req CreatePropertyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			apierrors.ValidationError(c, validationErrors)
			return
		}
		apierrors.BadRequest(c, "Invalid request body", nil)
		return
	}

	property, err := h.hierarchy.CreateProperty(c.Request.Context(), services.CreatePropertyInput{
		CountyID:     req.CountyID,
		ParcelNumber: req.ParcelNumber,
		Address:      req.Address,
		OwnerName:    req.OwnerName,
		Geometry:     req.Geometry,
		TaxStatus: models.TaxStatus{
			TaxLienStatus: req.TaxStatus.TaxLienStatus,
			AssessedValue: req.TaxStatus.AssessedValue,
			MarketValue:   req.TaxStatus.MarketValue,
			LienAmount:    req.TaxStatus.LienAmount,
			SaleDate:      req.TaxStatus.SaleDate,
		},
	})
	if err != nil {
		if errors.Is(err, services.ErrCountyNotFound) || errors.Is(err, services.ErrStateNotFound) {
			apierrors.NotFound(c, err.Error())
			return
		}
		apierrors.InternalServerError(c, "Failed to create property", err)
		return
	}

	c.JSON(http.StatusCreated, PropertyResponse{Property: property})
}

// Get handles GET /api/v1/properties/:id.
func (h *PropertyHandler) Get(c *gin.Context) {
	id := c.Param("id")

	property, err := h.hierarchy.GetProperty(c.Request.Context(), id)
	if err != nil {
		apierrors.InternalServerError(c, "Failed to load property", err)
		return
	}
	if property == nil {
		apierrors.NotFound(c, "Property not found")
		return
	}

	c.JSON(http.StatusOK, PropertyResponse{Property: property})
}

// Update handles PATCH /api/v1/properties/:id.
func (h *PropertyHandler) Update(c *gin.Context) {
	id := c.Param("id")

	var req UpdatePropertyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			apierrors.ValidationError(c, validationErrors)
			return
		}
		apierrors.BadRequest(c, "Invalid request body", nil)
		return
	}

	property, err := h.hierarchy.UpdateProperty(c.Request.Context(), id, services.PropertyPatch{
		CountyID:      req.CountyID,
		ParcelNumber:  req.ParcelNumber,
		Address:       req.Address,
		OwnerName:     req.OwnerName,
		Geometry:      req.Geometry,
		TaxLienStatus: req.TaxLienStatus,
		AssessedValue: req.AssessedValue,
		MarketValue:   req.MarketValue,
		LienAmount:    req.LienAmount,
		SaleDate:      req.SaleDate,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrPropertyNotFound):
			apierrors.NotFound(c, "Property not found")
		case errors.Is(err, services.ErrParentImmutable):
			apierrors.BadRequest(c, err.Error(), nil)
		default:
			apierrors.InternalServerError(c, "Failed to update property", err)
		}
		return
	}

	c.JSON(http.StatusOK, PropertyResponse{Property: property})
}

// Move handles POST /api/v1/properties/:id/move.
func (h *PropertyHandler) Move(c *gin.Context) {
	id := c.Param("id")

	var req MovePropertyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			apierrors.ValidationError(c, validationErrors)
			return
		}
		apierrors.BadRequest(c, "Invalid request body", nil)
		return
	}

	property, err := h.hierarchy.MoveProperty(c.Request.Context(), id, req.CountyID)
	if err != nil {
		if errors.Is(err, services.ErrPropertyNotFound) || errors.Is(err, services.ErrCountyNotFound) || errors.Is(err, services.ErrStateNotFound) {
			apierrors.NotFound(c, err.Error())
			return
		}
		apierrors.InternalServerError(c, "Failed to move property", err)
		return
	}

	if log := middleware.GetLogger(c); log != nil {
		log.Info("Property moved via API", map[string]interface{}{
			"property_id": id,
			"county_id":   req.CountyID,
		})
	}

	c.JSON(http.StatusOK, PropertyResponse{Property: property})
}

// Delete handles DELETE /api/v1/properties/:id.
// Deleting a missing property is not an error; the response reports
// whether anything was removed.
func (h *PropertyHandler) Delete(c *gin.Context) {
	id := c.Param("id")

	deleted, err := h.hierarchy.DeleteProperty(c.Request.Context(), id)
	if err != nil {
		apierrors.InternalServerError(c, "Failed to delete property", err)
		return
	}

	c.JSON(http.StatusOK, DeletePropertyResponse{Deleted: deleted})
}
