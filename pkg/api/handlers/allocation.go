package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/jordanlanch/salespilot/pkg/allocation"
	"github.com/jordanlanch/salespilot/pkg/metrics"
	"github.com/jordanlanch/salespilot/pkg/models"
)

// AllocationHandler handles rep suggestion and assignment operations.
type AllocationHandler struct {
	service   *allocation.Service
	validator *validator.Validate
	metrics   *metrics.Metrics
}

// NewAllocationHandler creates a new allocation handler. metrics may be nil.
func NewAllocationHandler(service *allocation.Service, m *metrics.Metrics) *AllocationHandler {
	return &AllocationHandler{
		service:   service,
		validator: validator.New(),
		metrics:   m,
	}
}

// AssignRequest is the payload for a manual rep assignment.
type AssignRequest struct {
	RepID int `json:"rep_id" validate:"required,gt=0"`
}

// SuggestReps godoc
// @Summary Suggest sales reps for a lead
// @Description Rank eligible sales reps for a contact, best match first
// @Tags Allocation
// @Produce json
// @Param id path int true "Contact ID"
// @Success 200 {array} domain.AllocationSuggestion
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 422 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/contacts/{id}/suggestions [get]
func (h *AllocationHandler) SuggestReps(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	tenant, err := tenantID(c)
	if err != nil {
		return err
	}
	contactID, ok := pathInt(c, "id")
	if !ok {
		return badParam(c, "contact_id", "Contact ID must be a valid number")
	}

	suggestions, err := h.service.Suggest(ctx, tenant, contactID)
	if err != nil {
		return respondError(c, err)
	}
	if h.metrics != nil {
		h.metrics.SuggestionsServed.Inc()
	}
	return c.JSON(http.StatusOK, suggestions)
}

// AssignRep godoc
// @Summary Assign a sales rep to a lead
// @Description Set the contact's assigned rep; manual choice always wins over suggestions
// @Tags Allocation
// @Accept json
// @Produce json
// @Param id path int true "Contact ID"
// @Param request body AssignRequest true "Assignment"
// @Success 200 {object} allocation.AssignResult
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/contacts/{id}/assign [post]
func (h *AllocationHandler) AssignRep(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	tenant, err := tenantID(c)
	if err != nil {
		return err
	}
	contactID, ok := pathInt(c, "id")
	if !ok {
		return badParam(c, "contact_id", "Contact ID must be a valid number")
	}

	var req AssignRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
		})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "rep_id is required and must be positive",
		})
	}

	result, err := h.service.Assign(ctx, tenant, contactID, req.RepID)
	if err != nil {
		return respondError(c, err)
	}
	if h.metrics != nil && result.Changed {
		h.metrics.AssignmentsTotal.Inc()
	}
	return c.JSON(http.StatusOK, result)
}
