package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/jordanlanch/salespilot/pkg/metrics"
	"github.com/jordanlanch/salespilot/pkg/middleware"
	"github.com/jordanlanch/salespilot/pkg/models"
	"github.com/jordanlanch/salespilot/pkg/nurture"
)

// NurtureHandler handles nurture enrollment operations.
type NurtureHandler struct {
	service   *nurture.Service
	validator *validator.Validate
	metrics   *metrics.Metrics
}

// NewNurtureHandler creates a new nurture handler. metrics may be nil.
func NewNurtureHandler(service *nurture.Service, m *metrics.Metrics) *NurtureHandler {
	return &NurtureHandler{
		service:   service,
		validator: validator.New(),
		metrics:   m,
	}
}

// EnrollRequest is the payload for enrolling a contact in a template.
type EnrollRequest struct {
	TemplateID int `json:"template_id" validate:"required,gt=0"`
}

// Enroll godoc
// @Summary Enroll a contact in a nurture template
// @Description Create an active enrollment and pre-schedule every step of the template
// @Tags Nurture
// @Accept json
// @Produce json
// @Param id path int true "Contact ID"
// @Param request body EnrollRequest true "Enrollment"
// @Success 201 {object} domain.NurtureEnrollment
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/contacts/{id}/enrollments [post]
func (h *NurtureHandler) Enroll(c echo.Context) error {
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

	var req EnrollRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
		})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "template_id is required and must be positive",
		})
	}

	userID, _ := middleware.UserID(c)
	enrollment, err := h.service.Enroll(ctx, tenant, userID, contactID, req.TemplateID)
	if err != nil {
		return respondError(c, err)
	}
	if h.metrics != nil {
		h.metrics.EnrollmentsCreated.Inc()
	}
	return c.JSON(http.StatusCreated, enrollment)
}

// ListEnrollments godoc
// @Summary List a contact's enrollments
// @Description List every enrollment of a contact with its step delivery state
// @Tags Nurture
// @Produce json
// @Param id path int true "Contact ID"
// @Success 200 {array} nurture.EnrollmentDetail
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/contacts/{id}/enrollments [get]
func (h *NurtureHandler) ListEnrollments(c echo.Context) error {
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

	details, err := h.service.ListEnrollments(ctx, tenant, contactID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, details)
}

// Pause godoc
// @Summary Pause an enrollment
// @Description Pause an active enrollment; due steps are held until resume
// @Tags Nurture
// @Produce json
// @Param id path int true "Enrollment ID"
// @Success 204 "No Content"
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/enrollments/{id}/pause [post]
func (h *NurtureHandler) Pause(c echo.Context) error {
	return h.transition(c, h.service.Pause)
}

// Resume godoc
// @Summary Resume an enrollment
// @Description Resume a paused enrollment; overdue steps become immediately due
// @Tags Nurture
// @Produce json
// @Param id path int true "Enrollment ID"
// @Success 204 "No Content"
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/enrollments/{id}/resume [post]
func (h *NurtureHandler) Resume(c echo.Context) error {
	return h.transition(c, h.service.Resume)
}

// Cancel godoc
// @Summary Cancel an enrollment
// @Description Cancel an enrollment and every not-yet-sent step; sent history is preserved
// @Tags Nurture
// @Produce json
// @Param id path int true "Enrollment ID"
// @Success 204 "No Content"
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/enrollments/{id}/cancel [post]
func (h *NurtureHandler) Cancel(c echo.Context) error {
	return h.transition(c, h.service.Cancel)
}

func (h *NurtureHandler) transition(c echo.Context, op func(context.Context, int, int) error) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	tenant, err := tenantID(c)
	if err != nil {
		return err
	}
	enrollmentID, ok := pathInt(c, "id")
	if !ok {
		return badParam(c, "enrollment_id", "Enrollment ID must be a valid number")
	}

	if err := op(ctx, tenant, enrollmentID); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
