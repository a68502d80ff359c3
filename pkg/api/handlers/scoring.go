package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/jordanlanch/salespilot/pkg/metrics"
	"github.com/jordanlanch/salespilot/pkg/scoring"
)

// ScoringHandler handles lead scoring operations.
type ScoringHandler struct {
	service *scoring.Service
	metrics *metrics.Metrics
}

// NewScoringHandler creates a new scoring handler. metrics may be nil.
func NewScoringHandler(service *scoring.Service, m *metrics.Metrics) *ScoringHandler {
	return &ScoringHandler{service: service, metrics: m}
}

// GetScore godoc
// @Summary Get lead score
// @Description Get the stored quality score and component breakdown for a contact
// @Tags Scoring
// @Produce json
// @Param id path int true "Contact ID"
// @Success 200 {object} scoring.ScoreResult
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/contacts/{id}/score [get]
func (h *ScoringHandler) GetScore(c echo.Context) error {
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

	result, err := h.service.GetScore(ctx, tenant, contactID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// RecomputeScore godoc
// @Summary Recompute lead score
// @Description Recalculate and persist the quality score for a contact
// @Tags Scoring
// @Produce json
// @Param id path int true "Contact ID"
// @Success 200 {object} scoring.ScoreResult
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 502 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/contacts/{id}/score [post]
func (h *ScoringHandler) RecomputeScore(c echo.Context) error {
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

	result, err := h.service.RecomputeOne(ctx, tenant, contactID)
	if err != nil {
		return respondError(c, err)
	}
	if h.metrics != nil {
		h.metrics.ScoresComputed.Inc()
	}
	return c.JSON(http.StatusOK, result)
}

// RecomputeAll godoc
// @Summary Recompute all lead scores
// @Description Recalculate quality scores for every lead of the tenant
// @Tags Scoring
// @Produce json
// @Success 200 {object} scoring.BatchResult
// @Failure 500 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/scores/recompute [post]
func (h *ScoringHandler) RecomputeAll(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Minute)
	defer cancel()

	tenant, err := tenantID(c)
	if err != nil {
		return err
	}

	result, err := h.service.RecomputeBatch(ctx, tenant)
	if err != nil {
		return respondError(c, err)
	}
	if h.metrics != nil {
		h.metrics.ScoresComputed.Add(float64(result.Scored))
	}
	return c.JSON(http.StatusOK, result)
}
