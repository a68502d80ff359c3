package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/jordanlanch/salespilot/pkg/domain"
	"github.com/jordanlanch/salespilot/pkg/middleware"
	"github.com/jordanlanch/salespilot/pkg/models"
)

// respondError maps a domain error to its HTTP status and JSON payload.
func respondError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	code := "server_error"
	message := "An unexpected error occurred"

	var de *domain.DomainError
	if errors.As(err, &de) {
		code = de.Code
		message = de.Message
		switch de.Code {
		case domain.ErrCodeNotFound:
			status = http.StatusNotFound
		case domain.ErrCodeConflict:
			status = http.StatusConflict
		case domain.ErrCodeNoEligibleRep:
			status = http.StatusUnprocessableEntity
		case domain.ErrCodeComputation:
			status = http.StatusBadGateway
		case domain.ErrCodeValidation:
			status = http.StatusBadRequest
		}
	}

	return c.JSON(status, models.ErrorResponse{
		Error:   code,
		Message: message,
	})
}

// pathInt parses a numeric path parameter.
func pathInt(c echo.Context, name string) (int, bool) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// errUnauthorized marks a request rejected by tenantID. The 401 response is
// already committed when it is returned; callers must stop. Echo's error
// handler ignores it because the response is committed.
var errUnauthorized = errors.New("missing tenant context")

// tenantID returns the authenticated tenant, or writes a 401 and returns a
// non-nil error so the caller short-circuits.
func tenantID(c echo.Context) (int, error) {
	id, ok := middleware.TenantID(c)
	if !ok {
		if err := c.JSON(http.StatusUnauthorized, models.ErrorResponse{
			Error:   "unauthorized",
			Message: "Authentication required",
		}); err != nil {
			return 0, err
		}
		return 0, errUnauthorized
	}
	return id, nil
}

func badParam(c echo.Context, name, message string) error {
	return c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   "invalid_" + name,
		Message: message,
	})
}
