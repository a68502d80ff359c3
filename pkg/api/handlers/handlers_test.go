package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanlanch/salespilot/pkg/allocation"
	"github.com/jordanlanch/salespilot/pkg/domain"
	"github.com/jordanlanch/salespilot/pkg/logger"
	custommw "github.com/jordanlanch/salespilot/pkg/middleware"
	"github.com/jordanlanch/salespilot/pkg/models"
	"github.com/jordanlanch/salespilot/pkg/nurture"
	"github.com/jordanlanch/salespilot/pkg/scoring"
	"github.com/jordanlanch/salespilot/pkg/store/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type noopTransport struct{}

func (noopTransport) Send(ctx context.Context, recipient, subject, body string) error { return nil }

type env struct {
	e     *echo.Echo
	store *memory.Store
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := memory.New()
	log := logger.New("error")
	clock := fixedClock{time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}

	scoringService := scoring.NewService(store, store, nil, clock, log, 2)
	allocationService := allocation.NewService(store, store, nil, log)
	nurtureService := nurture.NewService(store, store, store, store, noopTransport{}, clock, log)

	e := echo.New()

	// Stand-in for TenantAuth: trust a test header instead of a JWT.
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if v := c.Request().Header.Get("X-Test-Tenant"); v != "" {
				id, err := strconv.Atoi(v)
				if err == nil {
					c.Set(custommw.ContextTenantID, id)
					c.Set(custommw.ContextUserID, 7)
				}
			}
			return next(c)
		}
	})

	sh := NewScoringHandler(scoringService, nil)
	ah := NewAllocationHandler(allocationService, nil)
	nh := NewNurtureHandler(nurtureService, nil)

	e.GET("/contacts/:id/score", sh.GetScore)
	e.POST("/contacts/:id/score", sh.RecomputeScore)
	e.GET("/contacts/:id/suggestions", ah.SuggestReps)
	e.POST("/contacts/:id/assign", ah.AssignRep)
	e.POST("/contacts/:id/enrollments", nh.Enroll)
	e.GET("/contacts/:id/enrollments", nh.ListEnrollments)
	e.POST("/enrollments/:id/cancel", nh.Cancel)

	return &env{e: e, store: store}
}

// do issues a request without an authenticated tenant.
func (env *env) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

// doAs issues a request as the given tenant.
func (env *env) doAs(tenantID int, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	req.Header.Set("X-Test-Tenant", strconv.Itoa(tenantID))
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func TestScoringEndpoints(t *testing.T) {
	env := newEnv(t)
	contact := env.store.PutContact(&domain.Contact{
		TenantID: 1, Name: "Ada", Email: "ada@example.com",
		Type: domain.ContactTypeLead, Source: "referral",
	})

	t.Run("recompute then get", func(t *testing.T) {
		rec := env.doAs(1, http.MethodPost, fmt.Sprintf("/contacts/%d/score", contact.ID), "")
		require.Equal(t, http.StatusOK, rec.Code)

		rec = env.doAs(1, http.MethodGet, fmt.Sprintf("/contacts/%d/score", contact.ID), "")
		require.Equal(t, http.StatusOK, rec.Code)

		var result scoring.ScoreResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.Equal(t, contact.ID, result.ContactID)
		assert.Len(t, result.Components, 5)
	})

	t.Run("unknown contact maps to 404", func(t *testing.T) {
		rec := env.doAs(1, http.MethodGet, "/contacts/999/score", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("cross-tenant access maps to 404", func(t *testing.T) {
		rec := env.doAs(2, http.MethodGet, fmt.Sprintf("/contacts/%d/score", contact.ID), "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("missing tenant context maps to 401 and stops the handler", func(t *testing.T) {
		rec := env.do(http.MethodGet, fmt.Sprintf("/contacts/%d/score", contact.ID), "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		// Exactly one JSON object in the body; the handler must not run on
		// and append a second response after the 401.
		dec := json.NewDecoder(rec.Body)
		var body models.ErrorResponse
		require.NoError(t, dec.Decode(&body))
		assert.Equal(t, "unauthorized", body.Error)
		assert.False(t, dec.More(), "response body has trailing data after the 401 payload")
	})

	t.Run("non-numeric id maps to 400", func(t *testing.T) {
		rec := env.doAs(1, http.MethodGet, "/contacts/abc/score", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAllocationEndpoints(t *testing.T) {
	env := newEnv(t)
	contact := env.store.PutContact(&domain.Contact{
		TenantID: 1, Name: "Ada", Type: domain.ContactTypeLead, Industry: "saas",
	})

	t.Run("no eligible rep maps to 422", func(t *testing.T) {
		rec := env.doAs(1, http.MethodGet, fmt.Sprintf("/contacts/%d/suggestions", contact.ID), "")
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("suggest and assign", func(t *testing.T) {
		rep := env.store.PutRep(&domain.SalesRep{TenantID: 1, Name: "Rex", ConversionRate: 40})

		rec := env.doAs(1, http.MethodGet, fmt.Sprintf("/contacts/%d/suggestions", contact.ID), "")
		require.Equal(t, http.StatusOK, rec.Code)

		var suggestions []domain.AllocationSuggestion
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &suggestions))
		require.Len(t, suggestions, 1)
		assert.Equal(t, rep.ID, suggestions[0].Rep.ID)

		body := fmt.Sprintf(`{"rep_id": %d}`, rep.ID)
		rec = env.doAs(1, http.MethodPost, fmt.Sprintf("/contacts/%d/assign", contact.ID), body)
		require.Equal(t, http.StatusOK, rec.Code)

		var result allocation.AssignResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.True(t, result.Changed)
	})

	t.Run("missing rep_id maps to 400", func(t *testing.T) {
		rec := env.doAs(1, http.MethodPost, fmt.Sprintf("/contacts/%d/assign", contact.ID), `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestNurtureEndpoints(t *testing.T) {
	env := newEnv(t)
	contact := env.store.PutContact(&domain.Contact{
		TenantID: 1, Name: "Ada", Email: "ada@example.com", Type: domain.ContactTypeLead,
	})
	template := env.store.PutTemplate(&domain.NurtureTemplate{
		TenantID: 1, Name: "welcome",
		Steps: []domain.NurtureStep{{Order: 1, DayOffset: 0, Subject: "hi", Body: "hello"}},
	})

	t.Run("enroll creates and returns 201", func(t *testing.T) {
		body := fmt.Sprintf(`{"template_id": %d}`, template.ID)
		rec := env.doAs(1, http.MethodPost, fmt.Sprintf("/contacts/%d/enrollments", contact.ID), body)
		require.Equal(t, http.StatusCreated, rec.Code)

		var enrollment domain.NurtureEnrollment
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &enrollment))
		assert.Equal(t, domain.EnrollmentActive, enrollment.Status)
		assert.Equal(t, 7, enrollment.EnrolledByUserID)
	})

	t.Run("duplicate enrollment maps to 409", func(t *testing.T) {
		body := fmt.Sprintf(`{"template_id": %d}`, template.ID)
		rec := env.doAs(1, http.MethodPost, fmt.Sprintf("/contacts/%d/enrollments", contact.ID), body)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("list includes steps", func(t *testing.T) {
		rec := env.doAs(1, http.MethodGet, fmt.Sprintf("/contacts/%d/enrollments", contact.ID), "")
		require.Equal(t, http.StatusOK, rec.Code)

		var details []nurture.EnrollmentDetail
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &details))
		require.Len(t, details, 1)
		assert.Len(t, details[0].Steps, 1)
	})

	t.Run("cancel returns 204 and is idempotent", func(t *testing.T) {
		rec := env.doAs(1, http.MethodGet, fmt.Sprintf("/contacts/%d/enrollments", contact.ID), "")
		require.Equal(t, http.StatusOK, rec.Code)
		var details []nurture.EnrollmentDetail
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &details))
		enrollmentID := details[0].Enrollment.ID

		rec = env.doAs(1, http.MethodPost, fmt.Sprintf("/enrollments/%d/cancel", enrollmentID), "")
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = env.doAs(1, http.MethodPost, fmt.Sprintf("/enrollments/%d/cancel", enrollmentID), "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}
