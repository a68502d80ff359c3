package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/jordanlanch/salespilot/pkg/models"
)

// Context keys set by TenantAuth.
const (
	ContextTenantID = "tenant_id"
	ContextUserID   = "user_id"
)

// TenantAuth is the multi-tenant licensing gate. It validates the bearer
// token, rejects unlicensed tenants, and threads tenant_id/user_id into
// the request context for every core operation. No core code reads
// ambient tenant state.
func TenantAuth(jwtSecret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
					Error:   "unauthorized",
					Message: "Authentication required",
				})
			}

			tokenString := strings.TrimPrefix(header, "Bearer ")
			token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return []byte(jwtSecret), nil
			})
			if err != nil || !token.Valid {
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
					Error:   "invalid_token",
					Message: "Authentication token is invalid or expired",
				})
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
					Error:   "invalid_token",
					Message: "Authentication token is invalid or expired",
				})
			}

			tenantID, ok := claimInt(claims, "tenant_id")
			if !ok {
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
					Error:   "invalid_token",
					Message: "Token is missing tenant information",
				})
			}
			userID, _ := claimInt(claims, "user_id")

			if licensed, ok := claims["licensed"].(bool); !ok || !licensed {
				return c.JSON(http.StatusForbidden, models.ErrorResponse{
					Error:   "tenant_not_licensed",
					Message: "Your tenant license is inactive",
				})
			}

			c.Set(ContextTenantID, tenantID)
			c.Set(ContextUserID, userID)
			return next(c)
		}
	}
}

// TenantID extracts the authenticated tenant from the request context.
func TenantID(c echo.Context) (int, bool) {
	id, ok := c.Get(ContextTenantID).(int)
	return id, ok
}

// UserID extracts the authenticated user from the request context.
func UserID(c echo.Context) (int, bool) {
	id, ok := c.Get(ContextUserID).(int)
	return id, ok
}

func claimInt(claims jwt.MapClaims, key string) (int, bool) {
	switch v := claims[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}
