package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// HospitalResolver resolves an API key to an active hospital. The returned id
// is the submitting hospital's identity for the rest of the request.
type HospitalResolver interface {
	ResolveAPIKey(ctx context.Context, apiKey string) (uuid.UUID, error)
}

// APIKeyAuth authenticates hospital-facing endpoints via the X-API-Key header.
func APIKeyAuth(resolver HospitalResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			apiKey := c.Request().Header.Get("X-API-Key")
			if apiKey == "" {
				apiKey = c.QueryParam("api_key")
			}
			if apiKey == "" {
				return c.JSON(http.StatusUnauthorized, map[string]interface{}{
					"success": false,
					"message": "API key is required",
				})
			}

			hospitalID, err := resolver.ResolveAPIKey(c.Request().Context(), apiKey)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, map[string]interface{}{
					"success": false,
					"message": "Invalid or inactive API key",
				})
			}

			c.Set("hospital_id", hospitalID)
			return next(c)
		}
	}
}

// HospitalIDFromContext returns the authenticated hospital id set by APIKeyAuth.
func HospitalIDFromContext(c echo.Context) (uuid.UUID, bool) {
	id, ok := c.Get("hospital_id").(uuid.UUID)
	return id, ok
}
