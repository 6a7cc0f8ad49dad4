package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// StaffClaims are the JWT claims carried by staff tokens. Token issuance is
// handled by the identity layer; this middleware only validates.
type StaffClaims struct {
	jwt.RegisteredClaims
	StaffID string `json:"staff_id"`
	Role    string `json:"role"`
}

// StaffAuth validates Bearer tokens on staff and admin endpoints and exposes
// the acting staff id and role on the echo context.
func StaffAuth(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, map[string]interface{}{
					"success": false,
					"message": "Unauthorized",
				})
			}

			claims := &StaffClaims{}
			token, err := jwt.ParseWithClaims(strings.TrimPrefix(header, "Bearer "), claims,
				func(t *jwt.Token) (interface{}, error) {
					if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
						return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
					}
					return secret, nil
				})
			if err != nil || !token.Valid {
				return c.JSON(http.StatusUnauthorized, map[string]interface{}{
					"success": false,
					"message": "Unauthorized",
				})
			}

			staffID, err := uuid.Parse(claims.StaffID)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, map[string]interface{}{
					"success": false,
					"message": "Unauthorized",
				})
			}

			c.Set("staff_id", staffID)
			c.Set("staff_role", claims.Role)
			return next(c)
		}
	}
}

// RequireRole rejects requests whose authenticated staff role is not in the
// allowed set.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, _ := c.Get("staff_role").(string)
			if !allowed[role] {
				return c.JSON(http.StatusForbidden, map[string]interface{}{
					"success": false,
					"message": "Insufficient permissions",
				})
			}
			return next(c)
		}
	}
}

// StaffIDFromContext returns the authenticated staff id set by StaffAuth.
func StaffIDFromContext(c echo.Context) (uuid.UUID, bool) {
	id, ok := c.Get("staff_id").(uuid.UUID)
	return id, ok
}
