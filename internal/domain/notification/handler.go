package notification

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/referralhub/referralhub/internal/platform/middleware"
)

type Handler struct {
	repo Repository
}

func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

// RegisterRoutes registers notification routes on the authenticated staff
// group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/notifications", h.HandleList)
	g.PUT("/notifications/:id/read", h.HandleMarkRead)
}

// HandleList returns the authenticated staff member's notifications, newest
// first.
func (h *Handler) HandleList(c echo.Context) error {
	staffID, ok := middleware.StaffIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]interface{}{
			"success": false,
			"message": "Unauthorized",
		})
	}
	notifications, err := h.repo.ListByStaff(c.Request().Context(), staffID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"message": err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    notifications,
	})
}

// HandleMarkRead stamps read_at on one of the member's own notifications.
func (h *Handler) HandleMarkRead(c echo.Context) error {
	staffID, ok := middleware.StaffIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]interface{}{
			"success": false,
			"message": "Unauthorized",
		})
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"message": "invalid notification id",
		})
	}
	if err := h.repo.MarkRead(c.Request().Context(), id, staffID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]interface{}{
				"success": false,
				"message": "Notification not found",
			})
		}
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"message": err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true})
}
