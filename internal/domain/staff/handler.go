package staff

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/referralhub/referralhub/internal/platform/middleware"
)

// Handler exposes the staff availability toggle. All other staff management
// is owned by the admin CRUD layer.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers staff routes on the authenticated staff group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.PUT("/staff/availability", h.HandleSetAvailability)
}

type setAvailabilityRequest struct {
	IsAvailable bool `json:"is_available"`
}

// HandleSetAvailability handles PUT /staff/availability for the
// authenticated staff member. Flipping to available drains their queued
// notifications before the response returns.
func (h *Handler) HandleSetAvailability(c echo.Context) error {
	staffID, ok := middleware.StaffIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]interface{}{
			"success": false,
			"message": "Unauthorized",
		})
	}

	var req setAvailabilityRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"message": "invalid request body",
		})
	}

	updated, err := h.service.SetAvailability(c.Request().Context(), staffID, req.IsAvailable)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"message": err.Error(),
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    updated,
	})
}
