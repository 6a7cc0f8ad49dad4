package triage

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the triage history route on the staff group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/referrals/:id/triage-logs", h.HandleListLogs)
}

func (h *Handler) HandleListLogs(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"message": "invalid referral id",
		})
	}
	logs, err := h.service.ListLogs(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"message": err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "data": logs})
}
