package referral

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/referralhub/referralhub/internal/domain/audit"
	"github.com/referralhub/referralhub/internal/domain/patient"
	"github.com/referralhub/referralhub/internal/platform/middleware"
)

type Handler struct {
	service *Service
	audit   *audit.Service
}

func NewHandler(service *Service, auditSvc *audit.Service) *Handler {
	return &Handler{service: service, audit: auditSvc}
}

// RegisterHospitalRoutes registers the API-key-authenticated ingestion route.
func (h *Handler) RegisterHospitalRoutes(g *echo.Group) {
	g.POST("/referrals", h.HandleSubmit)
}

// RegisterStaffRoutes registers the JWT-authenticated staff workflow routes.
func (h *Handler) RegisterStaffRoutes(g *echo.Group) {
	g.GET("/referrals", h.HandleListAssigned)
	g.GET("/referrals/:id", h.HandleGet)
	g.GET("/referrals/:id/audit", h.HandleAuditTrail)
	g.POST("/referrals/:id/acknowledge", h.HandleAcknowledge)
	g.PUT("/referrals/:id/status", h.HandleUpdateStatus)
	g.POST("/referrals/:id/complete", h.HandleComplete)
}

// RegisterAdminRoutes registers the admin-only routing controls.
func (h *Handler) RegisterAdminRoutes(g *echo.Group) {
	g.POST("/referrals/:id/assign", h.HandleAssign)
	g.POST("/referrals/:id/cancel", h.HandleCancel)
}

type submitPatient struct {
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	DateOfBirth     string `json:"date_of_birth"`
	NationalID      string `json:"national_id"`
	InsuranceNumber string `json:"insurance_number"`
}

type submitRequest struct {
	Patient            submitPatient `json:"patient"`
	Urgency            string        `json:"urgency"`
	DiagnosisCodes     []string      `json:"diagnosis_codes"`
	ClinicalNotes      string        `json:"clinical_notes"`
	ExternalReferralID *string       `json:"external_referral_id"`
}

// HandleSubmit handles POST /hospital/referrals. Duplicate external referral
// ids return 409 with the original referral's id.
func (h *Handler) HandleSubmit(c echo.Context) error {
	hospitalID, ok := middleware.HospitalIDFromContext(c)
	if !ok {
		return fail(c, http.StatusUnauthorized, "Unauthorized")
	}

	var req submitRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Patient.NationalID == "" {
		return fail(c, http.StatusBadRequest, "patient national_id is required")
	}
	dob, err := time.Parse("2006-01-02", req.Patient.DateOfBirth)
	if err != nil {
		return fail(c, http.StatusBadRequest, "patient date_of_birth must be YYYY-MM-DD")
	}

	in := SubmitInput{
		Patient: patient.Patient{
			FirstName:       req.Patient.FirstName,
			LastName:        req.Patient.LastName,
			DateOfBirth:     dob,
			NationalID:      req.Patient.NationalID,
			InsuranceNumber: req.Patient.InsuranceNumber,
		},
		Urgency:            req.Urgency,
		DiagnosisCodes:     req.DiagnosisCodes,
		ClinicalNotes:      req.ClinicalNotes,
		ExternalReferralID: req.ExternalReferralID,
	}

	ref, err := h.service.Submit(c.Request().Context(), hospitalID, in)
	if err != nil {
		var dup *DuplicateError
		if errors.As(err, &dup) {
			return c.JSON(http.StatusConflict, map[string]interface{}{
				"success":     false,
				"message":     "Referral already exists",
				"referral_id": dup.ExistingID,
			})
		}
		return fail(c, http.StatusBadRequest, err.Error())
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"success": true,
		"message": "Referral submitted successfully",
		"data": map[string]interface{}{
			"referral_id": ref.ID,
			"status":      ref.Status,
			"urgency":     ref.Urgency,
			"department":  ref.Department,
		},
	})
}

func (h *Handler) HandleListAssigned(c echo.Context) error {
	staffID, ok := middleware.StaffIDFromContext(c)
	if !ok {
		return fail(c, http.StatusUnauthorized, "Unauthorized")
	}
	refs, err := h.service.ListAssignedTo(c.Request().Context(), staffID)
	if err != nil {
		return fail(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "data": refs})
}

func (h *Handler) HandleGet(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid referral id")
	}
	ref, err := h.service.GetReferral(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fail(c, http.StatusNotFound, "Referral not found")
		}
		return fail(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "data": ref})
}

func (h *Handler) HandleAuditTrail(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid referral id")
	}
	entries, err := h.audit.ListByReferral(c.Request().Context(), id)
	if err != nil {
		return fail(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "data": entries})
}

func (h *Handler) HandleAcknowledge(c echo.Context) error {
	staffID, ok := middleware.StaffIDFromContext(c)
	if !ok {
		return fail(c, http.StatusUnauthorized, "Unauthorized")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid referral id")
	}
	ref, err := h.service.Acknowledge(c.Request().Context(), id, staffID)
	if err != nil {
		return h.workflowError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "data": ref})
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) HandleUpdateStatus(c echo.Context) error {
	staffID, ok := middleware.StaffIDFromContext(c)
	if !ok {
		return fail(c, http.StatusUnauthorized, "Unauthorized")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid referral id")
	}
	var req updateStatusRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	ref, err := h.service.UpdateStatus(c.Request().Context(), id, staffID, req.Status)
	if err != nil {
		return h.workflowError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "data": ref})
}

func (h *Handler) HandleComplete(c echo.Context) error {
	staffID, ok := middleware.StaffIDFromContext(c)
	if !ok {
		return fail(c, http.StatusUnauthorized, "Unauthorized")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid referral id")
	}
	ref, err := h.service.Complete(c.Request().Context(), id, staffID)
	if err != nil {
		return h.workflowError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Referral completed",
		"data":    ref,
	})
}

type assignRequest struct {
	StaffID uuid.UUID `json:"staff_id"`
}

func (h *Handler) HandleAssign(c echo.Context) error {
	actorID, _ := middleware.StaffIDFromContext(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid referral id")
	}
	var req assignRequest
	if err := c.Bind(&req); err != nil || req.StaffID == uuid.Nil {
		return fail(c, http.StatusBadRequest, "staff_id is required")
	}
	ref, err := h.service.Assign(c.Request().Context(), id, req.StaffID, &actorID)
	if err != nil {
		return h.workflowError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Referral assigned",
		"data":    ref,
	})
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) HandleCancel(c echo.Context) error {
	actorID, _ := middleware.StaffIDFromContext(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid referral id")
	}
	var req cancelRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	ref, err := h.service.Cancel(c.Request().Context(), id, req.Reason, &actorID)
	if err != nil {
		return h.workflowError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Referral cancelled",
		"data":    ref,
	})
}

func (h *Handler) workflowError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fail(c, http.StatusNotFound, "Referral not found")
	case errors.Is(err, ErrNotAssignee):
		return fail(c, http.StatusForbidden, err.Error())
	case errors.Is(err, ErrAlreadyCompleted),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrCannotCancel):
		return fail(c, http.StatusConflict, err.Error())
	case errors.Is(err, ErrStaleReferral):
		return fail(c, http.StatusConflict, err.Error())
	default:
		return fail(c, http.StatusInternalServerError, err.Error())
	}
}

func fail(c echo.Context, code int, message string) error {
	return c.JSON(code, map[string]interface{}{
		"success": false,
		"message": message,
	})
}
