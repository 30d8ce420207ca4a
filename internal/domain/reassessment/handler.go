package reassessment

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/celloxen/intake/internal/platform/apperror"
	"github.com/celloxen/intake/internal/platform/auth"
)

// PatientDirectory reports KindNotFound for patients outside clinicID.
type PatientDirectory interface {
	Owns(ctx context.Context, clinicID string, patientID uuid.UUID) error
}

type Handler struct {
	svc      *Service
	patients PatientDirectory
}

func NewHandler(svc *Service, patients PatientDirectory) *Handler {
	return &Handler{svc: svc, patients: patients}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := auth.Staff()
	g := api.Group("/reassessments", staff)
	g.GET("/due", h.Due)
	g.GET("/reminders", h.Reminders)
	g.GET("/dashboard", h.Dashboard)
	g.POST("/compare", h.Compare)
	g.POST("/:id/reminders", h.MarkReminderSent)

	api.GET("/patients/:id/reassessments", h.History, staff)
}

type compareRequest struct {
	Previous Snapshot `json:"previous"`
	Current  Snapshot `json:"current"`
}

type reminderRequest struct {
	DaysBefore int `json:"days_before"`
}

func clinicOf(c echo.Context) (string, error) {
	sess, ok := auth.SessionFromContext(c.Request().Context())
	if !ok {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "no session")
	}
	return sess.ClinicID, nil
}

func (h *Handler) Due(c echo.Context) error {
	clinic, err := clinicOf(c)
	if err != nil {
		return err
	}
	items, err := h.svc.Due(c.Request().Context(), clinic, time.Now())
	if err != nil {
		return apperror.HTTPError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Reminders(c echo.Context) error {
	clinic, err := clinicOf(c)
	if err != nil {
		return err
	}
	items, err := h.svc.PendingReminders(c.Request().Context(), clinic, time.Now())
	if err != nil {
		return apperror.HTTPError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Dashboard(c echo.Context) error {
	clinic, err := clinicOf(c)
	if err != nil {
		return err
	}
	d, err := h.svc.Dashboard(c.Request().Context(), clinic, time.Now())
	if err != nil {
		return apperror.HTTPError(err)
	}
	return c.JSON(http.StatusOK, d)
}

// Compare diffs two severity snapshots without touching any record.
func (h *Handler) Compare(c echo.Context) error {
	var req compareRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, ok := h.svc.Compare(req.Previous, req.Current)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "both previous and current snapshots are required")
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) MarkReminderSent(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req reminderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	clinic, err := clinicOf(c)
	if err != nil {
		return err
	}
	rec, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return apperror.HTTPError(err)
	}
	if rec.ClinicID != clinic {
		return echo.NewHTTPError(http.StatusNotFound, "reassessment not found")
	}
	if err := h.svc.MarkReminderSent(c.Request().Context(), id, req.DaysBefore); err != nil {
		return apperror.HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) History(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	clinic, err := clinicOf(c)
	if err != nil {
		return err
	}
	if err := h.patients.Owns(c.Request().Context(), clinic, id); err != nil {
		return apperror.HTTPError(err)
	}
	items, err := h.svc.History(c.Request().Context(), id)
	if err != nil {
		return apperror.HTTPError(err)
	}
	return c.JSON(http.StatusOK, items)
}
