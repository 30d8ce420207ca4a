package appointment

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/celloxen/intake/internal/platform/apperror"
	"github.com/celloxen/intake/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := auth.RequireRole(auth.RoleAdmin, auth.RolePractitioner, auth.RoleRegistrar)
	write := auth.Staff()

	g := api.Group("/appointments")
	g.GET("/slots", h.Slots, read)
	g.POST("/plan", h.Plan, write)
	g.POST("/bulk", h.BulkCreate, write)
	g.POST("/status", h.UpdateStatus, write)
	g.GET("/:id", h.Get, read)
	g.PATCH("/:id", h.Reschedule, write)

	api.GET("/patients/:id/appointments", h.ListByPatient, read)
}

type bulkRequest struct {
	Appointments []*Appointment `json:"appointments"`
}

type rescheduleRequest struct {
	ScheduledAt time.Time `json:"scheduled_at"`
}

type statusRequest struct {
	IDs    []uuid.UUID `json:"ids"`
	Status string      `json:"status"`
}

func session(c echo.Context) (auth.Session, error) {
	sess, ok := auth.SessionFromContext(c.Request().Context())
	if !ok {
		return auth.Session{}, echo.NewHTTPError(http.StatusUnauthorized, "no session")
	}
	return sess, nil
}

// ErrorResponse maps service errors, reporting slot conflicts with 409 and
// the offending items.
func ErrorResponse(c echo.Context, err error) error {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return c.JSON(http.StatusConflict, map[string]interface{}{
			"message":   ce.Error(),
			"conflicts": ce.Conflicts,
		})
	}
	return apperror.HTTPError(err)
}

func (h *Handler) BulkCreate(c echo.Context) error {
	sess, err := session(c)
	if err != nil {
		return err
	}
	var req bulkRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.BulkCreate(c.Request().Context(), sess, req.Appointments)
	if err != nil {
		return ErrorResponse(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// Plan previews a session run without booking it.
func (h *Handler) Plan(c echo.Context) error {
	sess, err := session(c)
	if err != nil {
		return err
	}
	var req PlanRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	appts, err := h.svc.Plan(c.Request().Context(), sess.ClinicID, req)
	if err != nil {
		return apperror.HTTPError(err)
	}
	return c.JSON(http.StatusOK, appts)
}

func (h *Handler) Slots(c echo.Context) error {
	sess, err := session(c)
	if err != nil {
		return err
	}
	from, err := parseDate(c.QueryParam("from"), time.Now())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid from date")
	}
	to, err := parseDate(c.QueryParam("to"), from.AddDate(0, 0, 7))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid to date")
	}
	slots, err := h.svc.Slots(c.Request().Context(), sess.ClinicID, from, to)
	if err != nil {
		return apperror.HTTPError(err)
	}
	return c.JSON(http.StatusOK, slots)
}

// parseDate accepts RFC 3339 timestamps or plain dates.
func parseDate(s string, fallback time.Time) (time.Time, error) {
	if s == "" {
		return fallback, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func (h *Handler) Get(c echo.Context) error {
	sess, err := session(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.Get(c.Request().Context(), sess.ClinicID, id)
	if err != nil {
		return apperror.HTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Reschedule(c echo.Context) error {
	sess, err := session(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req rescheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.Reschedule(c.Request().Context(), sess, id, req.ScheduledAt)
	if err != nil {
		return apperror.HTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	sess, err := session(c)
	if err != nil {
		return err
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	n, err := h.svc.UpdateStatus(c.Request().Context(), sess, req.IDs, req.Status)
	if err != nil {
		return apperror.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"count": n})
}

func (h *Handler) ListByPatient(c echo.Context) error {
	sess, err := session(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	appts, err := h.svc.ListByPatient(c.Request().Context(), sess.ClinicID, id)
	if err != nil {
		return apperror.HTTPError(err)
	}
	return c.JSON(http.StatusOK, appts)
}
