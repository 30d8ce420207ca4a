package intake

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/celloxen/intake/internal/domain/appointment"
	"github.com/celloxen/intake/internal/domain/assessment"
	"github.com/celloxen/intake/internal/domain/iris"
	"github.com/celloxen/intake/internal/platform/auth"
)

// Handler exposes the pipeline steps. Each one advances the workflow as a
// side effect.
type Handler struct {
	coord *Coordinator
}

func NewHandler(c *Coordinator) *Handler {
	return &Handler{coord: c}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := auth.Staff()

	p := api.Group("/patients/:id", staff)
	p.POST("/assessments", h.StartAssessment)
	p.POST("/iris", h.RecordIris)
	p.POST("/report", h.GenerateReport)
	p.POST("/treatment-plan/confirm", h.ConfirmTreatmentPlan)
	p.POST("/reassessments", h.StartReassessment)

	api.POST("/assessments/:id/complete", h.CompleteAssessment, staff)

	admin := auth.Admin()
	api.POST("/reassessments/sweep", h.SweepDue, admin)
	api.POST("/reassessments/reminders/send", h.SendReminders, admin)
}

type sessionResponse struct {
	Session *assessment.Session `json:"session"`
	Step
}

func sessionAndID(c echo.Context) (auth.Session, uuid.UUID, error) {
	sess, ok := auth.SessionFromContext(c.Request().Context())
	if !ok {
		return auth.Session{}, uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "no session")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return auth.Session{}, uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return sess, id, nil
}

func (h *Handler) StartAssessment(c echo.Context) error {
	sess, id, err := sessionAndID(c)
	if err != nil {
		return err
	}
	as, step, err := h.coord.StartAssessment(c.Request().Context(), sess, id)
	if err != nil {
		return appointment.ErrorResponse(c, err)
	}
	return c.JSON(http.StatusCreated, sessionResponse{Session: as, Step: step})
}

func (h *Handler) CompleteAssessment(c echo.Context) error {
	sess, id, err := sessionAndID(c)
	if err != nil {
		return err
	}
	res, err := h.coord.CompleteAssessment(c.Request().Context(), sess, id)
	if err != nil {
		return appointment.ErrorResponse(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) RecordIris(c echo.Context) error {
	sess, id, err := sessionAndID(c)
	if err != nil {
		return err
	}
	var f iris.Finding
	if err := c.Bind(&f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	f.PatientID = id
	step, err := h.coord.RecordIris(c.Request().Context(), sess, &f)
	if err != nil {
		return appointment.ErrorResponse(c, err)
	}
	return c.JSON(http.StatusCreated, struct {
		Finding *iris.Finding `json:"finding"`
		Step
	}{&f, step})
}

func (h *Handler) GenerateReport(c echo.Context) error {
	sess, id, err := sessionAndID(c)
	if err != nil {
		return err
	}
	var req ReportRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.coord.GenerateReport(c.Request().Context(), sess, id, req)
	if err != nil {
		return appointment.ErrorResponse(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) ConfirmTreatmentPlan(c echo.Context) error {
	sess, id, err := sessionAndID(c)
	if err != nil {
		return err
	}
	var req PlanConfirmation
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.coord.ConfirmTreatmentPlan(c.Request().Context(), sess, id, req)
	if err != nil {
		return appointment.ErrorResponse(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) StartReassessment(c echo.Context) error {
	sess, id, err := sessionAndID(c)
	if err != nil {
		return err
	}
	as, step, err := h.coord.StartReassessment(c.Request().Context(), sess, id)
	if err != nil {
		return appointment.ErrorResponse(c, err)
	}
	return c.JSON(http.StatusCreated, sessionResponse{Session: as, Step: step})
}

func (h *Handler) SweepDue(c echo.Context) error {
	sess, ok := auth.SessionFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "no session")
	}
	n, err := h.coord.SweepDue(c.Request().Context(), sess.ClinicID)
	if err != nil {
		return appointment.ErrorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int{"moved": n})
}

func (h *Handler) SendReminders(c echo.Context) error {
	sess, ok := auth.SessionFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "no session")
	}
	n, err := h.coord.SendReminders(c.Request().Context(), sess.ClinicID)
	if err != nil {
		return appointment.ErrorResponse(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int{"sent": n})
}
