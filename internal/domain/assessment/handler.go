package assessment

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/celloxen/intake/internal/platform/apperror"
	"github.com/celloxen/intake/internal/platform/auth"
)

// Handler serves the questionnaire. Starting and completing sessions go
// through the intake coordinator because they move the workflow.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := auth.Staff()
	api.GET("/assessment/questions", h.ListQuestions, staff)

	g := api.Group("/assessments", staff)
	g.GET("/:id", h.GetSession)
	g.GET("/:id/responses", h.ListResponses)
	g.POST("/:id/responses", h.RecordResponse)
	g.GET("/:id/scores", h.GetScores)
	g.GET("/:id/follow-ups", h.GetFollowUps)
	g.POST("/:id/follow-ups", h.CreateFollowUps)
	g.POST("/:id/follow-ups/responses", h.AnswerFollowUp)

	api.POST("/assessments/:id/clearance", h.GrantClearance, auth.RequireRole(auth.RolePhysician))
	api.GET("/patients/:id/assessments", h.ListByPatient, staff)
}

type responseRequest struct {
	QuestionID string `json:"question_id"`
	Answer     string `json:"answer"`
	Text       string `json:"text"`
}

type followUpAnswerRequest struct {
	QuestionID string `json:"question_id"`
	Answer     string `json:"answer"`
}

func (h *Handler) ListQuestions(c echo.Context) error {
	qs, err := h.svc.Questions(c.Request().Context())
	if err != nil {
		return apperror.HTTPError(err)
	}
	return c.JSON(http.StatusOK, qs)
}

// session loads the path session and hides other clinics' sessions.
func (h *Handler) session(c echo.Context) (*Session, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	s, err := h.svc.GetSession(c.Request().Context(), id)
	if err != nil {
		return nil, apperror.HTTPError(err)
	}
	if as, ok := auth.SessionFromContext(c.Request().Context()); ok && as.ClinicID != s.ClinicID {
		return nil, echo.NewHTTPError(http.StatusNotFound, "assessment session not found")
	}
	return s, nil
}

func (h *Handler) GetSession(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) RecordResponse(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	var req responseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	resp, err := h.svc.RecordResponse(c.Request().Context(), s.ID, req.QuestionID, req.Answer, req.Text)
	if err != nil {
		return apperror.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, resp)
}

func (h *Handler) ListResponses(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	rs, err := h.svc.Responses(c.Request().Context(), s.ID)
	if err != nil {
		return apperror.HTTPError(err)
	}
	return c.JSON(http.StatusOK, rs)
}

func (h *Handler) GetScores(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	if s.Scores != nil {
		return c.JSON(http.StatusOK, s.Scores)
	}
	scores, err := h.svc.ComputeScores(c.Request().Context(), s.ID)
	if err != nil {
		return apperror.HTTPError(err)
	}
	return c.JSON(http.StatusOK, scores)
}

func (h *Handler) GrantClearance(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	as, _ := auth.SessionFromContext(c.Request().Context())
	updated, err := h.svc.GrantClearance(c.Request().Context(), s.ID, as.UserID)
	if err != nil {
		return apperror.HTTPError(err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) ListByPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	items, err := h.svc.ListSessions(c.Request().Context(), id)
	if err != nil {
		return apperror.HTTPError(err)
	}
	as, _ := auth.SessionFromContext(c.Request().Context())
	out := make([]*Session, 0, len(items))
	for _, s := range items {
		if s.ClinicID == as.ClinicID {
			out = append(out, s)
		}
	}
	return c.JSON(http.StatusOK, out)
}

// CreateFollowUps returns the session's follow-up questions, generating
// them on the first call. The body carries the patient's age and gender.
func (h *Handler) CreateFollowUps(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	var attrs PatientAttributes
	if err := c.Bind(&attrs); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	set, err := h.svc.FollowUps(c.Request().Context(), s.ID, attrs)
	if err != nil {
		return apperror.HTTPError(err)
	}
	return c.JSON(http.StatusOK, set)
}

func (h *Handler) GetFollowUps(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	set, err := h.svc.GetFollowUps(c.Request().Context(), s.ID)
	if err != nil {
		return apperror.HTTPError(err)
	}
	return c.JSON(http.StatusOK, set)
}

func (h *Handler) AnswerFollowUp(c echo.Context) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	var req followUpAnswerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.AnswerFollowUp(c.Request().Context(), s.ID, req.QuestionID, req.Answer)
	if err != nil {
		return apperror.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, a)
}
