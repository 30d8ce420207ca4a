package workflow

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/celloxen/intake/internal/platform/apperror"
	"github.com/celloxen/intake/internal/platform/auth"
)

// PatientDirectory reports whether a patient belongs to a clinic. Other
// clinics' patients come back as KindNotFound.
type PatientDirectory interface {
	Owns(ctx context.Context, clinicID string, patientID uuid.UUID) error
}

type Handler struct {
	machine  *Machine
	patients PatientDirectory
}

func NewHandler(m *Machine, patients PatientDirectory) *Handler {
	return &Handler{machine: m, patients: patients}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	role := auth.Staff()
	g := api.Group("/patients/:id/workflow", role)
	g.GET("", h.GetStatus)
	g.POST("/start", h.Start)
	g.POST("/advance", h.Advance)
}

type advanceRequest struct {
	Stage string `json:"stage"`
}

type advanceResponse struct {
	Advanced bool    `json:"advanced"`
	Status   *Status `json:"status"`
}

// target resolves the caller and the path patient, hiding patients of other
// clinics. While the store is down the cached workflow's clinic decides.
func (h *Handler) target(c echo.Context) (auth.Session, uuid.UUID, error) {
	sess, ok := auth.SessionFromContext(c.Request().Context())
	if !ok {
		return sess, uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "no session")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return sess, uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	err = h.patients.Owns(ctx, sess.ClinicID, id)
	switch {
	case err == nil:
	case apperror.Is(err, apperror.KindTransientStorage):
		if st, ok := h.machine.load(ctx, id); !ok || st.ClinicID != sess.ClinicID {
			return sess, uuid.Nil, apperror.HTTPError(err)
		}
	default:
		return sess, uuid.Nil, apperror.HTTPError(err)
	}
	return sess, id, nil
}

func (h *Handler) GetStatus(c echo.Context) error {
	_, id, err := h.target(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.machine.Status(c.Request().Context(), id))
}

func (h *Handler) Start(c echo.Context) error {
	sess, id, err := h.target(c)
	if err != nil {
		return err
	}
	st, err := h.machine.Start(c.Request().Context(), sess, id)
	if err != nil {
		return apperror.HTTPError(err)
	}
	return c.JSON(http.StatusOK, st)
}

// Advance is the manual override used by clinic staff; normal progression
// happens as a side effect of the assessment and treatment endpoints.
func (h *Handler) Advance(c echo.Context) error {
	sess, id, err := h.target(c)
	if err != nil {
		return err
	}
	var req advanceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Stage == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "stage is required")
	}

	ctx := c.Request().Context()
	if !h.machine.Advance(ctx, sess, id, req.Stage) {
		return apperror.HTTPError(apperror.Integrity("workflow.advance", "cannot move to %s", req.Stage))
	}
	return c.JSON(http.StatusOK, advanceResponse{Advanced: true, Status: h.machine.Status(ctx, id)})
}
