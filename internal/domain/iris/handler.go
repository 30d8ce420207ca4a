package iris

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/celloxen/intake/internal/platform/apperror"
	"github.com/celloxen/intake/internal/platform/auth"
)

// Handler serves read access; findings are recorded through the intake
// coordinator so the workflow advances with them.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patients/:id/iris", h.GetLatest, auth.Staff())
}

func (h *Handler) GetLatest(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	f, err := h.svc.Latest(c.Request().Context(), id)
	if err != nil {
		return apperror.HTTPError(err)
	}
	if sess, ok := auth.SessionFromContext(c.Request().Context()); ok && sess.ClinicID != f.ClinicID {
		return echo.NewHTTPError(http.StatusNotFound, "iris finding not found")
	}
	return c.JSON(http.StatusOK, struct {
		*Finding
		Domains []string `json:"domains"`
	}{f, f.Domains()})
}
