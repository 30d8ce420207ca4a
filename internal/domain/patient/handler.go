package patient

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/celloxen/intake/internal/domain/workflow"
	"github.com/celloxen/intake/internal/platform/apperror"
	"github.com/celloxen/intake/internal/platform/auth"
	"github.com/celloxen/intake/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("/patients", auth.RequireRole(auth.RoleAdmin, auth.RolePractitioner, auth.RoleRegistrar))
	read.GET("", h.ListPatients)
	read.GET("/:id", h.GetPatient)

	write := api.Group("/patients", auth.RequireRole(auth.RoleAdmin, auth.RoleRegistrar))
	write.POST("", h.RegisterPatient)
	write.PUT("/:id", h.UpdatePatient)
}

type registerResponse struct {
	Patient  *Patient         `json:"patient"`
	Workflow *workflow.Status `json:"workflow"`
}

func (h *Handler) RegisterPatient(c echo.Context) error {
	sess, ok := auth.SessionFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "no session")
	}
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	st, err := h.svc.Register(c.Request().Context(), sess, &p)
	if err != nil {
		return apperror.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, registerResponse{Patient: &p, Workflow: st})
}

func (h *Handler) GetPatient(c echo.Context) error {
	sess, _ := auth.SessionFromContext(c.Request().Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.Get(c.Request().Context(), sess.ClinicID, id)
	if err != nil {
		return apperror.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPatients(c echo.Context) error {
	sess, _ := auth.SessionFromContext(c.Request().Context())
	pg, err := pagination.Parse(c)
	if err != nil {
		return err
	}
	items, total, err := h.svc.List(c.Request().Context(), sess.ClinicID, c.QueryParam("name"), pg.Limit, pg.Offset)
	if err != nil {
		return apperror.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.Wrap(items, total, pg, c.Request().URL))
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	sess, _ := auth.SessionFromContext(c.Request().Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p.ID = id
	updated, err := h.svc.Update(c.Request().Context(), sess.ClinicID, &p)
	if err != nil {
		return apperror.HTTPError(err)
	}
	return c.JSON(http.StatusOK, updated)
}
