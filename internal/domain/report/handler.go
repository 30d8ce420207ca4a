package report

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/celloxen/intake/internal/platform/apperror"
	"github.com/celloxen/intake/internal/platform/auth"
)

// Handler serves stored reports. Generation happens through the intake
// coordinator.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := auth.Staff()
	api.GET("/reports/:id", h.Get, staff)
	api.GET("/reports/:id/xlsx", h.Download, staff)
	api.GET("/patients/:id/report", h.Latest, staff)
}

func (h *Handler) load(c echo.Context) (*Report, error) {
	sess, ok := auth.SessionFromContext(c.Request().Context())
	if !ok {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "no session")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	r, err := h.svc.Get(c.Request().Context(), sess.ClinicID, id)
	if err != nil {
		return nil, apperror.HTTPError(err)
	}
	return r, nil
}

func (h *Handler) Get(c echo.Context) error {
	r, err := h.load(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) Download(c echo.Context) error {
	r, err := h.load(c)
	if err != nil {
		return err
	}
	data, err := h.svc.Render(r)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to render report")
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", Filename(r)))
	return c.Blob(http.StatusOK, XLSXContentType, data)
}

func (h *Handler) Latest(c echo.Context) error {
	sess, ok := auth.SessionFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "no session")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	r, err := h.svc.Latest(c.Request().Context(), sess.ClinicID, id)
	if err != nil {
		return apperror.HTTPError(err)
	}
	return c.JSON(http.StatusOK, r)
}
