package notification

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/celloxen/intake/internal/platform/apperror"
)

// Handler exposes delivery status to clinic admins.
type Handler struct {
	d *Dispatcher
}

func NewHandler(d *Dispatcher) *Handler {
	return &Handler{d: d}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/notifications/stats", h.Stats)
	g.GET("/notifications/:id", h.Get)
	g.POST("/notifications/:id/retry", h.Retry)
}

func (h *Handler) Get(c echo.Context) error {
	n, err := h.d.Get(c.Param("id"))
	if err != nil {
		return apperror.HTTPError(err)
	}
	return c.JSON(http.StatusOK, n)
}

// Retry answers 200 with the notification whether or not the new attempt
// succeeded; its status field says which.
func (h *Handler) Retry(c echo.Context) error {
	if _, err := h.d.Retry(c.Request().Context(), c.Param("id")); err != nil {
		return apperror.HTTPError(err)
	}
	return h.Get(c)
}

func (h *Handler) Stats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.d.Stats())
}
