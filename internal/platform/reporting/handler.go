package reporting

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/celloxen/intake/internal/platform/apperror"
	"github.com/celloxen/intake/internal/platform/auth"
)

type Handler struct {
	db  Querier
	now func() time.Time
}

func NewHandler(db Querier) *Handler {
	return &Handler{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/dashboard", auth.Staff())
	g.GET("/measures", h.ListMeasures)
	g.GET("/measures/:id", h.EvaluateMeasure)
}

func (h *Handler) ListMeasures(c echo.Context) error {
	return c.JSON(http.StatusOK, Measures())
}

// EvaluateMeasure runs a measure for the caller's clinic. ?format=xlsx
// returns a spreadsheet instead of JSON.
func (h *Handler) EvaluateMeasure(c echo.Context) error {
	sess, ok := auth.SessionFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "no session")
	}
	m, ok := Lookup(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "measure not found")
	}
	format := c.QueryParam("format")
	if format != "" && format != "json" && format != "xlsx" {
		return echo.NewHTTPError(http.StatusBadRequest, "format must be json or xlsx")
	}

	res, err := Evaluate(c.Request().Context(), h.db, m, sess.ClinicID, h.now())
	if err != nil {
		return apperror.HTTPError(apperror.Transient("reporting.evaluate", err))
	}
	if format != "xlsx" {
		return c.JSON(http.StatusOK, res)
	}

	data, err := XLSX(res)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "render failed")
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+Filename(res)+`"`)
	return c.Blob(http.StatusOK, XLSXContentType, data)
}
