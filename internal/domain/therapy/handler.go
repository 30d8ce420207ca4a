package therapy

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/celloxen/intake/internal/domain/assessment"
	"github.com/celloxen/intake/internal/platform/auth"
)

type Handler struct {
	matcher *Matcher
}

func NewHandler(m *Matcher) *Handler {
	return &Handler{matcher: m}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/therapies", auth.Staff())
	g.GET("", h.List)
	g.GET("/:code", h.Get)
	g.POST("/match", h.Match)
}

type matchRequest struct {
	Scores             map[assessment.Category]int `json:"scores"`
	ConstitutionalType string                      `json:"constitutional_type"`
	IrisDomains        []string                    `json:"iris_domains"`
}

func (h *Handler) List(c echo.Context) error {
	return c.JSON(http.StatusOK, Catalog)
}

func (h *Handler) Get(c echo.Context) error {
	t, ok := Lookup(c.Param("code"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "therapy not found")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"therapy":  t,
		"protocol": ProtocolFor(t.DurationMinutes),
	})
}

// Match previews recommendations for ad-hoc scores without storing anything.
func (h *Handler) Match(c echo.Context) error {
	var req matchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	for cat, v := range req.Scores {
		if !assessment.ValidCategory(cat) {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown category: "+string(cat))
		}
		if v < 0 || v > 100 {
			return echo.NewHTTPError(http.StatusBadRequest, "scores must be between 0 and 100")
		}
	}
	domains := append(ProblemDomains(assessment.CategoryScoreSet{Scores: req.Scores}), IrisDomains(req.IrisDomains)...)
	recs := h.matcher.MatchDomains(req.ConstitutionalType, domains)
	return c.JSON(http.StatusOK, Plan(recs))
}
