package auth

import (
	"net/http"
	"slices"
	"strings"

	"github.com/labstack/echo/v4"
)

// Roles carried in clinic tokens.
const (
	RoleAdmin        = "admin"
	RolePractitioner = "practitioner"
	RoleRegistrar    = "registrar"
	RolePhysician    = "physician"
	RoleSystem       = "system"
)

// RequireRole lets a request through when its session holds any of roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	denied := "requires " + strings.Join(roles, " or ")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sess, ok := SessionFromContext(c.Request().Context())
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "no session")
			}
			if !slices.ContainsFunc(roles, sess.HasRole) {
				return echo.NewHTTPError(http.StatusForbidden, denied)
			}
			return next(c)
		}
	}
}

// Staff admits clinicians and admins.
func Staff() echo.MiddlewareFunc { return RequireRole(RoleAdmin, RolePractitioner) }

// Admin admits admins only.
func Admin() echo.MiddlewareFunc { return RequireRole(RoleAdmin) }
