package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name string
		sess *Session
		mw   echo.MiddlewareFunc
		want int
	}{
		{"practitioner on staff route", &Session{ClinicID: "c1", Roles: []string{RolePractitioner}}, Staff(), http.StatusOK},
		{"registrar on staff route", &Session{ClinicID: "c1", Roles: []string{RoleRegistrar}}, Staff(), http.StatusForbidden},
		{"admin holds physician", &Session{ClinicID: "c1", Roles: []string{RoleAdmin}}, RequireRole(RolePhysician), http.StatusOK},
		{"practitioner on admin route", &Session{ClinicID: "c1", Roles: []string{RolePractitioner}}, Admin(), http.StatusForbidden},
		{"no session", nil, Staff(), http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.sess != nil {
				req = req.WithContext(WithSession(req.Context(), *tt.sess))
			}
			c := echo.New().NewContext(req, httptest.NewRecorder())
			err := tt.mw(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c)

			got := http.StatusOK
			var he *echo.HTTPError
			if errors.As(err, &he) {
				got = he.Code
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("status %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSystemSession(t *testing.T) {
	s := System("clinic-9")
	if s.UserID != "system" || s.ClinicID != "clinic-9" || !s.HasRole(RoleSystem) {
		t.Errorf("unexpected system session %+v", s)
	}
	if s.HasRole(RolePractitioner) {
		t.Error("system session should not hold clinical roles")
	}
}
