package auth

import "slices"

// Session identifies who is driving the intake flow. It is passed
// explicitly to every stateful workflow operation.
type Session struct {
	UserID   string   `json:"user_id"`
	ClinicID string   `json:"clinic_id"`
	Roles    []string `json:"roles,omitempty"`
}

// HasRole reports whether the session holds role. Admins hold every role.
func (s Session) HasRole(role string) bool {
	return slices.ContainsFunc(s.Roles, func(r string) bool { return r == role || r == RoleAdmin })
}

// System is the session used by scheduled jobs such as the reassessment sweep.
func System(clinicID string) Session {
	return Session{UserID: "system", ClinicID: clinicID, Roles: []string{RoleSystem}}
}
