package models

import "fmt"

// Role separates citizens from administrators.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole returns the role with the exact given name.
func ParseRole(v string) (Role, error) {
	switch r := Role(v); r {
	case RoleUser, RoleAdmin:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q (use: user, admin)", v)
}

// UnmarshalText rejects unknown roles at decode time.
func (r *Role) UnmarshalText(b []byte) error {
	v, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// User is read-only reference data looked up by ID.
type User struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Email string `json:"email" yaml:"email"`
	Role  Role   `json:"role" yaml:"role"`
}

// Session identifies the acting user for one request or command.
// It is passed explicitly to every operation that needs an actor.
type Session struct {
	User User `json:"user"`
}

// UserID returns the acting user's identifier.
func (s Session) UserID() string { return s.User.ID }

// IsAdmin reports whether the acting user may triage issues.
func (s Session) IsAdmin() bool { return s.User.Role == RoleAdmin }
