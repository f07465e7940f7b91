// Package session resolves the acting user. It authenticates nothing beyond
// matching an email to a directory entry with the requested role.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/civicconnect/civic/internal/models"
	"github.com/civicconnect/civic/internal/store"
)

// ErrInvalidCredentials is returned when no user matches the email and role.
var ErrInvalidCredentials = errors.New("invalid email or role")

// Directory looks up users. store.Store satisfies it.
type Directory interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// Login finds the user with email and checks it holds role. Passwords are not
// checked.
func Login(ctx context.Context, dir Directory, email string, role models.Role) (models.Session, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return models.Session{}, ErrInvalidCredentials
	}
	u, err := dir.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return models.Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("login: %w", err)
	}
	if u.Role != role {
		return models.Session{}, ErrInvalidCredentials
	}
	return models.Session{User: *u}, nil
}

// Lookup builds a session for a known user id, as used by `--as`.
func Lookup(ctx context.Context, dir Directory, userID string) (models.Session, error) {
	u, err := dir.GetUser(ctx, userID)
	if err != nil {
		return models.Session{}, fmt.Errorf("lookup session user: %w", err)
	}
	return models.Session{User: *u}, nil
}

type ctxKey struct{}

// NewContext returns a copy of ctx carrying sess.
func NewContext(ctx context.Context, sess models.Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, sess)
}

// FromContext returns the session stored in ctx, if any.
func FromContext(ctx context.Context) (models.Session, bool) {
	sess, ok := ctx.Value(ctxKey{}).(models.Session)
	return sess, ok
}
