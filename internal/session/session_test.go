package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicconnect/civic/internal/models"
	"github.com/civicconnect/civic/internal/store"
)

func newDirectory(t *testing.T) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore()
	ctx := context.Background()
	for _, u := range []*models.User{
		{ID: "user123", Name: "John Doe", Email: "john@example.com", Role: models.RoleUser},
		{ID: "admin1", Name: "Mike Johnson", Email: "mike.admin@city.gov", Role: models.RoleAdmin},
	} {
		require.NoError(t, s.UpsertUser(ctx, u))
	}
	return s
}

func TestLogin(t *testing.T) {
	dir := newDirectory(t)
	ctx := context.Background()

	sess, err := Login(ctx, dir, "mike.admin@city.gov", models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, "admin1", sess.UserID())
	assert.True(t, sess.IsAdmin())

	sess, err = Login(ctx, dir, " John@Example.com ", models.RoleUser)
	require.NoError(t, err)
	assert.Equal(t, "user123", sess.UserID())
}

func TestLogin_Rejects(t *testing.T) {
	dir := newDirectory(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		email string
		role  models.Role
	}{
		{"unknown email", "nobody@example.com", models.RoleUser},
		{"empty email", "", models.RoleUser},
		{"role mismatch", "john@example.com", models.RoleAdmin},
		{"admin as citizen", "mike.admin@city.gov", models.RoleUser},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Login(ctx, dir, tt.email, tt.role)
			assert.ErrorIs(t, err, ErrInvalidCredentials)
		})
	}
}

func TestLookup(t *testing.T) {
	dir := newDirectory(t)

	sess, err := Lookup(context.Background(), dir, "admin1")
	require.NoError(t, err)
	assert.Equal(t, "Mike Johnson", sess.User.Name)

	_, err = Lookup(context.Background(), dir, "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	sess := models.Session{User: models.User{ID: "user123"}}
	got, ok := FromContext(NewContext(context.Background(), sess))
	require.True(t, ok)
	assert.Equal(t, sess, got)
}

func TestTokenRoundTrip(t *testing.T) {
	iss := NewTokenIssuer("test-secret", time.Hour)
	sess := models.Session{User: models.User{ID: "admin1", Name: "Mike Johnson", Email: "mike.admin@city.gov", Role: models.RoleAdmin}}

	token, exp, err := iss.Issue(sess)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, time.Minute)

	got, err := iss.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, sess, got)
}

func TestToken_WrongSecret(t *testing.T) {
	token, _, err := NewTokenIssuer("one", time.Hour).Issue(models.Session{User: models.User{ID: "u", Role: models.RoleUser}})
	require.NoError(t, err)

	_, err = NewTokenIssuer("two", time.Hour).Parse(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestToken_Expired(t *testing.T) {
	iss := NewTokenIssuer("secret", time.Minute)
	iss.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, _, err := iss.Issue(models.Session{User: models.User{ID: "u", Role: models.RoleUser}})
	require.NoError(t, err)

	iss.now = time.Now
	_, err = iss.Parse(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestToken_Garbage(t *testing.T) {
	_, err := NewTokenIssuer("secret", time.Hour).Parse("not-a-token")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
