package app

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"captiondesk/api/internal/auth"
	"captiondesk/api/internal/store"
)

func reviewerUser(t *testing.T, password string) store.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return store.User{
		ID:           testUserID,
		Email:        "reviewer@example.com",
		Name:         "Riley Reviewer",
		PasswordHash: string(hash),
		Role:         "user",
		CreatedAt:    testTime,
	}
}

func userStore(user store.User) *fakeStore {
	return &fakeStore{
		getUserByEmailFn: func(_ context.Context, email string) (store.User, error) {
			if email != user.Email {
				return store.User{}, errors.New("unexpected email " + email)
			}
			return user, nil
		},
		getUserByIDFn: func(context.Context, string) (store.User, error) { return user, nil },
	}
}

func TestLoginIssuesUsableSession(t *testing.T) {
	user := reviewerUser(t, "correct horse")
	svc := newTestService(userStore(user), Dependencies{})
	svc.now = time.Now

	session, got, err := svc.Login(context.Background(), user.Email, "correct horse")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.NotEmpty(t, session.Token)
	assert.NotEmpty(t, session.RefreshToken)

	resolved, err := svc.SessionFromToken(context.Background(), session.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, resolved.UserID)
	assert.Equal(t, "user", resolved.Role)
}

func TestLoginWrongPassword(t *testing.T) {
	user := reviewerUser(t, "correct horse")
	svc := newTestService(userStore(user), Dependencies{})

	_, _, err := svc.Login(context.Background(), user.Email, "battery staple")

	requireDomainError(t, err, http.StatusUnauthorized, codeUnauthorized)
}

func TestRefreshRotatesAndUnknownTokenFails(t *testing.T) {
	user := reviewerUser(t, "correct horse")
	svc := newTestService(userStore(user), Dependencies{})
	svc.now = time.Now

	session, _, err := svc.Login(context.Background(), user.Email, "correct horse")
	require.NoError(t, err)

	refreshed, err := svc.Refresh(context.Background(), session.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, session.RefreshToken, refreshed.RefreshToken)

	_, err = svc.Refresh(context.Background(), "not-a-real-token")
	requireDomainError(t, err, http.StatusUnauthorized, codeUnauthorized)
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	user := reviewerUser(t, "correct horse")
	tokens := newFakeTokens()
	svc := newTestService(userStore(user), Dependencies{Tokens: tokens})
	svc.now = time.Now

	session, _, err := svc.Login(context.Background(), user.Email, "correct horse")
	require.NoError(t, err)
	resolved, err := svc.SessionFromToken(context.Background(), session.Token)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), resolved, session.RefreshToken))

	_, err = svc.SessionFromToken(context.Background(), session.Token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
	_, err = svc.Refresh(context.Background(), session.RefreshToken)
	requireDomainError(t, err, http.StatusUnauthorized, codeUnauthorized)
}

func TestReadinessReportsEachDependency(t *testing.T) {
	fs := &fakeStore{pingFn: func(context.Context) error { return errors.New("connection refused") }}
	svc := newTestService(fs, Dependencies{})

	checks, ready := svc.Readiness(context.Background())

	assert.False(t, ready)
	assert.Equal(t, map[string]any{"status": "error"}, checks["database"])
	_, hasRedis := checks["redis"]
	assert.False(t, hasRedis)
}

func TestBootstrapCreatesAdminOnlyWhenEmpty(t *testing.T) {
	var created []store.User
	fs := &fakeStore{
		countUsersFn: func(context.Context) (int, error) { return len(created), nil },
		createUserFn: func(_ context.Context, user store.User) (store.User, error) {
			created = append(created, user)
			return user, nil
		},
	}
	svc := newTestService(fs, Dependencies{})
	svc.cfg.AdminEmail = "Admin@Example.com"
	svc.cfg.AdminPassword = "changeme123"

	require.NoError(t, svc.Bootstrap(context.Background()))
	require.NoError(t, svc.Bootstrap(context.Background()))

	require.Len(t, created, 1)
	assert.Equal(t, "admin@example.com", created[0].Email)
	assert.Equal(t, "admin", created[0].Role)
}
