package app

import (
	"context"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"captiondesk/api/internal/store"
)

func TestCreateUserDuplicateEmailConflicts(t *testing.T) {
	fs := &fakeStore{
		createUserFn: func(context.Context, store.User) (store.User, error) {
			return store.User{}, &pgconn.PgError{Code: "23505"}
		},
	}
	svc := newTestService(fs, Dependencies{})

	_, err := svc.CreateUser(context.Background(), UserInput{
		Email: "dup@example.com", Password: "secret1", Name: "Dup",
	})

	requireDomainError(t, err, http.StatusConflict, codeConflict)
}

func TestCreateUserRejectsBadInput(t *testing.T) {
	svc := newTestService(&fakeStore{}, Dependencies{})
	cases := []UserInput{
		{Email: "no-at-sign", Password: "secret1", Name: "A"},
		{Email: "a@example.com", Password: "123", Name: "A"},
		{Email: "a@example.com", Password: "secret1", Name: "A", Role: "owner"},
		{Email: "a@example.com", Password: "secret1"},
	}
	for _, input := range cases {
		_, err := svc.CreateUser(context.Background(), input)
		requireDomainError(t, err, http.StatusBadRequest, codeInvalidInput)
	}
}

func TestDeleteUserRefusesSelf(t *testing.T) {
	fs := &fakeStore{
		deleteUserFn: func(context.Context, string) error {
			t.Fatal("self delete must not reach the store")
			return nil
		},
	}
	svc := newTestService(fs, Dependencies{})

	err := svc.DeleteUser(context.Background(), Session{UserID: testUserID}, testUserID)

	requireDomainError(t, err, http.StatusBadRequest, codeInvalidInput)
}

func TestUpdateUserCannotChangeOwnRole(t *testing.T) {
	fs := &fakeStore{
		getUserByIDFn: func(context.Context, string) (store.User, error) {
			return store.User{ID: testUserID, Email: "admin@example.com", Name: "Admin", Role: "admin"}, nil
		},
	}
	svc := newTestService(fs, Dependencies{})

	_, err := svc.UpdateUser(context.Background(), Session{UserID: testUserID}, testUserID, UserInput{Role: "user"})

	requireDomainError(t, err, http.StatusBadRequest, codeInvalidInput)
}

func TestUpdateUserKeepsPasswordWhenBlank(t *testing.T) {
	var written store.User
	fs := &fakeStore{
		getUserByIDFn: func(context.Context, string) (store.User, error) {
			return store.User{ID: testOtherID, Email: "old@example.com", Name: "Old", Role: "user", PasswordHash: "hash"}, nil
		},
		updateUserFn: func(_ context.Context, user store.User) (store.User, error) {
			written = user
			return user, nil
		},
	}
	svc := newTestService(fs, Dependencies{})

	updated, err := svc.UpdateUser(context.Background(), Session{UserID: testUserID}, testOtherID, UserInput{Email: "New@Example.com"})

	require.NoError(t, err)
	assert.Equal(t, "new@example.com", updated.Email)
	assert.Equal(t, "Old", written.Name)
	assert.Empty(t, written.PasswordHash)
}

func TestUpdateSettingsRejectsUnknownKeys(t *testing.T) {
	fs := &fakeStore{
		upsertSettingsFn: func(context.Context, map[string]string, string) error {
			t.Fatal("nothing may be written when a key is unknown")
			return nil
		},
	}
	svc := newTestService(fs, Dependencies{})

	_, err := svc.UpdateSettings(context.Background(), Session{UserID: testUserID}, map[string]string{
		settingDriveFolderID: "folder",
		"theme":              "dark",
		"beta_flags":         "on",
	})

	domainErr := requireDomainError(t, err, http.StatusBadRequest, codeInvalidInput)
	assert.Equal(t, map[string]any{"keys": []string{"beta_flags", "theme"}}, domainErr.Details)
}

func TestUpdateSettingsTrimsValues(t *testing.T) {
	var written map[string]string
	var writtenBy string
	fs := &fakeStore{
		upsertSettingsFn: func(_ context.Context, values map[string]string, updatedBy string) error {
			written, writtenBy = values, updatedBy
			return nil
		},
	}
	svc := newTestService(fs, Dependencies{})

	_, err := svc.UpdateSettings(context.Background(), Session{UserID: testUserID}, map[string]string{
		settingFacebookPageID: "  1234567890  ",
	})

	require.NoError(t, err)
	assert.Equal(t, map[string]string{settingFacebookPageID: "1234567890"}, written)
	assert.Equal(t, testUserID, writtenBy)
}
