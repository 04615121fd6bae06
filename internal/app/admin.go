package app

import (
	"context"
	"errors"
	"sort"
	"strings"

	"captiondesk/api/internal/authpw"
	"captiondesk/api/internal/store"
	"captiondesk/api/internal/util"
)

const (
	settingDriveFolderID        = "google_drive_folder_id"
	settingDriveAPIKey          = "google_drive_api_key"
	settingRecaptionWebhookURL  = "n8n_recaption_webhook_url"
	settingFacebookAppID        = "facebook_app_id"
	settingFacebookAppSecret    = "facebook_app_secret"
	settingFacebookAccessToken  = "facebook_access_token"
	settingFacebookPageID       = "facebook_page_id"
	settingApprovalNotifyEmails = "approval_notify_emails"
)

var knownSettings = map[string]struct{}{
	settingDriveFolderID:        {},
	settingDriveAPIKey:          {},
	settingRecaptionWebhookURL:  {},
	settingFacebookAppID:        {},
	settingFacebookAppSecret:    {},
	settingFacebookAccessToken:  {},
	settingFacebookPageID:       {},
	settingApprovalNotifyEmails: {},
}

type UserInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

func (s *Service) ListUsers(ctx context.Context) ([]store.User, error) {
	return s.store.ListUsers(ctx)
}

func (s *Service) CreateUser(ctx context.Context, input UserInput) (store.User, error) {
	user, err := s.passwords.CreateUser(ctx, authpw.NewUserRequest{
		Email:    input.Email,
		Password: input.Password,
		Name:     input.Name,
		Role:     input.Role,
	})
	if err != nil {
		return store.User{}, accountError(err)
	}
	return user, nil
}

// UpdateUser changes the given fields. An empty password keeps the current
// one.
func (s *Service) UpdateUser(ctx context.Context, session Session, id string, input UserInput) (store.User, error) {
	if !util.IsUUID(id) {
		return store.User{}, errInvalidInput("Invalid user id", map[string]any{"userId": id})
	}
	existing, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return store.User{}, storeNotFound(err, "User not found", map[string]any{"userId": id})
	}

	next := existing
	next.Email = strings.ToLower(firstNonBlank(input.Email, existing.Email))
	next.Name = firstNonBlank(input.Name, existing.Name)
	next.Role = firstNonBlank(input.Role, existing.Role)
	next.PasswordHash = ""
	if id == session.UserID && next.Role != existing.Role {
		return store.User{}, errInvalidInput("You cannot change your own role", nil)
	}
	if err := authpw.ValidateAccount(next.Email, input.Password, next.Role); err != nil {
		return store.User{}, accountError(err)
	}
	if input.Password != "" {
		hash, err := authpw.HashPassword(input.Password)
		if err != nil {
			return store.User{}, err
		}
		next.PasswordHash = hash
	}

	updated, err := s.store.UpdateUser(ctx, next)
	if err != nil {
		return store.User{}, accountError(err)
	}
	return updated, nil
}

func (s *Service) DeleteUser(ctx context.Context, session Session, id string) error {
	if !util.IsUUID(id) {
		return errInvalidInput("Invalid user id", map[string]any{"userId": id})
	}
	if id == session.UserID {
		return errInvalidInput("You cannot delete your own account", nil)
	}
	if err := s.store.DeleteUser(ctx, id); err != nil {
		return storeNotFound(err, "User not found", map[string]any{"userId": id})
	}
	return nil
}

func accountError(err error) error {
	switch {
	case errors.Is(err, authpw.ErrMissingFields),
		errors.Is(err, authpw.ErrInvalidEmail),
		errors.Is(err, authpw.ErrWeakPassword),
		errors.Is(err, authpw.ErrInvalidRole):
		return errInvalidInput(err.Error(), nil)
	case store.IsUniqueViolation(err):
		return errConflict("A user with this email already exists", nil)
	}
	return err
}

func (s *Service) ListSettings(ctx context.Context) ([]store.Setting, error) {
	return s.store.ListSettings(ctx)
}

// UpdateSettings writes every given key in one transaction. Unknown keys
// reject the whole request.
func (s *Service) UpdateSettings(ctx context.Context, session Session, values map[string]string) ([]store.Setting, error) {
	if len(values) == 0 {
		return nil, errInvalidInput("No settings provided", nil)
	}
	unknown := make([]string, 0)
	cleaned := make(map[string]string, len(values))
	for key, value := range values {
		if _, ok := knownSettings[key]; !ok {
			unknown = append(unknown, key)
			continue
		}
		cleaned[key] = strings.TrimSpace(value)
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, errInvalidInput("Unknown settings", map[string]any{"keys": unknown})
	}
	if err := s.store.UpsertSettings(ctx, cleaned, session.UserID); err != nil {
		return nil, err
	}
	return s.store.ListSettings(ctx)
}
