package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"captiondesk/api/internal/auth"
	"captiondesk/api/internal/authpw"
	"captiondesk/api/internal/config"
	"captiondesk/api/internal/drive"
	"captiondesk/api/internal/email"
	"captiondesk/api/internal/export"
	"captiondesk/api/internal/gitrepo"
	"captiondesk/api/internal/rbac"
	"captiondesk/api/internal/search"
	"captiondesk/api/internal/session"
	"captiondesk/api/internal/social"
	"captiondesk/api/internal/store"
	"captiondesk/api/internal/util"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	Email        string
	UserName     string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	ListUsers(ctx context.Context) ([]store.User, error)
	CountUsers(ctx context.Context) (int, error)
	CreateUser(ctx context.Context, user store.User) (store.User, error)
	UpdateUser(ctx context.Context, user store.User) (store.User, error)
	DeleteUser(ctx context.Context, userID string) error

	UpsertContentItem(ctx context.Context, d store.ContentDescriptor) (string, bool, error)
	GetContentItem(ctx context.Context, id string) (store.ContentItem, error)
	FindContentItemsByDriveFileID(ctx context.Context, driveFileID string) ([]store.ContentItem, error)
	GetContentItemByIdentity(ctx context.Context, id, driveFileID string) (store.ContentItem, error)
	UpdateContentStatus(ctx context.Context, id string, from, to store.ContentStatus) error
	ListContentWithCaptions(ctx context.Context, filter store.ContentFilter) ([]store.ContentItem, error)
	GetContentWithCaptions(ctx context.Context, id string) (store.ContentItem, error)
	InsertDriveEvent(ctx context.Context, event store.DriveEvent) error

	InsertCaptions(ctx context.Context, contentItemID string, items []store.NewCaption) ([]store.Caption, error)
	GetCaption(ctx context.Context, id string) (store.Caption, error)
	GetCaptionWithContent(ctx context.Context, id string) (store.CaptionWithContent, error)
	UpdateCaptionContent(ctx context.Context, id, content string, expectedVersion int) (store.Caption, error)
	ApproveCaption(ctx context.Context, id, approverID string) (store.Caption, error)

	ListSettings(ctx context.Context) ([]store.Setting, error)
	SettingValues(ctx context.Context, keys ...string) (map[string]string, error)
	UpsertSettings(ctx context.Context, values map[string]string, updatedBy string) error

	UpsertPostMetrics(ctx context.Context, m store.PostMetrics) (store.PostMetrics, error)
	GetPostMetrics(ctx context.Context, contentItemID string) (store.PostMetrics, error)
	ListPostMetrics(ctx context.Context) ([]store.PostMetrics, error)

	LinkSummaries(ctx context.Context, driveFileID string) ([]store.LinkSummary, error)
	OrphanedCaptions(ctx context.Context) ([]store.OrphanCaption, error)

	Ping(ctx context.Context) error
}

// tokenStore keeps refresh sessions and revoked access tokens. Both the
// Postgres store and the Redis session store implement it.
type tokenStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (string, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
}

type revisionArchive interface {
	RecordRevision(rev gitrepo.Revision, author string) (gitrepo.Commit, error)
	History(contentItemID, captionID string, limit int) ([]gitrepo.Commit, error)
	GetRevision(contentItemID, captionID, hash string) (gitrepo.Revision, error)
}

type searchIndex interface {
	Search(ctx context.Context, q search.Query) search.Response
	IndexCaption(c search.CaptionRecord)
	IndexContent(c search.ContentRecord)
}

type outboundNotifier interface {
	Enabled() bool
	Notify(event string, payload map[string]any) bool
	Send(ctx context.Context, url, event string, payload map[string]any) error
}

type mailer interface {
	IsConfigured() bool
	SendApprovalNotice(to []string, data email.ApprovalData) error
}

type exporter interface {
	Export(ctx context.Context, req export.Request) (*export.Result, error)
}

type driveLister interface {
	ListFolder(ctx context.Context, folderID, apiKey string) ([]drive.File, error)
}

type graphClient interface {
	PostMetrics(ctx context.Context, creds social.Credentials, postID string) (social.Metrics, error)
	TestConnection(ctx context.Context, creds social.Credentials) (social.Page, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies are the collaborators built in main. Store is required;
// every other field may be left nil.
type Dependencies struct {
	Store      dataStore
	Tokens     tokenStore
	Deliveries deliveryCache
	Revisions  revisionArchive
	Search     searchIndex
	Notifier   outboundNotifier
	Mailer     mailer
	Exporter   exporter
	Drive      driveLister
	Social     graphClient
	Redis      pinger
}

type Service struct {
	cfg        config.Config
	store      dataStore
	tokens     tokenStore
	deliveries deliveryCache
	revisions  revisionArchive
	search     searchIndex
	notifier   outboundNotifier
	mailer     mailer
	exporter   exporter
	drive      driveLister
	social     graphClient
	redis      pinger
	passwords  *authpw.Service
	log        logrus.FieldLogger
	now        func() time.Time
	background sync.WaitGroup
}

func New(cfg config.Config, deps Dependencies, log logrus.FieldLogger) *Service {
	s := &Service{
		cfg:        cfg,
		store:      deps.Store,
		tokens:     deps.Tokens,
		deliveries: deps.Deliveries,
		revisions:  deps.Revisions,
		search:     deps.Search,
		notifier:   deps.Notifier,
		mailer:     deps.Mailer,
		exporter:   deps.Exporter,
		drive:      deps.Drive,
		social:     deps.Social,
		redis:      deps.Redis,
		passwords:  authpw.NewService(deps.Store),
		log:        log,
		now:        time.Now,
	}
	if s.tokens == nil {
		if tokens, ok := deps.Store.(tokenStore); ok {
			s.tokens = tokens
		}
	}
	if s.deliveries == nil {
		s.deliveries = newMemoryDeliveries(cfg.WebhookDedupeTTL)
	}
	return s
}

// Bootstrap creates the first admin account from configuration.
func (s *Service) Bootstrap(ctx context.Context) error {
	created, err := s.passwords.EnsureAdmin(ctx, s.cfg.AdminEmail, s.cfg.AdminPassword)
	if err != nil {
		return err
	}
	if created {
		s.log.WithField("email", s.cfg.AdminEmail).Info("bootstrap admin account created")
	}
	return nil
}

// Close waits for background side effects started by requests.
func (s *Service) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.background.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) goBackground(fn func()) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		fn()
	}()
}

func (s *Service) Login(ctx context.Context, emailAddr, password string) (Session, store.User, error) {
	user, err := s.passwords.SignIn(ctx, authpw.SignInRequest{Email: emailAddr, Password: password})
	if err != nil {
		if errors.Is(err, authpw.ErrInvalidCredentials) {
			return Session{}, store.User{}, errUnauthorized("Invalid email or password")
		}
		return Session{}, store.User{}, err
	}
	session, err := s.issueSession(ctx, user)
	if err != nil {
		return Session{}, store.User{}, err
	}
	return session, user, nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return Session{}, errUnauthorized("Refresh token required")
	}
	tokenHash := auth.HashToken(refreshToken)
	userID, err := s.tokens.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || errors.Is(err, session.ErrNotFound) {
			return Session{}, errUnauthorized("Invalid refresh token")
		}
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, errUnauthorized("Invalid refresh token")
		}
		return Session{}, err
	}
	if err := s.tokens.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Email: user.Email,
		Name:  user.Name,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	if err != nil {
		return Session{}, err
	}

	refresh, err := auth.NewRefreshToken()
	if err != nil {
		return Session{}, fmt.Errorf("new refresh token: %w", err)
	}
	if err := s.tokens.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, now.Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		Email:        user.Email,
		UserName:     user.Name,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

// SessionFromToken validates an access token. The role is read from the
// users table so demotions apply before the token expires.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.tokens.IsAccessTokenRevoked(ctx, claims.ID)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, err
	}

	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	return Session{
		Token:     token,
		UserID:    user.ID,
		Email:     user.Email,
		UserName:  user.Name,
		Role:      user.Role,
		JTI:       claims.ID,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		if err := s.tokens.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
			s.log.WithError(err).Warn("revoke access token")
		}
	}
	if refreshToken != "" {
		if err := s.tokens.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			s.log.WithError(err).Warn("revoke refresh session")
		}
	}
	return nil
}

func (s *Service) CurrentUser(ctx context.Context, session Session) (store.User, error) {
	return s.store.GetUserByID(ctx, session.UserID)
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// Authorize turns a denied action into a Forbidden error.
func (s *Service) Authorize(session Session, action rbac.Action) error {
	if !s.Can(session.Role, action) {
		return errForbidden("Admin access required")
	}
	return nil
}

// ApprovalAction is the permission approving a caption requires.
func (s *Service) ApprovalAction() rbac.Action {
	if s.cfg.RequireAdminApproval {
		return rbac.ActionAdmin
	}
	return rbac.ActionApprove
}

func (s *Service) WebhookSecret() string {
	return s.cfg.WebhookSecret
}

// Readiness pings the database and, when configured, Redis.
func (s *Service) Readiness(ctx context.Context) (map[string]any, bool) {
	ready := true
	checks := map[string]any{}

	if err := s.store.Ping(ctx); err != nil {
		ready = false
		s.log.WithError(err).Warn("readiness: database ping failed")
		checks["database"] = map[string]any{"status": "error"}
	} else {
		checks["database"] = map[string]any{"status": "ok"}
	}

	if s.redis != nil {
		if err := s.redis.Ping(ctx); err != nil {
			ready = false
			s.log.WithError(err).Warn("readiness: redis ping failed")
			checks["redis"] = map[string]any{"status": "error"}
		} else {
			checks["redis"] = map[string]any{"status": "ok"}
		}
	}
	return checks, ready
}

func storeNotFound(err error, message string, details any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return errNotFound(message, details)
	}
	return err
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
