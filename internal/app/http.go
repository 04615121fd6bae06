package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"captiondesk/api/internal/auth"
	"captiondesk/api/internal/rbac"
	"captiondesk/api/internal/store"
)

const maxBodyBytes = 1 << 20

type HTTPServer struct {
	service    *Service
	corsOrigin string
	limiter    *RateLimiter
	log        logrus.FieldLogger
}

// NewHTTPServer builds the API handler. A nil limiter disables rate limiting.
func NewHTTPServer(service *Service, corsOrigin string, limiter *RateLimiter, log logrus.FieldLogger) *HTTPServer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &HTTPServer{service: service, corsOrigin: corsOrigin, limiter: limiter, log: log}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(s.routes())
}

func (s *HTTPServer) routes() *mux.Router {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "Not found", nil)
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, codeInvalidInput, "Method not allowed", nil)
	})

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	api.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet, http.MethodHead)

	api.HandleFunc("/auth/login", s.limiter.limitFunc(s.handleLogin)).Methods(http.MethodPost)
	api.HandleFunc("/auth/refresh", s.limiter.limitFunc(s.handleRefresh)).Methods(http.MethodPost)
	api.HandleFunc("/auth/me", s.authed(s.handleMe)).Methods(http.MethodGet)
	api.HandleFunc("/auth/logout", s.authed(s.handleLogout)).Methods(http.MethodPost)

	api.HandleFunc("/webhooks/n8n", s.limiter.limitFunc(s.handleN8NWebhook)).Methods(http.MethodPost)
	api.HandleFunc("/webhooks/drive", s.limiter.limitFunc(s.handleDriveWebhook)).Methods(http.MethodPost)

	api.HandleFunc("/content", s.authed(s.handleListContent)).Methods(http.MethodGet)
	api.HandleFunc("/content/sync", s.authed(s.handleSyncContent)).Methods(http.MethodPost)
	api.HandleFunc("/content/{id}", s.authed(s.handleGetContent)).Methods(http.MethodGet)
	api.HandleFunc("/content/{id}/captions", s.authed(s.handleCreateCaptions)).Methods(http.MethodPost)
	api.HandleFunc("/content/{id}/status", s.admin(s.handleSetContentStatus)).Methods(http.MethodPatch)
	api.HandleFunc("/content/{id}/recaption", s.authed(s.handleRecaption)).Methods(http.MethodPost)
	api.HandleFunc("/content/{id}/export", s.authed(s.handleExport)).Methods(http.MethodGet)

	api.HandleFunc("/captions/{id}", s.authed(s.handleUpdateCaption)).Methods(http.MethodPut)
	api.HandleFunc("/captions/{id}/approve", s.authed(s.handleApproveCaption)).Methods(http.MethodPost)
	api.HandleFunc("/captions/{id}/history", s.authed(s.handleCaptionHistory)).Methods(http.MethodGet)
	api.HandleFunc("/captions/{id}/history/{hash}", s.authed(s.handleCaptionRevision)).Methods(http.MethodGet)

	api.HandleFunc("/users", s.admin(s.handleListUsers)).Methods(http.MethodGet)
	api.HandleFunc("/users", s.admin(s.handleCreateUser)).Methods(http.MethodPost)
	api.HandleFunc("/users/{id}", s.admin(s.handleUpdateUser)).Methods(http.MethodPut)
	api.HandleFunc("/users/{id}", s.admin(s.handleDeleteUser)).Methods(http.MethodDelete)
	api.HandleFunc("/settings", s.admin(s.handleListSettings)).Methods(http.MethodGet)
	api.HandleFunc("/settings", s.admin(s.handleUpdateSettings)).Methods(http.MethodPut)
	api.HandleFunc("/admin/integrity", s.admin(s.handleIntegrity)).Methods(http.MethodGet)

	api.HandleFunc("/drive/fetch", s.authed(s.handleDriveFetch)).Methods(http.MethodPost)
	api.HandleFunc("/facebook/metrics", s.authed(s.handleListMetrics)).Methods(http.MethodGet)
	api.HandleFunc("/facebook/metrics/{id}", s.authed(s.handleGetMetrics)).Methods(http.MethodGet)
	api.HandleFunc("/facebook/sync/{id}", s.authed(s.handleSyncMetrics)).Methods(http.MethodPost)
	api.HandleFunc("/facebook/test-connection", s.admin(s.handleFacebookTest)).Methods(http.MethodPost)
	api.HandleFunc("/search", s.authed(s.handleSearch)).Methods(http.MethodGet)
	return router
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, session Session)

func (s *HTTPServer) authed(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		next(w, r, session)
	}
}

func (s *HTTPServer) admin(next sessionHandler) http.HandlerFunc {
	return s.authed(func(w http.ResponseWriter, r *http.Request, session Session) {
		if !s.authorize(w, r, session, rbac.ActionAdmin) {
			return
		}
		next(w, r, session)
	})
}

func (s *HTTPServer) authorize(w http.ResponseWriter, r *http.Request, session Session, action rbac.Action) bool {
	if err := s.service.Authorize(session, action); err != nil {
		s.requestLog(r).
			WithField("user_id", session.UserID).
			WithField("action", string(action)).
			Info("access denied")
		s.fail(w, r, err)
		return false
	}
	return true
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "Access token required", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		s.fail(w, r, err)
		return Session{}, false
	}
	return session, true
}

// fail writes the error body for err and logs causes the client never sees.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.requestLog(r).WithError(err).WithField("code", code).Error("request failed")
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) requestLog(r *http.Request) logrus.FieldLogger {
	log := s.log.WithField("path", r.URL.Path)
	if id, ok := r.Context().Value(requestIDKey{}).(string); ok {
		log = log.WithField("request_id", id)
	}
	return log
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		if r.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusNoContent)
		} else {
			next.ServeHTTP(writer, r)
		}

		s.log.WithFields(logrus.Fields{
			"request_id":  requestID,
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      writer.status,
			"duration_ms": time.Since(started).Milliseconds(),
		}).Info("request")
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-Webhook-Secret, X-Webhook-Delivery-Id")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
	header.Set("Access-Control-Expose-Headers", "Content-Disposition, X-Export-Object, X-Request-ID")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, errorBody(code, message, details))
}

func errorBody(code, message string, details any) map[string]any {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	return response
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound, codeNotFound, "Not found", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, codeUnauthorized, "Invalid or expired token", nil
	case store.IsUniqueViolation(err):
		return http.StatusConflict, codeConflict, "Record already exists", nil
	case store.IsForeignKeyViolation(err):
		return http.StatusBadRequest, codeInvalidInput, "Referenced record does not exist", nil
	}
	return http.StatusInternalServerError, codeServerError, "Internal server error", nil
}
