package app

import (
	"net/http"

	"github.com/gorilla/mux"
)

func (s *HTTPServer) handleListUsers(w http.ResponseWriter, r *http.Request, _ Session) {
	users, err := s.service.ListUsers(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": usersJSON(users)})
}

func (s *HTTPServer) handleCreateUser(w http.ResponseWriter, r *http.Request, _ Session) {
	var body UserInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidInput, err.Error(), nil)
		return
	}
	user, err := s.service.CreateUser(r.Context(), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": userJSON(user)})
}

func (s *HTTPServer) handleUpdateUser(w http.ResponseWriter, r *http.Request, session Session) {
	var body UserInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidInput, err.Error(), nil)
		return
	}
	user, err := s.service.UpdateUser(r.Context(), session, mux.Vars(r)["id"], body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": userJSON(user)})
}

func (s *HTTPServer) handleDeleteUser(w http.ResponseWriter, r *http.Request, session Session) {
	if err := s.service.DeleteUser(r.Context(), session, mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "User deleted"})
}

func (s *HTTPServer) handleListSettings(w http.ResponseWriter, r *http.Request, _ Session) {
	settings, err := s.service.ListSettings(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"settings": settingsJSON(settings)})
}

func (s *HTTPServer) handleUpdateSettings(w http.ResponseWriter, r *http.Request, session Session) {
	var body map[string]string
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidInput, "Settings must be an object of string values", nil)
		return
	}
	settings, err := s.service.UpdateSettings(r.Context(), session, body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "Settings updated successfully",
		"settings": settingsJSON(settings),
	})
}

func (s *HTTPServer) handleIntegrity(w http.ResponseWriter, r *http.Request, _ Session) {
	report, err := s.service.IntegrityReport(r.Context(), r.URL.Query().Get("driveFileId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
