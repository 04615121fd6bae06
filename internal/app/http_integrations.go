package app

import (
	"net/http"

	"github.com/gorilla/mux"
)

func (s *HTTPServer) handleDriveFetch(w http.ResponseWriter, r *http.Request, _ Session) {
	files, err := s.service.FetchDriveFiles(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files, "count": len(files)})
}

func (s *HTTPServer) handleListMetrics(w http.ResponseWriter, r *http.Request, _ Session) {
	metrics, err := s.service.ListPostMetrics(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"metrics": metricsListJSON(metrics)})
}

func (s *HTTPServer) handleGetMetrics(w http.ResponseWriter, r *http.Request, _ Session) {
	metrics, err := s.service.GetPostMetrics(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"metrics": metricsJSON(metrics)})
}

func (s *HTTPServer) handleSyncMetrics(w http.ResponseWriter, r *http.Request, _ Session) {
	var body struct {
		PostID string `json:"postId"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidInput, err.Error(), nil)
		return
	}
	metrics, err := s.service.SyncPostMetrics(r.Context(), mux.Vars(r)["id"], body.PostID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Metrics synced",
		"metrics": metricsJSON(metrics),
	})
}

func (s *HTTPServer) handleFacebookTest(w http.ResponseWriter, r *http.Request, _ Session) {
	page, err := s.service.TestFacebookConnection(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"page":    map[string]any{"id": page.ID, "name": page.Name},
	})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, _ Session) {
	query := r.URL.Query()
	response, err := s.service.Search(r.Context(), query.Get("q"), query.Get("type"), query.Get("status"), query.Get("limit"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}
