package app

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"captiondesk/api/internal/store"
)

func (s *HTTPServer) handleListContent(w http.ResponseWriter, r *http.Request, _ Session) {
	query := r.URL.Query()
	items, err := s.service.ListContent(r.Context(), query.Get("status"), query.Get("fileType"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"content": contentListJSON(items)})
}

func (s *HTTPServer) handleGetContent(w http.ResponseWriter, r *http.Request, _ Session) {
	item, err := s.service.GetContent(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"content": contentJSON(item)})
}

// handleSyncContent accepts the batch under "items" or the older "contentItems".
func (s *HTTPServer) handleSyncContent(w http.ResponseWriter, r *http.Request, _ Session) {
	var body struct {
		Items        []SyncItem `json:"items"`
		ContentItems []SyncItem `json:"contentItems"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidInput, err.Error(), nil)
		return
	}
	items := body.Items
	if items == nil {
		items = body.ContentItems
	}
	if items == nil {
		writeError(w, http.StatusBadRequest, codeInvalidInput, "Content items array is required", nil)
		return
	}
	results, err := s.service.SyncContent(r.Context(), items)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ids := make([]string, 0, len(results))
	created := 0
	for _, result := range results {
		ids = append(ids, result.ContentItemID)
		if result.Created {
			created++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":      "Content synced successfully",
		"syncedCount":  len(results),
		"createdCount": created,
		"syncedIds":    ids,
		"items":        results,
	})
}

func (s *HTTPServer) handleCreateCaptions(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		Captions []CaptionInput `json:"captions"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidInput, err.Error(), nil)
		return
	}
	if body.Captions == nil {
		writeError(w, http.StatusBadRequest, codeInvalidInput, "Captions array is required", nil)
		return
	}
	captions, err := s.service.CreateCaptions(r.Context(), session, mux.Vars(r)["id"], body.Captions)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rendered := make([]map[string]any, 0, len(captions))
	for _, caption := range captions {
		rendered = append(rendered, captionJSON(caption))
	}
	writeJSON(w, http.StatusCreated, map[string]any{"captions": rendered})
}

func (s *HTTPServer) handleSetContentStatus(w http.ResponseWriter, r *http.Request, _ Session) {
	var body struct {
		Status string `json:"status"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidInput, err.Error(), nil)
		return
	}
	item, err := s.service.SetContentStatus(r.Context(), mux.Vars(r)["id"], store.ContentStatus(body.Status))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"content": contentJSON(item)})
}

func (s *HTTPServer) handleRecaption(w http.ResponseWriter, r *http.Request, session Session) {
	response, err := s.service.RequestRecaption(r.Context(), session, mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, session Session) {
	result, err := s.service.ExportContent(r.Context(), session, mux.Vars(r)["id"], r.URL.Query().Get("format"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	if result.ObjectKey != "" {
		w.Header().Set("X-Export-Object", result.ObjectKey)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleUpdateCaption(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		Content         *string `json:"content"`
		ExpectedVersion *int    `json:"expectedVersion"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidInput, err.Error(), nil)
		return
	}
	if body.Content == nil {
		writeError(w, http.StatusBadRequest, codeInvalidInput, "Content is required", nil)
		return
	}
	caption, err := s.service.UpdateCaption(r.Context(), session, mux.Vars(r)["id"], *body.Content, body.ExpectedVersion)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"caption": captionJSON(caption)})
}

func (s *HTTPServer) handleApproveCaption(w http.ResponseWriter, r *http.Request, session Session) {
	if !s.authorize(w, r, session, s.service.ApprovalAction()) {
		return
	}
	response, err := s.service.ApproveCaption(r.Context(), session, mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleCaptionHistory(w http.ResponseWriter, r *http.Request, _ Session) {
	id := mux.Vars(r)["id"]
	commits, err := s.service.CaptionHistory(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"captionId": id, "history": commits})
}

func (s *HTTPServer) handleCaptionRevision(w http.ResponseWriter, r *http.Request, _ Session) {
	vars := mux.Vars(r)
	rev, err := s.service.CaptionRevision(r.Context(), vars["id"], vars["hash"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hash": vars["hash"], "revision": rev})
}
