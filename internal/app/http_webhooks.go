package app

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

func readWebhookBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	raw, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errInvalidInput("Request body too large", nil)
		}
		return nil, errInvalidInput("invalid JSON body", nil)
	}
	return raw, nil
}

// handleN8NWebhook checks the shared secret before the body is read, so a
// bad secret never reaches the database.
func (s *HTTPServer) handleN8NWebhook(w http.ResponseWriter, r *http.Request) {
	if err := s.service.VerifyWebhookSecret(r.Header.Get("X-Webhook-Secret")); err != nil {
		s.fail(w, r, err)
		return
	}
	raw, err := readWebhookBody(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var event N8NEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidInput, "invalid JSON body", nil)
		return
	}

	result, err := s.service.ReceiveN8N(r.Context(), r.Header.Get("X-Webhook-Delivery-Id"), event)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if result.Replayed {
		w.Header().Set("X-Webhook-Replay", "true")
	}
	w.WriteHeader(result.Status)
	_, _ = w.Write(result.Body)
}

func (s *HTTPServer) handleDriveWebhook(w http.ResponseWriter, r *http.Request) {
	if err := s.service.VerifyWebhookSecret(r.Header.Get("X-Webhook-Secret")); err != nil {
		s.fail(w, r, err)
		return
	}
	raw, err := readWebhookBody(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var event DriveEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidInput, "invalid JSON body", nil)
		return
	}
	writeJSON(w, http.StatusOK, s.service.ReceiveDriveEvent(r.Context(), event, raw))
}
