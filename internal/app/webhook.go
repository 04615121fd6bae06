package app

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"captiondesk/api/internal/session"
	"captiondesk/api/internal/store"
)

const (
	eventCaptionsGenerated = "captions_generated"
	eventFileCreated       = "file_created"
	eventFileUpdated       = "file_updated"
)

// deliveryCache remembers webhook delivery ids. The Redis delivery store
// implements it; memoryDeliveries is the single-process fallback.
type deliveryCache interface {
	Lookup(ctx context.Context, id string) (session.Delivery, bool, error)
	Claim(ctx context.Context, id string) (bool, error)
	Store(ctx context.Context, id string, status int, body []byte) error
	Release(ctx context.Context, id string) error
}

// flexibleID accepts a JSON string or number.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var value string
		if err := json.Unmarshal(data, &value); err != nil {
			return err
		}
		*f = flexibleID(value)
		return nil
	}
	var number json.Number
	if err := json.Unmarshal(data, &number); err != nil {
		return fmt.Errorf("identifier must be a string or number")
	}
	*f = flexibleID(number.String())
	return nil
}

type N8NEvent struct {
	Event string       `json:"event"`
	Data  N8NEventData `json:"data"`
}

type N8NEventData struct {
	ContentItemID flexibleID     `json:"contentItemId"`
	DriveFileID   flexibleID     `json:"driveFileId"`
	Captions      []CaptionInput `json:"captions"`
}

type DriveEvent struct {
	Event    string `json:"event"`
	FileID   string `json:"fileId"`
	FileName string `json:"fileName"`
	FileType string `json:"fileType"`
	MimeType string `json:"mimeType"`
}

// WebhookResult is a finished webhook answer, possibly replayed from the
// delivery cache.
type WebhookResult struct {
	Status   int
	Body     json.RawMessage
	Replayed bool
}

// VerifyWebhookSecret compares in constant time. An unset secret accepts
// everything.
func (s *Service) VerifyWebhookSecret(presented string) error {
	expected := s.cfg.WebhookSecret
	if expected == "" {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) != 1 {
		return errUnauthorized("Invalid webhook secret")
	}
	return nil
}

// ReceiveN8N handles an automation event. With a delivery id, a replay gets
// the first answer back and a concurrent duplicate is refused.
func (s *Service) ReceiveN8N(ctx context.Context, deliveryID string, event N8NEvent) (WebhookResult, error) {
	deliveryID = strings.TrimSpace(deliveryID)
	if event.Event != eventCaptionsGenerated || deliveryID == "" {
		body, err := s.handleN8N(ctx, event)
		if err != nil {
			return WebhookResult{}, err
		}
		return encodeWebhookResult(http.StatusOK, body)
	}

	log := s.log.WithField("delivery_id", deliveryID)
	cached, found, err := s.deliveries.Lookup(ctx, deliveryID)
	if err != nil {
		return WebhookResult{}, fmt.Errorf("lookup delivery: %w", err)
	}
	if found {
		if cached.Pending {
			return WebhookResult{}, errConflict("Delivery is already being processed", map[string]any{"deliveryId": deliveryID})
		}
		log.Info("replaying webhook delivery")
		return WebhookResult{Status: cached.Status, Body: cached.Body, Replayed: true}, nil
	}
	claimed, err := s.deliveries.Claim(ctx, deliveryID)
	if err != nil {
		return WebhookResult{}, fmt.Errorf("claim delivery: %w", err)
	}
	if !claimed {
		return WebhookResult{}, errConflict("Delivery is already being processed", map[string]any{"deliveryId": deliveryID})
	}

	body, handleErr := s.handleN8N(ctx, event)
	if handleErr != nil {
		status, code, message, details := mapError(handleErr)
		if status >= http.StatusInternalServerError {
			if err := s.deliveries.Release(context.WithoutCancel(ctx), deliveryID); err != nil {
				log.WithError(err).Warn("release webhook delivery")
			}
			return WebhookResult{}, handleErr
		}
		encoded, err := json.Marshal(errorBody(code, message, details))
		if err == nil {
			if err := s.deliveries.Store(context.WithoutCancel(ctx), deliveryID, status, encoded); err != nil {
				log.WithError(err).Warn("store webhook delivery")
			}
		}
		return WebhookResult{}, handleErr
	}

	result, err := encodeWebhookResult(http.StatusOK, body)
	if err != nil {
		return WebhookResult{}, err
	}
	if err := s.deliveries.Store(context.WithoutCancel(ctx), deliveryID, result.Status, result.Body); err != nil {
		log.WithError(err).Warn("store webhook delivery")
	}
	return result, nil
}

func (s *Service) handleN8N(ctx context.Context, event N8NEvent) (map[string]any, error) {
	if event.Event != eventCaptionsGenerated {
		return map[string]any{"received": true, "event": event.Event}, nil
	}
	return s.ingestGeneratedCaptions(ctx, event.Data)
}

// ingestGeneratedCaptions runs the gates in order: identifiers, captions,
// resolution, re-verification, then one transaction for every row.
func (s *Service) ingestGeneratedCaptions(ctx context.Context, data N8NEventData) (map[string]any, error) {
	ref, err := ParseContentRef(string(data.ContentItemID), string(data.DriveFileID))
	if err != nil {
		return nil, err
	}
	if data.Captions == nil {
		return nil, errInvalidInput("Captions array is required", nil)
	}

	resolved, err := s.ResolveContent(ctx, ref)
	if err != nil {
		return nil, err
	}

	captions := filterGeneratedCaptions(data.Captions)
	if len(captions) == 0 {
		return nil, errValidation(
			"No valid captions provided. Captions need a tone (Professional, Casual or Engaging) and 10 to 5000 characters of content",
			map[string]any{"received": len(data.Captions), "accepted": 0})
	}

	current, err := s.store.GetContentItem(ctx, resolved.ID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, domainError(http.StatusConflict, codeIntegrity,
				"Content item disappeared before captions could be stored; nothing was written",
				map[string]any{"contentItemId": resolved.ID})
		}
		return nil, err
	}
	supplied := refDriveFileID(ref)
	if current.DriveFileID != resolved.DriveFileID || (supplied != "" && current.DriveFileID != supplied) {
		s.log.WithField("content_item_id", current.ID).
			WithField("provided_drive_file_id", supplied).
			WithField("actual_drive_file_id", current.DriveFileID).
			Error("drive file id drift detected; caption write refused")
		return nil, domainError(http.StatusConflict, codeIntegrity,
			"The driveFileId does not match the stored content item; captions were not stored",
			map[string]any{
				"contentItemId":       current.ID,
				"providedDriveFileId": firstNonBlank(supplied, resolved.DriveFileID),
				"actualDriveFileId":   current.DriveFileID,
			})
	}

	inserted, err := s.store.InsertCaptions(ctx, current.ID, captions)
	if err != nil {
		s.log.WithError(err).
			WithField("content_item_id", current.ID).
			WithField("caption_count", len(captions)).
			Error("caption transaction rolled back")
		return nil, domainError(http.StatusInternalServerError, codeTransactionFailure,
			"Failed to store captions; the transaction was rolled back and no captions were saved", nil)
	}

	for _, caption := range inserted {
		s.afterCaptionWrite(caption, current, revisionGenerated, "")
	}
	s.log.WithField("content_item_id", current.ID).
		WithField("drive_file_id", current.DriveFileID).
		WithField("caption_count", len(inserted)).
		Info("generated captions stored")

	rendered := make([]map[string]any, 0, len(inserted))
	for _, caption := range inserted {
		rendered = append(rendered, captionJSON(caption))
	}
	return map[string]any{
		"received":      true,
		"event":         eventCaptionsGenerated,
		"message":       fmt.Sprintf("Successfully stored %d caption(s)", len(inserted)),
		"contentItemId": current.ID,
		"driveFileId":   current.DriveFileID,
		"filename":      current.Filename,
		"fileType":      current.FileType,
		"captions":      rendered,
		"verification": map[string]any{
			"contentItemId": current.ID,
			"driveFileId":   current.DriveFileID,
			"captionCount":  len(inserted),
			"verifiedAt":    s.now().UTC(),
		},
	}, nil
}

// ReceiveDriveEvent acknowledges a drive notification. Recording it is
// best effort.
func (s *Service) ReceiveDriveEvent(ctx context.Context, event DriveEvent, raw []byte) map[string]any {
	switch event.Event {
	case eventFileCreated, eventFileUpdated:
		s.log.WithField("event", event.Event).WithField("drive_file_id", event.FileID).Info("drive file event")
	default:
		s.log.WithField("event", event.Event).Debug("unhandled drive event")
	}
	if err := s.store.InsertDriveEvent(ctx, store.DriveEvent{
		Event:       event.Event,
		DriveFileID: strings.TrimSpace(event.FileID),
		Payload:     raw,
	}); err != nil {
		s.log.WithError(err).WithField("event", event.Event).Warn("record drive event")
	}
	return map[string]any{"received": true, "event": event.Event}
}

func encodeWebhookResult(status int, body map[string]any) (WebhookResult, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return WebhookResult{}, fmt.Errorf("encode webhook response: %w", err)
	}
	return WebhookResult{Status: status, Body: encoded}, nil
}

type deliveryRecord struct {
	expiresAt time.Time
	delivery  session.Delivery
}

// memoryDeliveries is the in-process delivery cache used without Redis.
type memoryDeliveries struct {
	ttl     time.Duration
	mu      sync.Mutex
	records map[string]deliveryRecord
	now     func() time.Time
}

func newMemoryDeliveries(ttl time.Duration) *memoryDeliveries {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &memoryDeliveries{
		ttl:     ttl,
		records: make(map[string]deliveryRecord),
		now:     time.Now,
	}
}

// purge drops expired records. Callers hold mu.
func (m *memoryDeliveries) purge() {
	now := m.now()
	for key, record := range m.records {
		if now.After(record.expiresAt) {
			delete(m.records, key)
		}
	}
}

func (m *memoryDeliveries) Lookup(_ context.Context, id string) (session.Delivery, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge()
	record, ok := m.records[id]
	if !ok {
		return session.Delivery{}, false, nil
	}
	return record.delivery, true, nil
}

func (m *memoryDeliveries) Claim(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purge()
	if _, ok := m.records[id]; ok {
		return false, nil
	}
	m.records[id] = deliveryRecord{
		expiresAt: m.now().Add(m.ttl),
		delivery:  session.Delivery{Pending: true},
	}
	return true, nil
}

func (m *memoryDeliveries) Store(_ context.Context, id string, status int, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[id] = deliveryRecord{
		expiresAt: m.now().Add(m.ttl),
		delivery:  session.Delivery{Status: status, Body: append(json.RawMessage(nil), body...)},
	}
	return nil
}

func (m *memoryDeliveries) Release(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}
