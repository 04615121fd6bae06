package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"captiondesk/api/internal/notify"
	"captiondesk/api/internal/search"
	"captiondesk/api/internal/store"
	"captiondesk/api/internal/util"
)

const maxSyncBatch = 100

// canTransition is the content status machine. Published is terminal and
// approved may be sent back for review. Staying put is always allowed.
func canTransition(from, to store.ContentStatus) bool {
	if from == to {
		return true
	}
	switch from {
	case store.StatusPendingReview:
		return to == store.StatusApproved
	case store.StatusApproved:
		return to == store.StatusPublished || to == store.StatusPendingReview
	}
	return false
}

// SyncItem is one drive file as posted by the dashboard.
type SyncItem struct {
	ID           string `json:"id" validate:"notblank"`
	Filename     string `json:"filename" validate:"notblank,max=1024"`
	FileType     string `json:"fileType" validate:"oneof=video image"`
	DriveURL     string `json:"driveUrl"`
	ThumbnailURL string `json:"thumbnailUrl"`
	EmbedURL     string `json:"embedUrl"`
	MimeType     string `json:"mimeType"`
}

type SyncResult struct {
	ContentItemID string `json:"contentItemId"`
	DriveFileID   string `json:"driveFileId"`
	Created       bool   `json:"created"`
}

// SyncContent validates the whole batch, then upserts item by item. There
// is no batch transaction: a failure part way leaves earlier items written
// and a retry converges because upserts are idempotent.
func (s *Service) SyncContent(ctx context.Context, items []SyncItem) ([]SyncResult, error) {
	if len(items) == 0 || len(items) > maxSyncBatch {
		return nil, errInvalidInput(fmt.Sprintf("Sync requires between 1 and %d items", maxSyncBatch),
			map[string]any{"count": len(items)})
	}
	var problems []fieldProblem
	for i, item := range items {
		problems = append(problems, validateStruct(item, i)...)
	}
	if len(problems) > 0 {
		return nil, errInvalidInput("Invalid sync items", problems)
	}

	results := make([]SyncResult, 0, len(items))
	for _, item := range items {
		descriptor := store.ContentDescriptor{
			DriveFileID:  strings.TrimSpace(item.ID),
			Filename:     strings.TrimSpace(item.Filename),
			FileType:     item.FileType,
			DriveURL:     item.DriveURL,
			ThumbnailURL: item.ThumbnailURL,
			EmbedURL:     item.EmbedURL,
			MimeType:     item.MimeType,
		}
		id, created, err := s.store.UpsertContentItem(ctx, descriptor)
		if err != nil {
			return nil, err
		}
		results = append(results, SyncResult{ContentItemID: id, DriveFileID: descriptor.DriveFileID, Created: created})
		s.indexContent(ctx, id)
	}
	return results, nil
}

func (s *Service) ListContent(ctx context.Context, status, fileType string) ([]store.ContentItem, error) {
	status = strings.TrimSpace(status)
	fileType = strings.TrimSpace(fileType)
	if status != "" && !store.ContentStatus(status).Valid() {
		return nil, errInvalidInput("Unknown status filter", map[string]any{"status": status})
	}
	if fileType != "" && fileType != "video" && fileType != "image" {
		return nil, errInvalidInput("fileType must be video or image", map[string]any{"fileType": fileType})
	}
	return s.store.ListContentWithCaptions(ctx, store.ContentFilter{Status: status, FileType: fileType})
}

func (s *Service) GetContent(ctx context.Context, id string) (store.ContentItem, error) {
	if !util.IsUUID(id) {
		return store.ContentItem{}, errInvalidInput("Invalid content item id", map[string]any{"contentItemId": id})
	}
	item, err := s.store.GetContentWithCaptions(ctx, id)
	if err != nil {
		return store.ContentItem{}, storeNotFound(err, "Content item not found", map[string]any{"contentItemId": id})
	}
	return item, nil
}

// SetContentStatus moves an item through the status machine. Moving to the
// current status changes nothing.
func (s *Service) SetContentStatus(ctx context.Context, id string, to store.ContentStatus) (store.ContentItem, error) {
	if !to.Valid() {
		return store.ContentItem{}, errInvalidInput("status must be pending_review, approved or published",
			map[string]any{"status": to})
	}
	item, err := s.GetContent(ctx, id)
	if err != nil {
		return store.ContentItem{}, err
	}
	if item.Status == to {
		return item, nil
	}
	if !canTransition(item.Status, to) {
		return store.ContentItem{}, errConflict("Status transition not allowed",
			map[string]any{"from": item.Status, "to": to})
	}
	if err := s.store.UpdateContentStatus(ctx, id, item.Status, to); err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			return store.ContentItem{}, errConflict("Content status changed concurrently; reload and retry",
				map[string]any{"from": item.Status, "to": to})
		}
		return store.ContentItem{}, storeNotFound(err, "Content item not found", map[string]any{"contentItemId": id})
	}
	s.indexContent(ctx, id)
	return s.GetContent(ctx, id)
}

// RequestRecaption asks the automation to generate new captions. Existing
// captions and the content status are left alone.
func (s *Service) RequestRecaption(ctx context.Context, session Session, id string) (map[string]any, error) {
	item, err := s.GetContent(ctx, id)
	if err != nil {
		return nil, err
	}
	settings, err := s.store.SettingValues(ctx, settingRecaptionWebhookURL)
	if err != nil {
		return nil, err
	}
	url := strings.TrimSpace(settings[settingRecaptionWebhookURL])
	if url == "" || s.notifier == nil {
		return nil, errInvalidInput("Re-caption webhook URL is not configured in settings", nil)
	}

	err = s.notifier.Send(ctx, url, notify.EventRecaptionRequested, map[string]any{
		"contentItemId":   item.ID,
		"driveFileId":     item.DriveFileID,
		"filename":        item.Filename,
		"fileType":        item.FileType,
		"driveUrl":        item.DriveURL,
		"embedUrl":        item.EmbedURL,
		"existingCaption": len(item.Captions),
		"requestedBy":     session.UserID,
	})
	if err != nil {
		var callErr *notify.Error
		if errors.As(err, &callErr) {
			return nil, errUpstream("n8n", callErr.Status, "Re-caption webhook failed: "+callErr.Message)
		}
		s.log.WithError(err).Warn("recaption webhook failed")
		return nil, errUpstream("n8n", 0, "Re-caption webhook failed")
	}
	return map[string]any{
		"message":       "Re-caption requested",
		"contentItemId": item.ID,
		"driveFileId":   item.DriveFileID,
	}, nil
}

func (s *Service) indexContent(ctx context.Context, id string) {
	if s.search == nil {
		return
	}
	item, err := s.store.GetContentItem(ctx, id)
	if err != nil {
		s.log.WithError(err).WithField("content_item_id", id).Warn("load content for indexing")
		return
	}
	s.search.IndexContent(search.ContentRecord{
		ID:          item.ID,
		DriveFileID: item.DriveFileID,
		Filename:    item.Filename,
		FileType:    item.FileType,
		Status:      string(item.Status),
	})
}
