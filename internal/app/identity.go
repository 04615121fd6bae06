package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"captiondesk/api/internal/store"
	"captiondesk/api/internal/util"
)

// minDriveFileIDLength rejects ids that cannot be real drive file ids.
const minDriveFileIDLength = 10

// ContentRef names a content item by internal id, drive file id, or both.
type ContentRef interface {
	contentRef()
}

type ByInternalID struct {
	ID string
}

type ByExternalID struct {
	DriveFileID string
}

// ByBoth must resolve to a single row carrying both ids.
type ByBoth struct {
	ID          string
	DriveFileID string
}

func (ByInternalID) contentRef() {}
func (ByExternalID) contentRef() {}
func (ByBoth) contentRef()       {}

// ParseContentRef validates the raw identifiers without touching the
// database.
func ParseContentRef(id, driveFileID string) (ContentRef, error) {
	id = strings.TrimSpace(id)
	driveFileID = strings.TrimSpace(driveFileID)

	if id == "" && driveFileID == "" {
		return nil, errInvalidInput(
			"Either contentItemId (UUID) or driveFileId (Google Drive file ID) must be provided", nil)
	}
	if id != "" && !util.IsUUID(id) {
		return nil, errInvalidInput("contentItemId must be a UUID", map[string]any{"contentItemId": id})
	}
	if driveFileID != "" && len(driveFileID) < minDriveFileIDLength {
		return nil, errInvalidInput("driveFileId must be a Google Drive file ID of at least 10 characters",
			map[string]any{"driveFileId": driveFileID})
	}

	switch {
	case id != "" && driveFileID != "":
		return ByBoth{ID: id, DriveFileID: driveFileID}, nil
	case id != "":
		return ByInternalID{ID: id}, nil
	default:
		return ByExternalID{DriveFileID: driveFileID}, nil
	}
}

// ResolveContent returns exactly one content item for ref. It never writes.
func (s *Service) ResolveContent(ctx context.Context, ref ContentRef) (store.ContentItem, error) {
	switch r := ref.(type) {
	case ByInternalID:
		item, err := s.store.GetContentItem(ctx, r.ID)
		if err != nil {
			return store.ContentItem{}, storeNotFound(err, "Content item not found", map[string]any{"contentItemId": r.ID})
		}
		return item, nil

	case ByExternalID:
		items, err := s.store.FindContentItemsByDriveFileID(ctx, r.DriveFileID)
		if err != nil {
			return store.ContentItem{}, err
		}
		if len(items) == 0 {
			return store.ContentItem{}, errNotFound(
				"No content item found with this driveFileId. Make sure the content was synced first.",
				map[string]any{"driveFileId": r.DriveFileID})
		}
		if len(items) > 1 {
			ids := make([]string, 0, len(items))
			for _, item := range items {
				ids = append(ids, item.ID)
			}
			s.log.WithField("drive_file_id", r.DriveFileID).
				WithField("content_item_ids", ids).
				Warn("multiple content items share one drive file id")
		}
		return items[0], nil

	case ByBoth:
		item, err := s.store.GetContentItemByIdentity(ctx, r.ID, r.DriveFileID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ContentItem{}, domainError(http.StatusBadRequest, codeIdentityMismatch,
					"The provided contentItemId does not match the driveFileId",
					map[string]any{"contentItemId": r.ID, "driveFileId": r.DriveFileID})
			}
			return store.ContentItem{}, err
		}
		return item, nil
	}
	return store.ContentItem{}, errInvalidInput("Unsupported content reference", nil)
}

// refDriveFileID returns the drive id the caller supplied, if any.
func refDriveFileID(ref ContentRef) string {
	switch r := ref.(type) {
	case ByExternalID:
		return r.DriveFileID
	case ByBoth:
		return r.DriveFileID
	}
	return ""
}
