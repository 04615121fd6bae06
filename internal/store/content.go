package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const contentColumns = `id::text, drive_file_id, filename, file_type, status, drive_url, thumbnail_url, embed_url, mime_type, uploaded_at, updated_at`

func scanContentItem(row interface{ Scan(...any) error }) (ContentItem, error) {
	var item ContentItem
	err := row.Scan(
		&item.ID, &item.DriveFileID, &item.Filename, &item.FileType, &item.Status,
		&item.DriveURL, &item.ThumbnailURL, &item.EmbedURL, &item.MimeType,
		&item.UploadedAt, &item.UpdatedAt,
	)
	return item, err
}

// UpsertContentItem inserts a new pending item or refreshes the descriptor
// fields of the existing one. Status and drive_file_id of an existing row are
// never touched.
func (s *PostgresStore) UpsertContentItem(ctx context.Context, d ContentDescriptor) (id string, created bool, err error) {
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO content_items (drive_file_id, filename, file_type, drive_url, thumbnail_url, embed_url, mime_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (drive_file_id) DO UPDATE SET
			filename = EXCLUDED.filename,
			drive_url = EXCLUDED.drive_url,
			thumbnail_url = EXCLUDED.thumbnail_url,
			embed_url = EXCLUDED.embed_url,
			mime_type = EXCLUDED.mime_type,
			updated_at = NOW()
		RETURNING id::text, (xmax = 0) AS created
	`, d.DriveFileID, d.Filename, d.FileType, d.DriveURL, d.ThumbnailURL, d.EmbedURL, d.MimeType).Scan(&id, &created)
	if err != nil {
		return "", false, fmt.Errorf("upsert content item %s: %w", d.DriveFileID, err)
	}
	return id, created, nil
}

func (s *PostgresStore) GetContentItem(ctx context.Context, id string) (ContentItem, error) {
	return scanContentItem(s.db.QueryRowContext(ctx, `SELECT `+contentColumns+` FROM content_items WHERE id=$1`, id))
}

// FindContentItemsByDriveFileID returns every row carrying the drive id so
// callers can detect uniqueness drift instead of silently picking one.
func (s *PostgresStore) FindContentItemsByDriveFileID(ctx context.Context, driveFileID string) ([]ContentItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+contentColumns+`
		FROM content_items
		WHERE drive_file_id=$1
		ORDER BY uploaded_at ASC
	`, driveFileID)
	if err != nil {
		return nil, fmt.Errorf("find content by drive id: %w", err)
	}
	defer rows.Close()

	items := make([]ContentItem, 0, 1)
	for rows.Next() {
		item, err := scanContentItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan content item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate content items: %w", err)
	}
	return items, nil
}

// GetContentItemByIdentity returns the item only when both identifiers
// belong to the same row.
func (s *PostgresStore) GetContentItemByIdentity(ctx context.Context, id, driveFileID string) (ContentItem, error) {
	return scanContentItem(s.db.QueryRowContext(ctx, `
		SELECT `+contentColumns+`
		FROM content_items
		WHERE id=$1 AND drive_file_id=$2
	`, id, driveFileID))
}

// UpdateContentStatus moves an item from one status to another. It returns
// ErrStatusConflict when the item is no longer in the expected status.
func (s *PostgresStore) UpdateContentStatus(ctx context.Context, id string, from, to ContentStatus) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE content_items
		SET status=$3, updated_at=NOW()
		WHERE id=$1 AND status=$2
	`, id, from, to)
	if err != nil {
		return fmt.Errorf("update content status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update content status rows: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM content_items WHERE id=$1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check content item: %w", err)
	}
	if !exists {
		return sql.ErrNoRows
	}
	return ErrStatusConflict
}

const contentWithCaptionsQuery = `
	SELECT ci.id::text, ci.drive_file_id, ci.filename, ci.file_type, ci.status,
		ci.drive_url, ci.thumbnail_url, ci.embed_url, ci.mime_type, ci.uploaded_at, ci.updated_at,
		c.id::text, c.tone, c.content, c.status, c.version, c.approved_by::text, c.approved_at, c.created_at, c.updated_at
	FROM content_items ci
	LEFT JOIN captions c ON c.content_item_id = ci.id
`

// ListContentWithCaptions returns items newest first, each with its captions
// in insert order. Items without captions carry an empty slice.
func (s *PostgresStore) ListContentWithCaptions(ctx context.Context, filter ContentFilter) ([]ContentItem, error) {
	return s.queryContentWithCaptions(ctx, contentWithCaptionsQuery+`
		WHERE ($1::text = '' OR ci.status = $1::text)
			AND ($2::text = '' OR ci.file_type = $2::text)
		ORDER BY ci.uploaded_at DESC, ci.id, c.seq ASC
	`, filter.Status, filter.FileType)
}

func (s *PostgresStore) GetContentWithCaptions(ctx context.Context, id string) (ContentItem, error) {
	items, err := s.queryContentWithCaptions(ctx, contentWithCaptionsQuery+`
		WHERE ci.id = $1
		ORDER BY c.seq ASC
	`, id)
	if err != nil {
		return ContentItem{}, err
	}
	if len(items) == 0 {
		return ContentItem{}, sql.ErrNoRows
	}
	return items[0], nil
}

func (s *PostgresStore) queryContentWithCaptions(ctx context.Context, query string, args ...any) ([]ContentItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list content: %w", err)
	}
	defer rows.Close()

	items := make([]ContentItem, 0)
	index := make(map[string]int)
	for rows.Next() {
		var (
			item                                 ContentItem
			capID, capTone, capContent, capState sql.NullString
			capVersion                           sql.NullInt64
			capApprovedBy                        sql.NullString
			capApprovedAt, capCreated, capUpdate sql.NullTime
		)
		if err := rows.Scan(
			&item.ID, &item.DriveFileID, &item.Filename, &item.FileType, &item.Status,
			&item.DriveURL, &item.ThumbnailURL, &item.EmbedURL, &item.MimeType, &item.UploadedAt, &item.UpdatedAt,
			&capID, &capTone, &capContent, &capState, &capVersion, &capApprovedBy, &capApprovedAt, &capCreated, &capUpdate,
		); err != nil {
			return nil, fmt.Errorf("scan content row: %w", err)
		}

		pos, seen := index[item.ID]
		if !seen {
			item.Captions = make([]Caption, 0)
			items = append(items, item)
			pos = len(items) - 1
			index[item.ID] = pos
		}
		if !capID.Valid {
			continue
		}
		caption := Caption{
			ID:            capID.String,
			ContentItemID: item.ID,
			Tone:          Tone(capTone.String),
			Content:       capContent.String,
			Status:        CaptionStatus(capState.String),
			Version:       int(capVersion.Int64),
			CreatedAt:     capCreated.Time,
			UpdatedAt:     capUpdate.Time,
		}
		if capApprovedBy.Valid {
			approver := capApprovedBy.String
			caption.ApprovedBy = &approver
		}
		if capApprovedAt.Valid {
			approvedAt := capApprovedAt.Time
			caption.ApprovedAt = &approvedAt
		}
		items[pos].Captions = append(items[pos].Captions, caption)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate content rows: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertDriveEvent(ctx context.Context, event DriveEvent) error {
	payload := event.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO drive_events (event, drive_file_id, payload)
		VALUES ($1, $2, $3::jsonb)
	`, event.Event, event.DriveFileID, string(payload)); err != nil {
		return fmt.Errorf("insert drive event: %w", err)
	}
	return nil
}

// IsNotFound reports whether err means the row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
