package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const captionColumns = `id::text, content_item_id::text, tone, content, status, version, approved_by::text, approved_at, created_at, updated_at`

func scanCaption(row interface{ Scan(...any) error }) (Caption, error) {
	var (
		caption    Caption
		approvedBy sql.NullString
		approvedAt sql.NullTime
	)
	err := row.Scan(
		&caption.ID, &caption.ContentItemID, &caption.Tone, &caption.Content, &caption.Status,
		&caption.Version, &approvedBy, &approvedAt, &caption.CreatedAt, &caption.UpdatedAt,
	)
	if err != nil {
		return Caption{}, err
	}
	if approvedBy.Valid {
		value := approvedBy.String
		caption.ApprovedBy = &value
	}
	if approvedAt.Valid {
		value := approvedAt.Time
		caption.ApprovedAt = &value
	}
	return caption, nil
}

func insertCaption(ctx context.Context, db DBTX, contentItemID string, item NewCaption) (Caption, error) {
	return scanCaption(db.QueryRowContext(ctx, `
		INSERT INTO captions (content_item_id, tone, content, status, version)
		VALUES ($1, $2, $3, 'pending', 1)
		RETURNING `+captionColumns, contentItemID, item.Tone, item.Content))
}

// InsertCaptions stores every caption or none of them.
func (s *PostgresStore) InsertCaptions(ctx context.Context, contentItemID string, items []NewCaption) ([]Caption, error) {
	created := make([]Caption, 0, len(items))
	err := WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		for i, item := range items {
			caption, err := insertCaption(ctx, tx, contentItemID, item)
			if err != nil {
				return fmt.Errorf("insert caption %d: %w", i, err)
			}
			created = append(created, caption)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *PostgresStore) GetCaption(ctx context.Context, id string) (Caption, error) {
	return scanCaption(s.db.QueryRowContext(ctx, `SELECT `+captionColumns+` FROM captions WHERE id=$1`, id))
}

func (s *PostgresStore) ListCaptions(ctx context.Context, contentItemID string) ([]Caption, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+captionColumns+`
		FROM captions
		WHERE content_item_id=$1
		ORDER BY seq ASC
	`, contentItemID)
	if err != nil {
		return nil, fmt.Errorf("list captions: %w", err)
	}
	defer rows.Close()

	captions := make([]Caption, 0)
	for rows.Next() {
		caption, err := scanCaption(rows)
		if err != nil {
			return nil, fmt.Errorf("scan caption: %w", err)
		}
		captions = append(captions, caption)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate captions: %w", err)
	}
	return captions, nil
}

func (s *PostgresStore) GetCaptionWithContent(ctx context.Context, id string) (CaptionWithContent, error) {
	var (
		result     CaptionWithContent
		approvedBy sql.NullString
		approvedAt sql.NullTime
	)
	c := &result.Caption
	item := &result.Item
	err := s.db.QueryRowContext(ctx, `
		SELECT c.id::text, c.content_item_id::text, c.tone, c.content, c.status, c.version,
			c.approved_by::text, c.approved_at, c.created_at, c.updated_at,
			ci.id::text, ci.drive_file_id, ci.filename, ci.file_type, ci.status,
			ci.drive_url, ci.thumbnail_url, ci.embed_url, ci.mime_type, ci.uploaded_at, ci.updated_at
		FROM captions c
		JOIN content_items ci ON ci.id = c.content_item_id
		WHERE c.id = $1
	`, id).Scan(
		&c.ID, &c.ContentItemID, &c.Tone, &c.Content, &c.Status, &c.Version,
		&approvedBy, &approvedAt, &c.CreatedAt, &c.UpdatedAt,
		&item.ID, &item.DriveFileID, &item.Filename, &item.FileType, &item.Status,
		&item.DriveURL, &item.ThumbnailURL, &item.EmbedURL, &item.MimeType, &item.UploadedAt, &item.UpdatedAt,
	)
	if err != nil {
		return CaptionWithContent{}, err
	}
	if approvedBy.Valid {
		value := approvedBy.String
		c.ApprovedBy = &value
	}
	if approvedAt.Valid {
		value := approvedAt.Time
		c.ApprovedAt = &value
	}
	return result, nil
}

// UpdateCaptionContent writes new content only if the caption is still at
// expectedVersion, bumping the version by exactly one. A lost race returns
// ErrVersionConflict; a missing caption returns sql.ErrNoRows.
func (s *PostgresStore) UpdateCaptionContent(ctx context.Context, id, content string, expectedVersion int) (Caption, error) {
	caption, err := scanCaption(s.db.QueryRowContext(ctx, `
		UPDATE captions
		SET content=$2, version=version+1, updated_at=NOW()
		WHERE id=$1 AND version=$3
		RETURNING `+captionColumns, id, content, expectedVersion))
	if err == nil {
		return caption, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Caption{}, fmt.Errorf("update caption: %w", err)
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM captions WHERE id=$1)`, id).Scan(&exists); err != nil {
		return Caption{}, fmt.Errorf("check caption: %w", err)
	}
	if !exists {
		return Caption{}, sql.ErrNoRows
	}
	return Caption{}, ErrVersionConflict
}

// ApproveCaption records the approval once. Approving an already approved
// caption returns it unchanged.
func (s *PostgresStore) ApproveCaption(ctx context.Context, id, approverID string) (Caption, error) {
	caption, err := scanCaption(s.db.QueryRowContext(ctx, `
		UPDATE captions
		SET status='approved', approved_by=$2, approved_at=NOW(), updated_at=NOW()
		WHERE id=$1 AND approved_at IS NULL
		RETURNING `+captionColumns, id, approverID))
	if err == nil {
		return caption, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Caption{}, fmt.Errorf("approve caption: %w", err)
	}
	return s.GetCaption(ctx, id)
}
