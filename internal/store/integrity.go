package store

import (
	"context"
	"fmt"
)

// LinkSummaries counts captions per content item, optionally narrowed to a
// single drive file id.
func (s *PostgresStore) LinkSummaries(ctx context.Context, driveFileID string) ([]LinkSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ci.id::text, ci.drive_file_id, ci.filename, ci.file_type, COUNT(c.id)
		FROM content_items ci
		LEFT JOIN captions c ON c.content_item_id = ci.id
		WHERE ($1::text = '' OR ci.drive_file_id = $1::text)
		GROUP BY ci.id, ci.drive_file_id, ci.filename, ci.file_type, ci.uploaded_at
		ORDER BY ci.uploaded_at DESC
	`, driveFileID)
	if err != nil {
		return nil, fmt.Errorf("link summaries: %w", err)
	}
	defer rows.Close()

	summaries := make([]LinkSummary, 0)
	for rows.Next() {
		var sum LinkSummary
		if err := rows.Scan(&sum.ContentItemID, &sum.DriveFileID, &sum.Filename, &sum.FileType, &sum.CaptionCount); err != nil {
			return nil, fmt.Errorf("scan link summary: %w", err)
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate link summaries: %w", err)
	}
	return summaries, nil
}

// OrphanedCaptions lists captions that point at a missing content item.
func (s *PostgresStore) OrphanedCaptions(ctx context.Context) ([]OrphanCaption, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id::text, c.content_item_id::text, c.tone, c.created_at
		FROM captions c
		LEFT JOIN content_items ci ON ci.id = c.content_item_id
		WHERE ci.id IS NULL
		ORDER BY c.created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("orphaned captions: %w", err)
	}
	defer rows.Close()

	orphans := make([]OrphanCaption, 0)
	for rows.Next() {
		var o OrphanCaption
		if err := rows.Scan(&o.CaptionID, &o.ContentItemID, &o.Tone, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan orphan caption: %w", err)
		}
		orphans = append(orphans, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orphan captions: %w", err)
	}
	return orphans, nil
}
