package store

import (
	"context"
	"fmt"
)

const metricsColumns = `content_item_id::text, post_id, likes, comments, shares, reach, impressions, engagements, fetched_at`

func scanPostMetrics(row interface{ Scan(...any) error }) (PostMetrics, error) {
	var m PostMetrics
	err := row.Scan(&m.ContentItemID, &m.PostID, &m.Likes, &m.Comments, &m.Shares, &m.Reach, &m.Impressions, &m.Engagements, &m.FetchedAt)
	return m, err
}

func (s *PostgresStore) UpsertPostMetrics(ctx context.Context, m PostMetrics) (PostMetrics, error) {
	saved, err := scanPostMetrics(s.db.QueryRowContext(ctx, `
		INSERT INTO post_metrics (content_item_id, post_id, likes, comments, shares, reach, impressions, engagements, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (content_item_id) DO UPDATE SET
			post_id = EXCLUDED.post_id,
			likes = EXCLUDED.likes,
			comments = EXCLUDED.comments,
			shares = EXCLUDED.shares,
			reach = EXCLUDED.reach,
			impressions = EXCLUDED.impressions,
			engagements = EXCLUDED.engagements,
			fetched_at = NOW()
		RETURNING `+metricsColumns,
		m.ContentItemID, m.PostID, m.Likes, m.Comments, m.Shares, m.Reach, m.Impressions, m.Engagements))
	if err != nil {
		return PostMetrics{}, fmt.Errorf("upsert post metrics: %w", err)
	}
	return saved, nil
}

func (s *PostgresStore) GetPostMetrics(ctx context.Context, contentItemID string) (PostMetrics, error) {
	return scanPostMetrics(s.db.QueryRowContext(ctx, `SELECT `+metricsColumns+` FROM post_metrics WHERE content_item_id=$1`, contentItemID))
}

func (s *PostgresStore) ListPostMetrics(ctx context.Context) ([]PostMetrics, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+metricsColumns+` FROM post_metrics ORDER BY fetched_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list post metrics: %w", err)
	}
	defer rows.Close()

	metrics := make([]PostMetrics, 0)
	for rows.Next() {
		m, err := scanPostMetrics(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post metrics: %w", err)
		}
		metrics = append(metrics, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate post metrics: %w", err)
	}
	return metrics, nil
}
