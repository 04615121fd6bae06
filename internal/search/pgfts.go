package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. Without Postgres nothing else works either.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search runs a UNION ALL over captions and content items ranked with
// ts_rank, using ts_headline for caption snippets.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	args := []any{q.Text}
	statusFilter := ""
	if q.Status != "" {
		args = append(args, q.Status)
		statusFilter = " AND %s.status = $2"
	}

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultCaption {
		where := "c.search_vector @@ plainto_tsquery('english', $1)"
		if statusFilter != "" {
			where += fmt.Sprintf(statusFilter, "c")
		}
		subQueries = append(subQueries, `
			SELECT 'caption'::text AS type, c.id::text AS id, ci.filename AS title,
				ts_headline('english', c.content, plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30') AS snippet,
				c.content_item_id::text AS content_item_id, c.status,
				ts_rank(c.search_vector, plainto_tsquery('english', $1)) AS rank
			FROM captions c
			JOIN content_items ci ON ci.id = c.content_item_id
			WHERE `+where)
	}

	if q.FilterType == "" || q.FilterType == ResultContent {
		where := "ci.search_vector @@ plainto_tsquery('simple', $1)"
		if statusFilter != "" {
			where += fmt.Sprintf(statusFilter, "ci")
		}
		subQueries = append(subQueries, `
			SELECT 'content'::text AS type, ci.id::text AS id, ci.filename AS title,
				ci.file_type AS snippet,
				ci.id::text AS content_item_id, ci.status,
				ts_rank(ci.search_vector, plainto_tsquery('simple', $1)) AS rank
			FROM content_items ci
			WHERE `+where)
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	union := strings.Join(subQueries, " UNION ALL ")
	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub", union)
	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, content_item_id, status
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`, union, limit, offset)

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.ContentItemID, &r.Status); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]CaptionRecord, []ContentRecord, error) {
	captionRows, err := p.db.QueryContext(ctx, `
		SELECT c.id::text, c.content_item_id::text, ci.filename, c.tone, c.content, c.status, c.version
		FROM captions c
		JOIN content_items ci ON ci.id = c.content_item_id
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load captions: %w", err)
	}
	defer captionRows.Close()

	captions := make([]CaptionRecord, 0)
	for captionRows.Next() {
		var c CaptionRecord
		if err := captionRows.Scan(&c.ID, &c.ContentItemID, &c.Filename, &c.Tone, &c.Content, &c.Status, &c.Version); err != nil {
			return nil, nil, fmt.Errorf("scan caption: %w", err)
		}
		captions = append(captions, c)
	}
	if err := captionRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate captions: %w", err)
	}

	contentRows, err := p.db.QueryContext(ctx, `
		SELECT id::text, drive_file_id, filename, file_type, status
		FROM content_items
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load content: %w", err)
	}
	defer contentRows.Close()

	items := make([]ContentRecord, 0)
	for contentRows.Next() {
		var c ContentRecord
		if err := contentRows.Scan(&c.ID, &c.DriveFileID, &c.Filename, &c.FileType, &c.Status); err != nil {
			return nil, nil, fmt.Errorf("scan content: %w", err)
		}
		items = append(items, c)
	}
	if err := contentRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate content: %w", err)
	}

	return captions, items, nil
}
