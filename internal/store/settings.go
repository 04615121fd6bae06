package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
)

func (s *PostgresStore) ListSettings(ctx context.Context) ([]Setting, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value, description, updated_at, updated_by::text
		FROM settings
		ORDER BY key ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	settings := make([]Setting, 0)
	for rows.Next() {
		var (
			setting   Setting
			updatedBy sql.NullString
		)
		if err := rows.Scan(&setting.Key, &setting.Value, &setting.Description, &setting.UpdatedAt, &updatedBy); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		if updatedBy.Valid {
			value := updatedBy.String
			setting.UpdatedBy = &value
		}
		settings = append(settings, setting)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settings: %w", err)
	}
	return settings, nil
}

// SettingValues returns the values of the requested keys. Keys that are not
// stored are absent from the map.
func (s *PostgresStore) SettingValues(ctx context.Context, keys ...string) (map[string]string, error) {
	wanted := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		wanted[key] = struct{}{}
	}
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string, len(keys))
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		if _, ok := wanted[key]; ok || len(keys) == 0 {
			values[key] = value
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settings: %w", err)
	}
	return values, nil
}

// UpsertSettings writes all values in one transaction, in key order.
func (s *PostgresStore) UpsertSettings(ctx context.Context, values map[string]string, updatedBy string) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	return WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		for _, key := range keys {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO settings (key, value, updated_by, updated_at)
				VALUES ($1, $2, NULLIF($3, '')::uuid, NOW())
				ON CONFLICT (key) DO UPDATE SET
					value = EXCLUDED.value,
					updated_by = EXCLUDED.updated_by,
					updated_at = NOW()
			`, key, values[key], updatedBy); err != nil {
				return fmt.Errorf("upsert setting %s: %w", key, err)
			}
		}
		return nil
	})
}
