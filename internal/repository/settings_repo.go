package repository

import (
	"context"
)

const SettingCommissionPercent = "commission_percent"

type SettingsRepository struct {
	db DBTX
}

func NewSettingsRepository(db DBTX) *SettingsRepository {
	return &SettingsRepository{db: db}
}

func (r *SettingsRepository) Get(ctx context.Context, key string) (string, int64, error) {
	var value string
	var version int64
	err := r.db.QueryRow(ctx, `SELECT value, version FROM platform_settings WHERE key = $1`, key).Scan(&value, &version)
	if err != nil {
		return "", 0, err
	}
	return value, version, nil
}

// Set upserts the value and returns the new version.
func (r *SettingsRepository) Set(ctx context.Context, key string, value string) (int64, error) {
	query := `
		INSERT INTO platform_settings (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value,
			version = platform_settings.version + 1,
			updated_at = NOW()
		RETURNING version
	`
	var version int64
	if err := r.db.QueryRow(ctx, query, key, value).Scan(&version); err != nil {
		return 0, err
	}
	return version, nil
}
