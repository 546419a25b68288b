package sqlite

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/sentinelrisk/hardstop/internal/types"
)

// SetConfig sets a configuration value
func (s *SQLiteStorage) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, key, value)
	return wrapDBError("set config", err)
}

// GetConfig gets a configuration value
func (s *SQLiteStorage) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, wrapDBError("get config", err)
}

// GetAllConfig gets all configuration key-value pairs
func (s *SQLiteStorage) GetAllConfig(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM config ORDER BY key`)
	if err != nil {
		return nil, wrapDBError("query all config", err)
	}
	defer func() { _ = rows.Close() }()

	config := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, wrapDBError("scan config row", err)
		}
		config[key] = value
	}
	return config, wrapDBError("iterate config rows", rows.Err())
}

// DeleteConfig deletes a configuration value
func (s *SQLiteStorage) DeleteConfig(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM config WHERE key = ?`, key)
	return wrapDBError("delete config", err)
}

// SetMetadata sets a metadata value (for internal state like canonicalization watermarks)
func (s *SQLiteStorage) SetMetadata(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, key, value)
	return wrapDBError("set metadata", err)
}

// GetMetadata gets a metadata value (for internal state like canonicalization watermarks)
func (s *SQLiteStorage) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, wrapDBError("get metadata", err)
}

// Quality config keys live in the same config table as everything else,
// namespaced with a dotted prefix the way other config keys are.
const (
	qualityMinConfClass1    = "quality.min_confidence_class1"
	qualityMinConfClass2    = "quality.min_confidence_class2"
	qualityMinConfAmbiguous = "quality.min_confidence_ambiguous"
	qualityAllowOverride    = "quality.allow_override_floor"
)

// GetQualityConfig loads alert-quality thresholds from config, falling back
// to types.DefaultQualityConfig for any key that is unset or unparsable.
func (s *SQLiteStorage) GetQualityConfig(ctx context.Context) (types.QualityConfig, error) {
	defaults := types.DefaultQualityConfig()
	all, err := s.GetAllConfig(ctx)
	if err != nil {
		return defaults, err
	}

	cfg := defaults
	if v, ok := all[qualityMinConfClass1]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.MinConfidenceClass1 = f
		}
	}
	if v, ok := all[qualityMinConfClass2]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.MinConfidenceClass2 = f
		}
	}
	if v, ok := all[qualityMinConfAmbiguous]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.MinConfidenceAmbiguous = f
		}
	}
	if v, ok := all[qualityAllowOverride]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AllowQualityOverrideFloor = b
		}
	}
	return cfg, nil
}

// SetQualityConfig persists alert-quality thresholds, upserting each key in
// its own statement the same way SetConfig does for a single key.
func (s *SQLiteStorage) SetQualityConfig(ctx context.Context, cfg types.QualityConfig) error {
	pairs := map[string]string{
		qualityMinConfClass1:    strconv.FormatFloat(cfg.MinConfidenceClass1, 'f', -1, 64),
		qualityMinConfClass2:    strconv.FormatFloat(cfg.MinConfidenceClass2, 'f', -1, 64),
		qualityMinConfAmbiguous: strconv.FormatFloat(cfg.MinConfidenceAmbiguous, 'f', -1, 64),
		qualityAllowOverride:    strconv.FormatBool(cfg.AllowQualityOverrideFloor),
	}
	for k, v := range pairs {
		if err := s.SetConfig(ctx, k, v); err != nil {
			return err
		}
	}
	return nil
}
