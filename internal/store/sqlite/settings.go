package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"tonstation_bot/internal/model"
)

const loopSettingsKey = "loop_settings"

// GetLoopSettings returns the settings saved through the status API, if any.
func (s *Store) GetLoopSettings(ctx context.Context) (model.LoopSettings, bool, error) {
	var valueJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT value_json FROM settings WHERE key = ?
	`, loopSettingsKey).Scan(&valueJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.LoopSettings{}, false, nil
		}
		return model.LoopSettings{}, false, err
	}
	var out model.LoopSettings
	if err := json.Unmarshal([]byte(valueJSON), &out); err != nil {
		return model.LoopSettings{}, false, err
	}
	return out, true, nil
}

func (s *Store) UpsertLoopSettings(ctx context.Context, v model.LoopSettings) (model.LoopSettings, error) {
	now := time.Now().UnixMilli()
	b, err := json.Marshal(v)
	if err != nil {
		return model.LoopSettings{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value_json = excluded.value_json,
			updated_at = excluded.updated_at
	`, loopSettingsKey, string(b), now)
	if err != nil {
		return model.LoopSettings{}, err
	}
	return v, nil
}
