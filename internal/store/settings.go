package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// GetSetting decodes the JSON value stored under key into v. It reports
// false when the key is not set.
func (t *Tx) GetSetting(key string, v any) (bool, error) {
	var raw string
	err := t.q.QueryRowContext(t.ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storageErr("read setting "+key, err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("failed to decode setting %s: %w", key, err)
	}
	return true, nil
}

// PutSetting stores v as JSON under key.
func (t *Tx) PutSetting(key string, v any) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode setting %s: %w", key, err)
	}
	_, err = t.q.ExecContext(t.ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, string(data))
	if err != nil {
		return storageErr("write setting "+key, err)
	}
	return nil
}

func (t *Tx) clearSettings(keep []string) error {
	query := "DELETE FROM settings"
	args := make([]any, len(keep))
	if len(keep) > 0 {
		query += " WHERE key NOT IN (?" + strings.Repeat(", ?", len(keep)-1) + ")"
		for i, k := range keep {
			args[i] = k
		}
	}
	if _, err := t.q.ExecContext(t.ctx, query, args...); err != nil {
		return storageErr("clear settings", err)
	}
	t.dirty = true
	return nil
}

// GetSetting reads a device-local setting. See Tx.GetSetting.
func (s *Store) GetSetting(ctx context.Context, key string, v any) (bool, error) {
	var found bool
	err := s.view(ctx, func(r *Tx) error {
		var err error
		found, err = r.GetSetting(key, v)
		return err
	})
	return found, err
}

// PutSetting writes a device-local setting. Settings changes do not advance
// Revision since they never leave the device.
func (s *Store) PutSetting(ctx context.Context, key string, v any) error {
	return s.Update(ctx, func(tx *Tx) error {
		return tx.PutSetting(key, v)
	})
}
