// Package archive reads and writes snapshot files and keeps rotating
// backups of the local store.
package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/frankstormy/pincafe/internal/schema"
)

// File is the on-disk format of an exported snapshot.
type File struct {
	schema.Snapshot

	ExportedAt time.Time `json:"exportedAt"`
	DeviceID   string    `json:"deviceId,omitempty"`
}

// WriteSnapshotFile writes snap to path as indented JSON. The file is
// written to a temporary name first and renamed into place.
func WriteSnapshotFile(path string, snap *schema.Snapshot, deviceID string) error {
	if snap == nil {
		return fmt.Errorf("snapshot cannot be nil")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	data, err := json.MarshalIndent(File{
		Snapshot:   *snap,
		ExportedAt: time.Now().UTC(),
		DeviceID:   deviceID,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// ReadSnapshotFile reads a snapshot written by WriteSnapshotFile or a bare
// {products, categories, tables, transactions} object. Missing collections
// stay nil so the import rejects them.
func ReadSnapshotFile(path string) (*File, error) {
	// #nosec G304 - path chosen by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: invalid snapshot file %s: %v", schema.ErrImportRejected, filepath.Base(path), err)
	}
	return &f, nil
}
