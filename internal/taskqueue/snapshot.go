package taskqueue

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

var (
	// ErrCorruptedSnapshot means the snapshot file failed to decode.
	ErrCorruptedSnapshot = errors.New("taskqueue: snapshot is corrupted")
	// ErrIncompatibleVersion means the snapshot's schema version does
	// not match what this build knows how to read.
	ErrIncompatibleVersion = errors.New("taskqueue: snapshot schema version incompatible")
)

// SnapshotManager persists and loads SnapshotData atomically: a write
// lands in a temp file first, then os.Rename swaps it into place, so
// a crash mid-write never leaves a half-written snapshot at path.
type SnapshotManager struct {
	path string
}

// NewSnapshotManager returns a manager for the snapshot file at path.
func NewSnapshotManager(path string) *SnapshotManager {
	return &SnapshotManager{path: path}
}

// Write atomically replaces the snapshot file with data.
func (m *SnapshotManager) Write(data SnapshotData) error {
	data.SchemaVer = currentSchemaVersion

	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("taskqueue: marshal snapshot: %w", err)
	}

	tmpPath := m.path + ".tmp"
	if err := os.WriteFile(tmpPath, encoded, 0o644); err != nil {
		return fmt.Errorf("taskqueue: write temp snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, m.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("taskqueue: rename snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot file, returning an empty SnapshotData (not
// an error) when no snapshot has ever been written.
func (m *SnapshotManager) Load() (SnapshotData, error) {
	encoded, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return SnapshotData{Tasks: make(map[ID]*Task), SchemaVer: currentSchemaVersion}, nil
	}
	if err != nil {
		return SnapshotData{}, fmt.Errorf("taskqueue: read snapshot: %w", err)
	}

	var data SnapshotData
	if err := json.Unmarshal(encoded, &data); err != nil {
		return SnapshotData{}, fmt.Errorf("%w: %v", ErrCorruptedSnapshot, err)
	}
	if data.SchemaVer != currentSchemaVersion {
		return SnapshotData{}, fmt.Errorf("%w: got %d, want %d", ErrIncompatibleVersion, data.SchemaVer, currentSchemaVersion)
	}
	if data.Tasks == nil {
		data.Tasks = make(map[ID]*Task)
	}
	return data, nil
}

// Exists reports whether a snapshot file is present at path.
func (m *SnapshotManager) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}
