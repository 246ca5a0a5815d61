package taskqueue

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotManagerLoadMissingFileReturnsEmpty(t *testing.T) {
	m := NewSnapshotManager(filepath.Join(t.TempDir(), "snap.json"))

	data, err := m.Load()
	require.NoError(t, err)
	assert.Empty(t, data.Tasks)
	assert.Equal(t, currentSchemaVersion, data.SchemaVer)
}

func TestSnapshotManagerWriteLoadRoundTrip(t *testing.T) {
	m := NewSnapshotManager(filepath.Join(t.TempDir(), "snap.json"))

	data := SnapshotData{
		Tasks:   map[ID]*Task{"t1": {ID: "t1", Status: StatusPending}},
		LastSeq: 7,
	}
	require.NoError(t, m.Write(data))
	assert.True(t, m.Exists())

	loaded, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, uint64(7), loaded.LastSeq)
	require.Contains(t, loaded.Tasks, ID("t1"))
	assert.Equal(t, StatusPending, loaded.Tasks["t1"].Status)
}

func TestSnapshotManagerRejectsIncompatibleVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.json")
	m := NewSnapshotManager(path)
	require.NoError(t, m.Write(SnapshotData{Tasks: map[ID]*Task{}}))

	// Corrupt the version field directly to simulate a future/older writer.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	corrupted := strings.Replace(string(raw), `"schema_ver": 1`, `"schema_ver": 99`, 1)
	require.NoError(t, os.WriteFile(path, []byte(corrupted), 0o644))

	_, err = m.Load()
	assert.ErrorIs(t, err, ErrIncompatibleVersion)
}
