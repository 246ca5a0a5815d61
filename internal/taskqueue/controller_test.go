package taskqueue

import (
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController(t *testing.T, run func(*Task) error) *Controller {
	t.Helper()
	dir := t.TempDir()
	cfg := Config{
		WorkerCount:      2,
		TaskTimeout:      time.Second,
		SnapshotInterval: 0,
		MaxRetry:         2,
		WALPath:          filepath.Join(dir, "wal.log"),
		SnapshotPath:     filepath.Join(dir, "snap.json"),
		WALBufferSize:    1,
		WALFlushInterval: time.Millisecond,
	}
	c, err := NewController(cfg, nil, run)
	require.NoError(t, err)
	return c
}

func TestControllerEnqueueAndDispatch(t *testing.T) {
	var completed int32
	c := newTestController(t, func(task *Task) error {
		atomic.AddInt32(&completed, 1)
		return nil
	})
	c.Start()
	defer c.Stop()

	require.NoError(t, c.Enqueue(Task{ID: "t1"}))

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&completed) == 1
	}, time.Second, 5*time.Millisecond)

	task := c.GetTask("t1")
	require.NotNil(t, task)
	assert.Equal(t, StatusCompleted, task.Status)
}

func TestControllerRetriesFailedTasksThenKillsThem(t *testing.T) {
	c := newTestController(t, func(task *Task) error {
		return fmt.Errorf("always fails")
	})
	c.Start()
	defer c.Stop()

	require.NoError(t, c.Enqueue(Task{ID: "t1"}))

	require.Eventually(t, func() bool {
		task := c.GetTask("t1")
		return task != nil && task.Status == StatusDead
	}, 2*time.Second, 5*time.Millisecond)
}

func TestControllerRecoversFromWALAfterRestart(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		WorkerCount:      1,
		TaskTimeout:      time.Second,
		MaxRetry:         2,
		WALPath:          filepath.Join(dir, "wal.log"),
		SnapshotPath:     filepath.Join(dir, "snap.json"),
		WALBufferSize:    1,
		WALFlushInterval: time.Millisecond,
	}

	block := make(chan struct{})
	c1, err := NewController(cfg, nil, func(task *Task) error {
		<-block
		return nil
	})
	require.NoError(t, err)
	c1.Start()
	require.NoError(t, c1.Enqueue(Task{ID: "t1"}))

	require.Eventually(t, func() bool {
		task := c1.GetTask("t1")
		return task != nil && task.Status == StatusInFlight
	}, time.Second, 5*time.Millisecond)

	close(block)
	c1.Stop()

	c2, err := NewController(cfg, nil, func(task *Task) error { return nil })
	require.NoError(t, err)
	task := c2.GetTask("t1")
	require.NotNil(t, task)
}
