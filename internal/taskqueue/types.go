// Package taskqueue implements a durable, in-process background task
// queue: tasks are accepted over HTTP, appended to a write-ahead log
// before being held in memory, worked off by internal/pool, and
// periodically snapshotted so a restart replays only the WAL tail
// instead of every task since boot.
package taskqueue

import "time"

// ID uniquely identifies a task.
type ID string

// Status is a task's position in its lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusInFlight  Status = "in_flight"
	StatusCompleted Status = "completed"
	StatusDead      Status = "dead"
)

// Task is a unit of work accepted through POST /tasks.
type Task struct {
	ID      ID                     `json:"id"`
	Payload map[string]interface{} `json:"payload"`

	Status  Status `json:"status"`
	Attempt int    `json:"attempt"`

	Timeout   time.Duration `json:"timeout"`
	Deadline  *int64        `json:"deadline_ms,omitempty"`
	CreatedAt int64         `json:"created_at"`
	UpdatedAt int64         `json:"updated_at"`
}

// SnapshotData is the full state persisted by the snapshot manager and
// replayed on top of the WAL tail during recovery.
type SnapshotData struct {
	Tasks     map[ID]*Task `json:"tasks"`
	SchemaVer int          `json:"schema_ver"`
	LastSeq   uint64       `json:"last_seq"`
}

const currentSchemaVersion = 1

func nowMillis() int64 { return time.Now().UnixMilli() }
