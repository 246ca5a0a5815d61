package taskqueue

import "errors"

var (
	// ErrDuplicateTask is returned by Enqueue for an ID already known
	// to the manager.
	ErrDuplicateTask = errors.New("taskqueue: task already exists")
	// ErrNotInFlight is returned by MarkCompleted and Requeue when the
	// task is not in flight, and by MarkInFlight when the task is not
	// pending.
	ErrNotInFlight = errors.New("taskqueue: task not in flight")
	// ErrTaskNotFound is returned by lookups for an unknown ID.
	ErrTaskNotFound = errors.New("taskqueue: task not found")

	// ErrCorruptedWAL means a WAL line failed to decode as JSON.
	ErrCorruptedWAL = errors.New("taskqueue: wal file is corrupted")
	// ErrChecksumMismatch means a decoded event's checksum didn't match
	// its recomputed value.
	ErrChecksumMismatch = errors.New("taskqueue: wal checksum mismatch")
	// ErrEmptyWAL means the WAL file had no events to read.
	ErrEmptyWAL = errors.New("taskqueue: wal file is empty")
	// ErrWALClosed means an operation was attempted after Close.
	ErrWALClosed = errors.New("taskqueue: wal already closed")
)
