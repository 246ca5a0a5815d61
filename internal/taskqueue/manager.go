package taskqueue

import (
	"sync"
	"time"
)

// Manager holds every task's current state in memory: a single tasks
// map is the source of truth, with a pending queue and in-flight/
// completed/dead indexes kept alongside for O(1) lookups by status.
type Manager struct {
	mu        sync.RWMutex
	tasks     map[ID]*Task
	queue     []ID
	inFlight  map[ID]*Task
	completed map[ID]*Task
	dead      map[ID]*Task
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{
		tasks:     make(map[ID]*Task),
		inFlight:  make(map[ID]*Task),
		completed: make(map[ID]*Task),
		dead:      make(map[ID]*Task),
	}
}

// Enqueue adds a new pending task. It fails with ErrDuplicateTask if
// the ID is already known.
func (m *Manager) Enqueue(task Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tasks[task.ID]; exists {
		return ErrDuplicateTask
	}

	now := nowMillis()
	task.Status = StatusPending
	task.CreatedAt = now
	task.UpdatedAt = now

	m.tasks[task.ID] = &task
	m.queue = append(m.queue, task.ID)
	return nil
}

// PopPending removes and returns the oldest pending task, or nil if
// the queue is empty. The task's status is left untouched — callers
// must call MarkInFlight to commit the transition.
func (m *Manager) PopPending() *Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.queue) == 0 {
		return nil
	}
	id := m.queue[0]
	m.queue = m.queue[1:]
	return m.tasks[id]
}

// MarkInFlight transitions a pending task to in-flight with the given
// deadline.
func (m *Manager) MarkInFlight(id ID, deadline time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, exists := m.tasks[id]
	if !exists {
		return ErrTaskNotFound
	}
	if task.Status != StatusPending {
		return ErrNotInFlight
	}

	deadlineMs := deadline.UnixMilli()
	task.Status = StatusInFlight
	task.Deadline = &deadlineMs
	task.UpdatedAt = nowMillis()
	m.inFlight[id] = task
	return nil
}

// MarkCompleted transitions an in-flight task to completed.
func (m *Manager) MarkCompleted(id ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, exists := m.tasks[id]
	if !exists {
		return ErrTaskNotFound
	}
	if task.Status != StatusInFlight {
		return ErrNotInFlight
	}

	task.Status = StatusCompleted
	task.Deadline = nil
	task.UpdatedAt = nowMillis()
	delete(m.inFlight, id)
	m.completed[id] = task
	return nil
}

// Requeue transitions an in-flight task back to pending, incrementing
// its attempt count.
func (m *Manager) Requeue(id ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, exists := m.tasks[id]
	if !exists {
		return ErrTaskNotFound
	}
	if task.Status != StatusInFlight {
		return ErrNotInFlight
	}

	task.Attempt++
	task.Status = StatusPending
	task.Deadline = nil
	task.UpdatedAt = nowMillis()
	delete(m.inFlight, id)
	m.queue = append(m.queue, id)
	return nil
}

// MarkDead moves a task into the dead-letter index, regardless of its
// current status.
func (m *Manager) MarkDead(id ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, exists := m.tasks[id]
	if !exists {
		return ErrTaskNotFound
	}

	if task.Status == StatusPending {
		for i, queued := range m.queue {
			if queued == id {
				m.queue = append(m.queue[:i], m.queue[i+1:]...)
				break
			}
		}
	}

	task.Status = StatusDead
	task.Deadline = nil
	task.UpdatedAt = nowMillis()
	delete(m.inFlight, id)
	delete(m.completed, id)
	m.dead[id] = task
	return nil
}

// ExpiredTasks returns the IDs of in-flight tasks whose deadline is
// at or before now.
func (m *Manager) ExpiredTasks(now time.Time) []ID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	nowMs := now.UnixMilli()
	var expired []ID
	for id, task := range m.inFlight {
		if task.Deadline != nil && *task.Deadline <= nowMs {
			expired = append(expired, id)
		}
	}
	return expired
}

// GetTask returns the task with id, or nil if unknown.
func (m *Manager) GetTask(id ID) *Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tasks[id]
}

// Stats returns the count of tasks in each status.
func (m *Manager) Stats() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]int{
		"pending":   len(m.queue),
		"in_flight": len(m.inFlight),
		"completed": len(m.completed),
		"dead":      len(m.dead),
	}
}

// Snapshot serializes the full task map for persistence.
func (m *Manager) Snapshot(lastSeq uint64) SnapshotData {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tasks := make(map[ID]*Task, len(m.tasks))
	for id, task := range m.tasks {
		clone := *task
		tasks[id] = &clone
	}
	return SnapshotData{Tasks: tasks, SchemaVer: currentSchemaVersion, LastSeq: lastSeq}
}

// Restore replaces the manager's state with data, rebuilding the
// pending queue and status indexes from each task's Status field.
func (m *Manager) Restore(data SnapshotData) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tasks = make(map[ID]*Task, len(data.Tasks))
	m.queue = m.queue[:0]
	m.inFlight = make(map[ID]*Task)
	m.completed = make(map[ID]*Task)
	m.dead = make(map[ID]*Task)

	for id, task := range data.Tasks {
		m.tasks[id] = task
		switch task.Status {
		case StatusPending:
			m.queue = append(m.queue, id)
		case StatusInFlight:
			m.inFlight[id] = task
		case StatusCompleted:
			m.completed[id] = task
		case StatusDead:
			m.dead[id] = task
		}
	}
}
