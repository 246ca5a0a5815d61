package taskqueue

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nanoserve/nanoserve/internal/pool"
)

// Config configures a Controller's durability and scheduling
// behavior.
type Config struct {
	WorkerCount      int
	TaskTimeout      time.Duration
	SnapshotInterval time.Duration
	MaxRetry         int
	WALPath          string
	SnapshotPath     string
	WALBufferSize    int
	WALFlushInterval time.Duration
}

// Recorder receives task lifecycle events, letting internal/metrics
// observe the queue without the queue importing internal/metrics.
type Recorder interface {
	RecordEnqueue()
	RecordCompleted(latencySeconds float64)
	RecordDead()
	UpdateQueueStats(pending, inFlight int)
}

type noopRecorder struct{}

func (noopRecorder) RecordEnqueue()                          {}
func (noopRecorder) RecordCompleted(latencySeconds float64)  {}
func (noopRecorder) RecordDead()                             {}
func (noopRecorder) UpdateQueueStats(pending, inFlight int)  {}

// Controller owns a Manager, WAL, and SnapshotManager, and runs the
// background loops that move tasks through their lifecycle: dispatch
// (pending -> in flight, handed to the worker pool), timeout
// (in-flight tasks past their deadline, requeued or killed), and
// periodic snapshot.
type Controller struct {
	mu       sync.Mutex
	manager  *Manager
	wal      *WAL
	snapshot *SnapshotManager
	pool     *pool.Pool[*Controller, *Task]
	config   Config
	recorder Recorder
	run      func(*Task) error

	stopCh  chan struct{}
	stopped bool
	loopWg  sync.WaitGroup
}

// NewController loads the latest snapshot and replays the WAL tail on
// top of it, then returns a Controller ready to Start. run executes a
// single task; its error determines whether the task is retried,
// completed, or moved to the dead letter set.
func NewController(config Config, recorder Recorder, run func(*Task) error) (*Controller, error) {
	if recorder == nil {
		recorder = noopRecorder{}
	}

	wal, err := OpenWAL(config.WALPath, config.WALBufferSize, config.WALFlushInterval)
	if err != nil {
		return nil, fmt.Errorf("taskqueue: open wal: %w", err)
	}

	snap := NewSnapshotManager(config.SnapshotPath)
	data, err := snap.Load()
	if err != nil {
		wal.Close()
		return nil, fmt.Errorf("taskqueue: load snapshot: %w", err)
	}

	manager := NewManager()
	manager.Restore(data)

	if err := replayEvents(manager, config.WALPath, data.LastSeq); err != nil {
		wal.Close()
		return nil, fmt.Errorf("taskqueue: replay wal: %w", err)
	}

	c := &Controller{
		manager:  manager,
		wal:      wal,
		snapshot: snap,
		config:   config,
		recorder: recorder,
		run:      run,
		stopCh:   make(chan struct{}),
	}
	return c, nil
}

func replayEvents(manager *Manager, walPath string, afterSeq uint64) error {
	return Replay(walPath, afterSeq, func(event Event) error {
		switch event.Type {
		case EventEnqueue:
			if manager.GetTask(event.TaskID) == nil {
				manager.Enqueue(Task{ID: event.TaskID})
			}
		case EventDispatch:
			manager.MarkInFlight(event.TaskID, time.UnixMilli(event.Timestamp).Add(time.Hour))
		case EventAck:
			manager.MarkCompleted(event.TaskID)
		case EventRetry:
			manager.Requeue(event.TaskID)
		case EventDead:
			manager.MarkDead(event.TaskID)
		}
		return nil
	})
}

// Start launches the worker pool and the dispatch, timeout, and
// snapshot loops.
func (c *Controller) Start() {
	c.pool = pool.New(c.config.WorkerCount, c, runController)

	c.loopWg.Add(3)
	go c.dispatchLoop()
	go c.timeoutLoop()
	go c.snapshotLoop()
}

// Enqueue appends an ENQUEUE event to the WAL, then adds the task to
// the in-memory manager. The WAL write happens first so a crash
// between the two leaves a durable record to replay.
func (c *Controller) Enqueue(task Task) error {
	if _, err := c.wal.Append(EventEnqueue, task.ID); err != nil {
		return err
	}
	if err := c.manager.Enqueue(task); err != nil {
		return err
	}
	c.recorder.RecordEnqueue()
	stats := c.manager.Stats()
	c.recorder.UpdateQueueStats(stats["pending"], stats["in_flight"])
	return nil
}

// GetTask returns the current state of the task with id, or nil.
func (c *Controller) GetTask(id ID) *Task {
	return c.manager.GetTask(id)
}

// Stats returns the current per-status task counts.
func (c *Controller) Stats() map[string]int {
	return c.manager.Stats()
}

func runController(c *Controller, task *Task) {
	err := c.run(task)
	c.handleResult(task.ID, task.CreatedAt, err)
}

func (c *Controller) handleResult(id ID, createdAt int64, runErr error) {
	if runErr == nil {
		c.wal.Append(EventAck, id)
		if err := c.manager.MarkCompleted(id); err == nil {
			latency := float64(nowMillis()-createdAt) / 1000.0
			c.recorder.RecordCompleted(latency)
		}
		c.reportStats()
		return
	}

	task := c.manager.GetTask(id)
	if task != nil && task.Attempt < c.config.MaxRetry {
		c.wal.Append(EventRetry, id)
		c.manager.Requeue(id)
	} else {
		c.wal.Append(EventDead, id)
		c.manager.MarkDead(id)
		c.recorder.RecordDead()
	}
	c.reportStats()
}

func (c *Controller) reportStats() {
	stats := c.manager.Stats()
	c.recorder.UpdateQueueStats(stats["pending"], stats["in_flight"])
}

const dispatchPollInterval = 10 * time.Millisecond

func (c *Controller) dispatchLoop() {
	defer c.loopWg.Done()

	ticker := time.NewTicker(dispatchPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			for {
				task := c.manager.PopPending()
				if task == nil {
					break
				}
				deadline := time.Now().Add(c.config.TaskTimeout)
				if err := c.manager.MarkInFlight(task.ID, deadline); err != nil {
					continue
				}
				c.wal.Append(EventDispatch, task.ID)
				c.pool.Submit(task)
			}
		}
	}
}

const timeoutPollInterval = 500 * time.Millisecond

func (c *Controller) timeoutLoop() {
	defer c.loopWg.Done()

	ticker := time.NewTicker(timeoutPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			for _, id := range c.manager.ExpiredTasks(time.Now()) {
				c.wal.Append(EventTimeout, id)
				c.handleResult(id, 0, fmt.Errorf("taskqueue: task %s timed out", id))
			}
		}
	}
}

func (c *Controller) snapshotLoop() {
	defer c.loopWg.Done()

	if c.config.SnapshotInterval <= 0 {
		return
	}

	ticker := time.NewTicker(c.config.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			if err := c.takeSnapshot(); err != nil {
				slog.Default().Error("taskqueue: snapshot failed", "error", err)
			}
		}
	}
}

func (c *Controller) takeSnapshot() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data := c.manager.Snapshot(c.wal.Seq())
	if err := c.snapshot.Write(data); err != nil {
		return err
	}
	return c.wal.Rotate()
}

// Stop signals every loop to exit, joins the worker pool, and takes a
// final snapshot so the next startup has as little WAL to replay as
// possible.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.mu.Unlock()

	close(c.stopCh)
	c.loopWg.Wait()
	c.pool.Join()

	if err := c.takeSnapshot(); err != nil {
		slog.Default().Error("taskqueue: final snapshot failed", "error", err)
	}
	c.wal.Close()
}
