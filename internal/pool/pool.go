// Package pool implements a fixed-size worker pool that isolates task
// panics from each other and from the submitter.
//
// A Pool[S] fans a single work channel out across worker_count
// goroutines, each holding the same shared, read-only state value S.
// Tasks are claimed by whichever worker is free; there is no affinity
// and no ordering guarantee across workers. A task that panics is
// caught inside the worker; the worker keeps serving subsequent
// tasks, and the panic is reduced to an Outcome reported from Join.
package pool

import "fmt"

// Outcome summarizes whether a worker ever caught a panicking task
// during its lifetime.
type Outcome int

const (
	// Ok means every task the worker ran returned normally.
	Ok Outcome = iota
	// Panic means at least one task the worker ran panicked.
	Panic
)

func (o Outcome) String() string {
	if o == Panic {
		return "panic"
	}
	return "ok"
}

// ErrCouldNotJoin is part of the pool's error taxonomy (mirrored by
// httpserver's ThreadPoolError), carried for callers that wrap Join's
// result. Goroutines, unlike OS threads, cannot fail to be joined
// once their channel send has completed, so Join never actually
// constructs one — but the type exists so the taxonomy has a concrete
// value to name, matching the source system's ThreadPoolError(CouldNotJoin).
type ErrCouldNotJoin struct {
	Worker int
	Reason string
}

func (e *ErrCouldNotJoin) Error() string {
	return fmt.Sprintf("pool: could not join worker %d: %s", e.Worker, e.Reason)
}

// message is the union of what can travel down the work channel.
type message[Task any] struct {
	task     Task
	isResign bool
}

// workChannelCapacity sizes the buffered work channel. The source
// system carries work on an unbounded MPMC channel (crossbeam's
// channel::unbounded); Go channels need a fixed capacity, so this
// picks a generous buffer instead of spawning a goroutine per Submit
// (which would reorder submissions relative to each other).
const workChannelCapacity = 4096

// Pool distributes tasks of type Task across a fixed set of workers,
// each given read-only access to a shared state value of type S.
type Pool[S any, Task any] struct {
	workerCount int
	shared      S
	run         func(S, Task)
	work        chan message[Task]
	done        []chan Outcome
}

// New constructs a pool of workerCount goroutines sharing state, and
// starts them immediately. run is invoked once per submitted task; it
// must treat shared as read-only, or synchronize internally if it
// needs to mutate something reachable through it.
func New[S any, Task any](workerCount int, shared S, run func(S, Task)) *Pool[S, Task] {
	p := &Pool[S, Task]{
		workerCount: workerCount,
		shared:      shared,
		run:         run,
		work:        make(chan message[Task], workChannelCapacity),
		done:        make([]chan Outcome, workerCount),
	}

	for i := 0; i < workerCount; i++ {
		p.done[i] = make(chan Outcome, 1)
		go p.runWorker(i)
	}

	return p
}

// Submit enqueues task for asynchronous execution by whichever worker
// receives it next. It returns as soon as the task is in the work
// channel's buffer, and blocks only while that buffer already holds
// workChannelCapacity messages.
func (p *Pool[S, Task]) Submit(task Task) {
	p.work <- message[Task]{task: task}
}

// Join sends exactly workerCount resign signals, waits for every
// worker to exit, and returns each worker's outcome in worker creation
// order — the order New spawned them in, not the order they happen to
// finish in. Each worker reports into its own per-index channel, so
// Join can block on worker 0 first regardless of which one actually
// exits first, mirroring the original's Vec<Worker> join-in-order.
// Tasks enqueued before Join is called are still processed; tasks
// submitted concurrently with or after Join begins have unspecified
// fate, per the pool's resign-ordering rule.
func (p *Pool[S, Task]) Join() ([]Outcome, error) {
	for i := 0; i < p.workerCount; i++ {
		p.work <- message[Task]{isResign: true}
	}

	outcomes := make([]Outcome, p.workerCount)
	for i := 0; i < p.workerCount; i++ {
		outcomes[i] = <-p.done[i]
	}

	return outcomes, nil
}

func (p *Pool[S, Task]) runWorker(index int) {
	panicked := false

	for msg := range p.work {
		if msg.isResign {
			break
		}
		if runTaskCatchingPanic(p.shared, msg.task, p.run) {
			panicked = true
		}
	}

	if panicked {
		p.done[index] <- Panic
	} else {
		p.done[index] <- Ok
	}
}

// runTaskCatchingPanic executes run(shared, task) inside a recover
// boundary, reporting whether a panic occurred. It never lets a panic
// propagate out of the worker goroutine.
func runTaskCatchingPanic[S any, Task any](shared S, task Task, run func(S, Task)) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
		}
	}()
	run(shared, task)
	return false
}
