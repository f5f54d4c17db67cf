// Package schedule runs periodic tasks at a fixed rate on a bounded pool of workers.
package schedule

import (
	"errors"
	"log"
	"runtime/debug"
	"sync"
	"time"
)

// ErrRejected is returned when a task cannot be scheduled, because the pool is full or shut down.
var ErrRejected = errors.New("task rejected")

// Scheduler executes tasks periodically.
type Scheduler interface {
	ScheduleAtFixedRate(period time.Duration, task func()) (Task, error)
}

// Task is a handle to a scheduled task.
type Task interface {
	// Cancel the task. Cancel does not wait for a running execution to finish.
	Cancel()
	// Done is closed when the task will not be executed anymore.
	Done() <-chan struct{}
}

// SchedulerFunc adapts a function to the Scheduler interface.
type SchedulerFunc func(period time.Duration, task func()) (Task, error)

func (f SchedulerFunc) ScheduleAtFixedRate(period time.Duration, task func()) (Task, error) {
	return f(period, task)
}

// Pool runs every scheduled task in its own goroutine, driven by a ticker. The number of
// concurrently scheduled tasks is bounded by the capacity of the pool.
type Pool struct {
	capacity int

	lock     sync.Mutex
	tasks    map[*periodicTask]struct{}
	shutdown bool
}

// NewPool returns a new pool for at most capacity tasks.
func NewPool(capacity int) *Pool {
	return &Pool{
		capacity: capacity,
		tasks:    make(map[*periodicTask]struct{}),
	}
}

// ScheduleAtFixedRate executes the given task immediately and then once per period until
// the task is canceled. If an execution takes longer than the period, the next execution
// starts late, executions never overlap. A panic in the task is logged and the task keeps running.
func (p *Pool) ScheduleAtFixedRate(period time.Duration, task func()) (Task, error) {
	if period <= 0 {
		return nil, errors.New("period must be positive")
	}

	p.lock.Lock()
	defer p.lock.Unlock()
	if p.shutdown {
		return nil, ErrRejected
	}
	if len(p.tasks) >= p.capacity {
		return nil, ErrRejected
	}

	result := &periodicTask{
		period: period,
		task:   task,
		cancel: make(chan struct{}),
		done:   make(chan struct{}),
	}
	p.tasks[result] = struct{}{}
	go func() {
		result.run()
		p.remove(result)
	}()

	return result, nil
}

func (p *Pool) remove(task *periodicTask) {
	p.lock.Lock()
	defer p.lock.Unlock()
	delete(p.tasks, task)
}

// Len returns the number of currently scheduled tasks.
func (p *Pool) Len() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return len(p.tasks)
}

func (p *Pool) Capacity() int {
	return p.capacity
}

// Shutdown cancels all tasks and rejects every further task. It waits until all running
// executions are finished.
func (p *Pool) Shutdown() {
	p.lock.Lock()
	p.shutdown = true
	tasks := make([]*periodicTask, 0, len(p.tasks))
	for task := range p.tasks {
		tasks = append(tasks, task)
	}
	p.lock.Unlock()

	for _, task := range tasks {
		task.Cancel()
	}
	for _, task := range tasks {
		<-task.Done()
	}
}

type periodicTask struct {
	period time.Duration
	task   func()

	cancelOnce sync.Once
	cancel     chan struct{}
	done       chan struct{}
}

func (t *periodicTask) Cancel() {
	t.cancelOnce.Do(func() {
		close(t.cancel)
	})
}

func (t *periodicTask) Done() <-chan struct{} {
	return t.done
}

func (t *periodicTask) run() {
	defer close(t.done)

	ticker := time.NewTicker(t.period)
	defer ticker.Stop()

	for {
		select {
		case <-t.cancel:
			return
		default:
		}
		t.execute()

		select {
		case <-t.cancel:
			return
		case <-ticker.C:
		}
	}
}

func (t *periodicTask) execute() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("scheduled task panicked: %v\n%s", r, debug.Stack())
		}
	}()
	t.task()
}
