// Package scheduler bounds the concurrency of a batch reduction with a
// worker pool, isolating one task's panic or error from the rest of the
// batch the way the upstream implementation's OS-process isolation did —
// except here goroutines share Go's memory model, so the isolation is
// enforced explicitly rather than inherited from the OS.
package scheduler

import (
	"fmt"
	"sync"

	"github.com/alitto/pond"
)

// Observer receives task lifecycle events from a Pool, typically to drive a
// live progress display. Implementations must be safe for concurrent use,
// since every worker goroutine calls them independently.
type Observer interface {
	TaskStarted(workerID, description string)
	TaskFinished(workerID string, err error)
}

// Pool runs tasks across a bounded set of goroutines and collects every
// error (or recovered panic) a task produces instead of letting it escape.
type Pool struct {
	pool     *pond.WorkerPool
	observer Observer

	// slots holds one token per worker index in [0, numWorkers); a task
	// claims a token for the duration of its run and returns it when done,
	// so the worker ID reported to an Observer is always a bounded index
	// into the pool's real concurrent slots rather than an ever-growing
	// per-task counter.
	slots chan int

	mu     sync.Mutex
	errors []error
}

// New returns a Pool with numWorkers persistent goroutines. A numWorkers of
// zero or less falls back to one.
func New(numWorkers int) *Pool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	slots := make(chan int, numWorkers)
	for i := 0; i < numWorkers; i++ {
		slots <- i
	}
	return &Pool{pool: pond.New(numWorkers, 0, pond.MinWorkers(numWorkers)), slots: slots}
}

// Observe attaches an Observer that is notified as tasks start and finish.
// It replaces any previously attached Observer.
func (p *Pool) Observe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observer = observer
}

// Submit schedules task to run on the pool. If task returns an error or
// panics, the failure is recorded and surfaced through Wait rather than
// propagated to the caller of Submit, so that one bad task never aborts the
// rest of the batch. The Observer is notified of a task's start only once it
// has actually claimed a worker slot and begun running, never while it is
// still queued behind other tasks.
func (p *Pool) Submit(taskID string, task func() error) {
	p.pool.Submit(func() {
		slot := <-p.slots
		workerID := fmt.Sprintf("w%d", slot)

		p.notifyStarted(workerID, taskID)

		var taskErr error
		func() {
			defer func() {
				if r := recover(); r != nil {
					taskErr = fmt.Errorf("scheduler: task %q panicked: %v", taskID, r)
					p.recordError(taskErr)
				}
			}()
			if err := task(); err != nil {
				taskErr = fmt.Errorf("scheduler: task %q: %w", taskID, err)
				p.recordError(taskErr)
			}
		}()

		p.notifyFinished(workerID, taskErr)
		p.slots <- slot
	})
}

func (p *Pool) notifyStarted(workerID, description string) {
	p.mu.Lock()
	observer := p.observer
	p.mu.Unlock()
	if observer != nil {
		observer.TaskStarted(workerID, description)
	}
}

func (p *Pool) notifyFinished(workerID string, err error) {
	p.mu.Lock()
	observer := p.observer
	p.mu.Unlock()
	if observer != nil {
		observer.TaskFinished(workerID, err)
	}
}

func (p *Pool) recordError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errors = append(p.errors, err)
}

// Wait blocks until every submitted task has completed and returns every
// error collected along the way, in completion order. A nil or empty result
// means every task succeeded.
func (p *Pool) Wait() []error {
	p.pool.StopAndWait()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.errors
}
