package scheduler

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestPoolRunsAllTasks(t *testing.T) {
	p := New(4)
	var count int64
	for i := 0; i < 50; i++ {
		p.Submit("task", func() error {
			atomic.AddInt64(&count, 1)
			return nil
		})
	}
	if errs := p.Wait(); len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
	if count != 50 {
		t.Fatalf("got %d completions, want 50", count)
	}
}

func TestPoolCollectsErrorsWithoutAbortingOthers(t *testing.T) {
	p := New(2)
	var succeeded int64
	for i := 0; i < 10; i++ {
		i := i
		p.Submit("task", func() error {
			if i%2 == 0 {
				return errors.New("boom")
			}
			atomic.AddInt64(&succeeded, 1)
			return nil
		})
	}
	errs := p.Wait()
	if len(errs) != 5 {
		t.Fatalf("got %d errors, want 5: %v", len(errs), errs)
	}
	if succeeded != 5 {
		t.Fatalf("got %d successes, want 5", succeeded)
	}
}

func TestPoolRecoversPanics(t *testing.T) {
	p := New(1)
	p.Submit("panicker", func() error {
		panic("unexpected")
	})
	errs := p.Wait()
	if len(errs) != 1 {
		t.Fatalf("expected one recorded panic, got %v", errs)
	}
}

func TestNewClampsToOneWorker(t *testing.T) {
	p := New(0)
	if p.pool == nil {
		t.Fatal("expected an initialized pool")
	}
	if cap(p.slots) != 1 {
		t.Fatalf("got %d worker slots, want 1", cap(p.slots))
	}
}

type recordingObserver struct {
	mu       sync.Mutex
	started  int
	finished int
	failed   int
}

func (o *recordingObserver) TaskStarted(workerID, description string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started++
}

func (o *recordingObserver) TaskFinished(workerID string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished++
	if err != nil {
		o.failed++
	}
}

type idCollectingObserver struct {
	mu  sync.Mutex
	ids map[string]bool
}

func (o *idCollectingObserver) TaskStarted(workerID, description string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ids == nil {
		o.ids = make(map[string]bool)
	}
	o.ids[workerID] = true
}

func (o *idCollectingObserver) TaskFinished(workerID string, err error) {}

func TestPoolWorkerIDsAreBoundedByWorkerCount(t *testing.T) {
	p := New(3)
	obs := &idCollectingObserver{}
	p.Observe(obs)

	for i := 0; i < 30; i++ {
		p.Submit("task", func() error { return nil })
	}
	p.Wait()

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.ids) > 3 {
		t.Errorf("got %d distinct worker IDs for a 3-worker pool, want at most 3: %v", len(obs.ids), obs.ids)
	}
}

func TestPoolNotifiesObserverOfLifecycle(t *testing.T) {
	p := New(2)
	obs := &recordingObserver{}
	p.Observe(obs)

	p.Submit("ok", func() error { return nil })
	p.Submit("fail", func() error { return errors.New("boom") })
	p.Wait()

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if obs.started != 2 {
		t.Errorf("got started=%d, want 2", obs.started)
	}
	if obs.finished != 2 {
		t.Errorf("got finished=%d, want 2", obs.finished)
	}
	if obs.failed != 1 {
		t.Errorf("got failed=%d, want 1", obs.failed)
	}
}
