// Package progress shows a live terminal dashboard of batch-scheduler
// progress across the reduce, bin, and map stages, built on the same
// tview/tcell stack this codebase has always used for its interactive
// views.
package progress

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Stage identifies which pipeline stage a Dashboard is tracking.
type Stage string

const (
	StageReduce Stage = "reduce"
	StageBin    Stage = "bin"
	StageMap    Stage = "map"
)

// Dashboard renders a single-screen view of how many tasks a stage has
// completed, how many failed, and which task is currently in flight per
// worker. All state updates come from background scheduler goroutines, so
// every exported method is safe for concurrent use.
type Dashboard struct {
	app        *tview.Application
	statusView *tview.TextView
	workerView *tview.TextView
	stage      Stage

	mu        sync.Mutex
	total     int
	completed int
	failed    int
	inFlight  map[string]string // worker id -> task description
}

// New creates a Dashboard for the given stage and total task count. Total
// may be zero when the task count isn't known up front (it is rendered as
// "?" until SetTotal is called).
func New(stage Stage, total int) *Dashboard {
	d := &Dashboard{
		app:      tview.NewApplication(),
		stage:    stage,
		total:    total,
		inFlight: make(map[string]string),
	}

	d.statusView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false)
	d.statusView.SetBorder(true).
		SetTitle(fmt.Sprintf(" s3logreduce %s ", stage)).
		SetTitleAlign(tview.AlignCenter)

	d.workerView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	d.workerView.SetBorder(true).SetTitle(" active tasks ")

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(d.statusView, 3, 0, false).
		AddItem(d.workerView, 0, 1, false)

	d.app.SetRoot(layout, true)
	d.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Rune() {
		case 'q', 'Q':
			d.app.Stop()
			return nil
		}
		return event
	})

	return d
}

// SetTotal updates the denominator used when rendering completion
// percentage, for stages (like bin and map) that discover their task count
// only after an initial directory walk.
func (d *Dashboard) SetTotal(total int) {
	d.mu.Lock()
	d.total = total
	d.mu.Unlock()
	d.refresh()
}

// TaskStarted records that workerID has begun working on description.
func (d *Dashboard) TaskStarted(workerID, description string) {
	d.mu.Lock()
	d.inFlight[workerID] = description
	d.mu.Unlock()
	d.refresh()
}

// TaskFinished records that workerID's current task completed, successfully
// or not, and removes it from the active-task view.
func (d *Dashboard) TaskFinished(workerID string, err error) {
	d.mu.Lock()
	delete(d.inFlight, workerID)
	d.completed++
	if err != nil {
		d.failed++
	}
	d.mu.Unlock()
	d.refresh()
}

func (d *Dashboard) refresh() {
	if d.app == nil {
		return
	}
	d.mu.Lock()
	completed, failed, total := d.completed, d.failed, d.total
	workers := make([]string, 0, len(d.inFlight))
	for id, desc := range d.inFlight {
		workers = append(workers, fmt.Sprintf("[yellow]%s[white]  %s", id, desc))
	}
	d.mu.Unlock()
	sort.Strings(workers)

	status := fmt.Sprintf("completed [green]%d[white]  failed [red]%d[white]  total %s", completed, failed, totalLabel(total))
	body := ""
	for _, w := range workers {
		body += w + "\n"
	}
	if body == "" {
		body = "[gray]idle[white]"
	}

	d.app.QueueUpdateDraw(func() {
		d.statusView.SetText(status)
		d.workerView.SetText(body)
	})
}

func totalLabel(total int) string {
	if total <= 0 {
		return "?"
	}
	return fmt.Sprintf("%d", total)
}

// Run starts the terminal UI event loop and blocks until the user quits or
// Stop is called. Callers typically call Run on the main goroutine while the
// batch runs on a background goroutine that feeds progress through the
// scheduler and calls Stop when it finishes.
func (d *Dashboard) Run() error {
	return d.app.Run()
}

// Stop ends the Run event loop.
func (d *Dashboard) Stop() {
	d.app.Stop()
}

// Ticker periodically calls refresh so that elapsed-time-sensitive chrome
// (none today, but kept symmetrical with the worker view) stays current even
// when no task events arrive for a while. It is optional: callers that only
// care about event-driven updates can ignore it.
func (d *Dashboard) Ticker(interval time.Duration, stop <-chan struct{}) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			d.refresh()
		case <-stop:
			return
		}
	}
}
