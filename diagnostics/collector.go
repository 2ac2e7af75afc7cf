// Package diagnostics collects non-fatal, per-line and per-task errors into
// append-only files rather than failing a batch over one bad line.
//
// Every message lands in <base>/errors/v<version>_<yymmdd>_<category>_errors[_<taskID>].txt,
// appended with a trailing blank line for readability. A Collector is safe
// for concurrent use from the worker pool that drives a batch reduction.
package diagnostics

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Collector appends categorized diagnostic messages under baseDir/errors.
// The zero value is not usable; construct one with New.
type Collector struct {
	baseDir string
	version string
	now     func() time.Time

	mu    sync.Mutex
	files map[string]*os.File
}

// New returns a Collector rooted at baseDir. version is embedded in every
// diagnostic file name, matching this module's release version.
func New(baseDir, version string) (*Collector, error) {
	errorsDir := filepath.Join(baseDir, "errors")
	if err := os.MkdirAll(errorsDir, 0o755); err != nil {
		return nil, fmt.Errorf("diagnostics: creating %q: %w", errorsDir, err)
	}
	return &Collector{
		baseDir: baseDir,
		version: version,
		now:     time.Now,
		files:   make(map[string]*os.File),
	}, nil
}

// Report appends message to the file for category and taskID (taskID may be
// empty, in which case it is omitted from the file name). A Collector-level
// I/O failure is reported to stderr rather than propagated, since a
// diagnostic sink must never itself abort a reduction.
func (c *Collector) Report(category, taskID, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	path := c.pathFor(category, taskID)
	f, ok := c.files[path]
	if !ok {
		var err error
		f, err = os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "diagnostics: opening %q: %v\n", path, err)
			return
		}
		c.files[path] = f
	}

	if _, err := f.WriteString(message + "\n\n"); err != nil {
		fmt.Fprintf(os.Stderr, "diagnostics: writing %q: %v\n", path, err)
	}
}

func (c *Collector) pathFor(category, taskID string) string {
	date := c.now().Format("060102")
	name := fmt.Sprintf("v%s_%s_%s_errors", c.version, date, category)
	if taskID != "" {
		name += "_" + taskID
	}
	name += ".txt"
	return filepath.Join(c.baseDir, "errors", name)
}

// Close flushes and closes every diagnostic file this Collector has opened.
// Callers should Close a Collector once a batch is fully drained.
func (c *Collector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for path, f := range c.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("diagnostics: closing %q: %w", path, err)
		}
	}
	c.files = make(map[string]*os.File)
	return firstErr
}
