package reduce

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dandi-archive/s3logreduce/diagnostics"
	"github.com/dandi-archive/s3logreduce/s3log"
	"github.com/dandi-archive/s3logreduce/scheduler"
)

// firstArchiveYear is the earliest year the reduced-archive directory
// subtree is pre-created for.
const firstArchiveYear = 2019

// BatchOptions configures one batch reduction run.
type BatchOptions struct {
	RawRootPath              string
	ReducedRootPath          string
	Options                  s3log.Options
	MaximumBufferSizeInBytes int
	NumberOfWorkers          int
	Reporter                 *diagnostics.Collector
	Logger                   *logrus.Logger
	// Observer, if set, is attached to the worker pool so a progress
	// dashboard can track per-worker task lifecycles.
	Observer scheduler.Observer
	// ExcludedYears lists 4-digit years (e.g. "2021") to skip when
	// pre-creating the reduced archive's YYYY/MM directory subtree.
	ExcludedYears []string
}

// PreCreateYearMonthDirs creates <reducedRoot>/<year>/<month> for every year
// in [firstArchiveYear, currentYear) not named in excludedYears, and every
// month 01..12, so workers write reduced files without contending on mkdir.
func PreCreateYearMonthDirs(reducedRoot string, excludedYears []string, currentYear int) error {
	excluded := make(map[string]bool, len(excludedYears))
	for _, y := range excludedYears {
		excluded[y] = true
	}

	for year := firstArchiveYear; year < currentYear; year++ {
		yearStr := strconv.Itoa(year)
		if excluded[yearStr] {
			continue
		}
		for month := 1; month <= 12; month++ {
			dir := filepath.Join(reducedRoot, yearStr, fmt.Sprintf("%02d", month))
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("reduce: pre-creating %q: %w", dir, err)
			}
		}
	}
	return nil
}

// Task describes one raw-to-reduced file mapping discovered during
// enumeration.
type Task struct {
	RawPath     string
	ReducedPath string
}

// Discover walks rawRoot for files matching <YYYY>/<MM>/<DD>.log, skips
// merged-range files (non-numeric stems), and returns the set of tasks
// whose reduced counterpart under reducedRoot does not already exist. The
// order is shuffled so that a progress bar advances at a roughly uniform
// rate regardless of which days happen to be largest.
func Discover(rawRoot, reducedRoot string) ([]Task, error) {
	var tasks []Task

	err := filepath.WalkDir(rawRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".log" {
			return nil
		}
		if !IsNumericStem(path) {
			return nil
		}

		rel, err := filepath.Rel(rawRoot, path)
		if err != nil {
			return fmt.Errorf("reduce: relativizing %q: %w", path, err)
		}
		reducedPath := filepath.Join(reducedRoot, strings.TrimSuffix(rel, ".log")+".tsv")

		if IsReduced(reducedPath) {
			return nil
		}
		tasks = append(tasks, Task{RawPath: path, ReducedPath: reducedPath})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reduce: discovering raw logs under %q: %w", rawRoot, err)
	}

	rand.Shuffle(len(tasks), func(i, j int) { tasks[i], tasks[j] = tasks[j], tasks[i] })
	return tasks, nil
}

// Batch reduces every outstanding raw log file under opts.RawRootPath,
// dispatching one task per file to a bounded worker pool. A task's failure
// is recorded as a "parallel" diagnostic (so the file is simply retried on
// the next Batch invocation, since its reduced counterpart was never
// written) rather than aborting the run.
func Batch(opts BatchOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}

	if err := PreCreateYearMonthDirs(opts.ReducedRootPath, opts.ExcludedYears, time.Now().Year()); err != nil {
		return err
	}

	tasks, err := Discover(opts.RawRootPath, opts.ReducedRootPath)
	if err != nil {
		return err
	}
	logger.WithField("count", len(tasks)).Info("discovered outstanding raw log files")

	for _, task := range tasks {
		if err := os.MkdirAll(filepath.Dir(task.ReducedPath), 0o755); err != nil {
			return fmt.Errorf("reduce: creating reduced directory for %q: %w", task.ReducedPath, err)
		}
	}

	// The total buffer budget is divided equally among the workers.
	bufferPerWorker := opts.MaximumBufferSizeInBytes
	if opts.NumberOfWorkers > 1 {
		bufferPerWorker /= opts.NumberOfWorkers
	}

	pool := scheduler.New(opts.NumberOfWorkers)
	if opts.Observer != nil {
		pool.Observe(opts.Observer)
	}
	for _, task := range opts.tasksWithIDs(tasks) {
		taskID := task.id
		rawPath := task.RawPath
		reducedPath := task.ReducedPath

		lineOpts := opts.Options
		lineOpts.TaskID = taskID
		if opts.Reporter != nil {
			lineOpts.ErrorReporter = opts.Reporter
		}

		pool.Submit(taskID, func() error {
			logger.WithFields(logrus.Fields{"task_id": taskID, "raw_path": rawPath}).Debug("reducing file")
			return File(rawPath, reducedPath, lineOpts, bufferPerWorker)
		})
	}

	errs := pool.Wait()
	for _, err := range errs {
		logger.WithError(err).Error("task failed; its raw file will be retried on the next batch run")
		if opts.Reporter != nil {
			opts.Reporter.Report("parallel", "", err.Error())
		}
	}
	return nil
}

type idTask struct {
	Task
	id string
}

// tasksWithIDs labels each task with a short, stable-within-run identifier
// used to scope its diagnostics and logs, mirroring the upstream
// implementation's per-worker task IDs.
func (opts BatchOptions) tasksWithIDs(tasks []Task) []idTask {
	labeled := make([]idTask, len(tasks))
	for i, t := range tasks {
		labeled[i] = idTask{Task: t, id: fmt.Sprintf("%05d", i)}
	}
	return labeled
}
