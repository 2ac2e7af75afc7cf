package bin

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/dandi-archive/s3logreduce/diagnostics"
	"github.com/dandi-archive/s3logreduce/scheduler"
)

// BatchOptions configures one bin-stage run.
type BatchOptions struct {
	ReducedRootPath string
	BinnedRootPath  string
	NumberOfWorkers int
	Reporter        *diagnostics.Collector
	Logger          *logrus.Logger
	Observer        scheduler.Observer
}

// Discover walks reducedRoot for reduced TSV files that have not yet been
// folded into the binned output, identified by rel (the file's path
// relative to reducedRoot, also used as the sentinel marker's key).
func Discover(reducedRoot, binnedRoot string) ([]string, error) {
	var rels []string
	err := filepath.WalkDir(reducedRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".tsv" {
			return nil
		}
		rel, err := filepath.Rel(reducedRoot, path)
		if err != nil {
			return fmt.Errorf("bin: relativizing %q: %w", path, err)
		}
		if IsBinned(binnedRoot, rel) {
			return nil
		}
		rels = append(rels, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bin: discovering reduced files under %q: %w", reducedRoot, err)
	}
	return rels, nil
}

// Batch bins every outstanding reduced file under opts.ReducedRootPath,
// dispatching one task per file to a bounded worker pool. A task's failure
// is recorded as a "parallel" diagnostic rather than aborting the run, since
// the file's marker is never written and it is simply retried next time.
func Batch(opts BatchOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}

	rels, err := Discover(opts.ReducedRootPath, opts.BinnedRootPath)
	if err != nil {
		return err
	}
	logger.WithField("count", len(rels)).Info("discovered outstanding reduced files to bin")

	pool := scheduler.New(opts.NumberOfWorkers)
	if opts.Observer != nil {
		pool.Observe(opts.Observer)
	}
	for _, rel := range rels {
		rel := rel
		reducedPath := filepath.Join(opts.ReducedRootPath, rel)
		pool.Submit(rel, func() error {
			logger.WithField("rel", rel).Debug("binning file")
			return File(reducedPath, opts.BinnedRootPath, rel)
		})
	}

	errs := pool.Wait()
	for _, err := range errs {
		logger.WithError(err).Error("task failed; its reduced file will be retried on the next bin run")
		if opts.Reporter != nil {
			opts.Reporter.Report("parallel", "", err.Error())
		}
	}
	return nil
}
