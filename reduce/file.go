// Package reduce drives the per-file and per-batch reduction of raw S3
// server-access logs into minimal, tab-separated daily summaries.
package reduce

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dandi-archive/s3logreduce/linereader"
	"github.com/dandi-archive/s3logreduce/s3log"
)

// ErrNotLogFile is returned by File when rawPath does not have the raw
// archive's ".log" extension. It is fatal and caller-visible: an unusable
// input path is never silently reduced or retried.
var ErrNotLogFile = errors.New("reduce: rawPath does not have a .log extension")

// File reduces one raw log file into one reduced TSV file. The reduced file
// is written atomically: all accepted lines accumulate in memory, then the
// file is written to a temporary path in the destination directory and
// renamed into place, so a crash mid-write never leaves a partial file for
// the batch scheduler's resumability check to mistake for a completed day.
func File(rawPath, reducedPath string, opts s3log.Options, maximumBufferSizeInBytes int) error {
	if filepath.Ext(rawPath) != ".log" {
		return fmt.Errorf("reduce: %q: %w", rawPath, ErrNotLogFile)
	}

	var lines []string

	err := linereader.ReadAll(rawPath, maximumBufferSizeInBytes, func(batch []string) error {
		for _, raw := range batch {
			if raw == "" {
				continue
			}
			rec, ok := s3log.ReduceLine(raw, opts)
			if !ok {
				continue
			}
			lines = append(lines, rec.FormatLine())
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("reduce: reading %q: %w", rawPath, err)
	}

	return writeAtomic(reducedPath, lines)
}

// writeAtomic writes lines (already newline-terminated) to path via a
// temp-file-then-rename sequence, prefixed by the reduced-file header unless
// there is nothing to write.
func writeAtomic(path string, lines []string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".reduce-*.tmp")
	if err != nil {
		return fmt.Errorf("reduce: creating temp file in %q: %w", dir, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if len(lines) > 0 {
		if _, err := tmp.WriteString(s3log.ReducedHeader); err != nil {
			tmp.Close()
			return fmt.Errorf("reduce: writing header to %q: %w", tmpPath, err)
		}
		for _, line := range lines {
			if _, err := tmp.WriteString(line); err != nil {
				tmp.Close()
				return fmt.Errorf("reduce: writing line to %q: %w", tmpPath, err)
			}
		}
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("reduce: closing %q: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("reduce: renaming %q to %q: %w", tmpPath, path, err)
	}
	return nil
}

// IsReduced reports whether path already exists; existence is this
// pipeline's sole marker of a completed day, making a batch run trivially
// resumable by skipping every raw file whose reduced counterpart is
// present.
func IsReduced(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsNumericStem reports whether the file name (without extension) consists
// entirely of digits, the convention raw day files follow. Files such as
// "2019-02-06_to_2019-02-09.log" (merged ranges) fail this check and are
// skipped by the batch scheduler.
func IsNumericStem(path string) bool {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if stem == "" {
		return false
	}
	for i := 0; i < len(stem); i++ {
		if stem[i] < '0' || stem[i] > '9' {
			return false
		}
	}
	return true
}
