// Package bin implements the bin stage: grouping a day's reduced log rows
// by the object key they touched, so the map stage can later summarize
// access patterns per dataset asset without re-scanning every day's file.
//
// One binned file accumulates rows from many reduced source files, so
// resumability cannot be "does the output exist" the way the reduce stage's
// day-granularity files allow. Instead, each source file's completion is
// tracked by a sentinel marker file under <binnedRoot>/.done.
package bin

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dandi-archive/s3logreduce/s3log"
)

// BinnedHeader is the header row of a per-object-key binned file. The
// object key itself is omitted since it is implied by the file's path.
const BinnedHeader = "timestamp\tip_address\tbytes_sent\n"

// ObjectKeyPath returns the path a binned file for objectKey lives at under
// binnedRoot.
func ObjectKeyPath(binnedRoot, objectKey string) string {
	return filepath.Join(binnedRoot, objectKey+".tsv")
}

func markerPath(binnedRoot, rel string) string {
	return filepath.Join(binnedRoot, ".done", rel+".done")
}

// IsBinned reports whether the reduced file identified by rel (its path
// relative to the reduced root) has already been folded into the binned
// output.
func IsBinned(binnedRoot, rel string) bool {
	_, err := os.Stat(markerPath(binnedRoot, rel))
	return err == nil
}

// row is one binned record, kept structured (rather than a raw line) so
// rows read back from an existing binned file and rows freshly parsed from
// a reduced file can be sorted together by timestamp.
type row struct {
	timestamp string
	ip        string
	bytesSent string
}

// fileMutexes serializes merges into the same binned path across
// concurrently running bin workers: two reduced files from different days
// routinely share an object key, so without this, concurrent File calls
// could interleave their read-merge-sort-write cycles and drop rows.
var fileMutexes sync.Map // map[string]*sync.Mutex

func mutexFor(path string) *sync.Mutex {
	actual, _ := fileMutexes.LoadOrStore(path, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

// File bins one reduced TSV file's rows into their respective
// per-object-key files under binnedRoot, then writes the completion marker
// for rel. Rows merged into an object key's file that already has rows from
// another reduced file are sorted by timestamp, since the two files are
// binned independently and their arrival order carries no meaning.
func File(reducedPath, binnedRoot, rel string) error {
	byObjectKey, err := readReducedRows(reducedPath)
	if err != nil {
		return err
	}

	for objectKey, rows := range byObjectKey {
		if err := mergeSorted(binnedRoot, objectKey, rows); err != nil {
			return err
		}
	}

	marker := markerPath(binnedRoot, rel)
	if err := os.MkdirAll(filepath.Dir(marker), 0o755); err != nil {
		return fmt.Errorf("bin: creating marker directory for %q: %w", rel, err)
	}
	return os.WriteFile(marker, nil, 0o644)
}

// readReducedRows scans reducedPath and groups its rows by object key.
func readReducedRows(reducedPath string) (map[string][]row, error) {
	f, err := os.Open(reducedPath)
	if err != nil {
		return nil, fmt.Errorf("bin: opening %q: %w", reducedPath, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	byObjectKey := make(map[string][]row)
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			first = false
			if line+"\n" == s3log.ReducedHeader {
				continue
			}
		}
		if line == "" {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) != 4 {
			continue
		}
		objectKey := fields[2]
		byObjectKey[objectKey] = append(byObjectKey[objectKey], row{
			timestamp: fields[0],
			ip:        fields[1],
			bytesSent: fields[3],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("bin: scanning %q: %w", reducedPath, err)
	}
	return byObjectKey, nil
}

// mergeSorted folds newRows into objectKey's binned file, re-sorting the
// combined set by timestamp and rewriting the file atomically.
func mergeSorted(binnedRoot, objectKey string, newRows []row) error {
	path := ObjectKeyPath(binnedRoot, objectKey)
	mu := mutexFor(path)
	mu.Lock()
	defer mu.Unlock()

	existing, err := readBinnedRows(path)
	if err != nil {
		return err
	}

	all := append(existing, newRows...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].timestamp < all[j].timestamp })

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("bin: creating directory for %q: %w", path, err)
	}
	return writeBinnedRowsAtomic(path, all)
}

// readBinnedRows reads an existing binned file's rows, if any. A missing
// file is not an error: it simply has no prior rows.
func readBinnedRows(path string) ([]row, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("bin: opening %q: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	var rows []row
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			first = false
			if line+"\n" == BinnedHeader {
				continue
			}
		}
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 3 {
			continue
		}
		rows = append(rows, row{timestamp: fields[0], ip: fields[1], bytesSent: fields[2]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("bin: scanning %q: %w", path, err)
	}
	return rows, nil
}

// writeBinnedRowsAtomic writes rows (plus header) to path via a
// temp-file-then-rename sequence, the same pattern the reduce stage uses to
// keep partial writes invisible to readers.
func writeBinnedRowsAtomic(path string, rows []row) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".bin-*.tmp")
	if err != nil {
		return fmt.Errorf("bin: creating temp file in %q: %w", dir, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.WriteString(BinnedHeader); err != nil {
		tmp.Close()
		return fmt.Errorf("bin: writing header to %q: %w", tmpPath, err)
	}
	for _, r := range rows {
		if _, err := fmt.Fprintf(tmp, "%s\t%s\t%s\n", r.timestamp, r.ip, r.bytesSent); err != nil {
			tmp.Close()
			return fmt.Errorf("bin: writing row to %q: %w", tmpPath, err)
		}
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("bin: closing %q: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("bin: renaming %q to %q: %w", tmpPath, path, err)
	}
	return nil
}
