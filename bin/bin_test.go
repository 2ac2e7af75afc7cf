package bin

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dandi-archive/s3logreduce/s3log"
)

func TestFileGroupsRowsByObjectKey(t *testing.T) {
	dir := t.TempDir()
	reducedPath := filepath.Join(dir, "06.tsv")
	content := s3log.ReducedHeader +
		"2019-02-06T00:00:38\t192.0.2.3\tblobs/1d/8a/1d8a9a.nwb\t2048\n" +
		"2019-02-06T00:01:00\t192.0.2.4\tzarr/9e2\t512\n" +
		"2019-02-06T00:02:00\t192.0.2.5\tblobs/1d/8a/1d8a9a.nwb\t4096\n"
	if err := os.WriteFile(reducedPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	binnedRoot := t.TempDir()
	if err := File(reducedPath, binnedRoot, "06.tsv"); err != nil {
		t.Fatalf("File: %v", err)
	}

	blobData, err := os.ReadFile(ObjectKeyPath(binnedRoot, "blobs/1d/8a/1d8a9a.nwb"))
	if err != nil {
		t.Fatalf("reading blobs bin: %v", err)
	}
	if !strings.HasPrefix(string(blobData), BinnedHeader) {
		t.Errorf("missing header: %q", blobData)
	}
	if strings.Count(string(blobData), "\n") != 3 { // header + 2 rows
		t.Errorf("expected 2 rows for the blobs key, got: %q", blobData)
	}

	zarrData, err := os.ReadFile(ObjectKeyPath(binnedRoot, "zarr/9e2"))
	if err != nil {
		t.Fatalf("reading zarr bin: %v", err)
	}
	if strings.Count(string(zarrData), "\n") != 2 { // header + 1 row
		t.Errorf("expected 1 row for the zarr key, got: %q", zarrData)
	}

	if !IsBinned(binnedRoot, "06.tsv") {
		t.Error("expected marker file to mark 06.tsv as binned")
	}
}

func TestFileSortsRowsAcrossOutOfOrderMerges(t *testing.T) {
	binnedRoot := t.TempDir()
	reducedDir := t.TempDir()

	// day2 (later timestamp) is binned first, then day1 (earlier timestamp),
	// mimicking two reduced files arriving at the merge step out of order.
	day2 := filepath.Join(reducedDir, "07.tsv")
	os.WriteFile(day2, []byte(s3log.ReducedHeader+"2019-02-07T00:00:38\t192.0.2.4\tblobs/a\t20\n"), 0o644)
	day1 := filepath.Join(reducedDir, "06.tsv")
	os.WriteFile(day1, []byte(s3log.ReducedHeader+"2019-02-06T00:00:38\t192.0.2.3\tblobs/a\t10\n"), 0o644)

	if err := File(day2, binnedRoot, "07.tsv"); err != nil {
		t.Fatalf("File day2: %v", err)
	}
	if err := File(day1, binnedRoot, "06.tsv"); err != nil {
		t.Fatalf("File day1: %v", err)
	}

	data, err := os.ReadFile(ObjectKeyPath(binnedRoot, "blobs/a"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 3 { // header + 2 rows
		t.Fatalf("expected header plus 2 rows, got: %q", data)
	}
	if !strings.HasPrefix(lines[1], "2019-02-06T00:00:38") || !strings.HasPrefix(lines[2], "2019-02-07T00:00:38") {
		t.Errorf("expected rows sorted chronologically regardless of merge order, got: %v", lines[1:])
	}
}

func TestFileAppendsAcrossMultipleSourceDays(t *testing.T) {
	binnedRoot := t.TempDir()
	reducedDir := t.TempDir()

	day1 := filepath.Join(reducedDir, "06.tsv")
	os.WriteFile(day1, []byte(s3log.ReducedHeader+"2019-02-06T00:00:38\t192.0.2.3\tblobs/a\t10\n"), 0o644)
	day2 := filepath.Join(reducedDir, "07.tsv")
	os.WriteFile(day2, []byte(s3log.ReducedHeader+"2019-02-07T00:00:38\t192.0.2.3\tblobs/a\t20\n"), 0o644)

	if err := File(day1, binnedRoot, "06.tsv"); err != nil {
		t.Fatalf("File day1: %v", err)
	}
	if err := File(day2, binnedRoot, "07.tsv"); err != nil {
		t.Fatalf("File day2: %v", err)
	}

	data, err := os.ReadFile(ObjectKeyPath(binnedRoot, "blobs/a"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(string(data), "\n") != 3 { // header + 2 rows across both days
		t.Errorf("expected rows from both days accumulated, got: %q", data)
	}
}
