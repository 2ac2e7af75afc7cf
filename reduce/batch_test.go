package reduce

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDiscoverSkipsReducedAndNonNumericFiles(t *testing.T) {
	rawRoot := t.TempDir()
	reducedRoot := t.TempDir()

	mustMkdirAll(t, filepath.Join(rawRoot, "2019", "02"))
	mustWrite(t, filepath.Join(rawRoot, "2019", "02", "06.log"), "line\n")
	mustWrite(t, filepath.Join(rawRoot, "2019", "02", "07.log"), "line\n")
	mustWrite(t, filepath.Join(rawRoot, "2019", "02", "start-end.log"), "line\n")

	mustMkdirAll(t, filepath.Join(reducedRoot, "2019", "02"))
	mustWrite(t, filepath.Join(reducedRoot, "2019", "02", "06.tsv"), "")

	tasks, err := Discover(rawRoot, reducedRoot)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("got %d tasks, want 1: %+v", len(tasks), tasks)
	}
	if filepath.Base(tasks[0].RawPath) != "07.log" {
		t.Errorf("expected 07.log to be the only outstanding task, got %q", tasks[0].RawPath)
	}
}

func TestPreCreateYearMonthDirsSkipsExcludedYears(t *testing.T) {
	reducedRoot := t.TempDir()

	if err := PreCreateYearMonthDirs(reducedRoot, []string{"2020"}, 2022); err != nil {
		t.Fatalf("PreCreateYearMonthDirs: %v", err)
	}

	if _, err := os.Stat(filepath.Join(reducedRoot, "2019", "01")); err != nil {
		t.Errorf("expected 2019/01 to exist: %v", err)
	}
	if _, err := os.Stat(filepath.Join(reducedRoot, "2019", "12")); err != nil {
		t.Errorf("expected 2019/12 to exist: %v", err)
	}
	if _, err := os.Stat(filepath.Join(reducedRoot, "2021", "06")); err != nil {
		t.Errorf("expected 2021/06 to exist: %v", err)
	}
	if _, err := os.Stat(filepath.Join(reducedRoot, "2020", "01")); err == nil {
		t.Error("expected 2020 to be skipped as an excluded year")
	}
	if _, err := os.Stat(filepath.Join(reducedRoot, "2022")); err == nil {
		t.Error("expected current year 2022 to be excluded from pre-creation (half-open range)")
	}
}

func mustMkdirAll(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("MkdirAll %q: %v", path, err)
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile %q: %v", path, err)
	}
}
