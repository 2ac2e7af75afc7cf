package findline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFindReturnsAnonymizedLineOfRequestedType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "06.log")
	content := strings.Join([]string{
		line("203.0.113.5", "REST.GET.OBJECT"),
		line("203.0.113.6", "REST.PUT.OBJECT"),
		line("203.0.113.7", "REST.GET.OBJECT"),
	}, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := Find(dir, "GET", 42)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if strings.Contains(got, "203.0.113.5") || strings.Contains(got, "203.0.113.7") {
		t.Errorf("expected the real IP to be anonymized, got: %q", got)
	}
	if !strings.Contains(got, anonymizedIP) {
		t.Errorf("expected anonymized IP %q in result, got: %q", anonymizedIP, got)
	}
	if !strings.Contains(got, "REST.GET.OBJECT") {
		t.Errorf("expected a GET line, got: %q", got)
	}
}

func TestFindErrorsWhenRequestTypeAbsent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "06.log")
	os.WriteFile(path, []byte(line("203.0.113.5", "REST.PUT.OBJECT")+"\n"), 0o644)

	if _, err := Find(dir, "GET", 1); err == nil {
		t.Fatal("expected an error when no example line of the requested type exists")
	}
}

func TestFindErrorsOnEmptyFolder(t *testing.T) {
	if _, err := Find(t.TempDir(), "GET", 1); err == nil {
		t.Fatal("expected an error for a folder with no log files")
	}
}

// line builds a minimal raw-format line with ip at the fast path's raw
// index 4 and operation at raw index 7, padding the fields in between with
// placeholders so index offsets line up the same way a real log line's
// bracketed timestamp does.
func line(ip, operation string) string {
	fields := make([]string, 9)
	for i := range fields {
		fields[i] = "-"
	}
	fields[4] = ip
	fields[7] = operation
	fields[8] = "key"
	return strings.Join(fields, " ")
}
