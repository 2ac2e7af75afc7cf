package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTOML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReduceCommandEndToEnd(t *testing.T) {
	rawRoot := t.TempDir()
	reducedRoot := t.TempDir()
	baseFolder := t.TempDir()

	dayDir := filepath.Join(rawRoot, "2019", "02")
	if err := os.MkdirAll(dayDir, 0o755); err != nil {
		t.Fatal(err)
	}
	line := `79a59df900b949e55d96a1e698fbacedfd6e09d98eacf8f8d5218e7cd47ef2be dandiarchive [06/Feb/2019:00:00:38 +0000] 192.0.2.3 - 3E57427F3EXAMPLE REST.GET.OBJECT blobs/1d/8a/1d8a9a.nwb "GET /blobs/1d/8a/1d8a9a.nwb HTTP/1.1" 200 - 2662992 2662992 70 10 "-" "S3Console/0.4" - host-id-example== SigV4 ECDHE-RSA-AES128-GCM-SHA256 AuthHeader s3.us-east-1.amazonaws.com TLSv1.2`
	if err := os.WriteFile(filepath.Join(dayDir, "06.log"), []byte(line+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfgPath := writeTOML(t, `
baseFolderPath = "`+baseFolder+`"
rawRootPath = "`+rawRoot+`"
reducedRootPath = "`+reducedRoot+`"
numberOfWorkers = 2
`)

	if err := App.Run([]string{"s3logreduce", "reduce", "--config", cfgPath}); err != nil {
		t.Fatalf("reduce command: %v", err)
	}

	out, err := os.ReadFile(filepath.Join(reducedRoot, "2019", "02", "06.tsv"))
	if err != nil {
		t.Fatalf("reading reduced output: %v", err)
	}
	if !strings.Contains(string(out), "blobs/1d/8a/1d8a9a.nwb") {
		t.Errorf("expected object key in reduced output, got: %q", out)
	}
}

func TestFindExampleLineCommandPrintsALine(t *testing.T) {
	rawRoot := t.TempDir()
	line := `79a59df900b949e55d96a1e698fbacedfd6e09d98eacf8f8d5218e7cd47ef2be dandiarchive [06/Feb/2019:00:00:38 +0000] 192.0.2.3 - 3E57427F3EXAMPLE REST.GET.OBJECT blobs/a "GET /blobs/a HTTP/1.1" 200 - 10 10 5 5 "-" "S3Console/0.4" -`
	if err := os.WriteFile(filepath.Join(rawRoot, "06.log"), []byte(line+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := App.Run([]string{"s3logreduce", "find-example-line", "--rawRootPath", rawRoot, "--requestType", "GET", "--seed", "1"}); err != nil {
		t.Fatalf("find-example-line command: %v", err)
	}
}

func TestReduceCommandRequiresConfigFlag(t *testing.T) {
	if err := App.Run([]string{"s3logreduce", "reduce"}); err == nil {
		t.Fatal("expected an error when --config is omitted")
	}
}
