package mapstage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dandi-archive/s3logreduce/bin"
	"github.com/dandi-archive/s3logreduce/catalog"
	"github.com/dandi-archive/s3logreduce/georegion"
)

func TestSummarizeJoinsAgainstCatalogAndResolvesRegions(t *testing.T) {
	binnedRoot := t.TempDir()
	objectKeyPath := bin.ObjectKeyPath(binnedRoot, "blobs/1d/8a/1d8a9a.nwb")
	if err := os.MkdirAll(filepath.Dir(objectKeyPath), 0o755); err != nil {
		t.Fatal(err)
	}
	content := bin.BinnedHeader +
		"2019-02-06T00:00:38\t192.0.2.3\t1024\n" +
		"2019-02-06T00:01:00\t198.51.100.1\t2048\n"
	if err := os.WriteFile(objectKeyPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	client := catalog.StaticClient{
		"blobs/1d/8a/1d8a9a.nwb": catalog.Asset{
			ObjectKey: "blobs/1d/8a/1d8a9a.nwb",
			DatasetID: "000001",
			Version:   "0.220101.1",
		},
	}
	resolver := georegion.StaticResolver{
		"192.0.2.3":    [2]string{"US", "CA"},
		"198.51.100.1": [2]string{"DE", "BY"},
	}
	cache := georegion.NewCache([]byte("salt"))

	summaries, err := Summarize(binnedRoot, client, cache, resolver)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	summary, ok := summaries["000001@0.220101.1"]
	if !ok {
		t.Fatalf("expected a summary for 000001@0.220101.1, got %v", SortedKeys(summaries))
	}
	if summary.TotalRequests != 2 {
		t.Errorf("got %d requests, want 2", summary.TotalRequests)
	}
	if summary.TotalBytes != 3072 {
		t.Errorf("got %d bytes, want 3072", summary.TotalBytes)
	}
	if summary.RegionCounts["US/CA"] != 1 || summary.RegionCounts["DE/BY"] != 1 {
		t.Errorf("unexpected region counts: %+v", summary.RegionCounts)
	}
}

func TestSummarizeSkipsUncataloguedObjectKeys(t *testing.T) {
	binnedRoot := t.TempDir()
	objectKeyPath := bin.ObjectKeyPath(binnedRoot, "blobs/unknown")
	os.MkdirAll(filepath.Dir(objectKeyPath), 0o755)
	os.WriteFile(objectKeyPath, []byte(bin.BinnedHeader+"2019-02-06T00:00:38\t192.0.2.3\t10\n"), 0o644)

	summaries, err := Summarize(binnedRoot, catalog.StaticClient{}, nil, nil)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if len(summaries) != 0 {
		t.Errorf("expected no summaries for an uncatalogued key, got %v", summaries)
	}
}
