// Package mapstage joins the bin stage's per-object-key access counts
// against the archive catalog and, optionally, a geographic region
// resolver, producing one summary per dataset version.
package mapstage

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/dandi-archive/s3logreduce/bin"
	"github.com/dandi-archive/s3logreduce/catalog"
	"github.com/dandi-archive/s3logreduce/georegion"
)

// DatasetVersionSummary aggregates access counts for every asset belonging
// to one dataset version.
type DatasetVersionSummary struct {
	DatasetID     string
	Version       string
	TotalRequests int64
	TotalBytes    int64
	RegionCounts  map[string]int64
}

func (s *DatasetVersionSummary) key() string {
	return s.DatasetID + "@" + s.Version
}

// Summarize walks every binned object-key file under binnedRoot, resolves
// it against client, and accumulates access counts into one
// DatasetVersionSummary per dataset version. Object keys the catalog has no
// record of (e.g. withdrawn or never-published assets) are silently
// skipped. If resolver is nil, per-region breakdowns are omitted.
func Summarize(binnedRoot string, client catalog.Client, regionCache *georegion.Cache, resolver georegion.Resolver) (map[string]*DatasetVersionSummary, error) {
	summaries := make(map[string]*DatasetVersionSummary)

	err := filepath.WalkDir(binnedRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".done" {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".tsv" {
			return nil
		}

		rel, err := filepath.Rel(binnedRoot, path)
		if err != nil {
			return fmt.Errorf("mapstage: relativizing %q: %w", path, err)
		}
		objectKey := strings.TrimSuffix(rel, ".tsv")

		asset, ok := client.Lookup(objectKey)
		if !ok {
			return nil
		}

		requests, bytesSent, regionCounts, err := accumulateFile(path, regionCache, resolver)
		if err != nil {
			return err
		}

		summary, ok := summaries[asset.DatasetID+"@"+asset.Version]
		if !ok {
			summary = &DatasetVersionSummary{DatasetID: asset.DatasetID, Version: asset.Version, RegionCounts: make(map[string]int64)}
			summaries[summary.key()] = summary
		}
		summary.TotalRequests += requests
		summary.TotalBytes += bytesSent
		for region, count := range regionCounts {
			summary.RegionCounts[region] += count
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("mapstage: walking %q: %w", binnedRoot, err)
	}
	return summaries, nil
}

func accumulateFile(path string, regionCache *georegion.Cache, resolver georegion.Resolver) (requests, bytesSent int64, regionCounts map[string]int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("mapstage: opening %q: %w", path, err)
	}
	defer f.Close()

	regionCounts = make(map[string]int64)
	scanner := bufio.NewScanner(f)
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			first = false
			if line+"\n" == bin.BinnedHeader {
				continue
			}
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 3 {
			continue
		}
		_, ip, bytesField := fields[0], fields[1], fields[2]

		n, convErr := strconv.ParseInt(bytesField, 10, 64)
		if convErr != nil {
			continue
		}

		requests++
		bytesSent += n

		if regionCache != nil && resolver != nil {
			region, regionErr := regionCache.Region(ip, resolver)
			if regionErr == nil {
				regionCounts[region]++
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, 0, nil, fmt.Errorf("mapstage: scanning %q: %w", path, err)
	}
	return requests, bytesSent, regionCounts, nil
}

// SortedKeys returns the summary map's keys sorted for deterministic
// iteration (used by output formatters and tests alike).
func SortedKeys(summaries map[string]*DatasetVersionSummary) []string {
	keys := make([]string, 0, len(summaries))
	for k := range summaries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
