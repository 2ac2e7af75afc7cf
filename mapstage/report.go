package mapstage

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Report is the JSON-serializable form of a map-stage run: a metadata
// header plus one row per dataset version summarized.
type Report struct {
	Metadata ReportMetadata      `json:"metadata"`
	Versions []DatasetVersionRow `json:"dataset_versions"`
}

// ReportMetadata records when and against what version of this tool a
// report was produced.
type ReportMetadata struct {
	GeneratedAt time.Time `json:"generated_at"`
	Version     string    `json:"version"`
}

// DatasetVersionRow flattens one DatasetVersionSummary into a JSON-friendly
// row.
type DatasetVersionRow struct {
	DatasetID     string           `json:"dataset_id"`
	Version       string           `json:"version"`
	TotalRequests int64            `json:"total_requests"`
	TotalBytes    int64            `json:"total_bytes"`
	RegionCounts  map[string]int64 `json:"region_counts,omitempty"`
}

// BuildReport converts a Summarize result into a Report, generatedAt and
// version are stamped by the caller so the map stage stays free of direct
// time.Now calls.
func BuildReport(summaries map[string]*DatasetVersionSummary, generatedAt time.Time, version string) Report {
	report := Report{Metadata: ReportMetadata{GeneratedAt: generatedAt, Version: version}}
	for _, key := range SortedKeys(summaries) {
		s := summaries[key]
		report.Versions = append(report.Versions, DatasetVersionRow{
			DatasetID:     s.DatasetID,
			Version:       s.Version,
			TotalRequests: s.TotalRequests,
			TotalBytes:    s.TotalBytes,
			RegionCounts:  s.RegionCounts,
		})
	}
	return report
}

// WriteJSON marshals report to path as indented JSON.
func WriteJSON(report Report, path string) error {
	raw, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("mapstage: marshaling report: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("mapstage: writing %q: %w", path, err)
	}
	return nil
}
