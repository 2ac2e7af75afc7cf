// Package config loads the TOML-backed configuration record that drives a
// reduce/bin/map run. It replaces the upstream Python implementation's
// reliance on a hardcoded home-directory constant with an explicit,
// injectable record, per this project's design decision to avoid ambient
// process-wide state.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// RequestTypes are the three S3 request verbs listed in the
// find-example-line command's --requestType usage text; findline matches a
// verb against the middle part of a line's REST.<VERB>.<TARGET> operation
// field.
var RequestTypes = []string{"GET", "PUT", "HEAD"}

// DefaultBaseFolderPath mirrors the upstream default of a dotfolder under
// the user's home directory; callers are expected to override it via
// Config.BaseFolderPath in anything beyond ad hoc local use.
func DefaultBaseFolderPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".s3logreduce")
}

// Config is the full set of knobs for one reduce/bin/map run, loaded from a
// single TOML file.
type Config struct {
	// BaseFolderPath roots the errors/ diagnostics directory and any cache
	// files (e.g. the IP-to-region lookup cache).
	BaseFolderPath string `toml:"baseFolderPath"`

	// RawRootPath is the root of the raw <YYYY>/<MM>/<DD>.log tree.
	RawRootPath string `toml:"rawRootPath"`

	// ReducedRootPath mirrors RawRootPath with <DD>.tsv files.
	ReducedRootPath string `toml:"reducedRootPath"`

	// BinnedRootPath holds the per-object-key TSVs produced by the bin stage.
	BinnedRootPath string `toml:"binnedRootPath"`

	// SummaryRootPath holds the per-dataset-version summaries produced by
	// the map stage.
	SummaryRootPath string `toml:"summaryRootPath"`

	// Bucket is the S3 bucket name lines are expected to originate from.
	Bucket string `toml:"bucket"`

	// OperationType filters lines down to a single S3 operation, e.g.
	// "REST.GET.OBJECT".
	OperationType string `toml:"operationType"`

	// ObjectKeyParentsToReduce restricts which top-level object-key prefixes
	// are kept; the DANDI profile is {"blobs", "zarr"}.
	ObjectKeyParentsToReduce []string `toml:"objectKeyParentsToReduce"`

	// ExcludedIPs lists IP addresses to drop unconditionally (e.g. known
	// internal health-check sources).
	ExcludedIPs []string `toml:"excludedIPs"`

	// ExcludeGitHubActionsIPs, when true, makes the reduce command add the
	// current GitHub-published IPv4 CIDR ranges to the exclusion set it
	// builds from ExcludedIPs.
	ExcludeGitHubActionsIPs bool `toml:"excludeGitHubActionsIPs"`

	// ExcludedYears lists 4-digit years to skip when pre-creating the
	// reduced archive's YYYY/MM directory subtree.
	ExcludedYears []string `toml:"excludedYears"`

	// MaximumBufferSizeInBytes bounds the total per-iteration RAM budget of
	// the buffered line readers; the batch divides it equally among workers.
	MaximumBufferSizeInBytes int `toml:"maximumBufferSizeInBytes"`

	// NumberOfWorkers bounds the batch scheduler's worker pool size.
	NumberOfWorkers int `toml:"numberOfWorkers"`

	// Version is stamped into diagnostic file names.
	Version string `toml:"version"`

	// CatalogPath points at a JSON file mapping object keys to the dataset
	// version they belong to, consumed by the map stage.
	CatalogPath string `toml:"catalogPath"`

	// RegionCachePath holds the salted IP-to-region lookup cache the map
	// stage persists across runs to avoid re-resolving the same addresses.
	RegionCachePath string `toml:"regionCachePath"`

	// RegionCacheSalt is mixed into every cached IP address before hashing,
	// so the cache file never stores a reversible record of real addresses.
	RegionCacheSalt string `toml:"regionCacheSalt"`

	// HeatmapPath, if set, is where the map stage writes its region heatmap.
	HeatmapPath string `toml:"heatmapPath"`
}

// DefaultMaximumBufferSizeInBytes matches the upstream Python default of
// four gigabytes.
const DefaultMaximumBufferSizeInBytes = 4_000_000_000

// Load parses the TOML file at path into a Config, filling in defaults for
// any field TOML left at its zero value.
func Load(path string) (Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decoding %q: %w", path, err)
	}
	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.BaseFolderPath == "" {
		cfg.BaseFolderPath = DefaultBaseFolderPath()
	}
	if cfg.OperationType == "" {
		cfg.OperationType = "REST.GET.OBJECT"
	}
	if len(cfg.ObjectKeyParentsToReduce) == 0 {
		cfg.ObjectKeyParentsToReduce = []string{"blobs", "zarr"}
	}
	if cfg.MaximumBufferSizeInBytes <= 0 {
		cfg.MaximumBufferSizeInBytes = DefaultMaximumBufferSizeInBytes
	}
	if cfg.NumberOfWorkers <= 0 {
		cfg.NumberOfWorkers = 1
	}
	if cfg.Version == "" {
		cfg.Version = "0.0.0-dev"
	}
}

// FastPathEligible reports whether this configuration's field/key-parent
// selection matches the restrictive assumptions the fast-path line reducer
// is allowed to make.
func (c Config) FastPathEligible() bool {
	if len(c.ObjectKeyParentsToReduce) != 2 {
		return false
	}
	seen := map[string]bool{}
	for _, p := range c.ObjectKeyParentsToReduce {
		seen[p] = true
	}
	return seen["blobs"] && seen["zarr"]
}
