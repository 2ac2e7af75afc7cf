// Package catalog resolves an object key produced by the reduce stage
// (e.g. "blobs/1d/8a/1d8a9a...nwb" or "zarr/9e2") to the dataset and version
// it belongs to, so the map stage can group per-object access counts into
// per-dataset-version summaries.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
)

// Asset is one blob or zarr entry's place in the archive's dataset
// hierarchy.
type Asset struct {
	ObjectKey  string `json:"object_key"`
	DatasetID  string `json:"dataset_id"`
	Version    string `json:"version"`
	AssetPath  string `json:"asset_path"`
}

// Client resolves object keys against the archive's catalog of known
// datasets, versions, and assets.
type Client interface {
	// Lookup returns the Asset for objectKey, or ok=false if the archive
	// has no record of it (e.g. it was deleted, or belongs to a
	// never-published draft).
	Lookup(objectKey string) (asset Asset, ok bool)
}

// StaticClient is a Client backed by a fixed, in-memory table, suitable for
// tests and for small archives where reloading a JSON snapshot per run is
// cheap enough.
type StaticClient map[string]Asset

// Lookup implements Client.
func (c StaticClient) Lookup(objectKey string) (Asset, bool) {
	asset, ok := c[objectKey]
	return asset, ok
}

// LoadStaticClient reads a JSON array of Asset records from path and
// indexes them by ObjectKey.
func LoadStaticClient(path string) (StaticClient, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: reading %q: %w", path, err)
	}

	var assets []Asset
	if err := json.Unmarshal(raw, &assets); err != nil {
		return nil, fmt.Errorf("catalog: parsing %q: %w", path, err)
	}

	client := make(StaticClient, len(assets))
	for _, asset := range assets {
		client[asset.ObjectKey] = asset
	}
	return client, nil
}
