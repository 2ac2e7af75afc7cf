// Package georegion resolves an IP address to a coarse, privacy-preserving
// geographic region and persists the lookup as a salted hash so that raw IP
// addresses never need to be written to disk alongside the result.
package georegion

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Resolver looks up the country/region for an IP address. Production
// callers wire in an IP-intelligence provider; tests can use a
// StaticResolver instead.
type Resolver interface {
	Resolve(ip string) (country, region string, err error)
}

// Cache maps a salted IP hash to its previously resolved region string,
// avoiding repeat provider lookups (and therefore repeat exposure of the
// raw IP) across runs.
type Cache struct {
	salt []byte

	mu   sync.Mutex
	data map[string]string
}

// NewCache returns an empty Cache salted with salt. The salt should be
// stable across runs that share a persisted cache file, and need not be
// secret beyond making the hash non-reversible by casual inspection.
func NewCache(salt []byte) *Cache {
	return &Cache{salt: salt, data: make(map[string]string)}
}

// LoadCache reads a previously-saved cache from path. A missing file is not
// an error; it is treated as an empty cache.
func LoadCache(path string, salt []byte) (*Cache, error) {
	c := NewCache(salt)

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("georegion: reading %q: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &c.data); err != nil {
		return nil, fmt.Errorf("georegion: parsing %q: %w", path, err)
	}
	return c, nil
}

// Save writes the cache to path as YAML.
func (c *Cache) Save(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := yaml.Marshal(c.data)
	if err != nil {
		return fmt.Errorf("georegion: marshaling cache: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("georegion: writing %q: %w", path, err)
	}
	return nil
}

// hash returns the salted SHA-1 digest of ip, hex-encoded.
func (c *Cache) hash(ip string) string {
	h := sha1.New()
	h.Write([]byte(ip))
	h.Write(c.salt)
	return hex.EncodeToString(h.Sum(nil))
}

// Region returns the cached or freshly resolved region for ip, caching the
// result under the salted hash of ip rather than ip itself.
func (c *Cache) Region(ip string, resolver Resolver) (string, error) {
	key := c.hash(ip)

	c.mu.Lock()
	if region, ok := c.data[key]; ok {
		c.mu.Unlock()
		return region, nil
	}
	c.mu.Unlock()

	country, region, err := resolver.Resolve(ip)
	if err != nil {
		return "", fmt.Errorf("georegion: resolving %q: %w", ip, err)
	}

	resolved := combine(country, region)

	c.mu.Lock()
	c.data[key] = resolved
	c.mu.Unlock()

	return resolved, nil
}

func combine(country, region string) string {
	switch {
	case country == "" && region == "":
		return "unknown"
	case country == "":
		return region
	case region == "":
		return country
	default:
		return country + "/" + region
	}
}

// StaticResolver is a Resolver backed by a fixed lookup table, useful for
// tests and offline map-stage runs where no IP-intelligence provider is
// configured.
type StaticResolver map[string][2]string

// Resolve implements Resolver.
func (s StaticResolver) Resolve(ip string) (string, string, error) {
	entry, ok := s[ip]
	if !ok {
		return "", "", nil
	}
	return entry[0], entry[1], nil
}
