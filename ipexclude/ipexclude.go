// Package ipexclude maintains a set of IP addresses and CIDR ranges whose
// traffic should be dropped before a log line is ever reduced, such as known
// internal health checks or CI runners.
package ipexclude

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/alphadose/haxmap"
)

// Set is a concurrent, read-mostly membership test over individual IP
// addresses and CIDR ranges. It satisfies s3log.IPExcluder.
//
// Exact addresses are tracked in a haxmap for O(1) lookups, the same
// concurrent map the rest of this pipeline uses for its hot-path registries;
// CIDR ranges are checked against a small slice since real deployments carry
// at most a handful of them.
type Set struct {
	exact  *haxmap.Map[string, bool]
	ranges []*net.IPNet
}

// New returns an empty Set.
func New() *Set {
	return &Set{exact: haxmap.New[string, bool]()}
}

// Add registers entry, which may be a bare IP address or a CIDR range.
func (s *Set) Add(entry string) error {
	if _, ipnet, err := net.ParseCIDR(entry); err == nil {
		s.ranges = append(s.ranges, ipnet)
		return nil
	}
	if ip := net.ParseIP(entry); ip != nil {
		s.exact.Set(entry, true)
		return nil
	}
	return fmt.Errorf("ipexclude: %q is neither a valid IP address nor a CIDR range", entry)
}

// AddAll registers every entry, stopping at the first invalid one.
func (s *Set) AddAll(entries []string) error {
	for _, entry := range entries {
		if err := s.Add(entry); err != nil {
			return err
		}
	}
	return nil
}

// Excluded reports whether ip matches an exact address or falls inside a
// registered CIDR range.
func (s *Set) Excluded(ip string) bool {
	if excluded, ok := s.exact.Get(ip); ok && excluded {
		return true
	}
	if len(s.ranges) == 0 {
		return false
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, r := range s.ranges {
		if r.Contains(parsed) {
			return true
		}
	}
	return false
}

// githubMetaEndpoint is the well-known source of GitHub Actions runner
// CIDR ranges.
const githubMetaEndpoint = "https://api.github.com/meta"

// githubSkipKeys are githubMeta response fields that are not lists of CIDR
// ranges.
var githubSkipKeys = map[string]bool{
	"domains":                             true,
	"ssh_key_fingerprints":                true,
	"verifiable_password_authentication":  true,
	"ssh_keys":                            true,
}

// FetchGitHubActionsRanges retrieves the current GitHub-published CIDR
// ranges (actions runners among them) and adds every IPv4 range to s. client
// is injected so callers can substitute a fake transport in tests; passing
// nil uses http.DefaultClient.
func FetchGitHubActionsRanges(client *http.Client, s *Set) error {
	return fetchGitHubActionsRangesFrom(githubMetaEndpoint, client, s)
}

func fetchGitHubActionsRangesFrom(url string, client *http.Client, s *Set) error {
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("ipexclude: fetching %q: %w", url, err)
	}
	defer resp.Body.Close()

	var meta map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return fmt.Errorf("ipexclude: decoding GitHub meta response: %w", err)
	}

	for key, raw := range meta {
		if githubSkipKeys[key] {
			continue
		}
		var ranges []string
		if err := json.Unmarshal(raw, &ranges); err != nil {
			continue // not a list of strings
		}
		for _, cidr := range ranges {
			if strings.Contains(cidr, "::") {
				continue // IPv6; this set only tracks IPv4 ranges
			}
			if _, _, err := net.ParseCIDR(cidr); err != nil {
				continue // not a CIDR entry
			}
			if err := s.Add(cidr); err != nil {
				return err
			}
		}
	}
	return nil
}
