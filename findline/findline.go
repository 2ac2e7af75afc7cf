// Package findline locates a representative raw log line for a given
// request type, for use as a fixture when writing or debugging parser
// tests.
package findline

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

// maximumLinesPerRequestType caps the scan: every line of a visited file is
// collected, and no further files are visited once more than this many
// lines of the requested type have been collected, so a handful of enormous
// log files don't force a full read of everything on disk.
const maximumLinesPerRequestType = 5

// rawOperationIndex is the space-split index of the "REST.GET.OBJECT"-style
// operation field in a raw (untokenized) log line, matching the same
// raw-index offset the fast reduction path uses.
const rawOperationIndex = 7

// rawIPIndex is the space-split index of the client IP address field.
const rawIPIndex = 4

// anonymizedIP replaces the real client address in any line this package
// returns, since example lines are meant to be safe to commit into test
// fixtures.
const anonymizedIP = "192.0.2.0"

// estimationPrefixLength caps how much of each line is inspected before an
// operation type is extracted: enough to reliably reach the operation
// field, cheap enough to avoid allocating on every line of a huge file.
const estimationPrefixLength = 170

// Find returns a randomly chosen line, with its IP address anonymized, of
// the given requestType (e.g. "GET", "PUT", "HEAD") from the raw log files
// under rawRoot. Log files are visited in a seed-determined random order
// until enough example lines of the requested type have been collected.
func Find(rawRoot string, requestType string, seed int64) (string, error) {
	var paths []string
	err := filepath.WalkDir(rawRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == ".log" {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("findline: walking %q: %w", rawRoot, err)
	}
	if len(paths) == 0 {
		return "", fmt.Errorf("findline: no .log files found under %q", rawRoot)
	}

	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(paths), func(i, j int) { paths[i], paths[j] = paths[j], paths[i] })

	candidates := map[string][]string{}
	for _, path := range paths {
		if err := collectFromFile(path, candidates); err != nil {
			return "", err
		}
		if len(candidates[requestType]) > maximumLinesPerRequestType {
			break
		}
	}

	pool := candidates[requestType]
	if len(pool) == 0 {
		return "", fmt.Errorf("findline: no example line found for request type %q under %q", requestType, rawRoot)
	}

	chosen := pool[rng.Intn(len(pool))]
	return anonymize(chosen), nil
}

func collectFromFile(path string, candidates map[string][]string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("findline: opening %q: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		operationType, ok := estimateOperationType(line)
		if !ok {
			continue
		}
		candidates[operationType] = append(candidates[operationType], line)
	}
	return scanner.Err()
}

func estimateOperationType(line string) (string, bool) {
	prefix := line
	if len(prefix) > estimationPrefixLength {
		prefix = prefix[:estimationPrefixLength]
	}
	fields := strings.Split(prefix, " ")
	if len(fields) <= rawOperationIndex {
		return "", false
	}
	parts := strings.Split(fields[rawOperationIndex], ".")
	if len(parts) != 3 {
		return "", false
	}
	return parts[1], true
}

func anonymize(line string) string {
	fields := strings.Split(line, " ")
	if len(fields) <= rawIPIndex {
		return line
	}
	fields[rawIPIndex] = anonymizedIP
	return strings.Join(fields, " ")
}
