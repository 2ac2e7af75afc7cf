package s3log

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Diagnostic categories a reduce call may report through an ErrorReporter.
const (
	CategoryLineReduction     = "line_reduction"
	CategoryFastLineReduction = "fast_line_reduction"
	CategoryLine              = "line"
)

// ReducedRecord is the minimal information kept from one accepted raw log
// line: when the request happened, who made it, what it touched, and how
// much data moved.
type ReducedRecord struct {
	Timestamp string // local time, seconds resolution, ISO-8601 without an offset
	IPAddress string
	ObjectKey string
	BytesSent int64
}

// ReducedHeader is the header row written once at the top of every non-empty
// reduced file.
const ReducedHeader = "timestamp\tip_address\tobject_key\tbytes_sent\n"

// FormatLine renders r as the tab-separated row written to a reduced file.
func (r ReducedRecord) FormatLine() string {
	return fmt.Sprintf("%s\t%s\t%s\t%d\n", r.Timestamp, r.IPAddress, r.ObjectKey, r.BytesSent)
}

// IPExcluder reports whether traffic from an IP address should be dropped
// before it is ever reduced.
type IPExcluder interface {
	Excluded(ip string) bool
}

type noExclusions struct{}

func (noExclusions) Excluded(string) bool { return false }

// NoExclusions is an IPExcluder that never excludes anything.
var NoExclusions IPExcluder = noExclusions{}

// ErrorReporter receives a diagnostic message for a line that could not be
// (fully) reduced. Implementations are expected to append the message to a
// category- and task-scoped file rather than fail the batch.
type ErrorReporter interface {
	Report(category, taskID, message string)
}

// Options configures one line reduction.
type Options struct {
	// OperationType is the single S3 operation (e.g. "REST.GET.OBJECT")
	// lines are filtered down to.
	OperationType string

	// ObjectKeyHandler normalizes the parsed object key and may reject a
	// line outright by returning ok=false.
	ObjectKeyHandler ObjectKeyHandler

	// ExcludedIPs is consulted on every candidate line; nil is treated as
	// NoExclusions.
	ExcludedIPs IPExcluder

	// ErrorReporter receives diagnostics; nil discards them.
	ErrorReporter ErrorReporter

	// TaskID labels diagnostics with the worker or file that produced them.
	TaskID string

	// FastPath enables the restrictive-but-fast positional reducer, falling
	// back to the general tokenizer-based reducer whenever the line's shape
	// doesn't match the fast path's assumptions.
	FastPath bool
}

func (o Options) objectKeyHandler() ObjectKeyHandler {
	if o.ObjectKeyHandler != nil {
		return o.ObjectKeyHandler
	}
	return IdentityObjectKeyHandler
}

func (o Options) excludedIPs() IPExcluder {
	if o.ExcludedIPs != nil {
		return o.ExcludedIPs
	}
	return NoExclusions
}

func (o Options) report(category, message string) {
	if o.ErrorReporter == nil {
		return
	}
	o.ErrorReporter.Report(category, o.TaskID, message)
}

// ReduceLine reduces one raw S3 access log line to a ReducedRecord, or
// reports ok=false if the line was filtered out, malformed, or excluded.
// Malformed and unexpected-shape lines are reported through
// opts.ErrorReporter rather than returned as an error, mirroring the rest of
// this pipeline's policy of isolating one bad line from the whole batch.
func ReduceLine(line string, opts Options) (ReducedRecord, bool) {
	if opts.FastPath {
		if rec, accepted, fallback := fastReduceLine(line, opts); !fallback {
			return rec, accepted
		}
	}
	return slowReduceLine(line, opts)
}

// The bracketed timestamp field contains a literal space (between the local
// time and the UTC offset), so it occupies two whitespace-delimited tokens
// in a naive space split. Every raw field from the IP address onward is
// therefore shifted one position later than its logical (tokenized) index.
const (
	rawTimestampIndex = 2
	rawIPIndex        = 4
	rawOperationIndex = 7
	rawObjectKeyIndex = 8
)

// fastReduceLine makes restrictive but relatively safe assumptions about the
// line's shape, avoiding the tokenizer entirely. fallback is true when the
// line's shape is ambiguous enough that the caller should retry it through
// slowReduceLine; accepted lines and cleanly-rejected lines both set
// fallback to false.
func fastReduceLine(line string, opts Options) (rec ReducedRecord, accepted bool, fallback bool) {
	parts := strings.Split(line, " ")
	if len(parts) <= rawObjectKeyIndex {
		opts.report(CategoryFastLineReduction, fmt.Sprintf("line has too few space-delimited tokens for the fast path: %q", line))
		return ReducedRecord{}, false, false
	}

	ip := parts[rawIPIndex]
	if opts.excludedIPs().Excluded(ip) {
		return ReducedRecord{}, false, false
	}

	if parts[rawOperationIndex] != opts.OperationType {
		return ReducedRecord{}, false, false
	}

	objectKey, ok := fastObjectKey(parts[rawObjectKeyIndex])
	if !ok {
		return ReducedRecord{}, false, false
	}

	afterQuote := strings.Split(line, `" `)
	if len(afterQuote) < 2 {
		opts.report(CategoryFastLineReduction, fmt.Sprintf("no closing quote block found in line: %q", line))
		return ReducedRecord{}, false, false
	}

	postQuote := strings.Split(afterQuote[1], " ")
	if len(postQuote) < 3 {
		opts.report(CategoryFastLineReduction, fmt.Sprintf("post-quote block too short in line: %q", line))
		return ReducedRecord{}, false, false
	}

	statusCode := postQuote[0]
	bytesSentField := postQuote[2]

	if isAllDigits(statusCode) && len(statusCode) == 3 && statusCode[0] != '2' {
		return ReducedRecord{}, false, false
	}
	if len(postQuote) != 7 || !isAllDigits(statusCode) || !isAllDigits(bytesSentField) {
		// Ambiguous shape; let the general-purpose reducer sort it out.
		return ReducedRecord{}, false, true
	}

	// Timezone is ignored in the fast path; it is asserted only by the slow
	// path's diagnostic check.
	t, err := time.Parse("[02/Jan/2006:15:04:05", parts[rawTimestampIndex])
	if err != nil {
		opts.report(CategoryFastLineReduction, fmt.Sprintf("could not parse timestamp %q: %v", parts[rawTimestampIndex], err))
		return ReducedRecord{}, false, false
	}

	rec = ReducedRecord{
		Timestamp: t.Format("2006-01-02T15:04:05"),
		IPAddress: ip,
		ObjectKey: objectKey,
		BytesSent: parseBytesSent(bytesSentField),
	}
	return rec, true, false
}

// fastObjectKey applies the closed blobs/zarr object-key restriction without
// going through the ObjectKeyHandler abstraction, matching the DANDI-profile
// fast path's baked-in assumption.
func fastObjectKey(fullObjectKey string) (string, bool) {
	slash := indexByte(fullObjectKey, '/')
	if slash < 0 {
		return "", false
	}
	switch fullObjectKey[:slash] {
	case "blobs":
		return fullObjectKey, true
	case "zarr":
		rest := fullObjectKey[slash+1:]
		if next := indexByte(rest, '/'); next >= 0 {
			return fullObjectKey[:slash] + "/" + rest[:next], true
		}
		return fullObjectKey, true
	default:
		return "", false
	}
}

// slowReduceLine tokenizes the line in full and applies every validation and
// filter, at the cost of the regexp-based tokenizer and quote repair.
func slowReduceLine(line string, opts Options) (ReducedRecord, bool) {
	tokens, err := Tokenize(line)
	if err != nil {
		opts.report(CategoryLine, fmt.Sprintf("could not tokenize line: %v", err))
		return ReducedRecord{}, false
	}

	statusCode := tokens[Field.HTTPStatusCode]
	if !isAllDigits(statusCode) {
		opts.report(CategoryLine, fmt.Sprintf("unexpected status code %q parsed from line %q", statusCode, line))
		return ReducedRecord{}, false
	}

	operation := tokens[Field.Operation]
	if !IsKnownOperation(operation) {
		opts.report(CategoryLine, fmt.Sprintf("unexpected operation %q parsed from line %q", operation, line))
		return ReducedRecord{}, false
	}

	timestamp := tokens[Field.Timestamp]
	if len(timestamp) < 5 || timestamp[len(timestamp)-5:] != "+0000" {
		opts.report(CategoryLine, fmt.Sprintf("unexpected time shift parsed from line %q", line))
		// Not fatal; DANDI has only ever observed +0000 but proceeding is safe.
	}

	if statusCode[0] != '2' {
		return ReducedRecord{}, false
	}
	if operation != opts.OperationType {
		return ReducedRecord{}, false
	}
	if opts.excludedIPs().Excluded(tokens[Field.IPAddress]) {
		return ReducedRecord{}, false
	}

	handledKey, ok := opts.objectKeyHandler().Handle(tokens[Field.ObjectKey])
	if !ok {
		return ReducedRecord{}, false
	}

	handledTimestamp, err := parseLocalTimestamp(timestamp)
	if err != nil {
		opts.report(CategoryLine, fmt.Sprintf("could not parse timestamp %q from line %q: %v", timestamp, line, err))
		return ReducedRecord{}, false
	}

	return ReducedRecord{
		Timestamp: handledTimestamp,
		IPAddress: tokens[Field.IPAddress],
		ObjectKey: handledKey,
		BytesSent: parseBytesSent(tokens[Field.BytesSent]),
	}, true
}

// parseLocalTimestamp strips the trailing " +ZZZZ" offset and parses the
// remainder, returning ISO-8601 seconds-resolution local time.
func parseLocalTimestamp(timestamp string) (string, error) {
	if len(timestamp) < 6 {
		return "", fmt.Errorf("s3log: timestamp %q too short to contain a UTC offset", timestamp)
	}
	local := timestamp[:len(timestamp)-6]
	t, err := time.Parse("02/Jan/2006:15:04:05", local)
	if err != nil {
		return "", err
	}
	return t.Format("2006-01-02T15:04:05"), nil
}

// parseBytesSent converts the bytes_sent field, mapping the "-" sentinel
// (emitted for e.g. 304 Not Modified responses) to zero.
func parseBytesSent(field string) int64 {
	if field == "-" {
		return 0
	}
	n, err := strconv.ParseInt(field, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
