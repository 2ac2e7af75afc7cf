// Package s3log implements the raw-line tokenizer, the line reducer, and the
// shared schema/registry types for one S3 server-access-log line.
//
// The package is split across three files: schema.go (C7 — field schema,
// operation registry, object-key handler), tokenizer.go (C2 — positional
// field splitting with embedded-quote repair), and reduce.go (C3 — the
// fast-path/slow-path line reducer).
package s3log

import "github.com/alphadose/haxmap"

// Field names the 25 positional fields of a normalized S3 server-access-log
// line, in order. A raw line with 24 fields is padded with a trailing "-";
// a raw line with 26 fields has its last field discarded before reaching
// this schema.
var Field = struct {
	BucketOwner     int
	Bucket          int
	Timestamp       int
	IPAddress       int
	Requester       int
	RequestID       int
	Operation       int
	ObjectKey       int
	RequestURI      int
	HTTPStatusCode  int
	ErrorCode       int
	BytesSent       int
	ObjectSize      int
	TotalTime       int
	TurnAroundTime  int
	Referrer        int
	UserAgent       int
	VersionID       int
	HostID          int
	SigV            int
	CipherSuite     int
	AuthType        int
	Endpoint        int
	TLSVersion      int
	AccessPointARN  int
}{
	BucketOwner:    0,
	Bucket:         1,
	Timestamp:      2,
	IPAddress:      3,
	Requester:      4,
	RequestID:      5,
	Operation:      6,
	ObjectKey:      7,
	RequestURI:     8,
	HTTPStatusCode: 9,
	ErrorCode:      10,
	BytesSent:      11,
	ObjectSize:     12,
	TotalTime:      13,
	TurnAroundTime: 14,
	Referrer:       15,
	UserAgent:      16,
	VersionID:      17,
	HostID:         18,
	SigV:           19,
	CipherSuite:    20,
	AuthType:       21,
	Endpoint:       22,
	TLSVersion:     23,
	AccessPointARN: 24,
}

// FieldNames lists the 25 positional field names in order, used only for
// diagnostics and documentation — lookups against an actual parsed line
// always go through the Field index struct above.
var FieldNames = []string{
	"bucket_owner", "bucket", "timestamp", "ip_address", "requester",
	"request_id", "operation", "object_key", "request_uri", "http_status_code",
	"error_code", "bytes_sent", "object_size", "total_time", "turn_around_time",
	"referrer", "user_agent", "version_id", "host_id", "sigv", "cipher_suite",
	"auth_type", "endpoint", "tls_version", "access_point_arn",
}

// MinFields and MaxFields bound the accepted tokenized field counts.
const (
	MinFields = 24
	MaxFields = 26
)

// knownOperationTypes is the closed registry of S3 operation strings this
// system recognizes. The slow-path reducer reports a line carrying an
// operation outside this set via a diagnostic and drops it.
var knownOperationTypes = []string{
	"REST.GET.OBJECT", "REST.PUT.OBJECT", "REST.HEAD.OBJECT", "REST.POST.OBJECT",
	"REST.DELETE.OBJECT", "REST.COPY.OBJECT", "REST.COPY.OBJECT_GET",
	"REST.COPY.PART", "REST.OPTIONS.PREFLIGHT", "REST.OPTIONS.OBJECT",
	"REST.OPTIONS.BUCKET", "REST.GET.BUCKET", "REST.PUT.BUCKET",
	"REST.HEAD.BUCKET", "REST.DELETE.BUCKET", "REST.POST.BUCKET",
	"REST.GET.BUCKETVERSIONS", "REST.GET.BUCKETPOLICY", "REST.PUT.BUCKETPOLICY",
	"REST.DELETE.BUCKETPOLICY", "REST.GET.BUCKETACL", "REST.PUT.BUCKETACL",
	"REST.GET.OBJECTACL", "REST.PUT.OBJECTACL", "REST.GET.BUCKETCORS",
	"REST.PUT.BUCKETCORS", "REST.DELETE.BUCKETCORS", "REST.GET.BUCKETLOGGING",
	"REST.PUT.BUCKETLOGGING", "REST.GET.BUCKETNOTIFICATION",
	"REST.PUT.BUCKETNOTIFICATION", "REST.GET.BUCKETTAGGING",
	"REST.PUT.BUCKETTAGGING", "REST.DELETE.BUCKETTAGGING",
	"REST.GET.BUCKETVERSIONING", "REST.PUT.BUCKETVERSIONING",
	"REST.GET.BUCKETWEBSITE", "REST.PUT.BUCKETWEBSITE",
	"REST.DELETE.BUCKETWEBSITE", "REST.GET.LIFECYCLE", "REST.PUT.LIFECYCLE",
	"REST.DELETE.LIFECYCLE", "REST.GET.ENCRYPTION", "REST.PUT.ENCRYPTION",
	"BATCH.DELETE.OBJECT", "WEBSITE.GET.OBJECT",
}

// knownOperations is a read-mostly concurrent set, backed by the same
// concurrent hash map the upstream example pack uses for per-IP traffic
// counters: every worker goroutine in the batch scheduler queries it on
// essentially every accepted line, so a sync.Mutex-guarded map would become
// a contention point under parallel reduction.
var knownOperations = buildKnownOperations()

func buildKnownOperations() *haxmap.Map[string, bool] {
	m := haxmap.New[string, bool](uintptr(len(knownOperationTypes)))
	for _, op := range knownOperationTypes {
		m.Set(op, true)
	}
	return m
}

// IsKnownOperation reports whether op is in the closed registry of S3
// operation types this system recognizes.
func IsKnownOperation(op string) bool {
	known, _ := knownOperations.Get(op)
	return known
}

// ObjectKeyHandler normalizes a raw object key into the logical key that is
// written to the reduced record. A trivial identity handler is the default;
// the DANDI profile collapses Zarr shard keys.
type ObjectKeyHandler interface {
	Handle(objectKey string) (handled string, ok bool)
}

// ObjectKeyHandlerFunc adapts a plain function to the ObjectKeyHandler
// interface.
type ObjectKeyHandlerFunc func(objectKey string) (string, bool)

// Handle implements ObjectKeyHandler.
func (f ObjectKeyHandlerFunc) Handle(objectKey string) (string, bool) {
	return f(objectKey)
}

// IdentityObjectKeyHandler passes every object key through unchanged.
var IdentityObjectKeyHandler ObjectKeyHandler = ObjectKeyHandlerFunc(func(objectKey string) (string, bool) {
	return objectKey, true
})

// DANDIObjectKeyHandler collapses Zarr shard keys (zarr/<id>/<path>) to
// zarr/<id> and leaves blob keys (blobs/<a>/<b>/<id>) untouched. Any other
// top-level prefix is rejected (ok=false), matching the DANDI profile's
// object_key_parents_to_reduce restriction to {blobs, zarr}.
var DANDIObjectKeyHandler ObjectKeyHandler = ObjectKeyHandlerFunc(dandiObjectKeyHandler)

func dandiObjectKeyHandler(objectKey string) (string, bool) {
	slash := indexByte(objectKey, '/')
	if slash < 0 {
		return "", false
	}
	parent := objectKey[:slash]
	switch parent {
	case "blobs":
		return objectKey, true
	case "zarr":
		// zarr/<id>/<path...> -> zarr/<id>
		rest := objectKey[slash+1:]
		nextSlash := indexByte(rest, '/')
		if nextSlash < 0 {
			return objectKey, true
		}
		return parent + "/" + rest[:nextSlash], true
	default:
		return "", false
	}
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}
