package logger

import (
	"time"

	"go.uber.org/zap"
)

// Field type alias for convenience
type Field = zap.Field

// Field keys with a fixed meaning. The OTEL bridge maps several of them onto
// semantic convention attribute names.
const (
	KeyRequestID  = "request_id"
	KeyTraceID    = "trace_id"
	KeySpanID     = "span_id"
	KeyMethod     = "method"
	KeyPath       = "path"
	KeyQuery      = "query"
	KeyRoute      = "route"
	KeyStatusCode = "status_code"
	KeyClientIP   = "client_ip"
	KeyUserAgent  = "user_agent"
	KeyUserID     = "user_id"
)

// Generic constructors, re-exported from zap.
var (
	String     = zap.String
	Strings    = zap.Strings
	Int        = zap.Int
	Int64      = zap.Int64
	Bool       = zap.Bool
	Time       = zap.Time
	Duration   = zap.Duration
	Error      = zap.Error
	Any        = zap.Any
	ByteString = zap.ByteString
	Stringer   = zap.Stringer
)

// HTTP request fields

func RequestID(id string) Field { return String(KeyRequestID, id) }
func TraceID(id string) Field { return String(KeyTraceID, id) }
func SpanID(id string) Field { return String(KeySpanID, id) }
func Method(method string) Field { return String(KeyMethod, method) }
func Path(path string) Field { return String(KeyPath, path) }
func Query(q string) Field { return String(KeyQuery, q) }
func Route(route string) Field { return String(KeyRoute, route) }
func StatusCode(code int) Field { return Int(KeyStatusCode, code) }
func ClientIP(ip string) Field { return String(KeyClientIP, ip) }
func UserAgent(ua string) Field { return String(KeyUserAgent, ua) }
func Latency(d time.Duration) Field { return Duration("latency", d) }

// Component names the subsystem writing the entry, e.g. "identity" or "snapshot".
func Component(name string) Field {
	return String("component", name)
}

// Operation names the store operation in progress, e.g. "create_user".
func Operation(name string) Field {
	return String("operation", name)
}

// Identity store fields

// UserID constructs a field for user ID
func UserID(id string) Field {
	return String(KeyUserID, id)
}

func Username(name string) Field {
	return String("username", name)
}

// Table constructs a field for a logical table name (users, usernames, ...)
func Table(name string) Field {
	return String("table", name)
}

func PartitionKey(pk string) Field {
	return String("partition_key", pk)
}

func RowKey(rk string) Field {
	return String("row_key", rk)
}

// LoginProvider constructs a field for an external login provider name
func LoginProvider(provider string) Field {
	return String("login_provider", provider)
}

// Index constructs a field for a secondary index name
func Index(name string) Field {
	return String("index", name)
}
