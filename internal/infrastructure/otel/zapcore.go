package otel

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"go.opentelemetry.io/otel/log"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zapcore"

	"github.com/bravo68web/tableidentity/pkg/logger"
)

const flushTimeout = 5 * time.Second

// attributeKeys renames logger field keys to their semantic convention
// names. Keys not listed are exported unchanged.
var attributeKeys = map[string]string{
	logger.KeyUserID:     "enduser.id",
	logger.KeyMethod:     string(semconv.HTTPRequestMethodKey),
	logger.KeyPath:       string(semconv.URLPathKey),
	logger.KeyQuery:      string(semconv.URLQueryKey),
	logger.KeyRoute:      string(semconv.HTTPRouteKey),
	logger.KeyStatusCode: string(semconv.HTTPResponseStatusCodeKey),
	logger.KeyClientIP:   string(semconv.ClientAddressKey),
	logger.KeyUserAgent:  string(semconv.UserAgentOriginalKey),
	"error":              string(semconv.ExceptionMessageKey),
}

// ZapCore is a zapcore.Core that emits every entry as an OTEL log record.
// Entries carrying trace_id and span_id fields are attached to that span.
type ZapCore struct {
	zapcore.LevelEnabler
	provider *Provider
	logger   log.Logger
	fields   []zapcore.Field
}

// NewZapCore creates a new ZapCore that exports logs to OTEL
func NewZapCore(provider *Provider, level zapcore.Level) *ZapCore {
	return &ZapCore{
		LevelEnabler: level,
		provider:     provider,
		logger:       provider.Logger(),
	}
}

func (c *ZapCore) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = append(c.fields[:len(c.fields):len(c.fields)], fields...)
	return &clone
}

func (c *ZapCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func (c *ZapCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	ctx := spanContext(enc.Fields)

	var record log.Record
	record.SetTimestamp(entry.Time)
	record.SetObservedTimestamp(time.Now())
	record.SetSeverity(severity(entry.Level))
	record.SetSeverityText(entry.Level.CapitalString())
	record.SetBody(log.StringValue(entry.Message))

	if entry.LoggerName != "" {
		record.AddAttributes(log.String("logger", entry.LoggerName))
	}
	if entry.Caller.Defined {
		record.AddAttributes(
			log.String(string(semconv.CodeFilepathKey), entry.Caller.File),
			log.Int(string(semconv.CodeLineNumberKey), entry.Caller.Line),
			log.String(string(semconv.CodeFunctionKey), entry.Caller.Function),
		)
	}
	if entry.Stack != "" {
		record.AddAttributes(log.String(string(semconv.ExceptionStacktraceKey), entry.Stack))
	}
	for key, val := range enc.Fields {
		if name, ok := attributeKeys[key]; ok {
			key = name
		}
		record.AddAttributes(log.KeyValue{Key: key, Value: value(val)})
	}

	c.logger.Emit(ctx, record)
	return nil
}

func (c *ZapCore) Sync() error {
	if c.provider == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	return c.provider.ForceFlush(ctx)
}

// spanContext removes the trace_id and span_id fields written by
// logger.WithContext and returns a context carrying that span.
func spanContext(fields map[string]interface{}) context.Context {
	ctx := context.Background()
	traceHex, _ := fields[logger.KeyTraceID].(string)
	spanHex, _ := fields[logger.KeySpanID].(string)
	traceID, err := trace.TraceIDFromHex(traceHex)
	if err != nil {
		return ctx
	}
	spanID, err := trace.SpanIDFromHex(spanHex)
	if err != nil {
		return ctx
	}
	delete(fields, logger.KeyTraceID)
	delete(fields, logger.KeySpanID)
	return trace.ContextWithSpanContext(ctx, trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))
}

func severity(level zapcore.Level) log.Severity {
	switch {
	case level <= zapcore.DebugLevel:
		return log.SeverityDebug
	case level == zapcore.InfoLevel:
		return log.SeverityInfo
	case level == zapcore.WarnLevel:
		return log.SeverityWarn
	case level <= zapcore.DPanicLevel:
		return log.SeverityError
	default:
		return log.SeverityFatal
	}
}

// value converts what zapcore.MapObjectEncoder stores into a log value.
// Namespaces and marshaled objects arrive as nested maps and slices.
func value(v interface{}) log.Value {
	switch v := v.(type) {
	case nil:
		return log.Value{}
	case string:
		return log.StringValue(v)
	case bool:
		return log.BoolValue(v)
	case int:
		return log.IntValue(v)
	case int8, int16, int32, int64:
		return log.Int64Value(reflect.ValueOf(v).Int())
	case uint, uint8, uint16, uint32, uint64, uintptr:
		return log.Int64Value(int64(reflect.ValueOf(v).Uint()))
	case float32:
		return log.Float64Value(float64(v))
	case float64:
		return log.Float64Value(v)
	case []byte:
		return log.BytesValue(v)
	case time.Time:
		return log.StringValue(v.Format(time.RFC3339Nano))
	case time.Duration:
		return log.StringValue(v.String())
	case error:
		return log.StringValue(v.Error())
	case map[string]interface{}:
		kvs := make([]log.KeyValue, 0, len(v))
		for k, e := range v {
			kvs = append(kvs, log.KeyValue{Key: k, Value: value(e)})
		}
		return log.MapValue(kvs...)
	case []interface{}:
		vals := make([]log.Value, len(v))
		for i, e := range v {
			vals[i] = value(e)
		}
		return log.SliceValue(vals...)
	case fmt.Stringer:
		return log.StringValue(v.String())
	default:
		return log.StringValue(fmt.Sprintf("%+v", v))
	}
}

// NewLogger builds a logger that writes to the local sink of cfg and
// exports to provider. Closing it shuts the provider down.
func NewLogger(cfg *logger.Config, provider *Provider) (*logger.Logger, error) {
	local, closers, err := logger.LocalCore(cfg)
	if err != nil {
		return nil, err
	}
	core := zapcore.NewTee(local, NewZapCore(provider, logger.ParseLevel(cfg.Level)))
	return logger.NewWithCore(cfg, core, append(closers, provider)...), nil
}

var _ zapcore.Core = (*ZapCore)(nil)
