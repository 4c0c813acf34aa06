package otel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/bravo68web/tableidentity/internal/config"
	"github.com/bravo68web/tableidentity/pkg/logger"
)

type recordingExporter struct {
	mu      sync.Mutex
	records []sdklog.Record
}

func (e *recordingExporter) Export(_ context.Context, records []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range records {
		e.records = append(e.records, r.Clone())
	}
	return nil
}

func (e *recordingExporter) Shutdown(context.Context) error   { return nil }
func (e *recordingExporter) ForceFlush(context.Context) error { return nil }

func newTestProvider(t *testing.T) (*Provider, *recordingExporter) {
	p, exp, _ := newRecordingProvider(t)
	return p, exp
}

func newRecordingProvider(t *testing.T) (*Provider, *recordingExporter, *tracetest.SpanRecorder) {
	t.Helper()
	exp := &recordingExporter{}
	spans := tracetest.NewSpanRecorder()
	cfg := &config.OTELConfig{Enabled: true, ServiceName: "tableidentity-test", ServiceVersion: "test", SampleRatio: 1}
	p := newProvider(cfg, resource.Empty(), &pipeline{logs: sdklog.NewSimpleProcessor(exp), spans: spans})
	t.Cleanup(func() { _ = p.Close() })
	return p, exp, spans
}

func attrs(r sdklog.Record) map[string]log.Value {
	out := map[string]log.Value{}
	r.WalkAttributes(func(kv log.KeyValue) bool {
		out[kv.Key] = kv.Value
		return true
	})
	return out
}

func TestZapCore_EmitsRecords(t *testing.T) {
	p, exp := newTestProvider(t)
	l := zap.New(NewZapCore(p, zapcore.InfoLevel)).With(zap.String("component", "identity"))

	l.Debug("dropped")
	l.Warn("user locked out",
		zap.String("user_id", "u1"),
		zap.Int("attempts", 5),
		zap.Float64("ratio", 0.25),
		zap.Duration("lockout", 5*time.Minute),
		zap.Error(errors.New("boom")),
		zap.Bool("enabled", true),
	)
	require.NoError(t, p.ForceFlush(context.Background()))

	exp.mu.Lock()
	defer exp.mu.Unlock()
	require.Len(t, exp.records, 1)
	r := exp.records[0]
	assert.Equal(t, "user locked out", r.Body().AsString())
	assert.Equal(t, log.SeverityWarn, r.Severity())

	a := attrs(r)
	assert.Equal(t, "identity", a["component"].AsString())
	assert.Equal(t, "u1", a["enduser.id"].AsString())
	assert.NotContains(t, a, "user_id")
	assert.Equal(t, int64(5), a["attempts"].AsInt64())
	assert.InDelta(t, 0.25, a["ratio"].AsFloat64(), 1e-9)
	assert.Equal(t, "5m0s", a["lockout"].AsString())
	assert.Equal(t, "boom", a["exception.message"].AsString())
	assert.True(t, a["enabled"].AsBool())
}

func TestZapCore_TraceCorrelation(t *testing.T) {
	p, exp := newTestProvider(t)
	ctx, span := p.TracerProvider().Tracer("test").Start(context.Background(), "find_by_email")
	defer span.End()

	l := logger.NewWithCore(nil, NewZapCore(p, zapcore.DebugLevel)).WithContext(ctx)
	l.Info("lookup", logger.Method("GET"), logger.StatusCode(200),
		zap.Object("user", zapcore.ObjectMarshalerFunc(func(enc zapcore.ObjectEncoder) error {
			enc.AddString("name", "alice")
			return nil
		})),
	)
	require.NoError(t, p.ForceFlush(context.Background()))

	exp.mu.Lock()
	defer exp.mu.Unlock()
	require.Len(t, exp.records, 1)
	r := exp.records[0]
	assert.Equal(t, span.SpanContext().TraceID(), r.TraceID())
	assert.Equal(t, span.SpanContext().SpanID(), r.SpanID())

	a := attrs(r)
	assert.NotContains(t, a, logger.KeyTraceID)
	assert.NotContains(t, a, logger.KeySpanID)
	assert.Equal(t, "GET", a["http.request.method"].AsString())
	assert.Equal(t, int64(200), a["http.response.status_code"].AsInt64())
	require.Equal(t, log.KindMap, a["user"].Kind())
	assert.Equal(t, "alice", a["user"].AsMap()[0].Value.AsString())
}

func TestProvider_TracerProvider(t *testing.T) {
	p, _, recorder := newRecordingProvider(t)
	_, span := p.TracerProvider().Tracer("test").Start(context.Background(), "identity.FindByEmail")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "identity.FindByEmail", ended[0].Name())
}

func TestNewProvider_Disabled(t *testing.T) {
	_, err := NewProvider(context.Background(), &config.OTELConfig{})
	assert.ErrorIs(t, err, ErrDisabled)
}
