package logger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gopkg.in/natefinch/lumberjack.v2"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"warn":    zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFileOutputWritesEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.log")
	l, err := New(&Config{Level: "info", Output: OutputFile, Format: "json", FilePath: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	l.WithFields(Component("test"), UserID("u-1")).Info("created user")
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := string(data)
	for _, want := range []string{`"message":"created user"`, `"user_id":"u-1"`, `"component":"test"`} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %q missing %s", line, want)
		}
	}
}

func TestFileOutputRotates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	_, closers, err := LocalCore(&Config{Level: "info", Output: OutputFile, FilePath: path, FileMaxBackups: 2})
	if err != nil {
		t.Fatalf("LocalCore: %v", err)
	}
	if len(closers) != 1 {
		t.Fatalf("got %d closers, want 1", len(closers))
	}
	w, ok := closers[0].(*lumberjack.Logger)
	if !ok {
		t.Fatalf("closer is %T", closers[0])
	}
	defer w.Close()

	if _, err := w.Write([]byte("before\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Rotate(); err != nil {
		t.Fatalf("rotate: %v", err)
	}

	backups, _ := filepath.Glob(filepath.Join(dir, "app-*.log"))
	if len(backups) != 1 {
		t.Errorf("expected one backup, got %v", backups)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("active log file missing: %v", err)
	}
}

func TestFileOutputNeedsPath(t *testing.T) {
	if _, err := New(&Config{Output: OutputFile}); err == nil {
		t.Error("expected an error without a file path")
	}
}

func TestCloseJoinsCloserErrors(t *testing.T) {
	errA, errB := errors.New("a"), errors.New("b")
	calls := 0
	l := NewWithCore(nil, zapcore.NewNopCore(),
		closerFunc(func() error { calls++; return errA }),
		closerFunc(func() error { calls++; return nil }),
		closerFunc(func() error { calls++; return errB }),
	)

	err := l.Close()
	if calls != 3 {
		t.Fatalf("closed %d sinks, want 3", calls)
	}
	if got := multierr.Errors(err); len(got) != 2 || !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("Close() = %v", err)
	}
}

func TestWithContextAddsTraceFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewWithCore(&Config{}, core)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))

	l.WithContext(ctx).Info("traced")
	l.WithContext(context.Background()).Info("untraced")

	entries := logs.AllUntimed()
	if len(entries) != 2 {
		t.Fatalf("got %d entries", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields[KeyTraceID] != traceID.String() || fields[KeySpanID] != spanID.String() {
		t.Errorf("traced fields = %v", fields)
	}
	if _, ok := entries[1].ContextMap()[KeyTraceID]; ok {
		t.Error("untraced entry carries a trace id")
	}
}
