package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// OutputType defines the type of output for the logger
type OutputType string

const (
	OutputConsole OutputType = "console"
	// OutputFile writes to a size-rotated file
	OutputFile OutputType = "file"
	// OutputOTEL writes to stdout and exports to an OpenTelemetry collector.
	// The exporting core is supplied through NewWithCore.
	OutputOTEL OutputType = "otel"
)

// Config holds the logger configuration
type Config struct {
	// Level is the minimum log level (debug, info, warn, error)
	Level  string
	Output OutputType
	// Format is json or console; ignored in development mode
	Format string

	FilePath       string
	FileMaxSizeMB  int
	FileMaxBackups int
	FileMaxAgeDays int
	// FileCompress gzips rotated files
	FileCompress bool

	// Development switches to colored console output with stacktraces from warn up
	Development bool
	AddCaller   bool
}

// DefaultConfig returns a default logger configuration
func DefaultConfig() *Config {
	return &Config{
		Level:          "info",
		Output:         OutputConsole,
		Format:         "json",
		FilePath:       "./logs/identity.log",
		FileMaxSizeMB:  100,
		FileMaxBackups: 3,
		AddCaller:      true,
	}
}

// Logger wraps zap.Logger and owns the sinks it writes to
type Logger struct {
	*zap.Logger
	closers []io.Closer
}

var (
	globalMu     sync.RWMutex
	globalLogger *Logger
)

// New creates a Logger writing to the output named in cfg
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	core, closers, err := LocalCore(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithCore(cfg, core, closers...), nil
}

// NewWithCore wraps core. closers are closed by Logger.Close.
func NewWithCore(cfg *Config, core zapcore.Core, closers ...io.Closer) *Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Logger{
		Logger:  zap.New(core, zapOptions(cfg)...),
		closers: closers,
	}
}

// NewNop returns a logger that discards everything
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// LocalCore builds the core for the local sink of cfg: the rotated file for
// OutputFile, stdout otherwise. The returned closers release the sink.
func LocalCore(cfg *Config) (zapcore.Core, []io.Closer, error) {
	level := ParseLevel(cfg.Level)
	if cfg.Output != OutputFile {
		return zapcore.NewCore(newEncoder(cfg), zapcore.Lock(os.Stdout), level), nil, nil
	}
	if cfg.FilePath == "" {
		return nil, nil, fmt.Errorf("file output needs a file path")
	}
	w := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.FileMaxSizeMB,
		MaxBackups: cfg.FileMaxBackups,
		MaxAge:     cfg.FileMaxAgeDays,
		Compress:   cfg.FileCompress,
	}
	return zapcore.NewCore(newEncoder(cfg), zapcore.AddSync(w), level), []io.Closer{w}, nil
}

// SetGlobal sets the global logger instance
func SetGlobal(l *Logger) {
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
}

// Get returns the global logger, creating a stdout logger on first use
func Get() *Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger, _ = New(DefaultConfig())
	}
	return globalLogger
}

// WithContext returns a logger carrying the trace and span ids found in ctx
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return l
	}
	return l.WithFields(TraceID(sc.TraceID().String()), SpanID(sc.SpanID().String()))
}

// WithFields returns a logger with additional fields
func (l *Logger) WithFields(fields ...Field) *Logger {
	return &Logger{Logger: l.With(fields...), closers: l.closers}
}

func (l *Logger) WithError(err error) *Logger {
	return l.WithFields(Error(err))
}

// Close flushes buffered entries and closes the sinks. Loggers derived
// with WithFields share sinks, so only the root should be closed.
func (l *Logger) Close() error {
	_ = l.Sync()
	var errs error
	for _, c := range l.closers {
		errs = multierr.Append(errs, c.Close())
	}
	return errs
}

// ParseLevel converts a string level to zapcore.Level, defaulting to info
func ParseLevel(level string) zapcore.Level {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel
	}
	return l
}

func newEncoder(cfg *Config) zapcore.Encoder {
	if cfg.Development {
		ec := zap.NewDevelopmentEncoderConfig()
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		ec.EncodeTime = zapcore.ISO8601TimeEncoder
		return zapcore.NewConsoleEncoder(ec)
	}

	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "timestamp"
	ec.MessageKey = "message"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeDuration = zapcore.StringDurationEncoder
	if cfg.Format == "console" {
		return zapcore.NewConsoleEncoder(ec)
	}
	return zapcore.NewJSONEncoder(ec)
}

func zapOptions(cfg *Config) []zap.Option {
	stackLevel := zapcore.ErrorLevel
	var opts []zap.Option
	if cfg.Development {
		stackLevel = zapcore.WarnLevel
		opts = append(opts, zap.Development())
	}
	if cfg.AddCaller {
		opts = append(opts, zap.AddCaller())
	}
	return append(opts, zap.AddStacktrace(stackLevel))
}
