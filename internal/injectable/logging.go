package injectable

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/bravo68web/tableidentity/internal/config"
	"github.com/bravo68web/tableidentity/internal/infrastructure/otel"
	"github.com/bravo68web/tableidentity/pkg/logger"
)

// LoggerConfig maps the logging section onto the logger package
func LoggerConfig(cfg *config.LoggingConfig) *logger.Config {
	lc := logger.DefaultConfig()
	lc.Level = cfg.Level
	lc.Output = logger.OutputType(cfg.Output)
	lc.Format = cfg.Format
	lc.FilePath = cfg.FilePath
	lc.FileMaxSizeMB = cfg.FileMaxSizeMB
	lc.FileMaxBackups = cfg.FileMaxBackups
	lc.FileMaxAgeDays = cfg.FileMaxAgeDays
	lc.FileCompress = cfg.FileCompress
	lc.Development = cfg.Development
	return lc
}

// SetupLogging builds the global logger. With OTEL enabled the logger also
// exports to the collector and the returned provider supplies the tracer
// provider; otherwise the provider is nil.
func SetupLogging(ctx context.Context, cfg *config.Config) (*logger.Logger, *otel.Provider, error) {
	lc := LoggerConfig(&cfg.Logging)

	if !cfg.OTEL.Enabled {
		if lc.Output == logger.OutputOTEL {
			return nil, nil, fmt.Errorf("logging output otel requires otel.enabled")
		}
		l, err := logger.New(lc)
		if err != nil {
			return nil, nil, err
		}
		logger.SetGlobal(l)
		return l, nil, nil
	}

	provider, err := otel.NewProvider(ctx, &cfg.OTEL)
	if err != nil {
		return nil, nil, err
	}
	l, err := otel.NewLogger(lc, provider)
	if err != nil {
		return nil, nil, multierr.Append(err, provider.Close())
	}
	logger.SetGlobal(l)
	l.Info("OTEL log export enabled",
		logger.String("endpoint", cfg.OTEL.Endpoint),
		logger.Bool("http", cfg.OTEL.UseHTTP),
	)
	return l, provider, nil
}
