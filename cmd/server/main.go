package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel/trace"

	"github.com/bravo68web/tableidentity/internal/config"
	"github.com/bravo68web/tableidentity/internal/injectable"
	"github.com/bravo68web/tableidentity/internal/server"
	"github.com/bravo68web/tableidentity/internal/transport/http/router"
	"github.com/bravo68web/tableidentity/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, provider, err := injectable.SetupLogging(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer log.Close()

	var tp trace.TracerProvider
	if provider != nil {
		tp = provider.TracerProvider()
	}

	deps, err := injectable.LoadDependencies(ctx, cfg, log, injectable.WithTracerProvider(tp))
	if err != nil {
		log.Error("Failed to load dependencies", logger.Error(err))
		return err
	}
	defer deps.Close()

	s := server.New(cfg, deps, log, tp)
	router.NewRouter(s).RegisterRoutes()

	log.Info("Starting identity server",
		logger.String("addr", cfg.ServerAddress()),
		logger.String("backend", deps.Backend.Name),
	)
	if err := s.Run(ctx); err != nil {
		log.Error("Server stopped with error", logger.Error(err))
		return err
	}
	log.Info("Server stopped")
	return nil
}
