package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"github.com/bravo68web/tableidentity/internal/config"
	"github.com/bravo68web/tableidentity/internal/injectable"
	"github.com/bravo68web/tableidentity/internal/transport/http/middleware"
	"github.com/bravo68web/tableidentity/pkg/logger"
	"github.com/bravo68web/tableidentity/pkg/openapi"
)

const shutdownTimeout = 15 * time.Second

type Server struct {
	*gin.Engine

	Config           *config.Config
	Deps             *injectable.Dependencies
	OpenAPIGenerator *openapi.Generator

	log *logger.Logger
}

// New builds the gin engine with the global middleware chain. Routes are
// registered separately by the router package.
func New(cfg *config.Config, deps *injectable.Dependencies, log *logger.Logger, tp trace.TracerProvider) *Server {
	switch cfg.Server.Mode {
	case gin.DebugMode, gin.TestMode:
		gin.SetMode(cfg.Server.Mode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}
	if log == nil {
		log = logger.Get()
	}

	engine := gin.New()
	engine.Use(
		middleware.RequestLogger(middleware.RequestLogOptions{
			Logger:         log,
			TracerProvider: tp,
			SkipPaths:      []string{"/health", "/ready"},
		}),
		middleware.Recovery(log),
		middleware.CORSMiddleware(cfg.Server.CORSOrigins),
	)

	generator := openapi.NewGenerator(engine,
		openapi.Info{
			Title:       "Table Identity API",
			Description: "User identity storage over a partitioned table store",
			Version:     cfg.OTEL.ServiceVersion,
		},
		[]openapi.Server{{URL: "/", Description: "This server"}},
		[]openapi.Tag{
			{Name: "Auth", Description: "Sessions and the signed-in account"},
			{Name: "Users", Description: "User administration"},
			{Name: "Admin", Description: "Index maintenance and snapshots"},
		},
	)

	return &Server{
		Engine:           engine,
		Config:           cfg,
		Deps:             deps,
		OpenAPIGenerator: generator,
		log:              log.WithFields(logger.Component("http-server")),
	}
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Config.ServerAddress(),
		Handler:           s.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server listening", logger.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
