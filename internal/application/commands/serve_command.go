package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/bravo68web/tableidentity/internal/injectable"
	"github.com/bravo68web/tableidentity/internal/server"
	"github.com/bravo68web/tableidentity/internal/transport/http/router"
	"github.com/bravo68web/tableidentity/pkg/logger"
)

func (r *CommandRegistry) ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API",
		Action: r.withDeps(func(ctx context.Context, cmd *cli.Command, deps *injectable.Dependencies) error {
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			s := server.New(deps.Config, deps, logger.Get(), deps.TracerProvider)
			router.NewRouter(s).RegisterRoutes()
			return s.Run(ctx)
		}),
	}
}
