package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"

	"github.com/bravo68web/tableidentity/internal/config"
	"github.com/bravo68web/tableidentity/internal/infrastructure/otel"
	"github.com/bravo68web/tableidentity/internal/injectable"
)

// CommandRegistry builds the management CLI.
type CommandRegistry struct {
	loadConfig func(path string) (*config.Config, error)
	depOpts    []injectable.Option
}

func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{loadConfig: config.Load}
}

func (r *CommandRegistry) RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:                  "tableidentity",
		Usage:                 "Identity storage over partitioned tables",
		Suggest:               true,
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the config file",
				Sources: cli.EnvVars("CONFIG_PATH"),
			},
		},
		Action: RootCommand(),
		Commands: []*cli.Command{
			r.ServeCommand(),
			r.TableCommands(),
			r.UserCommands(),
			r.RoleCommands(),
			r.ClaimCommands(),
			r.LoginCommands(),
			r.IndexCommands(),
			r.SnapshotCommands(),
			r.OpenAPICommands(),
		},
	}
}

func RootCommand() cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		fmt.Fprintln(cmd.Writer, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		fmt.Fprintln(cmd.Writer, "Welcome to the Table Identity CLI!")
		fmt.Fprintln(cmd.Writer, "Use 'tableidentity --help' to see available commands.")
		fmt.Fprintln(cmd.Writer, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		return nil
	}
}

// depsAction is an action that needs the wired services.
type depsAction func(ctx context.Context, cmd *cli.Command, deps *injectable.Dependencies) error

// withDeps loads config, logging and dependencies around fn and releases
// them when fn returns.
func (r *CommandRegistry) withDeps(fn depsAction) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) (err error) {
		cfg, err := r.loadConfig(cmd.String("config"))
		if err != nil {
			return err
		}

		log, provider, err := injectable.SetupLogging(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = log.Close() }()

		opts := append([]injectable.Option{injectable.WithTracerProvider(tracerProvider(provider))}, r.depOpts...)
		deps, err := injectable.LoadDependencies(ctx, cfg, log, opts...)
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, deps.Close()) }()

		return fn(ctx, cmd, deps)
	}
}

// tracerProvider is nil when OTEL is disabled.
func tracerProvider(p *otel.Provider) trace.TracerProvider {
	if p == nil {
		return nil
	}
	return p.TracerProvider()
}

func printJSON(cmd *cli.Command, v any) error {
	enc := json.NewEncoder(cmd.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
