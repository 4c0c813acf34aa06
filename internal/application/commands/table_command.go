package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/bravo68web/tableidentity/internal/injectable"
)

func (r *CommandRegistry) TableCommands() *cli.Command {
	return &cli.Command{
		Name:  "tables",
		Usage: "Provision or drop the identity tables",
		Commands: []*cli.Command{
			{
				Name:  "provision",
				Usage: "Create every identity table that does not exist yet",
				Action: r.withDeps(func(ctx context.Context, cmd *cli.Command, deps *injectable.Dependencies) error {
					if err := deps.Store.EnsureTables(ctx); err != nil {
						return err
					}
					for _, name := range deps.Store.TableNames().Names() {
						fmt.Fprintf(cmd.Writer, "%s\tready\n", name)
					}
					return nil
				}),
			},
			{
				Name:  "drop",
				Usage: "Drop every identity table and its rows",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "yes",
						Usage: "Confirm that all identity data will be lost",
					},
				},
				Action: r.withDeps(func(ctx context.Context, cmd *cli.Command, deps *injectable.Dependencies) error {
					if !cmd.Bool("yes") {
						return fmt.Errorf("refusing to drop tables without --yes")
					}
					names := deps.Store.TableNames().Names()
					if err := deps.Backend.Drop(ctx, names...); err != nil {
						return err
					}
					for _, name := range names {
						fmt.Fprintf(cmd.Writer, "%s\tdropped\n", name)
					}
					return nil
				}),
			},
		},
	}
}
