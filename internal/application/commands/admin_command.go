package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/bravo68web/tableidentity/internal/indexing"
	"github.com/bravo68web/tableidentity/internal/injectable"
	"github.com/bravo68web/tableidentity/internal/server"
	"github.com/bravo68web/tableidentity/internal/transport/http/router"
	"github.com/bravo68web/tableidentity/pkg/logger"
)

func (r *CommandRegistry) IndexCommands() *cli.Command {
	return &cli.Command{
		Name:  "index",
		Usage: "Maintain the secondary indexes",
		Commands: []*cli.Command{
			{
				Name:  "rebuild",
				Usage: "Rebuild indexes from the users and logins tables",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:    "index",
						Aliases: []string{"i"},
						Usage:   "Index to rebuild: username, email or login (default all)",
					},
				},
				Action: r.withDeps(func(ctx context.Context, cmd *cli.Command, deps *injectable.Dependencies) error {
					targets := indexing.AllIndexes
					if names := cmd.StringSlice("index"); len(names) > 0 {
						targets = targets[:0:0]
						for _, name := range names {
							idx, err := indexing.ParseIndex(name)
							if err != nil {
								return err
							}
							targets = append(targets, idx)
						}
					}
					for _, idx := range targets {
						stats, err := deps.Indexes.Rebuild(ctx, idx)
						if err != nil {
							return err
						}
						fmt.Fprintf(cmd.Writer, "%s\tscanned=%d written=%d skipped=%d (%s)\n",
							stats.Index, stats.Scanned, stats.Written, stats.Skipped, stats.Duration)
					}
					return nil
				}),
			},
		},
	}
}

func (r *CommandRegistry) SnapshotCommands() *cli.Command {
	return &cli.Command{
		Name:  "snapshot",
		Usage: "Export and restore the identity tables",
		Commands: []*cli.Command{
			{
				Name:      "export",
				Usage:     "Write every identity table to snapshot storage",
				ArgsUsage: "[name]",
				Action: r.withDeps(func(ctx context.Context, cmd *cli.Command, deps *injectable.Dependencies) error {
					manifest, err := deps.Snapshots.Export(ctx, cmd.Args().First())
					if err != nil {
						return err
					}
					return printJSON(cmd, manifest)
				}),
			},
			{
				Name:      "restore",
				Usage:     "Upsert the rows of a snapshot into the identity tables",
				ArgsUsage: "<name>",
				Action: r.withDeps(func(ctx context.Context, cmd *cli.Command, deps *injectable.Dependencies) error {
					name := cmd.Args().First()
					if name == "" {
						return fmt.Errorf("snapshot name is required")
					}
					manifest, err := deps.Snapshots.Restore(ctx, name)
					if err != nil {
						return err
					}
					return printJSON(cmd, manifest)
				}),
			},
			{
				Name:      "delete",
				Usage:     "Remove a stored snapshot",
				ArgsUsage: "<name>",
				Action: r.withDeps(func(ctx context.Context, cmd *cli.Command, deps *injectable.Dependencies) error {
					name := cmd.Args().First()
					if name == "" {
						return fmt.Errorf("snapshot name is required")
					}
					if err := deps.Snapshots.Delete(ctx, name); err != nil {
						return err
					}
					fmt.Fprintf(cmd.Writer, "deleted %s\n", name)
					return nil
				}),
			},
			{
				Name:  "prune",
				Usage: "Delete all but the newest snapshots",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "keep",
						Aliases: []string{"k"},
						Usage:   "Number of snapshots to keep",
						Value:   7,
					},
				},
				Action: r.withDeps(func(ctx context.Context, cmd *cli.Command, deps *injectable.Dependencies) error {
					removed, err := deps.Snapshots.Prune(ctx, cmd.Int("keep"))
					if err != nil {
						return err
					}
					for _, name := range removed {
						fmt.Fprintln(cmd.Writer, name)
					}
					return nil
				}),
			},
			{
				Name:  "list",
				Usage: "List stored snapshots",
				Action: r.withDeps(func(ctx context.Context, cmd *cli.Command, deps *injectable.Dependencies) error {
					infos, err := deps.Snapshots.List(ctx)
					if err != nil {
						return err
					}
					for _, info := range infos {
						fmt.Fprintf(cmd.Writer, "%s\t%d\t%s\n", info.Name, info.Size, info.ModTime.Format("2006-01-02 15:04:05"))
					}
					return nil
				}),
			},
		},
	}
}

func (r *CommandRegistry) OpenAPICommands() *cli.Command {
	return &cli.Command{
		Name:  "openapi",
		Usage: "Work with the API description",
		Commands: []*cli.Command{
			{
				Name:  "export",
				Usage: "Write the OpenAPI document",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "out",
						Aliases: []string{"o"},
						Usage:   "Output file; .json writes JSON, anything else YAML. Empty prints YAML",
					},
				},
				Action: r.withDeps(func(ctx context.Context, cmd *cli.Command, deps *injectable.Dependencies) error {
					s := server.New(deps.Config, deps, logger.Get(), nil)
					router.NewRouter(s).RegisterRoutes()
					doc := s.OpenAPIGenerator.Generate()

					out := cmd.String("out")
					switch {
					case out == "":
						raw, err := doc.YAML()
						if err != nil {
							return err
						}
						_, err = cmd.Writer.Write(raw)
						return err
					case strings.HasSuffix(out, ".json"):
						raw, err := doc.JSON()
						if err != nil {
							return err
						}
						return os.WriteFile(out, raw, 0o644)
					default:
						return doc.SaveToFile(out)
					}
				}),
			},
		},
	}
}
