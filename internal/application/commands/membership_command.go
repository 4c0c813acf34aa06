package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/bravo68web/tableidentity/internal/domain/models"
	"github.com/bravo68web/tableidentity/internal/injectable"
)

func (r *CommandRegistry) RoleCommands() *cli.Command {
	roleFlag := func() cli.Flag {
		return &cli.StringFlag{Name: "role", Aliases: []string{"r"}, Usage: "Role name", Required: true}
	}
	return &cli.Command{
		Name:  "roles",
		Usage: "Manage role membership",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List the roles of a user",
				Flags: []cli.Flag{userFlag()},
				Action: r.withDeps(func(ctx context.Context, cmd *cli.Command, deps *injectable.Dependencies) error {
					user, err := resolveUser(ctx, deps.UserService, cmd.String("user"))
					if err != nil {
						return err
					}
					profile, err := deps.UserService.GetProfile(ctx, user.ID)
					if err != nil {
						return err
					}
					for _, role := range profile.Roles {
						fmt.Fprintln(cmd.Writer, role)
					}
					return nil
				}),
			},
			{
				Name:  "add",
				Usage: "Add a user to a role",
				Flags: []cli.Flag{userFlag(), roleFlag()},
				Action: r.withDeps(func(ctx context.Context, cmd *cli.Command, deps *injectable.Dependencies) error {
					user, err := resolveUser(ctx, deps.UserService, cmd.String("user"))
					if err != nil {
						return err
					}
					return deps.UserService.AddToRole(ctx, user.ID, cmd.String("role"))
				}),
			},
			{
				Name:  "remove",
				Usage: "Remove a user from a role",
				Flags: []cli.Flag{userFlag(), roleFlag()},
				Action: r.withDeps(func(ctx context.Context, cmd *cli.Command, deps *injectable.Dependencies) error {
					user, err := resolveUser(ctx, deps.UserService, cmd.String("user"))
					if err != nil {
						return err
					}
					return deps.UserService.RemoveFromRole(ctx, user.ID, cmd.String("role"))
				}),
			},
		},
	}
}

func (r *CommandRegistry) ClaimCommands() *cli.Command {
	flags := func() []cli.Flag {
		return []cli.Flag{
			userFlag(),
			&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "Claim type", Required: true},
			&cli.StringFlag{Name: "value", Aliases: []string{"v"}, Usage: "Claim value"},
		}
	}
	claimAction := func(apply func(ctx context.Context, deps *injectable.Dependencies, id string, claim models.Claim) error) cli.ActionFunc {
		return r.withDeps(func(ctx context.Context, cmd *cli.Command, deps *injectable.Dependencies) error {
			user, err := resolveUser(ctx, deps.UserService, cmd.String("user"))
			if err != nil {
				return err
			}
			return apply(ctx, deps, user.ID, models.Claim{Type: cmd.String("type"), Value: cmd.String("value")})
		})
	}
	return &cli.Command{
		Name:  "claims",
		Usage: "Manage user claims",
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Add a claim to a user",
				Flags: flags(),
				Action: claimAction(func(ctx context.Context, deps *injectable.Dependencies, id string, claim models.Claim) error {
					return deps.UserService.AddClaim(ctx, id, claim)
				}),
			},
			{
				Name:  "remove",
				Usage: "Remove a claim from a user",
				Flags: flags(),
				Action: claimAction(func(ctx context.Context, deps *injectable.Dependencies, id string, claim models.Claim) error {
					return deps.UserService.RemoveClaim(ctx, id, claim)
				}),
			},
		},
	}
}

func (r *CommandRegistry) LoginCommands() *cli.Command {
	flags := func() []cli.Flag {
		return []cli.Flag{
			userFlag(),
			&cli.StringFlag{Name: "provider", Usage: "External login provider", Required: true},
			&cli.StringFlag{Name: "key", Usage: "Provider key", Required: true},
		}
	}
	loginAction := func(apply func(ctx context.Context, deps *injectable.Dependencies, id string, login models.LoginInfo) error) cli.ActionFunc {
		return r.withDeps(func(ctx context.Context, cmd *cli.Command, deps *injectable.Dependencies) error {
			user, err := resolveUser(ctx, deps.UserService, cmd.String("user"))
			if err != nil {
				return err
			}
			return apply(ctx, deps, user.ID, models.LoginInfo{LoginProvider: cmd.String("provider"), ProviderKey: cmd.String("key")})
		})
	}
	return &cli.Command{
		Name:  "logins",
		Usage: "Manage external logins",
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Link an external login to a user",
				Flags: flags(),
				Action: loginAction(func(ctx context.Context, deps *injectable.Dependencies, id string, login models.LoginInfo) error {
					return deps.UserService.AddLogin(ctx, id, login)
				}),
			},
			{
				Name:  "remove",
				Usage: "Unlink an external login",
				Flags: flags(),
				Action: loginAction(func(ctx context.Context, deps *injectable.Dependencies, id string, login models.LoginInfo) error {
					return deps.UserService.RemoveLogin(ctx, id, login)
				}),
			},
		},
	}
}
