package commands

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/bravo68web/tableidentity/internal/application/dto"
	"github.com/bravo68web/tableidentity/internal/application/service"
	"github.com/bravo68web/tableidentity/internal/domain/models"
	"github.com/bravo68web/tableidentity/internal/injectable"
	apperrors "github.com/bravo68web/tableidentity/pkg/errors"
)

func userFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "user",
		Aliases:  []string{"u"},
		Usage:    "Username or user ID",
		Required: true,
	}
}

func (r *CommandRegistry) UserCommands() *cli.Command {
	return &cli.Command{
		Name:  "users",
		Usage: "Manage users",
		Commands: []*cli.Command{
			r.createUser(),
			r.showUser(),
			r.searchUsers(),
			r.deleteUser(),
			r.unlockUser(),
			r.resetPassword(),
		},
	}
}

func (r *CommandRegistry) createUser() *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "Create a user",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "username", Aliases: []string{"n"}, Usage: "Username", Required: true},
			&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Usage: "Email address"},
			&cli.StringFlag{Name: "phone", Usage: "Phone number"},
			&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Usage: "Password, or - to read it from stdin"},
			&cli.StringSliceFlag{Name: "role", Usage: "Role to add the user to (repeatable)"},
		},
		Action: r.withDeps(func(ctx context.Context, cmd *cli.Command, deps *injectable.Dependencies) error {
			password, err := readPassword(cmd, cmd.String("password"))
			if err != nil {
				return err
			}
			user, err := deps.UserService.Register(ctx, service.RegisterRequest{
				Username:    cmd.String("username"),
				Email:       cmd.String("email"),
				Password:    password,
				PhoneNumber: cmd.String("phone"),
			})
			if err != nil {
				return err
			}
			for _, role := range cmd.StringSlice("role") {
				if err := deps.UserService.AddToRole(ctx, user.ID, role); err != nil {
					return err
				}
			}
			return printJSON(cmd, dto.NewUserInfo(user, time.Now()))
		}),
	}
}

func (r *CommandRegistry) showUser() *cli.Command {
	return &cli.Command{
		Name:  "show",
		Usage: "Show a user with roles, claims and logins",
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
			return printJSON(cmd, dto.NewUserProfile(profile, time.Now()))
		}),
	}
}

func (r *CommandRegistry) searchUsers() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "List usernames starting with a prefix",
		ArgsUsage: "[prefix]",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Maximum number of usernames", Value: 50},
		},
		Action: r.withDeps(func(ctx context.Context, cmd *cli.Command, deps *injectable.Dependencies) error {
			names, err := deps.UserService.SearchUsernames(ctx, cmd.Args().First(), cmd.Int("limit"))
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.Writer, name)
			}
			return nil
		}),
	}
}

func (r *CommandRegistry) deleteUser() *cli.Command {
	return &cli.Command{
		Name:  "delete",
		Usage: "Delete a user and everything it owns",
		Flags: []cli.Flag{userFlag()},
		Action: r.withDeps(func(ctx context.Context, cmd *cli.Command, deps *injectable.Dependencies) error {
			user, err := resolveUser(ctx, deps.UserService, cmd.String("user"))
			if err != nil {
				return err
			}
			if err := deps.UserService.DeleteUser(ctx, user.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.Writer, "user %s deleted\n", user.UserName)
			return nil
		}),
	}
}

func (r *CommandRegistry) unlockUser() *cli.Command {
	return &cli.Command{
		Name:  "unlock",
		Usage: "Clear a lockout and the failed attempt count",
		Flags: []cli.Flag{userFlag()},
		Action: r.withDeps(func(ctx context.Context, cmd *cli.Command, deps *injectable.Dependencies) error {
			user, err := resolveUser(ctx, deps.UserService, cmd.String("user"))
			if err != nil {
				return err
			}
			if _, err := deps.UserService.Unlock(ctx, user.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.Writer, "user %s unlocked\n", user.UserName)
			return nil
		}),
	}
}

func (r *CommandRegistry) resetPassword() *cli.Command {
	return &cli.Command{
		Name:  "reset-password",
		Usage: "Set a new password and revoke existing sessions",
		Flags: []cli.Flag{
			userFlag(),
			&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Usage: "New password, or - to read it from stdin", Required: true},
		},
		Action: r.withDeps(func(ctx context.Context, cmd *cli.Command, deps *injectable.Dependencies) error {
			user, err := resolveUser(ctx, deps.UserService, cmd.String("user"))
			if err != nil {
				return err
			}
			password, err := readPassword(cmd, cmd.String("password"))
			if err != nil {
				return err
			}
			if err := deps.UserService.ResetPassword(ctx, user.ID, password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.Writer, "password reset for %s\n", user.UserName)
			return nil
		}),
	}
}

// resolveUser accepts a username first and falls back to a user ID.
func resolveUser(ctx context.Context, users *service.UserService, ref string) (*models.User, error) {
	user, err := users.GetUserByUsername(ctx, ref)
	if err == nil || !apperrors.IsNotFound(err) {
		return user, err
	}
	return users.GetUser(ctx, ref)
}

func readPassword(cmd *cli.Command, value string) (string, error) {
	if value != "-" {
		return value, nil
	}
	line, err := bufio.NewReader(cmd.Root().Reader).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password from stdin: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
