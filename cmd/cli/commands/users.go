package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jakechorley/shelter-shifts/pkg/core/model"
	"github.com/jakechorley/shelter-shifts/pkg/core/services"
)

// UsersCmd creates the users command and its subcommands
func UsersCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage the volunteer directory (admin)",
	}

	cmd.AddCommand(
		listUsersCmd(app),
		createUserCmd(app),
		deleteUserCmd(app),
		passwordCmd(app),
		enableUserCmd(app, true),
		enableUserCmd(app, false),
	)

	return cmd
}

func listUsersCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, _, err := app.Actor()
			if err != nil {
				return err
			}
			users, err := app.Users.List(app.Ctx, actor)
			if err != nil {
				return err
			}

			out := app.out()
			fmt.Fprintf(out, "\nFound %d users:\n\n", len(users))
			for _, u := range users {
				status := ""
				if !u.Enabled {
					status = colorDim + " (disabled)" + colorReset
				}
				phone := u.Phone
				if phone == "" {
					phone = "-"
				}
				fmt.Fprintf(out, "- %s (%s) - %s - %s - %s%s\n",
					u.FullName(), u.ID, u.Email, phone, u.Roles, status)
			}
			return nil
		},
	}
}

func createUserCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <email> <name> <last_name>",
		Short: "Create a user. The password is read from the prompt.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			phone, _ := cmd.Flags().GetString("phone")
			roleList, _ := cmd.Flags().GetString("roles")

			var roles []model.Role
			for _, name := range strings.Split(roleList, ",") {
				if strings.TrimSpace(name) == "" {
					continue
				}
				r, err := model.ParseRole(name)
				if err != nil {
					return err
				}
				roles = append(roles, r)
			}

			actor, _, err := app.Actor()
			if err != nil {
				return err
			}
			password, confirm, err := app.readNewPassword()
			if err != nil {
				return err
			}

			user, err := app.Users.Create(app.Ctx, actor, services.CreateUserRequest{
				Email:           args[0],
				Password:        password,
				PasswordConfirm: confirm,
				Name:            args[1],
				LastName:        args[2],
				Phone:           phone,
				Roles:           roles,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(app.out(), "\n✓ User created!\n\nID:    %s\nName:  %s\nRoles: %s\n\n", user.ID, user.FullName(), user.Roles)
			return nil
		},
	}

	cmd.Flags().String("phone", "", "Phone number; the default country code is added when missing")
	cmd.Flags().String("roles", "volunteer", "Comma-separated roles: volunteer, lead, admin")

	return cmd
}

func deleteUserCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <user_id>",
		Short: "Delete a user; their past shifts remain as an unknown user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")

			actor, _, err := app.Actor()
			if err != nil {
				return err
			}

			if !yes {
				ok, err := askDestructive(app.input(), app.out(), fmt.Sprintf("Delete user %s?", args[0]), "borrar")
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(app.out(), "Cancelled, nothing changed.")
					return nil
				}
			}

			if err := app.Users.Delete(app.Ctx, actor, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(app.out(), "✓ User %s deleted\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")

	return cmd
}

func passwordCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "password <user_id>",
		Short: "Set a new password for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, _, err := app.Actor()
			if err != nil {
				return err
			}
			password, confirm, err := app.readNewPassword()
			if err != nil {
				return err
			}
			if err := app.Users.UpdatePassword(app.Ctx, actor, args[0], password, confirm); err != nil {
				return err
			}
			fmt.Fprintf(app.out(), "✓ Password updated for %s\n", args[0])
			return nil
		},
	}
}

func enableUserCmd(app *AppContext, enabled bool) *cobra.Command {
	use, short := "enable <user_id>", "Allow a user to sign in"
	if !enabled {
		use, short = "disable <user_id>", "Stop a user from signing in"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, _, err := app.Actor()
			if err != nil {
				return err
			}
			if err := app.Users.SetEnabled(app.Ctx, actor, args[0], enabled); err != nil {
				return err
			}
			fmt.Fprintf(app.out(), "✓ User %s %sd\n", args[0], strings.Fields(use)[0])
			return nil
		},
	}
}

func (app *AppContext) readNewPassword() (string, string, error) {
	read := func(prompt string) (string, error) {
		fmt.Fprint(app.out(), prompt)
		line, err := app.input().ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	password, err := read("New password: ")
	if err != nil {
		return "", "", err
	}
	confirm, err := read("Repeat password: ")
	if err != nil {
		return "", "", err
	}
	return password, confirm, nil
}
