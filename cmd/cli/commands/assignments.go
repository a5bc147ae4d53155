package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/shelter-shifts/pkg/core/model"
	"github.com/jakechorley/shelter-shifts/pkg/core/services"
)

// ToggleCmd creates the toggle command
func ToggleCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <slot>",
		Short: "Join or leave a shift as the signed-in user (slot: 2025-05-26_M)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := model.ParseSlotKey(args[0])
			if err != nil {
				return err
			}
			actor, sess, err := app.Actor()
			if err != nil {
				return err
			}

			app.Logger.Debug("toggle command", zap.String("slot", key.ID()), zap.String("uid", actor.ID))

			out, err := app.Assignments.ToggleShift(app.Ctx, sess, actor, key)
			if err != nil && out == nil {
				return err
			}
			if out.Status != services.StatusAwaitingConfirmation {
				printOutcome(app.out(), out)
				return err
			}

			ok, err := askYesNo(app.input(), app.out(), out.Pending.Prompt)
			if err != nil {
				return err
			}
			return app.resolvePending(actor, sess, out.Pending, ok)
		},
	}
}

// AssignCmd creates the assign command
func AssignCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "assign <slot> <user_id>",
		Short: "Add a user to a shift, ignoring capacity and closures (admin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := model.ParseSlotKey(args[0])
			if err != nil {
				return err
			}
			actor, sess, err := app.Actor()
			if err != nil {
				return err
			}

			out, err := app.Assignments.AdminAssign(app.Ctx, sess, actor, key, args[1])
			if out != nil {
				printOutcome(app.out(), out)
			}
			return err
		},
	}
}

// UnassignCmd creates the unassign command
func UnassignCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unassign <slot> <user_id>",
		Short: "Remove a user from a shift (admin, asks for confirmation)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := model.ParseSlotKey(args[0])
			if err != nil {
				return err
			}
			yes, _ := cmd.Flags().GetBool("yes")

			actor, sess, err := app.Actor()
			if err != nil {
				return err
			}

			out, err := app.Assignments.AdminRequestRemoval(app.Ctx, sess, actor, key, args[1])
			if err != nil && out == nil {
				return err
			}
			if out.Status != services.StatusAwaitingConfirmation {
				printOutcome(app.out(), out)
				return err
			}

			ok := yes
			if !ok {
				ok, err = askDestructive(app.input(), app.out(), out.Pending.Prompt, "quitar")
				if err != nil {
					return err
				}
			}
			return app.resolvePending(actor, sess, out.Pending, ok)
		},
	}

	cmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")

	return cmd
}

func (app *AppContext) resolvePending(actor *model.User, sess string, p *services.Pending, confirmed bool) error {
	var (
		out *services.Outcome
		err error
	)
	if confirmed {
		out, err = app.Assignments.Confirm(app.Ctx, sess, actor, p.ID)
	} else {
		out, err = app.Assignments.Cancel(app.Ctx, actor, p.ID)
	}
	if out != nil {
		printOutcome(app.out(), out)
	}
	if err != nil {
		return fmt.Errorf("failed to resolve confirmation: %w", err)
	}
	return nil
}
