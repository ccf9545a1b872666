package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"tradeedge/internal/models"
)

func newUserCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users and entitlements",
	}
	cmd.AddCommand(newUserSetTierCmd(app))
	cmd.AddCommand(newUserGrantCmd(app))
	return cmd
}

func newUserSetTierCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "set-tier USER_ID TIER",
		Short: "Set a user's subscription tier",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q", args[0])
			}
			tier := models.Tier(args[1])
			if !tier.IsValid() {
				return fmt.Errorf("invalid tier %q (free|paid|premium|mentorship)", args[1])
			}

			ds, err := app.openStore()
			if err != nil {
				return err
			}
			if err := ds.UpsertUserTier(cmd.Context(), userID, tier); err != nil {
				return err
			}

			NewOutput(cmd).Success("User %d set to tier %s", userID, tier)
			return nil
		},
	}
}

func newUserGrantCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grant USER_ID",
		Short: "Grant staff permissions to a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q", args[0])
			}

			view, _ := cmd.Flags().GetBool("view")
			create, _ := cmd.Flags().GetBool("create")
			edit, _ := cmd.Flags().GetBool("edit")
			del, _ := cmd.Flags().GetBool("delete")
			manage, _ := cmd.Flags().GetBool("manage-users")

			ds, err := app.openStore()
			if err != nil {
				return err
			}
			perm := &models.AdminPermission{
				UserID:          userID,
				CanViewAlerts:   view,
				CanCreateAlerts: create,
				CanEditAlerts:   edit,
				CanDeleteAlerts: del,
				CanManageUsers:  manage,
			}
			if err := ds.SavePermissions(cmd.Context(), perm); err != nil {
				return err
			}

			NewOutput(cmd).Success("Permissions saved for user %d", userID)
			return nil
		},
	}

	cmd.Flags().Bool("view", true, "can view all alerts regardless of tier")
	cmd.Flags().Bool("create", false, "can create alerts")
	cmd.Flags().Bool("edit", false, "can edit alerts")
	cmd.Flags().Bool("delete", false, "can delete alerts")
	cmd.Flags().Bool("manage-users", false, "can manage users")
	return cmd
}
