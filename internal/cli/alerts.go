package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"tradeedge/internal/models"
	"tradeedge/pkg/utils"
)

func newAlertCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alert",
		Short: "Manage stock alerts",
	}
	cmd.AddCommand(newAlertListCmd(app))
	cmd.AddCommand(newAlertCreateCmd(app))
	cmd.AddCommand(newAlertCloseCmd(app))
	cmd.AddCommand(newAlertEventsCmd(app))
	cmd.AddCommand(newAlertSubscribeCmd(app))
	return cmd
}

func newAlertListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List open alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := app.openStore()
			if err != nil {
				return err
			}

			alerts, err := ds.GetOpenAlerts(cmd.Context())
			if err != nil {
				return err
			}

			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(alerts)
			}

			if len(alerts) == 0 {
				output.Dim("No open alerts")
				return nil
			}

			output.Bold("%-6s %-10s %-14s %-12s %-12s %s", "ID", "SYMBOL", "STATUS", "PRICE", "TIER", "TARGETS")
			for _, a := range alerts {
				output.Printf("%-6d %-10s %-14s %-12s %-12s %s / %s / %s\n",
					a.ID, a.Symbol, output.StatusString(string(a.Status)),
					utils.FormatPrice(a.CurrentPrice), a.RequiredTier,
					utils.FormatPrice(a.Target1), utils.FormatPrice(a.Target2), utils.FormatPrice(a.Target3))
			}
			return nil
		},
	}
}

func newAlertCreateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create SYMBOL",
		Short: "Create a new alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := app.openStore()
			if err != nil {
				return err
			}

			zoneMin, _ := cmd.Flags().GetFloat64("zone-min")
			zoneMax, _ := cmd.Flags().GetFloat64("zone-max")
			support, _ := cmd.Flags().GetFloat64("support")
			t1, _ := cmd.Flags().GetFloat64("target1")
			t2, _ := cmd.Flags().GetFloat64("target2")
			t3, _ := cmd.Flags().GetFloat64("target3")
			tierStr, _ := cmd.Flags().GetString("tier")

			tier := models.Tier(tierStr)
			if !tier.IsValid() {
				return fmt.Errorf("invalid tier %q", tierStr)
			}

			alert := &models.Alert{
				Symbol:            args[0],
				BuyZoneMin:        zoneMin,
				BuyZoneMax:        zoneMax,
				Target1:           t1,
				Target2:           t2,
				Target3:           t3,
				RequiredTier:      tier,
				Status:            models.StatusPending,
				CrossedThresholds: models.NewThresholdSet(),
			}
			if cmd.Flags().Changed("support") {
				alert.SupportLevel = &support
			}

			if err := alert.Validate(); err != nil {
				return err
			}
			if err := ds.CreateAlert(cmd.Context(), alert); err != nil {
				return err
			}

			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(alert)
			}
			output.Success("Created alert %d for %s", alert.ID, alert.Symbol)
			return nil
		},
	}

	cmd.Flags().Float64("zone-min", 0, "buy zone lower bound")
	cmd.Flags().Float64("zone-max", 0, "buy zone upper bound")
	cmd.Flags().Float64("support", 0, "support level (stop-out trigger)")
	cmd.Flags().Float64("target1", 0, "first profit target")
	cmd.Flags().Float64("target2", 0, "second profit target")
	cmd.Flags().Float64("target3", 0, "third profit target")
	cmd.Flags().String("tier", "free", "minimum subscription tier")
	cmd.MarkFlagRequired("zone-min")
	cmd.MarkFlagRequired("zone-max")
	cmd.MarkFlagRequired("target1")
	cmd.MarkFlagRequired("target2")
	cmd.MarkFlagRequired("target3")

	return cmd
}

func newAlertCloseCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "close ID",
		Short: "Close an open alert (marks it stopped out)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid alert id %q", args[0])
			}

			ds, err := app.openStore()
			if err != nil {
				return err
			}
			if err := ds.CancelAlert(cmd.Context(), id); err != nil {
				return err
			}

			NewOutput(cmd).Success("Alert %d closed", id)
			return nil
		},
	}
}

func newAlertEventsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "events ID",
		Short: "Show crossing events recorded for an alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid alert id %q", args[0])
			}

			ds, err := app.openStore()
			if err != nil {
				return err
			}
			events, err := ds.GetEvents(cmd.Context(), id)
			if err != nil {
				return err
			}

			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(events)
			}
			if len(events) == 0 {
				output.Dim("No events for alert %d", id)
				return nil
			}
			for _, e := range events {
				output.Printf("%s  %-18s %s at %s\n",
					e.OccurredAt.Format("2006-01-02 15:04:05"), e.Threshold, e.Symbol, utils.FormatPrice(e.Price))
			}
			return nil
		},
	}
}

func newAlertSubscribeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscribe ALERT_ID USER_ID",
		Short: "Subscribe a user to an alert",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			alertID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid alert id %q", args[0])
			}
			userID, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q", args[1])
			}

			t1, _ := cmd.Flags().GetBool("target1")
			t2, _ := cmd.Flags().GetBool("target2")
			t3, _ := cmd.Flags().GetBool("target3")

			ds, err := app.openStore()
			if err != nil {
				return err
			}
			sub := &models.Subscription{
				UserID:        userID,
				AlertID:       alertID,
				NotifyTarget1: t1,
				NotifyTarget2: t2,
				NotifyTarget3: t3,
			}
			if err := ds.SaveSubscription(cmd.Context(), sub); err != nil {
				return err
			}

			NewOutput(cmd).Success("User %d subscribed to alert %d", userID, alertID)
			return nil
		},
	}

	cmd.Flags().Bool("target1", true, "notify on target 1")
	cmd.Flags().Bool("target2", true, "notify on target 2")
	cmd.Flags().Bool("target3", true, "notify on target 3")
	return cmd
}
