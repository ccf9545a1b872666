// Package cli provides the command-line interface for the alert platform.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"tradeedge/internal/config"
	"tradeedge/internal/store"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2026-09-01"
)

// App holds the application dependencies shared across commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Store  store.DataStore
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	rootCmd := &cobra.Command{
		Use:   "tradeedge",
		Short: "TradeEdge - stock alert subscription platform",
		Long: `TradeEdge runs the real-time core of a stock alert subscription service.

It tracks price-level alerts through their lifecycle (buy zone, targets,
stop-out), detects threshold crossings exactly once, and streams
notifications to subscribed clients over WebSocket, filtered by each
user's subscription tier.

Use 'tradeedge serve' to start the server, or the alert/user commands
to manage data directly.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/tradeedge)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newServeCmd(app))
	rootCmd.AddCommand(newAlertCmd(app))
	rootCmd.AddCommand(newUserCmd(app))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("TradeEdge v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

// openStore lazily initializes the SQLite store for data commands.
func (app *App) openStore() (store.DataStore, error) {
	if app.Store != nil {
		return app.Store, nil
	}
	ds, err := store.NewSQLiteStore(app.Config.Database.Path)
	if err != nil {
		return nil, err
	}
	app.Store = ds
	return ds, nil
}
