package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tradeedge/internal/engine"
	"tradeedge/internal/entitlement"
	"tradeedge/internal/feed"
	"tradeedge/internal/models"
	"tradeedge/internal/notify"
	"tradeedge/internal/scheduler"
	"tradeedge/internal/server"
	"tradeedge/internal/stream"
)

func newServeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the alert platform server",
		Long: `Starts the full platform: SQLite persistence, the crossing
detector, the WebSocket fan-out hub, the HTTP API, background jobs, and
(if configured) the upstream price feed client.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, app)
		},
	}
	cmd.Flags().String("addr", "", "listen address (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, app *App) error {
	cfg := app.Config
	logger := app.Logger

	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}

	ds, err := app.openStore()
	if err != nil {
		return err
	}
	defer ds.Close()

	detector := engine.NewDetector(ds, logger)
	filter := entitlement.NewFilter(ds, cfg.Stream.TierCacheTTL, logger)
	registry := stream.NewRegistry()

	hub := stream.NewHub(stream.HubConfig{
		EventBufferSize:         cfg.Stream.EventBufferSize,
		DeliveryTimeout:         cfg.Stream.DeliveryTimeout,
		MaxConcurrentDeliveries: cfg.Stream.MaxConcurrentDeliveries,
		SubscriberCacheTTL:      cfg.Stream.SubscriberCacheTTL,
	}, registry, ds, ds, filter, notify.Message, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub.Start(ctx)
	defer hub.Stop()

	jobs, err := scheduler.New(scheduler.Config{
		MetricsSpec:    cfg.Jobs.MetricsSpec,
		CacheSweepSpec: cfg.Jobs.CacheSweepSpec,
	}, hub, filter, logger)
	if err != nil {
		return err
	}
	jobs.Start()
	defer jobs.Stop()

	srv := server.New(server.Config{
		Addr:       cfg.Server.Addr,
		SendBuffer: cfg.Stream.SendBufferSize,
	}, registry, hub, detector, ds, filter, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	if cfg.Feed.Enabled {
		client := feed.NewClient(feed.Config{
			URL:        cfg.Feed.URL,
			MaxRetries: cfg.Feed.MaxRetries,
			BaseDelay:  cfg.Feed.BaseDelay,
		}, func(update models.PriceUpdate) {
			events, err := detector.Apply(ctx, update)
			if err != nil {
				logger.Warn().Err(err).Int64("alert_id", update.AlertID).Msg("Feed update rejected")
				return
			}
			for _, event := range events {
				hub.Dispatch(event)
			}
		}, logger)

		go func() {
			if err := client.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("Price feed stopped")
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-errCh:
		return err
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}
