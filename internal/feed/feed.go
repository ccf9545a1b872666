// Package feed consumes price updates from an upstream WebSocket feed.
package feed

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"tradeedge/internal/errors"
	"tradeedge/internal/logging"
	"tradeedge/internal/models"
	"tradeedge/pkg/utils"
)

// Handler consumes one price update. Updates may arrive duplicated or out
// of order; the downstream detector re-derives status from price, so the
// feed does not need to order them.
type Handler func(models.PriceUpdate)

// Config holds feed client configuration.
type Config struct {
	URL string
	// MaxRetries bounds reconnect attempts per outage; 0 retries forever.
	MaxRetries int
	BaseDelay  time.Duration
}

// Client maintains a WebSocket subscription to the upstream price feed,
// reconnecting with exponential backoff when the connection drops.
type Client struct {
	config  Config
	handler Handler
	logger  zerolog.Logger
}

// NewClient creates a feed client delivering updates to handler.
func NewClient(cfg Config, handler Handler, logger zerolog.Logger) *Client {
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = time.Second
	}
	return &Client{
		config:  cfg,
		handler: handler,
		logger:  logging.WithComponent(logger, "feed"),
	}
}

// Run connects and consumes updates until the context is cancelled. Each
// disconnect triggers a fresh backoff cycle.
func (c *Client) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		conn, err := c.connect(ctx)
		if err != nil {
			return errors.NewFeedError(c.config.URL, "giving up after repeated connect failures", err)
		}

		c.logger.Info().Str("url", c.config.URL).Msg("Price feed connected")
		if err := c.consume(ctx, conn); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn().Err(err).Msg("Price feed disconnected, reconnecting")
		}
	}
}

func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	var conn *websocket.Conn
	retryCfg := utils.RetryConfig{
		MaxAttempts:   c.config.MaxRetries,
		InitialDelay:  c.config.BaseDelay,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
	}

	err := utils.Retry(ctx, retryCfg, func() error {
		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		ws, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.config.URL, nil)
		if err != nil {
			c.logger.Debug().Err(err).Msg("Feed dial failed")
			return err
		}
		conn = ws
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (c *Client) consume(ctx context.Context, conn *websocket.Conn) error {
	defer conn.Close()

	// Unblock ReadJSON when the context is cancelled.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var update models.PriceUpdate
		if err := conn.ReadJSON(&update); err != nil {
			return err
		}

		if err := update.Validate(); err != nil {
			// Malformed ticks never reach the state machine.
			c.logger.Warn().Err(err).Msg("Dropping malformed price update")
			continue
		}

		c.handler(update)
	}
}
