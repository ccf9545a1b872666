// Package server exposes the HTTP surface: the WebSocket endpoint clients
// subscribe on, price ingestion, and the authoritative alert listing that
// reconnecting clients read to resynchronize.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"tradeedge/internal/engine"
	"tradeedge/internal/errors"
	"tradeedge/internal/logging"
	"tradeedge/internal/models"
	"tradeedge/internal/store"
	"tradeedge/internal/stream"
)

// Visibility decides whether a user may see an alert.
type Visibility interface {
	IsVisible(ctx context.Context, userID int64, alert *models.Alert) (bool, error)
}

// Config holds the transport settings the server needs.
type Config struct {
	Addr       string
	SendBuffer int
}

// Server wires the HTTP handlers to the registry, hub, detector and store.
type Server struct {
	config   Config
	registry *stream.Registry
	hub      *stream.Hub
	detector *engine.Detector
	store    store.DataStore
	filter   Visibility
	logger   zerolog.Logger
	upgrader websocket.Upgrader
	http     *http.Server
}

// New creates a Server. Call ListenAndServe to start it.
func New(cfg Config, registry *stream.Registry, hub *stream.Hub, detector *engine.Detector, ds store.DataStore, filter Visibility, logger zerolog.Logger) *Server {
	s := &Server{
		config:   cfg,
		registry: registry,
		hub:      hub,
		detector: detector,
		store:    ds,
		filter:   filter,
		logger:   logging.WithComponent(logger, "server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin checks belong to the auth proxy in front of us.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/prices", s.handlePrices)
	mux.HandleFunc("/alerts", s.handleAlerts)
	mux.HandleFunc("/healthz", s.handleHealth)

	s.http = &http.Server{
		Addr:        cfg.Addr,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	return s
}

// Handler exposes the route table, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.logger.Info().Str("addr", s.config.Addr).Msg("HTTP server listening")
	return s.http.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// handleWS upgrades the connection and registers it for fan-out. The user
// is identified by the X-User-ID header set by the auth layer in front.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFrom(r)
	if err != nil {
		http.Error(w, "missing or invalid user id", http.StatusBadRequest)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	conn := newWSConn(userID, ws, s.config.SendBuffer, s.logger)
	s.registry.Register(conn)
	s.logger.Info().
		Str("connection_id", conn.ID()).
		Int64("user_id", userID).
		Int("total_connections", s.registry.Count()).
		Msg("Client connected")

	teardown := func() {
		s.registry.Unregister(conn.ID())
		conn.Close()
	}
	go conn.writePump(teardown)
	go conn.readPump(teardown)
}

// handlePrices ingests a price update, runs crossing detection, and
// dispatches any resulting events to the hub.
func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var update models.PriceUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	events, err := s.detector.Apply(r.Context(), update)
	if err != nil {
		if errors.IsValidation(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if errors.Is(err, errors.ErrAlertNotFound) {
			http.Error(w, "alert not found", http.StatusNotFound)
			return
		}
		s.logger.Error().Err(err).Int64("alert_id", update.AlertID).Msg("Price update failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	for _, event := range events {
		s.hub.Dispatch(event)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]int{"events": len(events)})
}

// alertView is the listing shape reconnecting clients resync from.
type alertView struct {
	ID                int64    `json:"id"`
	Symbol            string   `json:"symbol"`
	Status            string   `json:"status"`
	CurrentPrice      float64  `json:"currentPrice"`
	RequiredTier      string   `json:"requiredTier"`
	CrossedThresholds []string `json:"crossedThresholds"`
}

// handleAlerts returns the open alerts visible to the requesting user.
// The listing reflects committed state, so a client that reconnects after
// missing deliveries reads the authoritative status here.
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFrom(r)
	if err != nil {
		http.Error(w, "missing or invalid user id", http.StatusBadRequest)
		return
	}

	alerts, err := s.store.GetOpenAlerts(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Listing alerts failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	views := make([]alertView, 0, len(alerts))
	for _, alert := range alerts {
		visible, err := s.filter.IsVisible(r.Context(), userID, &alert)
		if err != nil {
			s.logger.Warn().Err(err).Int64("user_id", userID).Msg("Visibility check failed")
			continue
		}
		if !visible {
			continue
		}
		crossed := make([]string, 0, len(alert.CrossedThresholds))
		for _, t := range alert.CrossedThresholds.Slice() {
			crossed = append(crossed, string(t))
		}
		views = append(views, alertView{
			ID:                alert.ID,
			Symbol:            alert.Symbol,
			Status:            string(alert.Status),
			CurrentPrice:      alert.CurrentPrice,
			RequiredTier:      string(alert.RequiredTier),
			CrossedThresholds: crossed,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(views)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func userIDFrom(r *http.Request) (int64, error) {
	raw := r.Header.Get("X-User-ID")
	if raw == "" {
		raw = r.URL.Query().Get("user_id")
	}
	return strconv.ParseInt(raw, 10, 64)
}
