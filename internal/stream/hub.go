package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"tradeedge/internal/logging"
	"tradeedge/internal/models"
)

// SubscriptionSource resolves which users care about an alert. Backed by the
// external subscription directory; may be cached with a short TTL.
type SubscriptionSource interface {
	SubscribersOf(ctx context.Context, alertID int64) ([]models.Subscription, error)
}

// AlertSource loads the alert an event refers to.
type AlertSource interface {
	GetAlert(ctx context.Context, id int64) (*models.Alert, error)
}

// Visibility is the entitlement decision per (user, alert). The hub treats
// it as an opaque boolean and never inspects permission internals.
type Visibility interface {
	IsVisible(ctx context.Context, userID int64, alert *models.Alert) (bool, error)
}

// Formatter renders the human message carried by a delivered notification.
type Formatter func(event models.CrossingEvent, alert *models.Alert) string

// HubConfig holds configuration for the fan-out hub.
type HubConfig struct {
	// EventBufferSize is the size of the inbound event queue.
	EventBufferSize int
	// DeliveryTimeout bounds one connection send; on expiry the connection
	// is treated as dead and unregistered.
	DeliveryTimeout time.Duration
	// MaxConcurrentDeliveries bounds parallel sends across all events.
	MaxConcurrentDeliveries int
	// SubscriberCacheTTL bounds staleness of cached subscriber lists.
	SubscriberCacheTTL time.Duration
}

// DefaultHubConfig returns the default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		EventBufferSize:         1024,
		DeliveryTimeout:         5 * time.Second,
		MaxConcurrentDeliveries: 32,
		SubscriberCacheTTL:      30 * time.Second,
	}
}

// Hub receives crossing events and delivers them to every live, entitled
// connection. Delivery is at-most-once: a user with no live connection
// misses the event, a dead connection is unregistered without retry.
type Hub struct {
	config     HubConfig
	registry   *Registry
	subs       SubscriptionSource
	alerts     AlertSource
	visibility Visibility
	format     Formatter
	logger     zerolog.Logger

	events  chan models.CrossingEvent
	done    chan struct{}
	started bool
	mu      sync.Mutex
	sem     chan struct{}

	cacheMu  sync.RWMutex
	subCache map[int64]cachedSubscribers

	// Metrics
	eventsReceived   uint64
	eventsDropped    uint64
	delivered        uint64
	deliveryFailures uint64
	denied           uint64
	unreachableUsers uint64
}

type cachedSubscribers struct {
	subs      []models.Subscription
	expiresAt time.Time
}

// NewHub creates a fan-out hub.
func NewHub(cfg HubConfig, registry *Registry, subs SubscriptionSource, alerts AlertSource, visibility Visibility, format Formatter, logger zerolog.Logger) *Hub {
	return &Hub{
		config:     cfg,
		registry:   registry,
		subs:       subs,
		alerts:     alerts,
		visibility: visibility,
		format:     format,
		logger:     logging.WithComponent(logger, "hub"),
		events:     make(chan models.CrossingEvent, cfg.EventBufferSize),
		done:       make(chan struct{}),
		sem:        make(chan struct{}, cfg.MaxConcurrentDeliveries),
		subCache:   make(map[int64]cachedSubscribers),
	}
}

// Start begins the hub's dispatch loop.
func (h *Hub) Start(ctx context.Context) {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return
	}
	h.started = true
	h.mu.Unlock()

	go h.dispatchLoop(ctx)
}

// Stop stops the dispatch loop and closes every registered connection.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started {
		return
	}
	close(h.done)
	h.started = false
	h.registry.CloseAll()
}

func (h *Hub) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case event := <-h.events:
			h.DispatchSync(ctx, event)
		}
	}
}

// Dispatch enqueues a crossing event for fan-out. Non-blocking: if the
// queue is full the event is dropped and counted, never stalling the
// price-update path.
func (h *Hub) Dispatch(event models.CrossingEvent) {
	atomic.AddUint64(&h.eventsReceived, 1)
	select {
	case h.events <- event:
	default:
		atomic.AddUint64(&h.eventsDropped, 1)
		h.logger.Warn().
			Int64("alert_id", event.AlertID).
			Str("threshold", string(event.Threshold)).
			Msg("Event queue full, dropping event")
	}
}

// DispatchSync fans one event out to every entitled live connection and
// waits for all delivery attempts to settle. One connection's failure or
// slowness never blocks delivery to another.
func (h *Hub) DispatchSync(ctx context.Context, event models.CrossingEvent) {
	alert, err := h.alerts.GetAlert(ctx, event.AlertID)
	if err != nil {
		h.logger.Error().Err(err).Int64("alert_id", event.AlertID).Msg("Cannot resolve alert for event")
		return
	}

	subs, err := h.subscribersOf(ctx, event.AlertID)
	if err != nil {
		h.logger.Error().Err(err).Int64("alert_id", event.AlertID).Msg("Cannot resolve subscribers")
		return
	}
	if len(subs) == 0 {
		return
	}

	message := h.format(event, alert)

	var wg sync.WaitGroup
	for _, sub := range subs {
		if !sub.Wants(event.Threshold) {
			continue
		}

		visible, err := h.visibility.IsVisible(ctx, sub.UserID, alert)
		if err != nil {
			h.logger.Error().Err(err).Int64("user_id", sub.UserID).Msg("Entitlement lookup failed")
			continue
		}
		if !visible {
			// Policy outcome, not a fault.
			atomic.AddUint64(&h.denied, 1)
			continue
		}

		conns := h.registry.ConnectionsFor(sub.UserID)
		if len(conns) == 0 {
			// No durable queue: a disconnected user misses the event.
			atomic.AddUint64(&h.unreachableUsers, 1)
			continue
		}

		msg := models.NewDeliveredMessage(sub.UserID, event, message)
		for _, conn := range conns {
			wg.Add(1)
			go func(c Conn) {
				defer wg.Done()
				h.sem <- struct{}{}
				defer func() { <-h.sem }()
				h.deliver(ctx, c, msg)
			}(conn)
		}
	}
	wg.Wait()
}

// deliver attempts one bounded send. On failure the connection is treated
// as dead: unregistered and closed, with no retry.
func (h *Hub) deliver(ctx context.Context, conn Conn, msg models.DeliveredMessage) {
	sendCtx, cancel := context.WithTimeout(ctx, h.config.DeliveryTimeout)
	defer cancel()

	err := conn.Send(sendCtx, msg)
	logging.LogDelivery(h.logger, conn.ID(), msg.UserID, msg.StockAlertID, err)

	if err != nil {
		atomic.AddUint64(&h.deliveryFailures, 1)
		h.registry.Unregister(conn.ID())
		conn.Close()
		return
	}
	atomic.AddUint64(&h.delivered, 1)
}

func (h *Hub) subscribersOf(ctx context.Context, alertID int64) ([]models.Subscription, error) {
	if h.config.SubscriberCacheTTL > 0 {
		h.cacheMu.RLock()
		cached, ok := h.subCache[alertID]
		h.cacheMu.RUnlock()
		if ok && time.Now().Before(cached.expiresAt) {
			return cached.subs, nil
		}
	}

	subs, err := h.subs.SubscribersOf(ctx, alertID)
	if err != nil {
		return nil, err
	}

	if h.config.SubscriberCacheTTL > 0 {
		h.cacheMu.Lock()
		h.subCache[alertID] = cachedSubscribers{
			subs:      subs,
			expiresAt: time.Now().Add(h.config.SubscriberCacheTTL),
		}
		h.cacheMu.Unlock()
	}
	return subs, nil
}

// SweepSubscriberCache removes expired subscriber cache entries.
func (h *Hub) SweepSubscriberCache() {
	now := time.Now()
	h.cacheMu.Lock()
	for alertID, cached := range h.subCache {
		if now.After(cached.expiresAt) {
			delete(h.subCache, alertID)
		}
	}
	h.cacheMu.Unlock()
}

// HubMetrics contains hub performance counters.
type HubMetrics struct {
	EventsReceived    uint64
	EventsDropped     uint64
	Delivered         uint64
	DeliveryFailures  uint64
	EntitlementDenied uint64
	UnreachableUsers  uint64
	Connections       int
	ConnectedUsers    int
}

// Metrics returns a snapshot of hub counters.
func (h *Hub) Metrics() HubMetrics {
	return HubMetrics{
		EventsReceived:    atomic.LoadUint64(&h.eventsReceived),
		EventsDropped:     atomic.LoadUint64(&h.eventsDropped),
		Delivered:         atomic.LoadUint64(&h.delivered),
		DeliveryFailures:  atomic.LoadUint64(&h.deliveryFailures),
		EntitlementDenied: atomic.LoadUint64(&h.denied),
		UnreachableUsers:  atomic.LoadUint64(&h.unreachableUsers),
		Connections:       h.registry.Count(),
		ConnectedUsers:    h.registry.UserCount(),
	}
}
