package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tradeedge/internal/errors"
	"tradeedge/internal/logging"
	"tradeedge/internal/models"
)

// AlertStore is the slice of persistence the detector needs. The commit is
// transactional: either (status, crossedThresholds, events) all land, or
// none do.
type AlertStore interface {
	GetAlert(ctx context.Context, id int64) (*models.Alert, error)
	CommitTransition(ctx context.Context, alert *models.Alert, events []models.CrossingEvent) error
}

// Detector consumes price updates and emits at most one CrossingEvent per
// threshold per alert, ever. Updates for the same alert are serialized;
// updates for different alerts proceed in parallel.
type Detector struct {
	store  AlertStore
	logger zerolog.Logger
	locks  sync.Map // alert ID -> *sync.Mutex
}

// NewDetector creates a new crossing detector.
func NewDetector(store AlertStore, logger zerolog.Logger) *Detector {
	return &Detector{
		store:  store,
		logger: logging.WithComponent(logger, "detector"),
	}
}

// Apply runs one price update through the state machine and returns the
// crossing events it produced. Malformed updates are rejected before any
// state is touched. Applying the same update twice yields the same status
// and zero additional events the second time.
func (d *Detector) Apply(ctx context.Context, update models.PriceUpdate) ([]models.CrossingEvent, error) {
	if err := update.Validate(); err != nil {
		return nil, errors.NewValidationError("price_update", update.Price, err.Error())
	}

	mu := d.lockFor(update.AlertID)
	mu.Lock()
	defer mu.Unlock()

	alert, err := d.store.GetAlert(ctx, update.AlertID)
	if err != nil {
		return nil, err
	}

	if alert.Status.IsTerminal() {
		return nil, nil
	}

	newStatus, crossed := Transition(alert, update.Price)

	occurredAt := update.ObservedAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	events := make([]models.CrossingEvent, 0, len(crossed))
	for _, threshold := range crossed {
		events = append(events, models.CrossingEvent{
			ID:         uuid.NewString(),
			AlertID:    alert.ID,
			Symbol:     alert.Symbol,
			Threshold:  threshold,
			Price:      update.Price,
			OccurredAt: occurredAt,
		})
	}

	alert.Status = newStatus
	for _, threshold := range crossed {
		alert.CrossedThresholds.Add(threshold)
	}
	alert.CurrentPrice = update.Price

	// Nothing is emitted unless the whole transition commits.
	if err := d.store.CommitTransition(ctx, alert, events); err != nil {
		return nil, err
	}

	for _, event := range events {
		logging.LogCrossing(d.logger, event.AlertID, event.Symbol, string(event.Threshold), event.Price)
	}

	return events, nil
}

// lockFor returns the mutex serializing updates for one alert. Locks are
// never evicted; the alert population is bounded.
func (d *Detector) lockFor(alertID int64) *sync.Mutex {
	if mu, ok := d.locks.Load(alertID); ok {
		return mu.(*sync.Mutex)
	}
	mu, _ := d.locks.LoadOrStore(alertID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
