// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"tradeedge/internal/models"
)

// DataStore defines the interface for data persistence.
type DataStore interface {
	// Alerts
	CreateAlert(ctx context.Context, alert *models.Alert) error
	GetAlert(ctx context.Context, id int64) (*models.Alert, error)
	GetOpenAlerts(ctx context.Context) ([]models.Alert, error)
	// CommitTransition persists a status transition and its emitted events
	// in one transaction: either the whole (status, crossedThresholds,
	// events) update commits, or none of it does.
	CommitTransition(ctx context.Context, alert *models.Alert, events []models.CrossingEvent) error
	// CancelAlert terminates an open alert from outside the state machine
	// (admin stop-out/cancel).
	CancelAlert(ctx context.Context, id int64) error
	GetEvents(ctx context.Context, alertID int64) ([]models.CrossingEvent, error)

	// Subscriptions. The core reads this mapping; writes exist for the
	// external portfolio surface and for seeding.
	SaveSubscription(ctx context.Context, sub *models.Subscription) error
	SubscribersOf(ctx context.Context, alertID int64) ([]models.Subscription, error)

	// Users & permissions
	UpsertUserTier(ctx context.Context, userID int64, tier models.Tier) error
	TierOf(ctx context.Context, userID int64) (models.Tier, error)
	SavePermissions(ctx context.Context, perm *models.AdminPermission) error
	// PermissionsOf returns nil for non-staff users.
	PermissionsOf(ctx context.Context, userID int64) (*models.AdminPermission, error)

	// Lifecycle
	Close() error
}
