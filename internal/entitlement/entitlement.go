// Package entitlement decides, per user, whether an alert's events are
// visible to them. Ordinary users are compared on the tier total order;
// staff accounts are governed by an opaque permission record.
package entitlement

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tradeedge/internal/errors"
	"tradeedge/internal/logging"
	"tradeedge/internal/models"
)

// Directory supplies tier and permission lookups. Both are read-only
// queries against the external authorization collaborator.
type Directory interface {
	TierOf(ctx context.Context, userID int64) (models.Tier, error)
	// PermissionsOf returns nil for non-staff users.
	PermissionsOf(ctx context.Context, userID int64) (*models.AdminPermission, error)
}

// Filter answers visibility questions for (user, alert) pairs. Tier lookups
// are cached with a short TTL; permission records are consulted live.
type Filter struct {
	dir    Directory
	ttl    time.Duration
	logger zerolog.Logger

	mu    sync.RWMutex
	tiers map[int64]cachedTier
}

type cachedTier struct {
	tier      models.Tier
	expiresAt time.Time
}

// NewFilter creates an entitlement filter backed by the given directory.
// A non-positive ttl disables tier caching.
func NewFilter(dir Directory, ttl time.Duration, logger zerolog.Logger) *Filter {
	return &Filter{
		dir:    dir,
		ttl:    ttl,
		logger: logging.WithComponent(logger, "entitlement"),
		tiers:  make(map[int64]cachedTier),
	}
}

// IsVisible reports whether the user may receive events for the alert.
// Staff visibility comes from the permission record as an opaque boolean;
// everyone else is compared on free < paid < premium < mentorship. A user
// the directory does not know is not entitled to anything.
func (f *Filter) IsVisible(ctx context.Context, userID int64, alert *models.Alert) (bool, error) {
	perm, err := f.dir.PermissionsOf(ctx, userID)
	if err != nil {
		return false, err
	}
	if perm != nil {
		return perm.CanViewAlerts, nil
	}

	tier, err := f.tierOf(ctx, userID)
	if err != nil {
		if errors.Is(err, errors.ErrUserNotFound) {
			return false, nil
		}
		return false, err
	}

	return tier.AtLeast(alert.RequiredTier), nil
}

func (f *Filter) tierOf(ctx context.Context, userID int64) (models.Tier, error) {
	if f.ttl > 0 {
		f.mu.RLock()
		cached, ok := f.tiers[userID]
		f.mu.RUnlock()
		if ok && time.Now().Before(cached.expiresAt) {
			return cached.tier, nil
		}
	}

	tier, err := f.dir.TierOf(ctx, userID)
	if err != nil {
		return "", err
	}

	if f.ttl > 0 {
		f.mu.Lock()
		f.tiers[userID] = cachedTier{tier: tier, expiresAt: time.Now().Add(f.ttl)}
		f.mu.Unlock()
	}
	return tier, nil
}

// Invalidate drops the cached tier for one user, forcing a fresh lookup.
func (f *Filter) Invalidate(userID int64) {
	f.mu.Lock()
	delete(f.tiers, userID)
	f.mu.Unlock()
}

// SweepExpired removes expired cache entries.
func (f *Filter) SweepExpired() {
	now := time.Now()
	f.mu.Lock()
	for userID, cached := range f.tiers {
		if now.After(cached.expiresAt) {
			delete(f.tiers, userID)
		}
	}
	f.mu.Unlock()
}
