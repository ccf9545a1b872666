package models

import (
	"fmt"
	"math"
	"time"
)

// Alert identifies one tracked instrument recommendation with its buy zone,
// stop level, and three profit targets.
type Alert struct {
	ID           int64
	Symbol       string
	CurrentPrice float64
	BuyZoneMin   float64
	BuyZoneMax   float64
	// SupportLevel is the optional stop-loss reference. Nil means the alert
	// cannot stop out.
	SupportLevel *float64
	Target1      float64
	Target2      float64
	Target3      float64
	RequiredTier Tier
	Status       AlertStatus
	// CrossedThresholds grows monotonically; a threshold present here never
	// fires again.
	CrossedThresholds ThresholdSet
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Validate checks the structural invariants established at authoring time.
func (a *Alert) Validate() error {
	if a.Symbol == "" {
		return fmt.Errorf("alert %d: symbol is required", a.ID)
	}
	if a.BuyZoneMin <= 0 || a.BuyZoneMax <= 0 {
		return fmt.Errorf("alert %d: buy zone must be positive", a.ID)
	}
	if a.BuyZoneMax < a.BuyZoneMin {
		return fmt.Errorf("alert %d: buy zone max %.2f below min %.2f", a.ID, a.BuyZoneMax, a.BuyZoneMin)
	}
	if a.Target1 < a.BuyZoneMax {
		return fmt.Errorf("alert %d: target1 %.2f below buy zone max %.2f", a.ID, a.Target1, a.BuyZoneMax)
	}
	if a.Target2 <= a.Target1 || a.Target3 <= a.Target2 {
		return fmt.Errorf("alert %d: targets must be strictly increasing", a.ID)
	}
	if a.SupportLevel != nil && *a.SupportLevel <= 0 {
		return fmt.Errorf("alert %d: support level must be positive", a.ID)
	}
	if !a.RequiredTier.IsValid() {
		return fmt.Errorf("alert %d: unknown tier %q", a.ID, a.RequiredTier)
	}
	if !a.Status.IsValid() {
		return fmt.Errorf("alert %d: unknown status %q", a.ID, a.Status)
	}
	return nil
}

// Clone returns a deep copy so callers can mutate without racing readers.
func (a *Alert) Clone() *Alert {
	c := *a
	if a.SupportLevel != nil {
		lvl := *a.SupportLevel
		c.SupportLevel = &lvl
	}
	c.CrossedThresholds = a.CrossedThresholds.Clone()
	return &c
}

// PriceUpdate is an ephemeral price observation for one alert.
type PriceUpdate struct {
	AlertID    int64     `json:"alertId"`
	Price      float64   `json:"price"`
	ObservedAt time.Time `json:"observedAt"`
}

// Validate rejects malformed updates before they reach the state machine.
func (u PriceUpdate) Validate() error {
	if u.AlertID <= 0 {
		return fmt.Errorf("price update: invalid alert id %d", u.AlertID)
	}
	if math.IsNaN(u.Price) || math.IsInf(u.Price, 0) {
		return fmt.Errorf("price update for alert %d: price is not a number", u.AlertID)
	}
	if u.Price <= 0 {
		return fmt.Errorf("price update for alert %d: non-positive price %.4f", u.AlertID, u.Price)
	}
	return nil
}

// CrossingEvent records the first time a price moves past one of an alert's
// thresholds. Immutable once created; exactly one exists per threshold per
// alert, ever.
type CrossingEvent struct {
	ID         string
	AlertID    int64
	Symbol     string
	Threshold  ThresholdType
	Price      float64
	OccurredAt time.Time
}

// Subscription links a user to an alert they want events for. Owned by the
// external portfolio collaborator; the core only reads it.
type Subscription struct {
	UserID  int64
	AlertID int64
	// Per-target notify flags. Buy-zone entry and stop-out are always
	// delivered; only the profit targets are individually mutable.
	NotifyTarget1 bool
	NotifyTarget2 bool
	NotifyTarget3 bool
	CreatedAt     time.Time
}

// Wants reports whether this subscription cares about the given threshold.
func (s Subscription) Wants(t ThresholdType) bool {
	switch t {
	case ThresholdTarget1:
		return s.NotifyTarget1
	case ThresholdTarget2:
		return s.NotifyTarget2
	case ThresholdTarget3:
		return s.NotifyTarget3
	default:
		return true
	}
}

// AdminPermission is a per-staff-user record of capability flags, supplied
// by the external authorization collaborator.
type AdminPermission struct {
	UserID          int64
	CanViewAlerts   bool
	CanCreateAlerts bool
	CanEditAlerts   bool
	CanDeleteAlerts bool
	CanManageUsers  bool
}

// DeliveredMessage is the wire shape pushed to each live connection when a
// threshold crossing fans out.
type DeliveredMessage struct {
	UserID       int64         `json:"userId"`
	StockAlertID int64         `json:"stockAlertId"`
	TriggerType  ThresholdType `json:"triggerType"`
	Message      string        `json:"message"`
	Timestamp    string        `json:"timestamp"` // ISO-8601
}

// NewDeliveredMessage builds the wire message for one recipient.
func NewDeliveredMessage(userID int64, event CrossingEvent, message string) DeliveredMessage {
	return DeliveredMessage{
		UserID:       userID,
		StockAlertID: event.AlertID,
		TriggerType:  event.Threshold,
		Message:      message,
		Timestamp:    event.OccurredAt.UTC().Format(time.RFC3339),
	}
}
