// Package client implements the client-side delivery surface: an ordered
// log of received notifications with a badge counter.
package client

import (
	"sync"
	"time"

	"tradeedge/internal/models"
)

// Notification is one entry in a session's local log.
type Notification struct {
	AlertID    int64
	Threshold  models.ThresholdType
	Message    string
	ReceivedAt time.Time
}

type dedupeKey struct {
	alertID   int64
	threshold models.ThresholdType
}

// Inbox holds the notifications one connected session has received. It
// de-duplicates by (alertId, thresholdType) defensively against any
// upstream re-delivery, and tracks an unread counter that stays frozen at
// zero while the notification panel is open. State is scoped to the
// session: nothing survives a reconnect.
type Inbox struct {
	mu        sync.Mutex
	entries   []Notification
	seen      map[dedupeKey]struct{}
	unread    int
	panelOpen bool
}

// NewInbox creates an empty inbox.
func NewInbox() *Inbox {
	return &Inbox{
		seen: make(map[dedupeKey]struct{}),
	}
}

// Receive appends a delivered message to the log. Returns false if the
// (alertId, thresholdType) pair was already present and the message was
// ignored. The unread counter increments only while the panel is closed.
func (i *Inbox) Receive(msg models.DeliveredMessage) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	key := dedupeKey{alertID: msg.StockAlertID, threshold: msg.TriggerType}
	if _, dup := i.seen[key]; dup {
		return false
	}
	i.seen[key] = struct{}{}

	i.entries = append(i.entries, Notification{
		AlertID:    msg.StockAlertID,
		Threshold:  msg.TriggerType,
		Message:    msg.Message,
		ReceivedAt: time.Now(),
	})
	if !i.panelOpen {
		i.unread++
	}
	return true
}

// Entries returns the log in arrival order.
func (i *Inbox) Entries() []Notification {
	i.mu.Lock()
	defer i.mu.Unlock()

	out := make([]Notification, len(i.entries))
	copy(out, i.entries)
	return out
}

// Unread returns the badge count.
func (i *Inbox) Unread() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.unread
}

// OpenPanel marks the panel open and zeroes the badge. New arrivals keep
// appending but do not increment the counter until ClosePanel.
func (i *Inbox) OpenPanel() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.panelOpen = true
	i.unread = 0
}

// ClosePanel marks the panel closed; subsequent arrivals count as unread.
func (i *Inbox) ClosePanel() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.panelOpen = false
}

// ClearAll empties the log and the badge. De-duplication state is kept so
// a cleared notification does not reappear on re-delivery.
func (i *Inbox) ClearAll() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.entries = nil
	i.unread = 0
}

// Len returns the number of logged notifications.
func (i *Inbox) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.entries)
}
