package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"tradeedge/internal/errors"
	"tradeedge/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Alerts: one tracked instrument recommendation each
	CREATE TABLE IF NOT EXISTS alerts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		current_price REAL NOT NULL DEFAULT 0,
		buy_zone_min REAL NOT NULL,
		buy_zone_max REAL NOT NULL,
		support_level REAL,
		target1 REAL NOT NULL,
		target2 REAL NOT NULL,
		target3 REAL NOT NULL,
		required_tier TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		crossed_thresholds TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status);

	-- Crossing events: at most one row per (alert, threshold), ever
	CREATE TABLE IF NOT EXISTS crossing_events (
		id TEXT PRIMARY KEY,
		alert_id INTEGER NOT NULL,
		symbol TEXT NOT NULL,
		threshold TEXT NOT NULL,
		price REAL NOT NULL,
		occurred_at DATETIME NOT NULL,
		UNIQUE(alert_id, threshold)
	);
	CREATE INDEX IF NOT EXISTS idx_events_alert ON crossing_events(alert_id);

	-- Subscriptions: which users care about which alerts
	CREATE TABLE IF NOT EXISTS subscriptions (
		user_id INTEGER NOT NULL,
		alert_id INTEGER NOT NULL,
		notify_target1 INTEGER NOT NULL DEFAULT 1,
		notify_target2 INTEGER NOT NULL DEFAULT 1,
		notify_target3 INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY(user_id, alert_id)
	);
	CREATE INDEX IF NOT EXISTS idx_subscriptions_alert ON subscriptions(alert_id);

	-- Users: tier lookups for the entitlement filter
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY,
		tier TEXT NOT NULL DEFAULT 'free',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Staff permission records, consumed as opaque capability flags
	CREATE TABLE IF NOT EXISTS admin_permissions (
		user_id INTEGER PRIMARY KEY,
		can_view_alerts INTEGER NOT NULL DEFAULT 0,
		can_create_alerts INTEGER NOT NULL DEFAULT 0,
		can_edit_alerts INTEGER NOT NULL DEFAULT 0,
		can_delete_alerts INTEGER NOT NULL DEFAULT 0,
		can_manage_users INTEGER NOT NULL DEFAULT 0
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// CreateAlert inserts a new alert and assigns its ID.
func (s *SQLiteStore) CreateAlert(ctx context.Context, alert *models.Alert) error {
	if err := alert.Validate(); err != nil {
		return errors.NewValidationError("alert", alert.ID, err.Error())
	}
	if alert.Status == "" {
		alert.Status = models.StatusPending
	}
	if alert.CrossedThresholds == nil {
		alert.CrossedThresholds = models.NewThresholdSet()
	}

	crossed, err := marshalThresholds(alert.CrossedThresholds)
	if err != nil {
		return errors.NewStoreError("create_alert", alert.ID, err)
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (symbol, current_price, buy_zone_min, buy_zone_max,
			support_level, target1, target2, target3, required_tier, status,
			crossed_thresholds, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.Symbol, alert.CurrentPrice, alert.BuyZoneMin, alert.BuyZoneMax,
		nullFloat(alert.SupportLevel), alert.Target1, alert.Target2, alert.Target3,
		string(alert.RequiredTier), string(alert.Status), crossed, now, now)
	if err != nil {
		return errors.NewStoreError("create_alert", 0, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return errors.NewStoreError("create_alert", 0, err)
	}
	alert.ID = id
	alert.CreatedAt = now
	alert.UpdatedAt = now
	return nil
}

const alertColumns = `id, symbol, current_price, buy_zone_min, buy_zone_max,
	support_level, target1, target2, target3, required_tier, status,
	crossed_thresholds, created_at, updated_at`

// GetAlert loads one alert by ID.
func (s *SQLiteStore) GetAlert(ctx context.Context, id int64) (*models.Alert, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id)

	alert, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, errors.ErrAlertNotFound
	}
	if err != nil {
		return nil, errors.NewStoreError("get_alert", id, err)
	}
	return alert, nil
}

// GetOpenAlerts returns all alerts that have not reached a terminal status.
func (s *SQLiteStore) GetOpenAlerts(ctx context.Context) ([]models.Alert, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+alertColumns+` FROM alerts
		 WHERE status NOT IN (?, ?) ORDER BY id`,
		string(models.StatusTarget3Hit), string(models.StatusStoppedOut))
	if err != nil {
		return nil, errors.NewStoreError("get_open_alerts", 0, err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, errors.NewStoreError("get_open_alerts", 0, err)
		}
		alerts = append(alerts, *alert)
	}
	return alerts, rows.Err()
}

// CommitTransition persists a status transition and its emitted events
// atomically. On any failure the whole transition rolls back, so a threshold
// is never marked crossed without its event durably recorded.
func (s *SQLiteStore) CommitTransition(ctx context.Context, alert *models.Alert, events []models.CrossingEvent) error {
	crossed, err := marshalThresholds(alert.CrossedThresholds)
	if err != nil {
		return errors.NewStoreError("commit_transition", alert.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewStoreError("commit_transition", alert.ID, err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		UPDATE alerts
		SET current_price = ?, status = ?, crossed_thresholds = ?, updated_at = ?
		WHERE id = ?`,
		alert.CurrentPrice, string(alert.Status), crossed, now, alert.ID)
	if err != nil {
		return errors.NewStoreError("commit_transition", alert.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.ErrAlertNotFound
	}

	for _, event := range events {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO crossing_events (id, alert_id, symbol, threshold, price, occurred_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			event.ID, event.AlertID, event.Symbol, string(event.Threshold),
			event.Price, event.OccurredAt.UTC())
		if err != nil {
			return errors.NewStoreError("commit_transition", alert.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewStoreError("commit_transition", alert.ID, err)
	}
	alert.UpdatedAt = now
	return nil
}

// CancelAlert terminates an open alert from outside the state machine.
func (s *SQLiteStore) CancelAlert(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET status = ?, updated_at = ?
		WHERE id = ? AND status NOT IN (?, ?)`,
		string(models.StatusStoppedOut), time.Now().UTC(), id,
		string(models.StatusTarget3Hit), string(models.StatusStoppedOut))
	if err != nil {
		return errors.NewStoreError("cancel_alert", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.ErrAlertClosed
	}
	return nil
}

// GetEvents returns all emitted crossing events for an alert.
func (s *SQLiteStore) GetEvents(ctx context.Context, alertID int64) ([]models.CrossingEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, alert_id, symbol, threshold, price, occurred_at
		FROM crossing_events WHERE alert_id = ? ORDER BY occurred_at`, alertID)
	if err != nil {
		return nil, errors.NewStoreError("get_events", alertID, err)
	}
	defer rows.Close()

	var events []models.CrossingEvent
	for rows.Next() {
		var event models.CrossingEvent
		var threshold string
		if err := rows.Scan(&event.ID, &event.AlertID, &event.Symbol,
			&threshold, &event.Price, &event.OccurredAt); err != nil {
			return nil, errors.NewStoreError("get_events", alertID, err)
		}
		event.Threshold = models.ThresholdType(threshold)
		events = append(events, event)
	}
	return events, rows.Err()
}

// SaveSubscription inserts or replaces a subscription.
func (s *SQLiteStore) SaveSubscription(ctx context.Context, sub *models.Subscription) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (user_id, alert_id, notify_target1, notify_target2, notify_target3)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, alert_id) DO UPDATE SET
			notify_target1 = excluded.notify_target1,
			notify_target2 = excluded.notify_target2,
			notify_target3 = excluded.notify_target3`,
		sub.UserID, sub.AlertID,
		boolToInt(sub.NotifyTarget1), boolToInt(sub.NotifyTarget2), boolToInt(sub.NotifyTarget3))
	if err != nil {
		return errors.NewStoreError("save_subscription", sub.AlertID, err)
	}
	return nil
}

// SubscribersOf returns every subscription for one alert.
func (s *SQLiteStore) SubscribersOf(ctx context.Context, alertID int64) ([]models.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, alert_id, notify_target1, notify_target2, notify_target3, created_at
		FROM subscriptions WHERE alert_id = ?`, alertID)
	if err != nil {
		return nil, errors.NewStoreError("subscribers_of", alertID, err)
	}
	defer rows.Close()

	var subs []models.Subscription
	for rows.Next() {
		var sub models.Subscription
		var t1, t2, t3 int
		if err := rows.Scan(&sub.UserID, &sub.AlertID, &t1, &t2, &t3, &sub.CreatedAt); err != nil {
			return nil, errors.NewStoreError("subscribers_of", alertID, err)
		}
		sub.NotifyTarget1 = t1 != 0
		sub.NotifyTarget2 = t2 != 0
		sub.NotifyTarget3 = t3 != 0
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// UpsertUserTier inserts or updates a user's tier.
func (s *SQLiteStore) UpsertUserTier(ctx context.Context, userID int64, tier models.Tier) error {
	if !tier.IsValid() {
		return errors.NewValidationError("tier", tier, "unknown tier")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, tier) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET tier = excluded.tier`,
		userID, string(tier))
	if err != nil {
		return errors.NewStoreError("upsert_user_tier", 0, err)
	}
	return nil
}

// TierOf returns the user's subscription tier.
func (s *SQLiteStore) TierOf(ctx context.Context, userID int64) (models.Tier, error) {
	var tier string
	err := s.db.QueryRowContext(ctx,
		`SELECT tier FROM users WHERE id = ?`, userID).Scan(&tier)
	if err == sql.ErrNoRows {
		return "", errors.ErrUserNotFound
	}
	if err != nil {
		return "", errors.NewStoreError("tier_of", 0, err)
	}
	return models.Tier(tier), nil
}

// SavePermissions inserts or replaces a staff permission record.
func (s *SQLiteStore) SavePermissions(ctx context.Context, perm *models.AdminPermission) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO admin_permissions (user_id, can_view_alerts, can_create_alerts,
			can_edit_alerts, can_delete_alerts, can_manage_users)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			can_view_alerts = excluded.can_view_alerts,
			can_create_alerts = excluded.can_create_alerts,
			can_edit_alerts = excluded.can_edit_alerts,
			can_delete_alerts = excluded.can_delete_alerts,
			can_manage_users = excluded.can_manage_users`,
		perm.UserID, boolToInt(perm.CanViewAlerts), boolToInt(perm.CanCreateAlerts),
		boolToInt(perm.CanEditAlerts), boolToInt(perm.CanDeleteAlerts), boolToInt(perm.CanManageUsers))
	if err != nil {
		return errors.NewStoreError("save_permissions", 0, err)
	}
	return nil
}

// PermissionsOf returns the staff permission record, or nil for non-staff.
func (s *SQLiteStore) PermissionsOf(ctx context.Context, userID int64) (*models.AdminPermission, error) {
	perm := &models.AdminPermission{UserID: userID}
	var view, create, edit, del, manage int
	err := s.db.QueryRowContext(ctx, `
		SELECT can_view_alerts, can_create_alerts, can_edit_alerts, can_delete_alerts, can_manage_users
		FROM admin_permissions WHERE user_id = ?`, userID).
		Scan(&view, &create, &edit, &del, &manage)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewStoreError("permissions_of", 0, err)
	}
	perm.CanViewAlerts = view != 0
	perm.CanCreateAlerts = create != 0
	perm.CanEditAlerts = edit != 0
	perm.CanDeleteAlerts = del != 0
	perm.CanManageUsers = manage != 0
	return perm, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row rowScanner) (*models.Alert, error) {
	var alert models.Alert
	var support sql.NullFloat64
	var tier, status, crossed string

	err := row.Scan(&alert.ID, &alert.Symbol, &alert.CurrentPrice,
		&alert.BuyZoneMin, &alert.BuyZoneMax, &support,
		&alert.Target1, &alert.Target2, &alert.Target3,
		&tier, &status, &crossed, &alert.CreatedAt, &alert.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if support.Valid {
		lvl := support.Float64
		alert.SupportLevel = &lvl
	}
	alert.RequiredTier = models.Tier(tier)
	alert.Status = models.AlertStatus(status)
	alert.CrossedThresholds, err = unmarshalThresholds(crossed)
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

func marshalThresholds(set models.ThresholdSet) (string, error) {
	names := make([]string, 0, len(set))
	for _, t := range set.Slice() {
		names = append(names, string(t))
	}
	data, err := json.Marshal(names)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalThresholds(data string) (models.ThresholdSet, error) {
	var names []string
	if err := json.Unmarshal([]byte(data), &names); err != nil {
		return nil, err
	}
	set := models.NewThresholdSet()
	for _, name := range names {
		set.Add(models.ThresholdType(name))
	}
	return set, nil
}

func nullFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Ensure SQLiteStore implements DataStore
var _ DataStore = (*SQLiteStore)(nil)
