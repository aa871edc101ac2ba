// Package lifecycle owns the alert record state machine. All status changes
// go through Manager so transitions stay valid under concurrent callers:
// active -> acknowledged -> resolved, active -> resolved, and
// active|acknowledged -> expired. resolved and expired are terminal.
package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/riskwatch/backend/internal/models"
	"gorm.io/gorm"
)

// ErrInvalidTransition is returned when a status change is not permitted from
// the record's current state. The record is left unchanged.
var ErrInvalidTransition = errors.New("invalid alert status transition")

// ErrEmptyMessage is returned when resolve is called without a resolution message.
var ErrEmptyMessage = errors.New("resolution message is required")

// Manager applies lifecycle transitions with optimistic concurrency: every
// update is conditioned on the expected current status, so two concurrent
// transitions on one record cannot both win.
type Manager struct {
	db *gorm.DB
}

func NewManager(db *gorm.DB) *Manager {
	return &Manager{db: db}
}

// severityIcons per severity tier; unknown severities fall back to white.
var severityIcons = map[string]string{
	"P1": "🔴 urgent",
	"P2": "🟠 severe",
	"P3": "🟡 warning",
	"P4": "🔵 info",
}

// SeverityIcon returns the icon + label used in rendered alert messages.
func SeverityIcon(severity string) string {
	if icon, ok := severityIcons[severity]; ok {
		return icon
	}
	return "⚪"
}

// RenderMessage builds the alert message body: icon + rule name, metric,
// value to 4 decimal places, threshold display when the condition has one,
// description when the rule has one.
func RenderMessage(rule *models.AlertRule, value float64, display string) string {
	msg := fmt.Sprintf("%s %s\n", SeverityIcon(rule.Severity), rule.Name)
	msg += fmt.Sprintf("Metric: %s\n", rule.MetricCode)
	msg += fmt.Sprintf("Current: %.4f\n", value)
	if display != "" {
		msg += fmt.Sprintf("Threshold: %s\n", display)
	}
	if rule.Description != "" {
		msg += "Note: " + rule.Description
	}
	return msg
}

// Create builds and persists a record in active state, freezing the rule's
// severity and the rendered message. threshold is nil for conditions without
// a single scalar; display is the reference text for the message. tx may be a
// transaction handle; the engine calls this inside the same transaction as
// its cooldown check.
func (m *Manager) Create(tx *gorm.DB, rule *models.AlertRule, value float64, threshold *float64, display string) (*models.AlertRecord, error) {
	if tx == nil {
		tx = m.db
	}
	rec := &models.AlertRecord{
		RuleID:         rule.ID,
		RuleCode:       rule.Code,
		MetricCode:     rule.MetricCode,
		AlertTime:      time.Now(),
		AlertValue:     value,
		ThresholdValue: threshold,
		Severity:       rule.Severity,
		Message:        RenderMessage(rule, value, display),
		Status:         models.StatusActive,
	}
	if err := tx.Create(rec).Error; err != nil {
		return nil, err
	}
	return rec, nil
}

// transition applies updates iff the record's current status is in allowed.
// RowsAffected 0 on an existing record means the transition is not permitted.
func (m *Manager) transition(id uint, allowed []string, updates map[string]interface{}) (*models.AlertRecord, error) {
	res := m.db.Model(&models.AlertRecord{}).
		Where("id = ? AND status IN ?", id, allowed).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	var rec models.AlertRecord
	if err := m.db.First(&rec, id).Error; err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		return &rec, fmt.Errorf("record %d in status %q: %w", id, rec.Status, ErrInvalidTransition)
	}
	return &rec, nil
}

// Acknowledge marks an active record as acknowledged by actor. An optional
// note is stored alongside; an empty note leaves resolved_message untouched.
func (m *Manager) Acknowledge(id uint, actor, note string) (*models.AlertRecord, error) {
	now := time.Now()
	updates := map[string]interface{}{
		"status":          models.StatusAcknowledged,
		"acknowledged_by": actor,
		"acknowledged_at": &now,
	}
	if note != "" {
		updates["resolved_message"] = note
	}
	return m.transition(id, []string{models.StatusActive}, updates)
}

// Resolve marks an active or acknowledged record as resolved. The resolution
// message is mandatory.
func (m *Manager) Resolve(id uint, actor, message string) (*models.AlertRecord, error) {
	if message == "" {
		return nil, ErrEmptyMessage
	}
	now := time.Now()
	return m.transition(id, []string{models.StatusActive, models.StatusAcknowledged}, map[string]interface{}{
		"status":           models.StatusResolved,
		"resolved_by":      actor,
		"resolved_at":      &now,
		"resolved_message": message,
	})
}

// Expire marks a non-terminal record as expired. The expiry policy itself is
// external; this only enforces the transition.
func (m *Manager) Expire(id uint) (*models.AlertRecord, error) {
	return m.transition(id, []string{models.StatusActive, models.StatusAcknowledged}, map[string]interface{}{
		"status": models.StatusExpired,
	})
}

// AcknowledgeAll applies Acknowledge to every listed record currently active.
// Non-matching records are silently skipped; returns the affected count.
func (m *Manager) AcknowledgeAll(ids []uint, actor, note string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	now := time.Now()
	updates := map[string]interface{}{
		"status":          models.StatusAcknowledged,
		"acknowledged_by": actor,
		"acknowledged_at": &now,
	}
	if note != "" {
		updates["resolved_message"] = note
	}
	res := m.db.Model(&models.AlertRecord{}).
		Where("id IN ? AND status = ?", ids, models.StatusActive).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// ResolveAll applies Resolve to every listed record currently active or
// acknowledged. Non-matching records are silently skipped; returns the
// affected count.
func (m *Manager) ResolveAll(ids []uint, actor, message string) (int64, error) {
	if message == "" {
		return 0, ErrEmptyMessage
	}
	if len(ids) == 0 {
		return 0, nil
	}
	now := time.Now()
	res := m.db.Model(&models.AlertRecord{}).
		Where("id IN ? AND status IN ?", ids, []string{models.StatusActive, models.StatusAcknowledged}).
		Updates(map[string]interface{}{
			"status":           models.StatusResolved,
			"resolved_by":      actor,
			"resolved_at":      &now,
			"resolved_message": message,
		})
	return res.RowsAffected, res.Error
}

// MarkNotified records the dispatch outcome onto the alert. Written once,
// after all attempted channels have resolved, never partially.
func (m *Manager) MarkNotified(id uint, sent bool, outcomesJSON string) error {
	return m.db.Model(&models.AlertRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"notification_sent":     sent,
			"notification_channels": outcomesJSON,
		}).Error
}
