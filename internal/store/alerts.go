package store

import (
	"errors"
	"time"

	"github.com/riskwatch/backend/internal/models"
	"gorm.io/gorm"
)

// FindActiveAlert returns the most recent active record for (rule, metric)
// with alert_time >= since, or nil when none exists. This is the cooldown
// guard's query.
func FindActiveAlert(db *gorm.DB, ruleID uint, metricCode string, since time.Time) (*models.AlertRecord, error) {
	var rec models.AlertRecord
	err := db.Where("rule_id = ? AND metric_code = ? AND status = ? AND alert_time >= ?",
		ruleID, metricCode, models.StatusActive, since).
		Order("alert_time desc").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// FindActiveAlert on the wrapped DB (outside a transaction).
func (d *DB) FindActiveAlert(ruleID uint, metricCode string, since time.Time) (*models.AlertRecord, error) {
	return FindActiveAlert(d.DB, ruleID, metricCode, since)
}
