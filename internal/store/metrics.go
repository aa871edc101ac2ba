package store

import (
	"errors"
	"time"

	"github.com/riskwatch/backend/internal/models"
	"gorm.io/gorm"
)

// LatestMetric returns the most recent sample for a metric code, or nil when
// the metric has no data at all (expected for freshly configured rules).
func (d *DB) LatestMetric(code string) (*models.MetricData, error) {
	var m models.MetricData
	err := d.Where("metric_code = ?", code).
		Order("data_time desc").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// RecentMetrics returns samples inside the window ending now, oldest first.
// Used by change_rate and trend conditions that need a short history.
func (d *DB) RecentMetrics(code string, window time.Duration) ([]models.MetricData, error) {
	var list []models.MetricData
	since := time.Now().Add(-window)
	err := d.Where("metric_code = ? AND data_time >= ?", code, since).
		Order("data_time asc").
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}

// InsertMetric writes one sample. The collection process is external to this
// service; this exists for seeding and tests.
func (d *DB) InsertMetric(m *models.MetricData) error {
	return d.Create(m).Error
}
