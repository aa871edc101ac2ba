package store

import "github.com/riskwatch/backend/internal/models"

// ListEnabledRules returns all enabled alert rules ordered by code.
func (d *DB) ListEnabledRules() ([]models.AlertRule, error) {
	var rules []models.AlertRule
	if err := d.Where("enabled = ?", true).Order("code asc").Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}
