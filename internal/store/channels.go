package store

import (
	"errors"

	"github.com/riskwatch/backend/internal/models"
	"gorm.io/gorm"
)

// GetActiveChannel returns the active channel with the given code, or nil
// when the code is unknown or the channel is inactive.
func (d *DB) GetActiveChannel(code string) (*models.NotifyChannel, error) {
	var ch models.NotifyChannel
	err := d.Where("code = ? AND status = ?", code, "active").First(&ch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}
