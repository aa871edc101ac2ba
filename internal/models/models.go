package models

import (
	"time"

	"gorm.io/gorm"
)

// Alert record lifecycle states.
const (
	StatusActive       = "active"
	StatusAcknowledged = "acknowledged"
	StatusResolved     = "resolved"
	StatusExpired      = "expired"
)

// Condition types an AlertRule may carry.
const (
	ConditionThreshold  = "threshold"
	ConditionRange      = "range"
	ConditionChangeRate = "change_rate"
	ConditionTrend      = "trend"
	ConditionCombine    = "combine"
)

// Channel types a NotifyChannel may carry.
const (
	ChannelLark     = "lark"
	ChannelWecom    = "wecom"
	ChannelEmail    = "email"
	ChannelDingtalk = "dingtalk"
	ChannelTelegram = "telegram"
	ChannelWebhook  = "webhook"
)

// MetricData is one timestamped sample of a monitored business metric.
// Rows are written by the external collection process and are read-only here.
type MetricData struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	MetricCode string    `gorm:"size:64;index:idx_metric_data_code_time,priority:1" json:"metric_code"`
	DataTime   time.Time `gorm:"index:idx_metric_data_code_time,priority:2" json:"data_time"`
	Value      float64   `json:"value"`
	Status     string    `gorm:"size:16;default:normal" json:"status"` // normal, abnormal, missing
	CreatedAt  time.Time `json:"created_at"`
}

// AlertRule is a monitoring policy over one metric.
type AlertRule struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	Code            string         `gorm:"uniqueIndex;size:64" json:"code"`
	Name            string         `gorm:"size:128" json:"name"`
	Description     string         `gorm:"type:text" json:"description"`
	MetricCode      string         `gorm:"size:64;index" json:"metric_code"`
	ConditionType   string         `gorm:"size:32" json:"condition_type"`     // threshold, range, change_rate, trend, combine
	ConditionConfig string         `gorm:"type:text" json:"condition_config"` // JSON, shape depends on condition_type
	Severity        string         `gorm:"size:8" json:"severity"`            // P1..P4, P1 most urgent
	CooldownMinutes int            `gorm:"default:10" json:"cooldown_minutes"`
	Enabled         bool           `gorm:"default:true" json:"enabled"`
	NotifyChannels  string         `gorm:"type:text" json:"notify_channels"` // JSON array of channel codes
	NotifyUsers     string         `gorm:"type:text" json:"notify_users"`    // JSON array, reserved
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

// AlertRecord is one firing instance of a rule. Severity and message are
// frozen at creation time; status changes only through the lifecycle manager.
type AlertRecord struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	RuleID               uint       `gorm:"index:idx_alert_rule_metric,priority:1" json:"rule_id"`
	RuleCode             string     `gorm:"size:64" json:"rule_code"`
	MetricCode           string     `gorm:"size:64;index:idx_alert_rule_metric,priority:2" json:"metric_code"`
	AlertTime            time.Time  `gorm:"index" json:"alert_time"`
	AlertValue           float64    `json:"alert_value"`
	ThresholdValue       *float64   `json:"threshold_value,omitempty"` // nil for conditions without a single scalar
	Severity             string     `gorm:"size:8;index" json:"severity"`
	Message              string     `gorm:"type:text" json:"message"`
	Status               string     `gorm:"size:16;index;default:active" json:"status"`
	AcknowledgedBy       string     `gorm:"size:64" json:"acknowledged_by,omitempty"`
	AcknowledgedAt       *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedBy           string     `gorm:"size:64" json:"resolved_by,omitempty"`
	ResolvedAt           *time.Time `json:"resolved_at,omitempty"`
	ResolvedMessage      string     `gorm:"type:text" json:"resolved_message,omitempty"`
	NotificationSent     bool       `json:"notification_sent"`
	NotificationChannels string     `gorm:"type:text" json:"notification_channels"` // JSON array of per-channel outcomes
	CreatedAt            time.Time  `json:"created_at"`
}

// NotifyChannel is a configured delivery destination, referenced from rules by code.
type NotifyChannel struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Code        string         `gorm:"uniqueIndex;size:64" json:"code"`
	Name        string         `gorm:"size:128" json:"name"`
	ChannelType string         `gorm:"size:32" json:"channel_type"`          // lark, wecom, email, dingtalk, telegram, webhook
	Config      string         `gorm:"type:text" json:"-"`                   // JSON, required keys depend on channel_type
	Status      string         `gorm:"size:16;default:active" json:"status"` // active, inactive
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}
