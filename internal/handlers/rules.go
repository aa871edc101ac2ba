package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/riskwatch/backend/internal/engine"
	"github.com/riskwatch/backend/internal/models"
	"github.com/riskwatch/backend/internal/scheduler"
	"gorm.io/gorm"
)

// RuleHandler manages alert rules and the on-demand evaluation trigger.
type RuleHandler struct {
	DB        *gorm.DB
	Scheduler *scheduler.Scheduler
}

// List rules, optionally filtered by enabled state and metric.
func (h *RuleHandler) List(c *gin.Context) {
	q := h.DB.Model(&models.AlertRule{})
	if enabled := c.Query("enabled"); enabled != "" {
		q = q.Where("enabled = ?", enabled == "true")
	}
	if metric := c.Query("metric_code"); metric != "" {
		q = q.Where("metric_code = ?", metric)
	}
	var list []models.AlertRule
	if err := q.Order("code asc").Find(&list).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": list, "total": len(list)})
}

// Get one rule.
func (h *RuleHandler) Get(c *gin.Context) {
	var r models.AlertRule
	if err := h.DB.First(&r, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, r)
}

// Create a rule. The condition config is validated against the rule's
// condition type so a malformed rule is rejected here rather than surfacing
// as a cycle error later.
func (h *RuleHandler) Create(c *gin.Context) {
	var r models.AlertRule
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if r.Code == "" || r.MetricCode == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code and metric_code are required"})
		return
	}
	if err := engine.ValidateRuleConfig(r.ConditionType, r.ConditionConfig); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.DB.Create(&r).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, r)
}

// Update a rule; a changed condition config is re-validated.
func (h *RuleHandler) Update(c *gin.Context) {
	var r models.AlertRule
	if err := h.DB.First(&r, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	var in models.AlertRule
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	in.ID = r.ID
	in.Code = r.Code // rule codes are immutable; alert records reference them
	in.CreatedAt = r.CreatedAt
	if err := engine.ValidateRuleConfig(in.ConditionType, in.ConditionConfig); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.DB.Save(&in).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, in)
}

// Delete soft-deletes a rule; its alert history stays queryable by rule_code.
func (h *RuleHandler) Delete(c *gin.Context) {
	if err := h.DB.Delete(&models.AlertRule{}, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// Trigger runs one evaluation cycle immediately and returns its report.
// Returns 409 when a cycle is already in flight.
func (h *RuleHandler) Trigger(c *gin.Context) {
	report, err := h.Scheduler.TriggerNow(c.Request.Context())
	if errors.Is(err, scheduler.ErrCycleRunning) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}
