package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/riskwatch/backend/internal/models"
	"github.com/riskwatch/backend/internal/sender"
	"gorm.io/gorm"
)

// ChannelHandler manages notification channels. Channel configs hold webhook
// URLs and credentials; they are write-only through the API (the model never
// serializes the config column).
type ChannelHandler struct {
	DB         *gorm.DB
	Dispatcher *sender.Dispatcher
}

// List channels.
func (h *ChannelHandler) List(c *gin.Context) {
	var list []models.NotifyChannel
	if err := h.DB.Order("code asc").Find(&list).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": list, "total": len(list)})
}

// Get one channel.
func (h *ChannelHandler) Get(c *gin.Context) {
	var ch models.NotifyChannel
	if err := h.DB.First(&ch, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, ch)
}

type channelRequest struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	ChannelType string `json:"channel_type"`
	Config      string `json:"config"`
	Status      string `json:"status"`
}

// Create a channel after validating its config against the channel type.
func (h *ChannelHandler) Create(c *gin.Context) {
	var req channelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
		return
	}
	if err := sender.ValidateConfig(req.ChannelType, req.Config); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status := req.Status
	if status == "" {
		status = "active"
	}
	ch := models.NotifyChannel{
		Code:        req.Code,
		Name:        req.Name,
		ChannelType: req.ChannelType,
		Config:      req.Config,
		Status:      status,
	}
	if err := h.DB.Create(&ch).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, ch)
}

// Update a channel. An empty config in the request keeps the stored one.
func (h *ChannelHandler) Update(c *gin.Context) {
	var ch models.NotifyChannel
	if err := h.DB.First(&ch, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	var req channelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Name != "" {
		ch.Name = req.Name
	}
	if req.ChannelType != "" {
		ch.ChannelType = req.ChannelType
	}
	if req.Config != "" {
		ch.Config = req.Config
	}
	if req.Status != "" {
		ch.Status = req.Status
	}
	if err := sender.ValidateConfig(ch.ChannelType, ch.Config); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.DB.Save(&ch).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ch)
}

// Delete soft-deletes a channel. Rules that still name its code get a failed
// outcome on the next dispatch.
func (h *ChannelHandler) Delete(c *gin.Context) {
	if err := h.DB.Delete(&models.NotifyChannel{}, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// TestSend delivers a one-shot test message through the channel, bypassing
// retries so the caller gets a fast verdict.
func (h *ChannelHandler) TestSend(c *gin.Context) {
	var ch models.NotifyChannel
	if err := h.DB.First(&ch, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	err := h.Dispatcher.SendOnce(c.Request.Context(), &ch,
		"Test notification", "This is a test message from riskwatch.", sender.LevelInfo)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
