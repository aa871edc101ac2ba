package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/riskwatch/backend/internal/store"
)

// MetricHandler serves read access to collected metric samples.
type MetricHandler struct {
	Store *store.DB
}

// Latest returns the most recent sample for a metric.
func (h *MetricHandler) Latest(c *gin.Context) {
	m, err := h.Store.LatestMetric(c.Param("code"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if m == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no data"})
		return
	}
	c.JSON(http.StatusOK, m)
}

// Recent returns samples within the last N minutes (default 60), oldest first.
func (h *MetricHandler) Recent(c *gin.Context) {
	minutes := 60
	if m := c.Query("minutes"); m != "" {
		_, _ = fmt.Sscanf(m, "%d", &minutes)
	}
	if minutes <= 0 || minutes > 7*24*60 {
		minutes = 60
	}
	list, err := h.Store.RecentMetrics(c.Param("code"), time.Duration(minutes)*time.Minute)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": list, "total": len(list)})
}
