package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/riskwatch/backend/internal/lifecycle"
	"github.com/riskwatch/backend/internal/models"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// AlertHandler serves alert history queries and lifecycle actions.
type AlertHandler struct {
	DB        *gorm.DB
	Lifecycle *lifecycle.Manager
}

// List alerts with filters and pagination, newest first.
func (h *AlertHandler) List(c *gin.Context) {
	var page, pageSize int
	if p := c.Query("page"); p != "" {
		_, _ = fmt.Sscanf(p, "%d", &page)
	}
	if ps := c.Query("page_size"); ps != "" {
		_, _ = fmt.Sscanf(ps, "%d", &pageSize)
	}
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	q := applyAlertFilters(h.DB.Model(&models.AlertRecord{}), c)

	var total int64
	q.Count(&total)
	var list []models.AlertRecord
	offset := (page - 1) * pageSize
	if err := q.Order("alert_time desc, id desc").Offset(offset).Limit(pageSize).Find(&list).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items":     list,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// Active returns all unresolved alerts grouped by severity, P1 first.
func (h *AlertHandler) Active(c *gin.Context) {
	var list []models.AlertRecord
	if err := h.DB.Where("status IN ?", []string{models.StatusActive, models.StatusAcknowledged}).
		Order("alert_time desc").Find(&list).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	groups := map[string][]models.AlertRecord{}
	for _, a := range list {
		sev := a.Severity
		switch sev {
		case "P1", "P2", "P3", "P4":
		default:
			sev = "other"
		}
		groups[sev] = append(groups[sev], a)
	}
	c.JSON(http.StatusOK, gin.H{
		"total":  len(list),
		"groups": groups,
	})
}

// Get one alert record.
func (h *AlertHandler) Get(c *gin.Context) {
	var a models.AlertRecord
	if err := h.DB.First(&a, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, a)
}

type ackRequest struct {
	IDs   []uint `json:"ids" binding:"required"`
	Actor string `json:"actor" binding:"required"`
	Note  string `json:"note"`
}

// Acknowledge marks the listed active alerts as acknowledged. Records not in
// active state are skipped; the response carries the affected count.
func (h *AlertHandler) Acknowledge(c *gin.Context) {
	var req ackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	n, err := h.Lifecycle.AcknowledgeAll(req.IDs, req.Actor, req.Note)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"acknowledged": n})
}

type resolveRequest struct {
	IDs     []uint `json:"ids" binding:"required"`
	Actor   string `json:"actor" binding:"required"`
	Message string `json:"message"`
}

// Resolve marks the listed active or acknowledged alerts as resolved. The
// resolution message is mandatory.
func (h *AlertHandler) Resolve(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	n, err := h.Lifecycle.ResolveAll(req.IDs, req.Actor, req.Message)
	if errors.Is(err, lifecycle.ErrEmptyMessage) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"resolved": n})
}

// Export alerts matching current filters as an Excel file.
func (h *AlertHandler) Export(c *gin.Context) {
	q := applyAlertFilters(h.DB.Model(&models.AlertRecord{}), c)

	var list []models.AlertRecord
	if err := q.Order("alert_time desc, id desc").Limit(10000).Find(&list).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ef, err := writeAlertExportExcel(list)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	var buf bytes.Buffer
	if _, err := ef.WriteTo(&buf); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	dateStr := time.Now().Format("2006-01-02")
	c.Header("Content-Disposition", "attachment; filename=alerts-"+dateStr+".xlsx")
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

// applyAlertFilters applies common alert query filters from request params.
func applyAlertFilters(q *gorm.DB, c *gin.Context) *gorm.DB {
	if code := c.Query("rule_code"); code != "" {
		q = q.Where("rule_code = ?", strings.TrimSpace(code))
	}
	if metric := c.Query("metric_code"); metric != "" {
		q = q.Where("metric_code = ?", strings.TrimSpace(metric))
	}
	if sev := c.Query("severity"); sev != "" {
		q = q.Where("severity = ?", sev)
	}
	if st := c.Query("status"); st != "" {
		q = q.Where("status = ?", st)
	}
	if from := c.Query("from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			q = q.Where("alert_time >= ?", t)
		}
	}
	if to := c.Query("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			q = q.Where("alert_time <= ?", t)
		}
	}
	return q
}

// writeAlertExportExcel generates an Excel workbook from the alert list.
func writeAlertExportExcel(list []models.AlertRecord) (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := "Alerts"
	idx, _ := f.NewSheet(sheet)
	f.DeleteSheet("Sheet1")

	headers := []string{"ID", "Rule", "Metric", "Alert Time", "Value", "Threshold", "Severity", "Status", "Acknowledged By", "Resolved By", "Resolution", "Notified"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	styleHeader, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#f0f0f0"}, Pattern: 1},
	})
	lastCol, _ := excelize.CoordinatesToCellName(len(headers), 1)
	_ = f.SetCellStyle(sheet, "A1", lastCol, styleHeader)

	fmtTime := func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Local().Format("2006-01-02 15:04:05")
	}

	for row, a := range list {
		r := row + 2
		threshold := ""
		if a.ThresholdValue != nil {
			threshold = fmt.Sprintf("%.4f", *a.ThresholdValue)
		}
		notified := "no"
		if a.NotificationSent {
			notified = "yes"
		}
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", r), a.ID)
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", r), a.RuleCode)
		_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", r), a.MetricCode)
		_ = f.SetCellValue(sheet, fmt.Sprintf("D%d", r), fmtTime(a.AlertTime))
		_ = f.SetCellValue(sheet, fmt.Sprintf("E%d", r), fmt.Sprintf("%.4f", a.AlertValue))
		_ = f.SetCellValue(sheet, fmt.Sprintf("F%d", r), threshold)
		_ = f.SetCellValue(sheet, fmt.Sprintf("G%d", r), a.Severity)
		_ = f.SetCellValue(sheet, fmt.Sprintf("H%d", r), a.Status)
		_ = f.SetCellValue(sheet, fmt.Sprintf("I%d", r), a.AcknowledgedBy)
		_ = f.SetCellValue(sheet, fmt.Sprintf("J%d", r), a.ResolvedBy)
		_ = f.SetCellValue(sheet, fmt.Sprintf("K%d", r), a.ResolvedMessage)
		_ = f.SetCellValue(sheet, fmt.Sprintf("L%d", r), notified)
	}

	f.SetColWidth(sheet, "A", "A", 8)
	f.SetColWidth(sheet, "B", "C", 24)
	f.SetColWidth(sheet, "D", "D", 20)
	f.SetColWidth(sheet, "E", "F", 16)
	f.SetColWidth(sheet, "G", "H", 12)
	f.SetColWidth(sheet, "I", "J", 16)
	f.SetColWidth(sheet, "K", "K", 40)
	f.SetColWidth(sheet, "L", "L", 10)
	f.SetActiveSheet(idx)
	return f, nil
}
