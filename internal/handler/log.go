package handler

import (
	"strconv"
	"strings"
	"time"

	"household-ledger/internal/apperr"
	"household-ledger/internal/models"
	"household-ledger/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// LogHandler serves the tenant's audit trail to its owner.
type LogHandler struct {
	DB       *gorm.DB
	PageSize int
}

type logResp struct {
	ID        uint      `json:"id"`
	UserID    uint      `json:"user_id"`
	Method    string    `json:"method"`
	Path      string    `json:"path"`
	Status    int       `json:"status"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent"`
	CreatedAt time.Time `json:"created_at"`
}

// auditResources are the values accepted by ?resource=.
var auditResources = map[string]bool{
	"auth": true, "profile": true, "users": true, "accounts": true,
	"categories": true, "transactions": true,
}

// ListLogs lists audit records newest first. Filters: start/end
// (YYYY-MM-DD), user_id, method, resource (first path segment after /api)
// and q (substring of the path).
func (h *LogHandler) ListLogs(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	page, size, offset := paging(c, h.PageSize)
	start, end, hasStart, hasEnd, err := dateRange(c)
	if err != nil {
		util.Fail(c, err)
		return
	}

	base := h.DB.WithContext(c.Request.Context()).Model(&models.AuditLog{}).
		Where("master_account_id = ?", id.MasterAccountID)
	if hasStart {
		base = base.Where("created_at >= ?", start)
	}
	if hasEnd {
		base = base.Where("created_at < ?", end)
	}
	if raw := c.Query("user_id"); raw != "" {
		uid, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || uid == 0 {
			util.Fail(c, apperr.Validation("user_id must be a positive integer"))
			return
		}
		base = base.Where("user_id = ?", uid)
	}
	if m := strings.ToUpper(strings.TrimSpace(c.Query("method"))); m != "" {
		base = base.Where("method = ?", m)
	}
	if r := c.Query("resource"); r != "" {
		if !auditResources[r] {
			util.Fail(c, apperr.Validation("unknown resource "+strconv.Quote(r)))
			return
		}
		base = base.Where("path = ? OR path LIKE ?", "/api/"+r, "/api/"+r+"/%")
	}
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		base = base.Where("path LIKE ?", "%"+q+"%")
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		util.Fail(c, err)
		return
	}

	var logs []models.AuditLog
	if err := base.Session(&gorm.Session{}).
		Order("created_at DESC, id DESC").
		Limit(size).
		Offset(offset).
		Find(&logs).Error; err != nil {
		util.Fail(c, err)
		return
	}

	items := make([]logResp, 0, len(logs))
	for _, l := range logs {
		items = append(items, logResp{
			ID:        l.ID,
			UserID:    l.UserID,
			Method:    l.Method,
			Path:      l.Path,
			Status:    l.Status,
			IP:        l.IP,
			UserAgent: l.UserAgent,
			CreatedAt: l.CreatedAt,
		})
	}

	util.Success(c, "ok", gin.H{
		"items":     items,
		"total":     total,
		"page":      page,
		"page_size": size,
	})
}
