package middleware

import (
	"net/http"

	"household-ledger/internal/models"
	"household-ledger/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// AuditMiddleware records every mutating request made by an authenticated
// user after it completes. Reads are not recorded.
func AuditMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead || c.Request.Method == http.MethodOptions {
			return
		}
		id, ok := GetIdentity(c)
		if !ok {
			return
		}

		entry := models.AuditLog{
			MasterAccountID: id.MasterAccountID,
			UserID:          id.UserID,
			Method:          c.Request.Method,
			Path:            c.Request.URL.Path,
			Status:          c.Writer.Status(),
			IP:              c.ClientIP(),
			UserAgent:       c.Request.UserAgent(),
		}
		if err := db.WithContext(c.Request.Context()).Create(&entry).Error; err != nil {
			util.Logger(c).WithError(err).Warn("write audit log")
		}
	}
}
