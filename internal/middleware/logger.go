package middleware

import (
	"errors"
	"time"

	"household-ledger/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RequestLogger attaches a request-scoped logger carrying a request id and
// logs one line per request once it completes.
func RequestLogger(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)
		c.Set(util.LoggerKey, log.WithField("request_id", requestID))

		c.Next()

		entry := util.Logger(c).WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
			"client":  c.ClientIP(),
			"bytes":   c.Writer.Size(),
		})
		switch status := c.Writer.Status(); {
		case status >= 500:
			entry.Error("request")
		case status >= 400:
			entry.Warn("request")
		default:
			entry.Info("request")
		}
	}
}

var errPanic = errors.New("handler panic")

// Recovery turns panics into an ERR_INTERNAL envelope.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				util.Logger(c).WithField("panic", r).Error("panic recovered")
				if c.Writer.Written() {
					c.Abort()
					return
				}
				util.Abort(c, errPanic)
			}
		}()
		c.Next()
	}
}
