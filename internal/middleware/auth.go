package middleware

import (
	"errors"
	"strings"
	"time"

	"household-ledger/internal/apperr"
	"household-ledger/internal/models"
	"household-ledger/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Context keys set by AuthMiddleware.
const (
	IdentityKey    = "identity"
	CurrentUserKey = "currentUser"
	SessionKey     = "sessionID"
)

// AuthMiddleware verifies the bearer token, checks that its session is live
// and the user still active, and stores the caller identity in the context.
// Tier and owner flag are read from the database, not the token, so a
// demotion takes effect immediately.
func AuthMiddleware(jwtSecret, issuer string, db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var tokenStr string

		// 1) Header: Authorization: Bearer xxx
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
				tokenStr = strings.TrimSpace(parts[1])
			}
		}

		// 2) ?token=xxx for downloads that cannot set headers
		if tokenStr == "" {
			tokenStr = c.Query("token")
		}

		if tokenStr == "" {
			util.Abort(c, apperr.Unauthorized("missing bearer token"))
			return
		}

		claims, err := util.ParseToken(jwtSecret, issuer, tokenStr)
		if err != nil {
			util.Abort(c, apperr.Unauthorized("invalid or expired token"))
			return
		}

		ctx := c.Request.Context()

		var session models.Session
		if err := db.WithContext(ctx).Where("id = ? AND user_id = ?", claims.ID, claims.UserID).
			First(&session).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				util.Abort(c, apperr.Unauthorized("session not found"))
			} else {
				util.Abort(c, err)
			}
			return
		}
		if session.Revoked || session.ExpiresAt.Before(time.Now()) {
			util.Abort(c, apperr.Unauthorized("session expired, please log in again"))
			return
		}

		var user models.User
		if err := db.WithContext(ctx).Where("id = ? AND master_account_id = ?", claims.UserID, claims.MasterAccountID).
			First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				util.Abort(c, apperr.Unauthorized("user does not exist"))
			} else {
				util.Abort(c, err)
			}
			return
		}
		if !user.Active {
			util.Abort(c, apperr.Unauthorized("user is deactivated"))
			return
		}

		c.Set(IdentityKey, util.Identity{
			UserID:          user.ID,
			MasterAccountID: user.MasterAccountID,
			Tier:            user.Tier,
			IsOwner:         user.IsOwner,
		})
		c.Set(CurrentUserKey, &user)
		c.Set(SessionKey, session.ID)
		c.Set(util.LoggerKey, util.Logger(c).WithFields(logrus.Fields{
			"user_id":           user.ID,
			"master_account_id": user.MasterAccountID,
		}))
		c.Next()
	}
}

// GetIdentity returns the identity set by AuthMiddleware.
func GetIdentity(c *gin.Context) (util.Identity, bool) {
	v, ok := c.Get(IdentityKey)
	if !ok {
		return util.Identity{}, false
	}
	id, ok := v.(util.Identity)
	return id, ok
}

// GetCurrentUser returns the user row loaded by AuthMiddleware.
func GetCurrentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(CurrentUserKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok && user != nil
}

// RequireWrite rejects read-tier callers.
func RequireWrite() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := GetIdentity(c)
		if !ok {
			util.Abort(c, apperr.Unauthorized("not logged in"))
			return
		}
		if id.Tier != models.TierWrite {
			util.Abort(c, apperr.Forbidden("write permission required"))
			return
		}
		c.Next()
	}
}

// RequireOwner restricts a route to the master account owner.
func RequireOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := GetIdentity(c)
		if !ok {
			util.Abort(c, apperr.Unauthorized("not logged in"))
			return
		}
		if !id.IsOwner {
			util.Abort(c, apperr.Forbidden("only the account owner can do this"))
			return
		}
		c.Next()
	}
}
