package handler

import (
	"strings"

	"household-ledger/internal/apperr"
	"household-ledger/internal/middleware"
	"household-ledger/internal/models"
	"household-ledger/internal/util"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// UpdateProfileReq updates the caller's display name.
type UpdateProfileReq struct {
	DisplayName string `json:"display_name" binding:"max=64"`
}

// ChangePasswordReq changes the caller's password.
type ChangePasswordReq struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// UpdateProfile updates the current user's display name.
func UpdateProfile(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := middleware.GetCurrentUser(c)
		if !ok {
			util.Fail(c, apperr.Unauthorized("not logged in"))
			return
		}

		var req UpdateProfileReq
		if err := util.BindJSON(c, &req); err != nil {
			util.Fail(c, err)
			return
		}
		req.DisplayName = strings.TrimSpace(req.DisplayName)

		if err := db.WithContext(c.Request.Context()).Model(user).
			Update("display_name", req.DisplayName).Error; err != nil {
			util.Fail(c, err)
			return
		}
		user.DisplayName = req.DisplayName

		util.Success(c, "profile updated", gin.H{"user": toUserResp(user)})
	}
}

// ChangePassword changes the current user's password. Other sessions of
// the user are revoked; the current one stays valid.
func ChangePassword(db *gorm.DB, bcryptCost int) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := middleware.GetCurrentUser(c)
		if !ok {
			util.Fail(c, apperr.Unauthorized("not logged in"))
			return
		}

		var req ChangePasswordReq
		if err := util.BindJSON(c, &req); err != nil {
			util.Fail(c, err)
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.OldPassword)); err != nil {
			util.Fail(c, apperr.Validation("old password is incorrect"))
			return
		}
		if !isStrongPassword(req.NewPassword) {
			util.Fail(c, apperr.Validation("password must be 8-32 characters with upper, lower case letters and digits"))
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcryptCost)
		if err != nil {
			util.Fail(c, apperr.Internal(err))
			return
		}

		sid := c.GetString(middleware.SessionKey)
		err = db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(user).Update("password_hash", string(hash)).Error; err != nil {
				return err
			}
			return tx.Model(&models.Session{}).
				Where("user_id = ? AND id <> ?", user.ID, sid).
				Update("revoked", true).Error
		})
		if err != nil {
			util.Fail(c, err)
			return
		}

		util.Success(c, "password changed", nil)
	}
}
