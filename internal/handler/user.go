package handler

import (
	"errors"
	"strings"

	"household-ledger/internal/apperr"
	"household-ledger/internal/models"
	"household-ledger/internal/util"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserHandler manages the users of the caller's master account. All routes
// are owner-only.
type UserHandler struct {
	DB         *gorm.DB
	BcryptCost int
}

type createUserReq struct {
	Username    string `json:"username" binding:"required"`
	Password    string `json:"password" binding:"required"`
	DisplayName string `json:"display_name" binding:"max=64"`
	Tier        string `json:"tier" binding:"required,oneof=read write"`
}

type updateUserReq struct {
	DisplayName *string `json:"display_name" binding:"omitempty,max=64"`
	Tier        *string `json:"tier" binding:"omitempty,oneof=read write"`
	Active      *bool   `json:"active"`
	Password    *string `json:"password"`
}

func (h *UserHandler) ListUsers(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	var users []models.User
	if err := h.DB.WithContext(c.Request.Context()).
		Where("master_account_id = ?", id.MasterAccountID).
		Order("id ASC").
		Find(&users).Error; err != nil {
		util.Fail(c, err)
		return
	}

	items := make([]userResp, 0, len(users))
	for i := range users {
		items = append(items, toUserResp(&users[i]))
	}
	util.Success(c, "ok", items)
}

func (h *UserHandler) CreateUser(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	var req createUserReq
	if err := util.BindJSON(c, &req); err != nil {
		util.Fail(c, err)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if err := validateCredentials(req.Username, req.Password); err != nil {
		util.Fail(c, err)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), h.BcryptCost)
	if err != nil {
		util.Fail(c, apperr.Internal(err))
		return
	}

	user := models.User{
		MasterAccountID: id.MasterAccountID,
		Username:        req.Username,
		PasswordHash:    string(hash),
		DisplayName:     strings.TrimSpace(req.DisplayName),
		Tier:            req.Tier,
		Active:          true,
	}
	err = h.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := ensureUsernameFree(tx, req.Username); err != nil {
			return err
		}
		return tx.Omit(clause.Associations).Create(&user).Error
	})
	if err != nil {
		util.Fail(c, err)
		return
	}

	util.Created(c, "user created", toUserResp(&user))
}

func (h *UserHandler) GetUser(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	userID, ok := pathID(c)
	if !ok {
		return
	}

	user, err := h.load(c, id.MasterAccountID, userID)
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, "ok", toUserResp(user))
}

func (h *UserHandler) UpdateUser(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	userID, ok := pathID(c)
	if !ok {
		return
	}

	var req updateUserReq
	if err := util.BindJSON(c, &req); err != nil {
		util.Fail(c, err)
		return
	}

	user, err := h.load(c, id.MasterAccountID, userID)
	if err != nil {
		util.Fail(c, err)
		return
	}

	if user.ID == id.UserID {
		if req.Tier != nil && *req.Tier != models.TierWrite {
			util.Fail(c, apperr.Validation("the owner cannot lower their own permission tier"))
			return
		}
		if req.Active != nil && !*req.Active {
			util.Fail(c, apperr.Validation("the owner cannot deactivate themselves"))
			return
		}
	}

	updates := map[string]interface{}{}
	if req.DisplayName != nil {
		updates["display_name"] = strings.TrimSpace(*req.DisplayName)
	}
	if req.Tier != nil {
		updates["tier"] = *req.Tier
	}
	if req.Active != nil {
		updates["active"] = *req.Active
	}
	if req.Password != nil {
		if !isStrongPassword(*req.Password) {
			util.Fail(c, apperr.Validation("password must be 8-32 characters with upper, lower case letters and digits"))
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), h.BcryptCost)
		if err != nil {
			util.Fail(c, apperr.Internal(err))
			return
		}
		updates["password_hash"] = string(hash)
	}
	if len(updates) == 0 {
		util.Fail(c, apperr.Validation("nothing to update"))
		return
	}

	revoke := (req.Active != nil && !*req.Active) || req.Password != nil
	err = h.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(user).Updates(updates).Error; err != nil {
			return err
		}
		if revoke {
			return revokeSessions(tx, user.ID)
		}
		return nil
	})
	if err != nil {
		util.Fail(c, err)
		return
	}

	fresh, err := h.load(c, id.MasterAccountID, userID)
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, "user updated", toUserResp(fresh))
}

// DeleteUser deactivates a user and revokes its sessions. Rows are kept
// because transactions reference their creator.
func (h *UserHandler) DeleteUser(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	userID, ok := pathID(c)
	if !ok {
		return
	}
	if userID == id.UserID {
		util.Fail(c, apperr.Validation("the owner cannot deactivate themselves"))
		return
	}

	user, err := h.load(c, id.MasterAccountID, userID)
	if err != nil {
		util.Fail(c, err)
		return
	}

	err = h.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(user).Update("active", false).Error; err != nil {
			return err
		}
		return revokeSessions(tx, user.ID)
	})
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, "user deactivated", nil)
}

func (h *UserHandler) load(c *gin.Context, masterID, userID uint) (*models.User, error) {
	var user models.User
	if err := h.DB.WithContext(c.Request.Context()).
		Where("id = ? AND master_account_id = ?", userID, masterID).
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, err
	}
	return &user, nil
}

func revokeSessions(tx *gorm.DB, userID uint) error {
	return tx.Model(&models.Session{}).
		Where("user_id = ? AND revoked = ?", userID, false).
		Update("revoked", true).Error
}
