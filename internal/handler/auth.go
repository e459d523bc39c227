package handler

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"household-ledger/internal/apperr"
	"household-ledger/internal/middleware"
	"household-ledger/internal/models"
	"household-ledger/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var usernameRe = regexp.MustCompile(`^[A-Za-z0-9_]{3,20}$`)

// AuthHandler handles registration, login and logout.
type AuthHandler struct {
	DB               *gorm.DB
	JWTSecret        string
	Issuer           string
	TokenTTL         time.Duration
	BcryptCost       int
	MaxLoginAttempts int
	LockDuration     time.Duration
	DefaultCurrency  string
}

type registerReq struct {
	AccountName     string `json:"account_name" binding:"required,max=128"`
	Currency        string `json:"currency" binding:"omitempty,len=3"`
	Username        string `json:"username" binding:"required"`
	Password        string `json:"password" binding:"required"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
	DisplayName     string `json:"display_name" binding:"max=64"`
}

type userResp struct {
	ID              uint       `json:"id"`
	MasterAccountID uint       `json:"master_account_id"`
	Username        string     `json:"username"`
	DisplayName     string     `json:"display_name"`
	Tier            string     `json:"tier"`
	IsOwner         bool       `json:"is_owner"`
	Active          bool       `json:"active"`
	LastLoginAt     *time.Time `json:"last_login_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func toUserResp(u *models.User) userResp {
	return userResp{
		ID:              u.ID,
		MasterAccountID: u.MasterAccountID,
		Username:        u.Username,
		DisplayName:     u.DisplayName,
		Tier:            u.Tier,
		IsOwner:         u.IsOwner,
		Active:          u.Active,
		LastLoginAt:     u.LastLoginAt,
		CreatedAt:       u.CreatedAt,
	}
}

// Register creates a master account together with its owner user.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerReq
	if err := util.BindJSON(c, &req); err != nil {
		util.Fail(c, err)
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.AccountName = strings.TrimSpace(req.AccountName)
	if err := validateCredentials(req.Username, req.Password); err != nil {
		util.Fail(c, err)
		return
	}
	if req.Password != req.ConfirmPassword {
		util.Fail(c, apperr.Validation("passwords do not match"))
		return
	}
	if req.AccountName == "" {
		util.Fail(c, apperr.Validation("account name is required"))
		return
	}

	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = h.DefaultCurrency
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), h.BcryptCost)
	if err != nil {
		util.Fail(c, apperr.Internal(err))
		return
	}

	master := models.MasterAccount{Name: req.AccountName, Currency: currency}
	user := models.User{
		Username:     req.Username,
		PasswordHash: string(hash),
		DisplayName:  req.DisplayName,
		Tier:         models.TierWrite,
		IsOwner:      true,
		Active:       true,
	}

	err = h.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := ensureUsernameFree(tx, req.Username); err != nil {
			return err
		}
		if err := tx.Create(&master).Error; err != nil {
			return err
		}
		user.MasterAccountID = master.ID
		return tx.Omit(clause.Associations).Create(&user).Error
	})
	if err != nil {
		util.Fail(c, err)
		return
	}

	util.Created(c, "registered", gin.H{
		"master_account": master,
		"user":           toUserResp(&user),
	})
}

func ensureUsernameFree(tx *gorm.DB, username string) error {
	var count int64
	if err := tx.Model(&models.User{}).
		Where("LOWER(username) = LOWER(?)", username).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return apperr.Conflict("username already exists")
	}
	return nil
}

func validateCredentials(username, password string) error {
	if !usernameRe.MatchString(username) {
		return apperr.Validation("username must be 3-20 letters, digits or underscores")
	}
	if !isStrongPassword(password) {
		return apperr.Validation("password must be 8-32 characters with upper, lower case letters and digits")
	}
	return nil
}

// isStrongPassword: 8-32 chars, contains upper, lower and digit
func isStrongPassword(pwd string) bool {
	if len(pwd) < 8 || len(pwd) > 32 {
		return false
	}
	var hasUpper, hasLower, hasDigit bool
	for _, ch := range pwd {
		switch {
		case ch >= 'A' && ch <= 'Z':
			hasUpper = true
		case ch >= 'a' && ch <= 'z':
			hasLower = true
		case ch >= '0' && ch <= '9':
			hasDigit = true
		}
	}
	return hasUpper && hasLower && hasDigit
}

type loginReq struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login verifies credentials and issues a token bound to a new session.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginReq
	if err := util.BindJSON(c, &req); err != nil {
		util.Fail(c, err)
		return
	}
	req.Username = strings.TrimSpace(req.Username)

	db := h.DB.WithContext(c.Request.Context())

	var user models.User
	if err := db.Where("LOWER(username) = LOWER(?)", req.Username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.Fail(c, apperr.Unauthorized("invalid username or password"))
		} else {
			util.Fail(c, err)
		}
		return
	}

	now := time.Now()

	if user.LockedUntil != nil && now.Before(*user.LockedUntil) {
		util.Fail(c, apperr.Unauthorized("account locked, try again later"))
		return
	}
	if !user.Active {
		util.Fail(c, apperr.Unauthorized("user is deactivated"))
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		// lock after too many consecutive failures
		if err := h.recordFailedLogin(c, user.ID, now); err != nil {
			util.Logger(c).WithError(err).Warn("record failed login")
		}
		util.Fail(c, apperr.Unauthorized("invalid username or password"))
		return
	}

	session := models.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		ExpiresAt: now.Add(h.TokenTTL),
	}
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&user).Updates(map[string]interface{}{
			"failed_login_attempts": 0,
			"locked_until":          nil,
			"last_login_ip":         c.ClientIP(),
			"last_login_at":         now,
		}).Error; err != nil {
			return err
		}
		return tx.Omit(clause.Associations).Create(&session).Error
	})
	if err != nil {
		util.Fail(c, err)
		return
	}

	token, expiresAt, err := util.GenerateToken(h.JWTSecret, h.Issuer, util.Identity{
		UserID:          user.ID,
		MasterAccountID: user.MasterAccountID,
		Tier:            user.Tier,
		IsOwner:         user.IsOwner,
	}, session.ID, h.TokenTTL)
	if err != nil {
		util.Fail(c, apperr.Internal(err))
		return
	}

	user.LastLoginAt = &now
	util.Success(c, "logged in", gin.H{
		"token":      token,
		"expires_at": expiresAt,
		"user":       toUserResp(&user),
	})
}

// recordFailedLogin counts a failed attempt in SQL so concurrent attempts
// are all counted, then locks the user once the limit is reached.
func (h *AuthHandler) recordFailedLogin(c *gin.Context, userID uint, now time.Time) error {
	return h.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.User{}).Where("id = ?", userID).
			Update("failed_login_attempts", gorm.Expr("failed_login_attempts + 1")).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).
			Where("id = ? AND failed_login_attempts >= ?", userID, h.MaxLoginAttempts).
			Updates(map[string]interface{}{
				"locked_until":          now.Add(h.LockDuration),
				"failed_login_attempts": 0,
			}).Error
	})
}

// Logout revokes the session of the presented token.
func (h *AuthHandler) Logout(c *gin.Context) {
	sid := c.GetString(middleware.SessionKey)
	if sid == "" {
		util.Fail(c, apperr.Unauthorized("not logged in"))
		return
	}
	if err := h.DB.WithContext(c.Request.Context()).Model(&models.Session{}).
		Where("id = ?", sid).Update("revoked", true).Error; err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, "logged out", nil)
}

// Me returns the current user and its master account.
func (h *AuthHandler) Me(c *gin.Context) {
	user, ok := middleware.GetCurrentUser(c)
	if !ok {
		util.Fail(c, apperr.Unauthorized("not logged in"))
		return
	}

	var master models.MasterAccount
	if err := h.DB.WithContext(c.Request.Context()).First(&master, user.MasterAccountID).Error; err != nil {
		util.Fail(c, err)
		return
	}

	util.Success(c, "ok", gin.H{
		"user":           toUserResp(user),
		"master_account": master,
	})
}
