package handler

import (
	"errors"
	"strings"
	"time"

	"household-ledger/internal/apperr"
	"household-ledger/internal/models"
	"household-ledger/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AccountHandler serves financial accounts ("cuentas").
type AccountHandler struct {
	DB *gorm.DB
}

type createAccountReq struct {
	Name    string           `json:"name" binding:"required,max=64"`
	Type    string           `json:"type" binding:"omitempty,oneof=cash bank savings credit other"`
	Balance *decimal.Decimal `json:"balance"`
}

type updateAccountReq struct {
	Name    *string          `json:"name" binding:"omitempty,max=64"`
	Type    *string          `json:"type" binding:"omitempty,oneof=cash bank savings credit other"`
	Balance *decimal.Decimal `json:"balance"`
	Active  *bool            `json:"active"`
}

type accountResp struct {
	ID        uint      `json:"id"`
	Name      string    `json:"name"`
	Balance   string    `json:"balance"`
	Type      string    `json:"type"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toAccountResp(a *models.Account) accountResp {
	return accountResp{
		ID:        a.ID,
		Name:      a.Name,
		Balance:   a.Balance.StringFixed(2),
		Type:      a.Type,
		Active:    a.Active,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func (h *AccountHandler) ListAccounts(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	active, hasActive, err := optionalBool(c, "active")
	if err != nil {
		util.Fail(c, err)
		return
	}

	q := h.DB.WithContext(c.Request.Context()).Where("master_account_id = ?", id.MasterAccountID)
	if hasActive {
		q = q.Where("active = ?", active)
	}

	var accounts []models.Account
	if err := q.Order("name ASC").Find(&accounts).Error; err != nil {
		util.Fail(c, err)
		return
	}

	items := make([]accountResp, 0, len(accounts))
	for i := range accounts {
		items = append(items, toAccountResp(&accounts[i]))
	}
	util.Success(c, "ok", items)
}

func (h *AccountHandler) GetAccount(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	accID, ok := pathID(c)
	if !ok {
		return
	}

	acc, err := h.load(c, id.MasterAccountID, accID)
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, "ok", toAccountResp(acc))
}

func (h *AccountHandler) CreateAccount(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	var req createAccountReq
	if err := util.BindJSON(c, &req); err != nil {
		util.Fail(c, err)
		return
	}

	name := strings.TrimSpace(req.Name)
	if err := util.ValidateName(name, 64); err != nil {
		util.Fail(c, apperr.Validation(err.Error()))
		return
	}
	balance := decimal.Zero
	if req.Balance != nil {
		if err := util.ValidateBalance(*req.Balance); err != nil {
			util.Fail(c, apperr.Validation(err.Error()))
			return
		}
		balance = req.Balance.Round(2)
	}
	accType := req.Type
	if accType == "" {
		accType = models.AccountCash
	}

	acc := models.Account{
		MasterAccountID: id.MasterAccountID,
		Name:            name,
		Balance:         balance,
		Type:            accType,
		Active:          true,
	}
	err := h.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := ensureAccountNameFree(tx, id.MasterAccountID, name, 0); err != nil {
			return err
		}
		return tx.Omit(clause.Associations).Create(&acc).Error
	})
	if err != nil {
		util.Fail(c, err)
		return
	}

	util.Created(c, "account created", toAccountResp(&acc))
}

// UpdateAccount edits name, type, active flag or sets the balance
// explicitly. A balance edit is guarded by the row version like ledger
// writes are.
func (h *AccountHandler) UpdateAccount(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	accID, ok := pathID(c)
	if !ok {
		return
	}

	var req updateAccountReq
	if err := util.BindJSON(c, &req); err != nil {
		util.Fail(c, err)
		return
	}

	acc, err := h.load(c, id.MasterAccountID, accID)
	if err != nil {
		util.Fail(c, err)
		return
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if err := util.ValidateName(name, 64); err != nil {
			util.Fail(c, apperr.Validation(err.Error()))
			return
		}
		updates["name"] = name
	}
	if req.Type != nil {
		updates["type"] = *req.Type
	}
	if req.Active != nil {
		updates["active"] = *req.Active
	}
	if req.Balance != nil {
		if err := util.ValidateBalance(*req.Balance); err != nil {
			util.Fail(c, apperr.Validation(err.Error()))
			return
		}
		updates["balance"] = req.Balance.Round(2)
		updates["version"] = gorm.Expr("version + 1")
	}
	if len(updates) == 0 {
		util.Fail(c, apperr.Validation("nothing to update"))
		return
	}

	err = h.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if name, ok := updates["name"].(string); ok {
			if err := ensureAccountNameFree(tx, id.MasterAccountID, name, acc.ID); err != nil {
				return err
			}
		}
		res := tx.Model(&models.Account{}).
			Where("id = ? AND version = ?", acc.ID, acc.Version).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.Conflict("account was modified concurrently, retry")
		}
		return nil
	})
	if err != nil {
		util.Fail(c, err)
		return
	}

	fresh, err := h.load(c, id.MasterAccountID, accID)
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, "account updated", toAccountResp(fresh))
}

// DeleteAccount deactivates the account. Accounts are never hard-deleted
// while transactions may reference them.
func (h *AccountHandler) DeleteAccount(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	accID, ok := pathID(c)
	if !ok {
		return
	}

	acc, err := h.load(c, id.MasterAccountID, accID)
	if err != nil {
		util.Fail(c, err)
		return
	}
	if err := h.DB.WithContext(c.Request.Context()).Model(acc).Update("active", false).Error; err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, "account deactivated", nil)
}

func (h *AccountHandler) load(c *gin.Context, masterID, accID uint) (*models.Account, error) {
	var acc models.Account
	if err := h.DB.WithContext(c.Request.Context()).
		Where("id = ? AND master_account_id = ?", accID, masterID).
		First(&acc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("account not found")
		}
		return nil, err
	}
	return &acc, nil
}

func ensureAccountNameFree(tx *gorm.DB, masterID uint, name string, exceptID uint) error {
	var count int64
	if err := tx.Model(&models.Account{}).
		Where("master_account_id = ? AND LOWER(name) = LOWER(?) AND id <> ?", masterID, name, exceptID).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return apperr.Conflict("an account with this name already exists")
	}
	return nil
}
