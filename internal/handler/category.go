package handler

import (
	"errors"
	"strings"

	"household-ledger/internal/apperr"
	"household-ledger/internal/models"
	"household-ledger/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CategoryHandler serves income/expense categories.
type CategoryHandler struct {
	DB *gorm.DB
}

type createCategoryReq struct {
	Name string `json:"name" binding:"required,max=64"`
	Kind string `json:"kind" binding:"required,oneof=income expense"`
}

// Kind is fixed once created: existing transactions depend on it.
type updateCategoryReq struct {
	Name   *string `json:"name" binding:"omitempty,max=64"`
	Active *bool   `json:"active"`
}

type categoryResp struct {
	ID     uint   `json:"id"`
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Active bool   `json:"active"`
}

func toCategoryResp(cat *models.Category) categoryResp {
	return categoryResp{ID: cat.ID, Name: cat.Name, Kind: cat.Kind, Active: cat.Active}
}

func (h *CategoryHandler) ListCategories(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	q := h.DB.WithContext(c.Request.Context()).Where("master_account_id = ?", id.MasterAccountID)
	switch kind := c.Query("kind"); kind {
	case "":
	case models.KindIncome, models.KindExpense:
		q = q.Where("kind = ?", kind)
	default:
		util.Fail(c, apperr.Validation("kind must be income or expense"))
		return
	}
	active, hasActive, err := optionalBool(c, "active")
	if err != nil {
		util.Fail(c, err)
		return
	}
	if hasActive {
		q = q.Where("active = ?", active)
	}

	var cats []models.Category
	if err := q.Order("kind ASC, name ASC").Find(&cats).Error; err != nil {
		util.Fail(c, err)
		return
	}

	items := make([]categoryResp, 0, len(cats))
	for i := range cats {
		items = append(items, toCategoryResp(&cats[i]))
	}
	util.Success(c, "ok", items)
}

func (h *CategoryHandler) GetCategory(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	catID, ok := pathID(c)
	if !ok {
		return
	}

	cat, err := h.load(c, id.MasterAccountID, catID)
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, "ok", toCategoryResp(cat))
}

func (h *CategoryHandler) CreateCategory(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	var req createCategoryReq
	if err := util.BindJSON(c, &req); err != nil {
		util.Fail(c, err)
		return
	}
	name := strings.TrimSpace(req.Name)
	if err := util.ValidateName(name, 64); err != nil {
		util.Fail(c, apperr.Validation(err.Error()))
		return
	}

	cat := models.Category{
		MasterAccountID: id.MasterAccountID,
		Name:            name,
		Kind:            req.Kind,
		Active:          true,
	}
	err := h.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := ensureCategoryFree(tx, id.MasterAccountID, name, req.Kind, 0); err != nil {
			return err
		}
		return tx.Omit(clause.Associations).Create(&cat).Error
	})
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Created(c, "category created", toCategoryResp(&cat))
}

func (h *CategoryHandler) UpdateCategory(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	catID, ok := pathID(c)
	if !ok {
		return
	}

	var req updateCategoryReq
	if err := util.BindJSON(c, &req); err != nil {
		util.Fail(c, err)
		return
	}

	cat, err := h.load(c, id.MasterAccountID, catID)
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
	if req.Active != nil {
		updates["active"] = *req.Active
	}
	if len(updates) == 0 {
		util.Fail(c, apperr.Validation("nothing to update"))
		return
	}

	err = h.DB.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if name, ok := updates["name"].(string); ok {
			if err := ensureCategoryFree(tx, id.MasterAccountID, name, cat.Kind, cat.ID); err != nil {
				return err
			}
		}
		return tx.Model(cat).Updates(updates).Error
	})
	if err != nil {
		util.Fail(c, err)
		return
	}

	fresh, err := h.load(c, id.MasterAccountID, catID)
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, "category updated", toCategoryResp(fresh))
}

// DeleteCategory deactivates the category.
func (h *CategoryHandler) DeleteCategory(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	catID, ok := pathID(c)
	if !ok {
		return
	}

	cat, err := h.load(c, id.MasterAccountID, catID)
	if err != nil {
		util.Fail(c, err)
		return
	}
	if err := h.DB.WithContext(c.Request.Context()).Model(cat).Update("active", false).Error; err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, "category deactivated", nil)
}

func (h *CategoryHandler) load(c *gin.Context, masterID, catID uint) (*models.Category, error) {
	var cat models.Category
	if err := h.DB.WithContext(c.Request.Context()).
		Where("id = ? AND master_account_id = ?", catID, masterID).
		First(&cat).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("category not found")
		}
		return nil, err
	}
	return &cat, nil
}

func ensureCategoryFree(tx *gorm.DB, masterID uint, name, kind string, exceptID uint) error {
	var count int64
	if err := tx.Model(&models.Category{}).
		Where("master_account_id = ? AND LOWER(name) = LOWER(?) AND kind = ? AND id <> ?", masterID, name, kind, exceptID).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return apperr.Conflict("a category with this name already exists")
	}
	return nil
}
