package handler

import (
	"errors"
	"strconv"
	"time"

	"household-ledger/internal/apperr"
	"household-ledger/internal/ledger"
	"household-ledger/internal/models"
	"household-ledger/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TransactionHandler serves transactions. Mutations go through the ledger
// so account balances stay consistent.
type TransactionHandler struct {
	DB       *gorm.DB
	Ledger   *ledger.Ledger
	PageSize int
}

type createTransactionReq struct {
	Kind             string           `json:"kind" binding:"required,oneof=income expense"`
	Amount           *decimal.Decimal `json:"amount" binding:"required"`
	CategoryID       uint             `json:"category_id" binding:"required"`
	AccountID        uint             `json:"account_id" binding:"required"`
	Date             string           `json:"date"`
	Notes            string           `json:"notes" binding:"max=255"`
	ReceiptReference string           `json:"receipt_reference" binding:"max=255"`
}

type updateTransactionReq struct {
	Kind             *string          `json:"kind" binding:"omitempty,oneof=income expense"`
	Amount           *decimal.Decimal `json:"amount"`
	CategoryID       *uint            `json:"category_id" binding:"omitempty,min=1"`
	AccountID        *uint            `json:"account_id" binding:"omitempty,min=1"`
	Date             *string          `json:"date"`
	Notes            *string          `json:"notes" binding:"omitempty,max=255"`
	ReceiptReference *string          `json:"receipt_reference" binding:"omitempty,max=255"`
}

type transactionResp struct {
	ID               uint      `json:"id"`
	Kind             string    `json:"kind"`
	Amount           string    `json:"amount"`
	CategoryID       uint      `json:"category_id"`
	AccountID        uint      `json:"account_id"`
	Date             string    `json:"date"`
	Notes            string    `json:"notes"`
	ReceiptReference string    `json:"receipt_reference"`
	CreatedBy        uint      `json:"created_by"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func toTransactionResp(t *models.Transaction) transactionResp {
	return transactionResp{
		ID:               t.ID,
		Kind:             t.Kind,
		Amount:           t.Amount.StringFixed(2),
		CategoryID:       t.CategoryID,
		AccountID:        t.AccountID,
		Date:             t.Date.Format(util.DateLayout),
		Notes:            t.Notes,
		ReceiptReference: t.ReceiptReference,
		CreatedBy:        t.UserID,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
	}
}

func (h *TransactionHandler) CreateTransaction(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	var req createTransactionReq
	if err := util.BindJSON(c, &req); err != nil {
		util.Fail(c, err)
		return
	}
	if err := util.ValidateAmount(*req.Amount); err != nil {
		util.Fail(c, apperr.Validation(err.Error()))
		return
	}

	date := time.Now().UTC()
	if req.Date != "" {
		d, err := util.ParseTransactionDate(req.Date, time.Now())
		if err != nil {
			util.Fail(c, apperr.Validation(err.Error()))
			return
		}
		date = d
	}

	txn, err := h.Ledger.Create(c.Request.Context(), scopeOf(id), ledger.CreateInput{
		Kind:             req.Kind,
		Amount:           req.Amount.Round(2),
		CategoryID:       req.CategoryID,
		AccountID:        req.AccountID,
		Date:             date,
		Notes:            req.Notes,
		ReceiptReference: req.ReceiptReference,
	})
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Created(c, "transaction created", toTransactionResp(txn))
}

func (h *TransactionHandler) UpdateTransaction(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	txID, ok := pathID(c)
	if !ok {
		return
	}

	var req updateTransactionReq
	if err := util.BindJSON(c, &req); err != nil {
		util.Fail(c, err)
		return
	}

	in := ledger.UpdateInput{
		Kind:             req.Kind,
		CategoryID:       req.CategoryID,
		AccountID:        req.AccountID,
		Notes:            req.Notes,
		ReceiptReference: req.ReceiptReference,
	}
	if req.Amount != nil {
		if err := util.ValidateAmount(*req.Amount); err != nil {
			util.Fail(c, apperr.Validation(err.Error()))
			return
		}
		amount := req.Amount.Round(2)
		in.Amount = &amount
	}
	if req.Date != nil {
		d, err := util.ParseTransactionDate(*req.Date, time.Now())
		if err != nil {
			util.Fail(c, apperr.Validation(err.Error()))
			return
		}
		in.Date = &d
	}

	txn, err := h.Ledger.Update(c.Request.Context(), scopeOf(id), txID, in)
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, "transaction updated", toTransactionResp(txn))
}

func (h *TransactionHandler) DeleteTransaction(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	txID, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.Ledger.Delete(c.Request.Context(), scopeOf(id), txID); err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, "transaction deleted", nil)
}

func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	txID, ok := pathID(c)
	if !ok {
		return
	}

	var txn models.Transaction
	if err := h.DB.WithContext(c.Request.Context()).
		Where("id = ? AND master_account_id = ?", txID, id.MasterAccountID).
		First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.Fail(c, ledger.ErrTransactionNotFound)
		} else {
			util.Fail(c, err)
		}
		return
	}
	util.Success(c, "ok", toTransactionResp(&txn))
}

// ListTransactions lists transactions with paging, date range, kind,
// account and category filters and sorting. The summary covers every row
// matching the filters, not just the page.
func (h *TransactionHandler) ListTransactions(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	page, size, offset := paging(c, h.PageSize)

	base, err := transactionFilter(c, h.DB, id.MasterAccountID)
	if err != nil {
		util.Fail(c, err)
		return
	}

	// sort: date_desc (default), date_asc, amount_desc, amount_asc
	orderBy := "date DESC, id DESC"
	switch c.DefaultQuery("sort", "date_desc") {
	case "date_desc":
	case "date_asc":
		orderBy = "date ASC, id ASC"
	case "amount_desc":
		orderBy = "amount DESC, id DESC"
	case "amount_asc":
		orderBy = "amount ASC, id ASC"
	default:
		util.Fail(c, apperr.Validation("sort must be one of date_desc, date_asc, amount_desc, amount_asc"))
		return
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		util.Fail(c, err)
		return
	}

	var txns []models.Transaction
	if err := base.Session(&gorm.Session{}).
		Order(orderBy).
		Limit(size).
		Offset(offset).
		Find(&txns).Error; err != nil {
		util.Fail(c, err)
		return
	}

	items := make([]transactionResp, 0, len(txns))
	for i := range txns {
		items = append(items, toTransactionResp(&txns[i]))
	}

	var sums []kindTotal
	if err := base.Session(&gorm.Session{}).
		Select("kind, COALESCE(SUM(amount), 0) AS total, COUNT(*) AS count").
		Group("kind").
		Scan(&sums).Error; err != nil {
		util.Fail(c, err)
		return
	}
	income, expense := splitKinds(sums)

	util.Success(c, "ok", gin.H{
		"items":     items,
		"total":     total,
		"page":      page,
		"page_size": size,
		"summary": gin.H{
			"total_income":  income.StringFixed(2),
			"total_expense": expense.StringFixed(2),
			"net":           income.Sub(expense).StringFixed(2),
		},
	})
}

// transactionFilter builds the tenant-scoped transaction query from the
// start, end, kind, account_id and category_id query params.
func transactionFilter(c *gin.Context, db *gorm.DB, masterID uint) (*gorm.DB, error) {
	start, end, hasStart, hasEnd, err := dateRange(c)
	if err != nil {
		return nil, err
	}

	base := db.WithContext(c.Request.Context()).Model(&models.Transaction{}).
		Where("master_account_id = ?", masterID)
	if hasStart {
		base = base.Where("date >= ?", start)
	}
	if hasEnd {
		base = base.Where("date < ?", end)
	}

	switch kind := c.Query("kind"); kind {
	case "":
	case models.KindIncome, models.KindExpense:
		base = base.Where("kind = ?", kind)
	default:
		return nil, apperr.Validation("kind must be income or expense")
	}

	for _, key := range []string{"account_id", "category_id"} {
		raw := c.Query(key)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || v == 0 {
			return nil, apperr.Validation(key + " must be a positive integer")
		}
		base = base.Where(key+" = ?", v)
	}
	return base, nil
}

type kindTotal struct {
	Kind  string
	Total decimal.Decimal
	Count int64
}

func splitKinds(rows []kindTotal) (income, expense decimal.Decimal) {
	income, expense = decimal.Zero, decimal.Zero
	for _, r := range rows {
		switch r.Kind {
		case models.KindIncome:
			income = income.Add(r.Total)
		case models.KindExpense:
			expense = expense.Add(r.Total)
		}
	}
	return income, expense
}
