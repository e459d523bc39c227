package handler

import (
	"strconv"
	"time"

	"household-ledger/internal/apperr"
	"household-ledger/internal/models"
	"household-ledger/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReportHandler serves read-only aggregates over a tenant's transactions.
type ReportHandler struct {
	DB *gorm.DB
}

// rangeQuery scopes transactions to the tenant and the optional start/end.
func (h *ReportHandler) rangeQuery(c *gin.Context, masterID uint) (*gorm.DB, error) {
	start, end, hasStart, hasEnd, err := dateRange(c)
	if err != nil {
		return nil, err
	}
	q := h.DB.WithContext(c.Request.Context()).Model(&models.Transaction{}).
		Where("master_account_id = ?", masterID)
	if hasStart {
		q = q.Where("date >= ?", start)
	}
	if hasEnd {
		q = q.Where("date < ?", end)
	}
	return q, nil
}

// Summary returns income, expense and net for the range plus the current
// total balance of active accounts.
func (h *ReportHandler) Summary(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	q, err := h.rangeQuery(c, id.MasterAccountID)
	if err != nil {
		util.Fail(c, err)
		return
	}

	var sums []kindTotal
	if err := q.Select("kind, COALESCE(SUM(amount), 0) AS total, COUNT(*) AS count").
		Group("kind").
		Scan(&sums).Error; err != nil {
		util.Fail(c, err)
		return
	}
	income, expense := splitKinds(sums)
	var count int64
	for _, s := range sums {
		count += s.Count
	}

	var balance struct{ Total decimal.Decimal }
	if err := h.DB.WithContext(c.Request.Context()).Model(&models.Account{}).
		Select("COALESCE(SUM(balance), 0) AS total").
		Where("master_account_id = ? AND active = ?", id.MasterAccountID, true).
		Scan(&balance).Error; err != nil {
		util.Fail(c, err)
		return
	}

	util.Success(c, "ok", gin.H{
		"total_income":      income.StringFixed(2),
		"total_expense":     expense.StringFixed(2),
		"net":               income.Sub(expense).StringFixed(2),
		"transaction_count": count,
		"total_balance":     balance.Total.StringFixed(2),
	})
}

type categoryTotalResp struct {
	CategoryID uint   `json:"category_id"`
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Total      string `json:"total"`
	Count      int64  `json:"count"`
}

// Categories returns totals and counts per category, largest first.
func (h *ReportHandler) Categories(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	q, err := h.rangeQuery(c, id.MasterAccountID)
	if err != nil {
		util.Fail(c, err)
		return
	}
	switch kind := c.Query("kind"); kind {
	case "":
	case models.KindIncome, models.KindExpense:
		q = q.Where("kind = ?", kind)
	default:
		util.Fail(c, apperr.Validation("kind must be income or expense"))
		return
	}

	var rows []struct {
		CategoryID uint
		Kind       string
		Total      decimal.Decimal
		Count      int64
	}
	if err := q.Select("category_id, kind, COALESCE(SUM(amount), 0) AS total, COUNT(*) AS count").
		Group("category_id, kind").
		Order("total DESC").
		Scan(&rows).Error; err != nil {
		util.Fail(c, err)
		return
	}

	names, err := h.categoryNames(c, id.MasterAccountID)
	if err != nil {
		util.Fail(c, err)
		return
	}

	items := make([]categoryTotalResp, 0, len(rows))
	for _, r := range rows {
		items = append(items, categoryTotalResp{
			CategoryID: r.CategoryID,
			Name:       names[r.CategoryID],
			Kind:       r.Kind,
			Total:      r.Total.StringFixed(2),
			Count:      r.Count,
		})
	}
	util.Success(c, "ok", gin.H{"items": items})
}

func (h *ReportHandler) categoryNames(c *gin.Context, masterID uint) (map[uint]string, error) {
	var cats []models.Category
	if err := h.DB.WithContext(c.Request.Context()).
		Select("id", "name").
		Where("master_account_id = ?", masterID).
		Find(&cats).Error; err != nil {
		return nil, err
	}
	names := make(map[uint]string, len(cats))
	for _, cat := range cats {
		names[cat.ID] = cat.Name
	}
	return names, nil
}

type monthResp struct {
	Month   int    `json:"month"`
	Income  string `json:"income"`
	Expense string `json:"expense"`
	Net     string `json:"net"`
}

// Monthly returns twelve buckets for ?year=YYYY (default: current year).
// Bucketing is done here rather than in SQL so it behaves the same on
// every supported dialect.
func (h *ReportHandler) Monthly(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	year := time.Now().Year()
	if raw := c.Query("year"); raw != "" {
		y, err := strconv.Atoi(raw)
		if err != nil || y < 1900 || y > 9999 {
			util.Fail(c, apperr.Validation("year must be a four digit year"))
			return
		}
		year = y
	}
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(1, 0, 0)

	var txns []models.Transaction
	if err := h.DB.WithContext(c.Request.Context()).
		Select("kind", "amount", "date").
		Where("master_account_id = ? AND date >= ? AND date < ?", id.MasterAccountID, start, end).
		Find(&txns).Error; err != nil {
		util.Fail(c, err)
		return
	}

	var income, expense [12]decimal.Decimal
	for _, t := range txns {
		m := t.Date.UTC().Month() - 1
		if t.Kind == models.KindIncome {
			income[m] = income[m].Add(t.Amount)
		} else {
			expense[m] = expense[m].Add(t.Amount)
		}
	}

	months := make([]monthResp, 12)
	for i := range months {
		months[i] = monthResp{
			Month:   i + 1,
			Income:  income[i].StringFixed(2),
			Expense: expense[i].StringFixed(2),
			Net:     income[i].Sub(expense[i]).StringFixed(2),
		}
	}
	util.Success(c, "ok", gin.H{"year": year, "months": months})
}

type accountReportResp struct {
	AccountID    uint   `json:"account_id"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	Active       bool   `json:"active"`
	Balance      string `json:"balance"`
	TotalIncome  string `json:"total_income"`
	TotalExpense string `json:"total_expense"`
}

// Accounts lists every tenant account with its balance and lifetime totals.
func (h *ReportHandler) Accounts(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var accounts []models.Account
	if err := h.DB.WithContext(ctx).
		Where("master_account_id = ?", id.MasterAccountID).
		Order("id ASC").
		Find(&accounts).Error; err != nil {
		util.Fail(c, err)
		return
	}

	var rows []struct {
		AccountID uint
		Kind      string
		Total     decimal.Decimal
	}
	if err := h.DB.WithContext(ctx).Model(&models.Transaction{}).
		Select("account_id, kind, COALESCE(SUM(amount), 0) AS total").
		Where("master_account_id = ?", id.MasterAccountID).
		Group("account_id, kind").
		Scan(&rows).Error; err != nil {
		util.Fail(c, err)
		return
	}

	type totals struct{ income, expense decimal.Decimal }
	byAccount := make(map[uint]*totals, len(accounts))
	for _, r := range rows {
		t, ok := byAccount[r.AccountID]
		if !ok {
			t = &totals{}
			byAccount[r.AccountID] = t
		}
		if r.Kind == models.KindIncome {
			t.income = t.income.Add(r.Total)
		} else {
			t.expense = t.expense.Add(r.Total)
		}
	}

	items := make([]accountReportResp, 0, len(accounts))
	for _, a := range accounts {
		t := byAccount[a.ID]
		if t == nil {
			t = &totals{}
		}
		items = append(items, accountReportResp{
			AccountID:    a.ID,
			Name:         a.Name,
			Type:         a.Type,
			Active:       a.Active,
			Balance:      a.Balance.StringFixed(2),
			TotalIncome:  t.income.StringFixed(2),
			TotalExpense: t.expense.StringFixed(2),
		})
	}
	util.Success(c, "ok", gin.H{"items": items})
}
