package handler

import (
	"encoding/csv"
	"fmt"
	"time"

	"household-ledger/internal/models"
	"household-ledger/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// ExportHandler downloads a tenant's transactions as CSV or XLSX. Both
// formats accept the same filters as the transaction list.
type ExportHandler struct {
	DB *gorm.DB
}

var exportHeader = []string{"ID", "Date", "Kind", "Category", "Account", "Amount", "Notes", "Receipt"}

type exportRow struct {
	txn      models.Transaction
	category string
	account  string
}

func (r exportRow) cells() []string {
	return []string{
		fmt.Sprint(r.txn.ID),
		r.txn.Date.Format(util.DateLayout),
		r.txn.Kind,
		r.category,
		r.account,
		r.txn.Amount.StringFixed(2),
		r.txn.Notes,
		r.txn.ReceiptReference,
	}
}

// rows loads the filtered transactions oldest first with category and
// account names resolved.
func (h *ExportHandler) rows(c *gin.Context, masterID uint) ([]exportRow, error) {
	q, err := transactionFilter(c, h.DB, masterID)
	if err != nil {
		return nil, err
	}
	var txns []models.Transaction
	if err := q.Order("date ASC, id ASC").Find(&txns).Error; err != nil {
		return nil, err
	}

	db := h.DB.WithContext(c.Request.Context())
	var cats []models.Category
	if err := db.Select("id", "name").Where("master_account_id = ?", masterID).Find(&cats).Error; err != nil {
		return nil, err
	}
	var accs []models.Account
	if err := db.Select("id", "name").Where("master_account_id = ?", masterID).Find(&accs).Error; err != nil {
		return nil, err
	}
	catNames := make(map[uint]string, len(cats))
	for _, cat := range cats {
		catNames[cat.ID] = cat.Name
	}
	accNames := make(map[uint]string, len(accs))
	for _, a := range accs {
		accNames[a.ID] = a.Name
	}

	out := make([]exportRow, 0, len(txns))
	for _, t := range txns {
		out = append(out, exportRow{txn: t, category: catNames[t.CategoryID], account: accNames[t.AccountID]})
	}
	return out, nil
}

func exportFilename(ext string) string {
	return fmt.Sprintf("attachment; filename=\"transactions_%s.%s\"", time.Now().Format("20060102"), ext)
}

func (h *ExportHandler) ExportCSV(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	rows, err := h.rows(c, id.MasterAccountID)
	if err != nil {
		util.Fail(c, err)
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", exportFilename("csv"))

	// UTF-8 BOM so spreadsheet apps pick the right encoding
	if _, err := c.Writer.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		util.Logger(c).WithError(err).Warn("csv export aborted")
		return
	}
	w := csv.NewWriter(c.Writer)
	_ = w.Write(exportHeader)
	for _, r := range rows {
		_ = w.Write(r.cells())
	}
	w.Flush()
	if err := w.Error(); err != nil {
		util.Logger(c).WithError(err).Warn("csv export aborted")
	}
}

func (h *ExportHandler) ExportXLSX(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	rows, err := h.rows(c, id.MasterAccountID)
	if err != nil {
		util.Fail(c, err)
		return
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Transactions"
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		util.Fail(c, fmt.Errorf("name sheet: %w", err))
		return
	}

	if err := f.SetSheetRow(sheet, "A1", &exportHeader); err != nil {
		util.Fail(c, fmt.Errorf("write header: %w", err))
		return
	}
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		values := []interface{}{
			r.txn.ID,
			r.txn.Date.Format(util.DateLayout),
			r.txn.Kind,
			r.category,
			r.account,
			r.txn.Amount.InexactFloat64(),
			r.txn.Notes,
			r.txn.ReceiptReference,
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			util.Fail(c, fmt.Errorf("write row %d: %w", i+2, err))
			return
		}
	}

	_ = f.SetColWidth(sheet, "B", "B", 12)
	_ = f.SetColWidth(sheet, "D", "E", 18)
	_ = f.SetColWidth(sheet, "G", "H", 30)

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", exportFilename("xlsx"))
	if err := f.Write(c.Writer); err != nil {
		util.Logger(c).WithError(err).Warn("xlsx export aborted")
	}
}
