package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is a single income or expense movement on one account.
type Transaction struct {
	ID               uint            `gorm:"primaryKey"`
	MasterAccountID  uint            `gorm:"index;not null"`
	UserID           uint            `gorm:"index;not null"`
	Kind             string          `gorm:"size:16;index;not null;check:chk_transactions_kind,kind IN ('income','expense')"`
	Amount           decimal.Decimal `gorm:"type:decimal(14,2);not null;check:chk_transactions_amount,amount > 0"`
	CategoryID       uint            `gorm:"index;not null"`
	AccountID        uint            `gorm:"index;not null"`
	Date             time.Time       `gorm:"index;not null"`
	Notes            string          `gorm:"size:255"`
	ReceiptReference string          `gorm:"size:255"`
	CreatedAt        time.Time
	UpdatedAt        time.Time

	MasterAccount MasterAccount `gorm:"constraint:OnDelete:CASCADE"`
	Category      Category      `gorm:"constraint:OnDelete:RESTRICT"`
	Account       Account       `gorm:"constraint:OnDelete:RESTRICT"`
}

// Signed returns the transaction's contribution to its account balance:
// +amount for income, -amount for expense.
func Signed(kind string, amount decimal.Decimal) decimal.Decimal {
	if kind == KindExpense {
		return amount.Neg()
	}
	return amount
}

// Contribution is Signed applied to t.
func (t *Transaction) Contribution() decimal.Decimal {
	return Signed(t.Kind, t.Amount)
}
