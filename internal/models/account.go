package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Financial account types.
const (
	AccountCash    = "cash"
	AccountBank    = "bank"
	AccountSavings = "savings"
	AccountCredit  = "credit"
	AccountOther   = "other"
)

// Account is a balance-holding financial account ("cuenta"). It is distinct
// from the authentication User.
//
// Balance only changes through explicit edits or as a side effect of
// transaction mutations in package ledger. Version guards concurrent writes.
type Account struct {
	ID              uint            `gorm:"primaryKey"`
	MasterAccountID uint            `gorm:"uniqueIndex:idx_cuentas_tenant_name;not null"`
	Name            string          `gorm:"size:64;uniqueIndex:idx_cuentas_tenant_name;not null"`
	Balance         decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0;check:chk_cuentas_balance,balance >= 0"`
	Type            string          `gorm:"size:16;not null;default:cash"`
	Active          bool            `gorm:"not null;default:true"`
	Version         int64           `gorm:"not null;default:1"`
	CreatedAt       time.Time
	UpdatedAt       time.Time

	MasterAccount MasterAccount `gorm:"constraint:OnDelete:CASCADE"`
}

func (Account) TableName() string {
	return "cuentas"
}

// ValidAccountType reports whether t is a known account type.
func ValidAccountType(t string) bool {
	switch t {
	case AccountCash, AccountBank, AccountSavings, AccountCredit, AccountOther:
		return true
	}
	return false
}
