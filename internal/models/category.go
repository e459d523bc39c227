package models

import "time"

// Kinds shared by categories and transactions.
const (
	KindIncome  = "income"
	KindExpense = "expense"
)

// Category represents an income/expense category.
type Category struct {
	ID              uint   `gorm:"primaryKey"`
	MasterAccountID uint   `gorm:"uniqueIndex:idx_categories_tenant_name_kind;not null"`
	Name            string `gorm:"size:64;uniqueIndex:idx_categories_tenant_name_kind;not null"`
	Kind            string `gorm:"size:16;uniqueIndex:idx_categories_tenant_name_kind;not null;check:chk_categories_kind,kind IN ('income','expense')"`
	Active          bool   `gorm:"not null;default:true"`
	CreatedAt       time.Time
	UpdatedAt       time.Time

	MasterAccount MasterAccount `gorm:"constraint:OnDelete:CASCADE"`
}
