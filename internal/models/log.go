package models

import "time"

// AuditLog records mutating requests made by a tenant's users.
type AuditLog struct {
	ID              uint   `gorm:"primaryKey"`
	MasterAccountID uint   `gorm:"index;not null"`
	UserID          uint   `gorm:"index;not null"`
	Method          string `gorm:"size:16"`
	Path            string `gorm:"size:255"`
	Status          int
	IP              string    `gorm:"size:64"`
	UserAgent       string    `gorm:"size:255"`
	CreatedAt       time.Time `gorm:"index"`
}
