package models

import "time"

// MasterAccount is the tenant: every user, account, category and
// transaction belongs to exactly one.
type MasterAccount struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:128;not null" json:"name"`
	Currency  string    `gorm:"size:8;not null;default:USD" json:"currency"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
