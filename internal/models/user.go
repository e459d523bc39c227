package models

import "time"

// Permission tiers.
const (
	TierRead  = "read"
	TierWrite = "write"
)

// User represents an application user inside a master account.
type User struct {
	ID              uint   `gorm:"primaryKey"`
	MasterAccountID uint   `gorm:"index;not null"`
	Username        string `gorm:"size:64;uniqueIndex;not null"`
	PasswordHash    string `gorm:"size:255;not null"`
	DisplayName     string `gorm:"size:64"`
	Tier            string `gorm:"size:8;not null;default:read;check:chk_users_tier,tier IN ('read','write')"`
	IsOwner         bool   `gorm:"not null;default:false"`
	Active          bool   `gorm:"not null;default:true"`
	CreatedAt       time.Time
	UpdatedAt       time.Time

	FailedLoginAttempts int        `gorm:"default:0"`
	LockedUntil         *time.Time `gorm:"index"`
	LastLoginAt         *time.Time
	LastLoginIP         string `gorm:"size:64"`

	MasterAccount MasterAccount `gorm:"constraint:OnDelete:CASCADE"`
}

// CanWrite reports whether the user may mutate tenant data.
func (u *User) CanWrite() bool {
	return u.Tier == TierWrite
}
