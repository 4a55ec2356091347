package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

type Account struct {
	ID               uint      `gorm:"primaryKey"`
	AccountID        string    `gorm:"uniqueIndex;type:varchar(64);not null"` // external identity
	Credits          int64     `gorm:"default:0;not null;check:credits >= 0"`
	Status           string    `gorm:"type:varchar(20);default:'active';not null;index"`
	GamesPlayed      int       `gorm:"default:0;not null"`
	GamesWon         int       `gorm:"default:0;not null"`
	GamesLost        int       `gorm:"default:0;not null"`
	GamesDrawn       int       `gorm:"default:0;not null"`
	WinStreak        int       `gorm:"default:0;not null"`
	LongestWinStreak int       `gorm:"default:0;not null"`
	PurchaseCount    int       `gorm:"default:0;not null"`
	CreatedAt        time.Time `gorm:"autoCreateTime"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime"`
}

// Account status constants
const (
	AccountStatusActive    = "active"
	AccountStatusSuspended = "suspended"
	AccountStatusBanned    = "banned"
)

func (Account) TableName() string {
	return "accounts"
}

// BeforeSave validates account fields before any write
func (a *Account) BeforeSave(tx *gorm.DB) error {
	switch a.Status {
	case AccountStatusActive, AccountStatusSuspended, AccountStatusBanned:
	default:
		return fmt.Errorf("invalid account status: %s", a.Status)
	}

	if a.Credits < 0 {
		return fmt.Errorf("credits cannot be negative: %d", a.Credits)
	}

	return nil
}

// IsActive reports whether the account may wager or purchase
func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}

// HeadToHead tracks per-opponent outcome counters for one account.
type HeadToHead struct {
	ID         uint      `gorm:"primaryKey"`
	AccountID  uint      `gorm:"not null;uniqueIndex:idx_h2h_pair"`
	OpponentID uint      `gorm:"not null;uniqueIndex:idx_h2h_pair"`
	Wins       int       `gorm:"default:0;not null"`
	Losses     int       `gorm:"default:0;not null"`
	Draws      int       `gorm:"default:0;not null"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

func (HeadToHead) TableName() string {
	return "head_to_heads"
}
