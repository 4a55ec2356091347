package models

import (
	"time"
)

// LedgerEntry is an immutable record of one balance movement. Entries are
// only ever appended, inside the same transaction as the balance change
// they document, so that sum(delta) per account always equals the balance.
type LedgerEntry struct {
	ID            uint      `gorm:"primaryKey"`
	EntryID       string    `gorm:"uniqueIndex;type:varchar(36);not null"`
	AccountID     uint      `gorm:"not null;index"`
	MatchID       *uint     `gorm:"index"`
	OrderID       *uint     `gorm:"index"`
	Delta         int64     `gorm:"not null"`
	BalanceBefore int64     `gorm:"not null"`
	BalanceAfter  int64     `gorm:"not null"`
	Kind          string    `gorm:"type:varchar(30);not null;index"`
	Description   string    `gorm:"type:text"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index"`
}

// Ledger entry kind constants
const (
	LedgerKindWagerDebit     = "wager_debit"
	LedgerKindWinCredit      = "win_credit"
	LedgerKindLoss           = "loss"
	LedgerKindDrawRefund     = "draw_refund"
	LedgerKindAbandonRefund  = "abandon_refund"
	LedgerKindPurchaseCredit = "purchase_credit"
	LedgerKindRefund         = "refund"
)

func (LedgerEntry) TableName() string {
	return "ledger_entries"
}

// LedgerFilters narrows ListEntries results
type LedgerFilters struct {
	Kind    string
	MatchID *uint
	OrderID *uint
	Limit   int
}
