package models

import (
	"time"
)

type PaymentOrder struct {
	ID               uint      `gorm:"primaryKey"`
	OrderID          string    `gorm:"uniqueIndex;type:varchar(36);not null"`
	AccountID        uint      `gorm:"not null;index"`
	Account          Account   `gorm:"foreignKey:AccountID"`
	PackID           uint      `gorm:"not null;index"`
	Amount           int64     `gorm:"not null"` // minor currency units
	CreditsGranted   int64     `gorm:"not null"`
	Status           string    `gorm:"type:varchar(20);default:'pending';not null;index"`
	StatusDetail     string    `gorm:"type:varchar(255)"`
	PaymentMethod    string    `gorm:"type:varchar(30)"`
	GatewayOrderID   string    `gorm:"type:varchar(100);index"`
	GatewayPaymentID string    `gorm:"type:varchar(100)"`
	RedirectURL      string    `gorm:"type:varchar(500)"`
	ExpiresAt        time.Time `gorm:"not null;index"`
	CreatedAt        time.Time `gorm:"autoCreateTime;index"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime"`
}

// Payment order status constants.
//
// pending -> confirmed | rejected | expired | cancelled | error
// error   -> failed                        (sweeper, second timeout)
// error | failed | expired | rejected -> retried (spawns a new order)
//
// confirmed, cancelled and failed are absorbing.
const (
	OrderStatusPending   = "pending"
	OrderStatusConfirmed = "confirmed"
	OrderStatusRejected  = "rejected"
	OrderStatusExpired   = "expired"
	OrderStatusCancelled = "cancelled"
	OrderStatusError     = "error"
	OrderStatusFailed    = "failed"
	OrderStatusRetried   = "retried"
)

func (PaymentOrder) TableName() string {
	return "payment_orders"
}

// IsTerminal reports whether no gateway signal may move the order anymore
func (o *PaymentOrder) IsTerminal() bool {
	return o.Status != OrderStatusPending
}

// CanRetry reports whether RetryOrder may spawn a replacement order
func (o *PaymentOrder) CanRetry() bool {
	switch o.Status {
	case OrderStatusError, OrderStatusFailed, OrderStatusExpired, OrderStatusRejected:
		return true
	}
	return false
}

// CreditPack is a purchasable bundle of credits
type CreditPack struct {
	ID        uint      `gorm:"primaryKey"`
	Name      string    `gorm:"type:varchar(100);not null;uniqueIndex"`
	Credits   int64     `gorm:"not null"`
	Price     int64     `gorm:"not null"` // minor currency units
	Active    bool      `gorm:"default:true;not null;index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (CreditPack) TableName() string {
	return "credit_packs"
}
