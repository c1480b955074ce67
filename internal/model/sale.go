package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment methods accepted at the counter.
const (
	PaymentCash          = "cash"
	PaymentCard          = "card"
	PaymentUPI           = "upi"
	PaymentDigitalWallet = "digital_wallet"
	PaymentCoins         = "coins"
)

// PaymentMethods lists every accepted payment method, in display order.
var PaymentMethods = []string{PaymentCash, PaymentCard, PaymentUPI, PaymentDigitalWallet, PaymentCoins}

// Sale is the server-canonical record of a checkout.
// ClientID is generated on the tablet and is the idempotency key for uploads.
type Sale struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SaleNumber    string          `gorm:"type:varchar(20);uniqueIndex;not null"`
	ClientID      string          `gorm:"type:varchar(64);uniqueIndex;not null"`
	PaymentMethod string          `gorm:"type:varchar(20);not null"`
	Total         decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	CashierID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	MachineID     *uuid.UUID      `gorm:"type:uuid;index"`
	SoldAt        time.Time       `gorm:"not null;index"`
	Status        string          `gorm:"type:varchar(20);not null;default:'completed'"` // completed | refunded
	StockConflict bool            `gorm:"not null;default:false"`
	CustomerEmail *string
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Items   []SaleItem `gorm:"foreignKey:SaleID"`
	Cashier *User      `gorm:"foreignKey:CashierID"`
}

// SaleItem is one line of a sale. LineTotal = UnitPrice × Quantity.
type SaleItem struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SaleID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	ProductID uuid.UUID       `gorm:"type:uuid;not null;index"`
	Quantity  int             `gorm:"not null"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	LineTotal decimal.Decimal `gorm:"type:decimal(12,2);not null"`

	Product *Product `gorm:"foreignKey:ProductID"`
}
