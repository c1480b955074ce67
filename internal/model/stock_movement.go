package model

import (
	"time"

	"github.com/google/uuid"
)

// StockMovement records every stock change of a product.
// Created automatically when a sale decrements warehouse stock.
type StockMovement struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ProductID    uuid.UUID  `gorm:"type:uuid;not null;index"`
	MachineID    *uuid.UUID `gorm:"type:uuid"`
	MovementType string     `gorm:"type:varchar(20);not null"` // "stock_in" | "stock_out" | "transfer" | "adjustment" | "sale"
	Quantity     int        `gorm:"not null"`                  // positive = in, negative = out
	StockBefore  int        `gorm:"not null"`
	StockAfter   int        `gorm:"not null"`
	FromLocation string     `gorm:"type:varchar(20)"`
	ToLocation   string     `gorm:"type:varchar(20)"`
	Reason       string     `gorm:"not null"`
	ReferenceID  *uuid.UUID `gorm:"type:uuid;index"` // sale id when MovementType = sale
	PerformedBy  uuid.UUID  `gorm:"type:uuid;not null"`
	CreatedAt    time.Time

	Product *Product `gorm:"foreignKey:ProductID"`
}

// TableName overrides GORM's default pluralization.
func (StockMovement) TableName() string { return "stock_movements" }
