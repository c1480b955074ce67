package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is an item sold at the counter: prizes, candy, coin bundles.
// Category: "coins" | "plush_toy" | "figurine" | "candy" | "electronics" | "stationery" | "other"
type Product struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name      string          `gorm:"index;not null"`
	Category  string          `gorm:"type:varchar(20);not null"`
	Price     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Cost      decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	SKU       *string         `gorm:"uniqueIndex"`
	Active    bool            `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Machine is a claw machine on the arcade floor.
// Status: "active" | "inactive" | "maintenance"
type Machine struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	MachineCode string    `gorm:"uniqueIndex;not null"`
	Name        string    `gorm:"not null"`
	Location    string    `gorm:"not null"`
	Status      string    `gorm:"type:varchar(20);not null;default:'active'"`
	MaxCapacity int       `gorm:"not null;default:100"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
