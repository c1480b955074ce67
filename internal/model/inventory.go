package model

import (
	"time"

	"github.com/google/uuid"
)

// Inventory locations.
const (
	LocationWarehouse = "warehouse"
	LocationMachine   = "machine"
	LocationSold      = "sold"
)

// Inventory is the stock of one product at one location. Sales decrement the
// warehouse row of each sold product.
type Inventory struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ProductID    uuid.UUID  `gorm:"type:uuid;not null;index:idx_inventory_product_location"`
	MachineID    *uuid.UUID `gorm:"type:uuid;index"`
	Location     string     `gorm:"type:varchar(20);not null;default:'warehouse';index:idx_inventory_product_location"`
	CurrentStock int        `gorm:"not null;default:0;check:current_stock >= 0"`
	MinStock     int        `gorm:"not null;default:5"`
	MaxStock     int        `gorm:"not null;default:50"`
	UpdatedBy    *uuid.UUID `gorm:"type:uuid"`
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Product *Product `gorm:"foreignKey:ProductID"`
}
