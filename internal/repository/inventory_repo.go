package repository

import (
	"context"

	"clawpos/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InventoryRepository covers the stock rows touched by sales.
type InventoryRepository interface {
	FindWarehouseTx(tx *gorm.DB, productID uuid.UUID) (*model.Inventory, error)
	// DecrementTx subtracts qty only while enough stock remains; it reports
	// false when the guard rejected the update.
	DecrementTx(tx *gorm.DB, id uuid.UUID, qty int, by uuid.UUID) (bool, error)
	Create(ctx context.Context, inv *model.Inventory) error
}

type inventoryRepo struct{ db *gorm.DB }

func NewInventoryRepository(db *gorm.DB) InventoryRepository { return &inventoryRepo{db: db} }

func (r *inventoryRepo) FindWarehouseTx(tx *gorm.DB, productID uuid.UUID) (*model.Inventory, error) {
	var inv model.Inventory
	// Row lock so StockBefore in the movement matches what the decrement saw
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_id = ? AND location = ?", productID, model.LocationWarehouse).
		First(&inv).Error
	return &inv, err
}

func (r *inventoryRepo) DecrementTx(tx *gorm.DB, id uuid.UUID, qty int, by uuid.UUID) (bool, error) {
	res := tx.Model(&model.Inventory{}).
		Where("id = ? AND current_stock >= ?", id, qty).
		Updates(map[string]interface{}{
			"current_stock": gorm.Expr("current_stock - ?", qty),
			"updated_by":    by,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *inventoryRepo) Create(ctx context.Context, inv *model.Inventory) error {
	return r.db.WithContext(ctx).Create(inv).Error
}
