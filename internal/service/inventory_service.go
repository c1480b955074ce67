package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clawpos/internal/dto"
	"clawpos/internal/model"
	"clawpos/internal/repository"
	"clawpos/internal/worker"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// InventoryService applies the stock side effects of sales and exposes the
// movement audit trail.
type InventoryService interface {
	// ApplySaleTx decrements warehouse stock for every item of sale inside tx.
	// Items without enough stock are skipped and flag sale.StockConflict; the
	// sale itself is never rejected. Returns the rows that fell to or below
	// their minimum.
	ApplySaleTx(ctx context.Context, tx *gorm.DB, sale *model.Sale, performedBy uuid.UUID) ([]worker.LowStockAlertPayload, error)
	ListMovements(ctx context.Context, filter dto.MovementFilter) (*dto.StockMovementListResponse, error)
}

type inventoryService struct {
	repo      repository.InventoryRepository
	movements repository.StockMovementRepository
}

func NewInventoryService(repo repository.InventoryRepository, movements repository.StockMovementRepository) InventoryService {
	return &inventoryService{repo: repo, movements: movements}
}

func (s *inventoryService) ApplySaleTx(ctx context.Context, tx *gorm.DB, sale *model.Sale, performedBy uuid.UUID) ([]worker.LowStockAlertPayload, error) {
	var low []worker.LowStockAlertPayload

	for _, item := range sale.Items {
		logger := log.With().
			Str("sale_number", sale.SaleNumber).
			Str("product_id", item.ProductID.String()).
			Int("quantity", item.Quantity).
			Logger()

		inv, err := s.repo.FindWarehouseTx(tx, item.ProductID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn().Msg("no warehouse inventory, decrement skipped")
			sale.StockConflict = true
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load inventory: %w", err)
		}
		if inv.CurrentStock < item.Quantity {
			logger.Warn().Int("stock", inv.CurrentStock).Msg("insufficient stock, decrement skipped")
			sale.StockConflict = true
			continue
		}

		ok, err := s.repo.DecrementTx(tx, inv.ID, item.Quantity, performedBy)
		if err != nil {
			return nil, fmt.Errorf("decrement inventory: %w", err)
		}
		if !ok {
			logger.Warn().Int("stock", inv.CurrentStock).Msg("stock changed under decrement, skipped")
			sale.StockConflict = true
			continue
		}

		saleID := sale.ID
		after := inv.CurrentStock - item.Quantity
		mov := &model.StockMovement{
			ProductID:    item.ProductID,
			MachineID:    sale.MachineID,
			MovementType: "sale",
			Quantity:     -item.Quantity,
			StockBefore:  inv.CurrentStock,
			StockAfter:   after,
			FromLocation: model.LocationWarehouse,
			ToLocation:   model.LocationSold,
			Reason:       "Sale: " + sale.SaleNumber,
			ReferenceID:  &saleID,
			PerformedBy:  performedBy,
		}
		if err := s.movements.CreateTx(tx, mov); err != nil {
			return nil, fmt.Errorf("record stock movement: %w", err)
		}

		if after <= inv.MinStock {
			name := item.ProductID.String()
			if item.Product != nil {
				name = item.Product.Name
			}
			low = append(low, worker.LowStockAlertPayload{
				ProductID:    item.ProductID.String(),
				ProductName:  name,
				CurrentStock: after,
				MinStock:     inv.MinStock,
				SaleNumber:   sale.SaleNumber,
			})
		}
	}
	return low, nil
}

func (s *inventoryService) ListMovements(ctx context.Context, filter dto.MovementFilter) (*dto.StockMovementListResponse, error) {
	f := repository.StockMovementFilter{Type: filter.Type, Page: filter.Page, Limit: filter.Limit}
	if filter.Product != "" {
		pid, err := uuid.Parse(filter.Product)
		if err != nil {
			return nil, fmt.Errorf("invalid product id: %w", err)
		}
		f.ProductID = &pid
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 500 {
		f.Limit = 100
	}

	movs, total, err := s.movements.List(ctx, f)
	if err != nil {
		return nil, err
	}
	resp := &dto.StockMovementListResponse{
		Movements: make([]dto.StockMovementResponse, 0, len(movs)),
		Total:     total,
		Page:      f.Page,
		Limit:     f.Limit,
	}
	for _, m := range movs {
		r := dto.StockMovementResponse{
			ID:           m.ID.String(),
			Product:      m.ProductID.String(),
			MovementType: m.MovementType,
			Quantity:     m.Quantity,
			StockBefore:  m.StockBefore,
			StockAfter:   m.StockAfter,
			FromLocation: m.FromLocation,
			ToLocation:   m.ToLocation,
			Reason:       m.Reason,
			CreatedAt:    m.CreatedAt.UTC().Format(time.RFC3339),
		}
		if m.Product != nil {
			r.ProductName = m.Product.Name
		}
		if m.ReferenceID != nil {
			ref := m.ReferenceID.String()
			r.Reference = &ref
		}
		resp.Movements = append(resp.Movements, r)
	}
	return resp, nil
}
