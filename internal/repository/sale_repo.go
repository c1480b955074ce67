package repository

import (
	"context"
	"fmt"
	"time"

	"clawpos/internal/dto"
	"clawpos/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SaleRepository defines the data access contract for sales.
type SaleRepository interface {
	Create(ctx context.Context, tx *gorm.DB, s *model.Sale) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Sale, error)
	FindByClientID(ctx context.Context, clientID string) (*model.Sale, error)
	NextSaleNumber(ctx context.Context, tx *gorm.DB) (string, error)
	List(ctx context.Context, filter dto.SaleFilter) ([]model.Sale, int64, error)
	SummarizeSince(ctx context.Context, since time.Time) (count int64, revenue decimal.Decimal, err error)
	DB() *gorm.DB // exposes the DB for transaction creation in service layer
}

type saleRepo struct{ db *gorm.DB }

func NewSaleRepository(db *gorm.DB) SaleRepository { return &saleRepo{db: db} }

func (r *saleRepo) DB() *gorm.DB { return r.db }

// Create inserts the sale and its items. Preloaded products and cashier are
// never written back.
func (r *saleRepo) Create(ctx context.Context, tx *gorm.DB, s *model.Sale) error {
	if err := tx.WithContext(ctx).Omit(clause.Associations).Create(s).Error; err != nil {
		return err
	}
	if len(s.Items) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Omit(clause.Associations).Create(&s.Items).Error
}

func (r *saleRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Sale, error) {
	var s model.Sale
	err := r.db.WithContext(ctx).Preload("Items.Product").Preload("Cashier").First(&s, "id = ?", id).Error
	return &s, err
}

func (r *saleRepo) FindByClientID(ctx context.Context, clientID string) (*model.Sale, error) {
	var s model.Sale
	err := r.db.WithContext(ctx).Where("client_id = ?", clientID).First(&s).Error
	return &s, err
}

// NextSaleNumber draws from a PostgreSQL sequence so numbers stay unique and
// increasing across every tablet, without a table-wide lock.
func (r *saleRepo) NextSaleNumber(ctx context.Context, tx *gorm.DB) (string, error) {
	var num int64
	if err := tx.WithContext(ctx).Raw("SELECT nextval('sales_sale_number_seq')").Scan(&num).Error; err != nil {
		return "", err
	}
	return fmt.Sprintf("SALE-%06d", num), nil
}

func (r *saleRepo) List(ctx context.Context, filter dto.SaleFilter) ([]model.Sale, int64, error) {
	var sales []model.Sale
	var total int64
	offset := (filter.Page - 1) * filter.Limit

	q := r.db.WithContext(ctx).Model(&model.Sale{})

	if filter.From != "" {
		q = q.Where("DATE(sold_at) >= ?", filter.From)
	}
	if filter.To != "" {
		q = q.Where("DATE(sold_at) <= ?", filter.To)
	}
	if filter.PaymentMethod != "" && filter.PaymentMethod != "all" {
		q = q.Where("payment_method = ?", filter.PaymentMethod)
	}

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := q.Preload("Items.Product").Preload("Cashier").
		Order("sold_at DESC").
		Offset(offset).Limit(filter.Limit).
		Find(&sales).Error

	return sales, total, err
}

func (r *saleRepo) SummarizeSince(ctx context.Context, since time.Time) (int64, decimal.Decimal, error) {
	var row struct {
		Count   int64
		Revenue decimal.Decimal
	}
	err := r.db.WithContext(ctx).Model(&model.Sale{}).
		Select("COUNT(*) AS count, COALESCE(SUM(total), 0) AS revenue").
		Where("sold_at >= ? AND status = ?", since, "completed").
		Scan(&row).Error
	return row.Count, row.Revenue, err
}
