// Package localstore is the tablet's durable record of sales, catalog and
// operator session. Sales are written here first, always; the sync engine
// later drains the unsynced ones to the server.
package localstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrStorage wraps every failure of the underlying database.
	ErrStorage = errors.New("local storage failure")
	// ErrSaleNotFound is returned by MarkSynced for an unknown client id.
	ErrSaleNotFound = errors.New("local sale not found")
	// ErrInvalidSale rejects a sale before anything is written.
	ErrInvalidSale = errors.New("invalid sale")
)

var paymentMethods = map[string]bool{
	"cash": true, "card": true, "upi": true, "digital_wallet": true, "coins": true,
}

// Item is one line of a local sale. Name is kept so receipts and listings
// work without the catalog.
type Item struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// Sale is the device copy of a checkout.
type Sale struct {
	LocalID       uint            `gorm:"primaryKey;autoIncrement"`
	ClientID      string          `gorm:"uniqueIndex;not null"`
	Items         []Item          `gorm:"serializer:json;not null"`
	PaymentMethod string          `gorm:"not null"`
	Total         decimal.Decimal `gorm:"type:text;not null"`
	Cashier       string          `gorm:"not null"`
	CreatedAt     time.Time       `gorm:"not null"`
	Synced        bool            `gorm:"not null;default:false;index"`
	SaleNumber    string
	SyncedAt      *time.Time
}

func (Sale) TableName() string { return "local_sales" }

// NewSale is what the checkout screen hands over.
type NewSale struct {
	Items         []Item
	PaymentMethod string
	Total         decimal.Decimal
	Cashier       string
}

// Store wraps the SQLite database of one device.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and migrates it.
// ":memory:" gives a private in-memory store.
func Open(path string) (*Store, error) {
	dsn := path + "?_busy_timeout=5000&_journal_mode=WAL"
	if path == ":memory:" {
		// named per store so two in-memory stores never share data
		dsn = "file:" + uuid.NewString() + "?mode=memory&cache=shared&_busy_timeout=5000"
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrStorage, path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	// SQLite serialises writers anyway
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Sale{}, &CachedProduct{}, &DeviceSession{}); err != nil {
		return nil, fmt.Errorf("%w: migrate: %v", ErrStorage, err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateSale validates and persists a new unsynced sale with a fresh client id.
// It never touches the network.
func (s *Store) CreateSale(ctx context.Context, ns NewSale) (*Sale, error) {
	if err := validateNewSale(ns); err != nil {
		return nil, err
	}
	sale := &Sale{
		ClientID:      uuid.NewString(),
		Items:         ns.Items,
		PaymentMethod: ns.PaymentMethod,
		Total:         ns.Total,
		Cashier:       ns.Cashier,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(sale).Error; err != nil {
		return nil, fmt.Errorf("%w: insert sale: %v", ErrStorage, err)
	}
	return sale, nil
}

func validateNewSale(ns NewSale) error {
	if len(ns.Items) == 0 {
		return fmt.Errorf("%w: no items", ErrInvalidSale)
	}
	if !paymentMethods[ns.PaymentMethod] {
		return fmt.Errorf("%w: unknown payment method %q", ErrInvalidSale, ns.PaymentMethod)
	}
	sum := decimal.Zero
	for _, it := range ns.Items {
		if it.ProductID == "" {
			return fmt.Errorf("%w: item without product", ErrInvalidSale)
		}
		if it.Quantity < 1 {
			return fmt.Errorf("%w: quantity must be at least 1", ErrInvalidSale)
		}
		if it.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: negative unit price", ErrInvalidSale)
		}
		sum = sum.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	if !sum.Round(2).Equal(ns.Total.Round(2)) {
		return fmt.Errorf("%w: total %s does not match items (%s)", ErrInvalidSale, ns.Total.StringFixed(2), sum.StringFixed(2))
	}
	return nil
}

// ListUnsyncedSales returns every unsynced sale in creation order.
func (s *Store) ListUnsyncedSales(ctx context.Context) ([]Sale, error) {
	var sales []Sale
	if err := s.db.WithContext(ctx).Where("synced = ?", false).Order("local_id ASC").Find(&sales).Error; err != nil {
		return nil, fmt.Errorf("%w: list unsynced: %v", ErrStorage, err)
	}
	return sales, nil
}

// ListSales returns the most recent sales first, synced or not.
func (s *Store) ListSales(ctx context.Context, limit int) ([]Sale, error) {
	if limit <= 0 {
		limit = 50
	}
	var sales []Sale
	if err := s.db.WithContext(ctx).Order("local_id DESC").Limit(limit).Find(&sales).Error; err != nil {
		return nil, fmt.Errorf("%w: list sales: %v", ErrStorage, err)
	}
	return sales, nil
}

// MarkSynced flags the sale as acknowledged by the server. Marking an already
// synced sale is a no-op; its first sale number is kept.
func (s *Store) MarkSynced(ctx context.Context, clientID, saleNumber string) error {
	var sale Sale
	err := s.db.WithContext(ctx).Where("client_id = ?", clientID).First(&sale).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrSaleNotFound, clientID)
	}
	if err != nil {
		return fmt.Errorf("%w: find sale: %v", ErrStorage, err)
	}
	if sale.Synced {
		return nil
	}

	now := s.now().UTC()
	updates := map[string]interface{}{"synced": true, "synced_at": now}
	if saleNumber != "" {
		updates["sale_number"] = saleNumber
	}
	err = s.db.WithContext(ctx).Model(&Sale{}).
		Where("local_id = ? AND synced = ?", sale.LocalID, false).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("%w: mark synced: %v", ErrStorage, err)
	}
	return nil
}

// Count returns the number of sales ever recorded on this device.
func (s *Store) Count(ctx context.Context) (int64, error) {
	return s.count(ctx, s.db.WithContext(ctx).Model(&Sale{}))
}

// CountUnsynced returns how many sales still wait for upload.
func (s *Store) CountUnsynced(ctx context.Context) (int64, error) {
	return s.count(ctx, s.db.WithContext(ctx).Model(&Sale{}).Where("synced = ?", false))
}

func (s *Store) count(_ context.Context, q *gorm.DB) (int64, error) {
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("%w: count: %v", ErrStorage, err)
	}
	return n, nil
}
