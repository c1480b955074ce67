package localstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CachedProduct is the device copy of a catalog entry, used to price sales
// while offline.
type CachedProduct struct {
	ID       string          `gorm:"primaryKey"`
	Name     string          `gorm:"not null"`
	Category string
	Price    decimal.Decimal `gorm:"type:text;not null"`
	SKU      string
	Active   bool
	CachedAt time.Time
}

func (CachedProduct) TableName() string { return "cached_products" }

// DeviceSession is the single logged-in operator of the tablet.
type DeviceSession struct {
	ID        uint `gorm:"primaryKey"`
	UserID    string
	Username  string
	Role      string
	Token     string
	ExpiresAt time.Time
	SavedAt   time.Time
}

func (DeviceSession) TableName() string { return "device_sessions" }

const sessionRowID = 1

// SaveProducts replaces the cached catalog with products.
func (s *Store) SaveProducts(ctx context.Context, products []CachedProduct) error {
	now := s.now().UTC()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&CachedProduct{}).Error; err != nil {
			return err
		}
		if len(products) == 0 {
			return nil
		}
		for i := range products {
			products[i].CachedAt = now
		}
		return tx.CreateInBatches(products, 100).Error
	})
	if err != nil {
		return fmt.Errorf("%w: save products: %v", ErrStorage, err)
	}
	return nil
}

// Products returns the cached active catalog ordered by name.
func (s *Store) Products(ctx context.Context) ([]CachedProduct, error) {
	var out []CachedProduct
	if err := s.db.WithContext(ctx).Where("active = ?", true).Order("name ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("%w: list products: %v", ErrStorage, err)
	}
	return out, nil
}

// Product looks up one cached product; found is false when it is not cached.
func (s *Store) Product(ctx context.Context, id string) (p CachedProduct, found bool, err error) {
	err = s.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return p, false, nil
	}
	if err != nil {
		return p, false, fmt.Errorf("%w: find product: %v", ErrStorage, err)
	}
	return p, true, nil
}

// SaveSession stores the operator session, replacing any previous one.
func (s *Store) SaveSession(ctx context.Context, sess DeviceSession) error {
	sess.ID = sessionRowID
	sess.SavedAt = s.now().UTC()
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&sess).Error
	if err != nil {
		return fmt.Errorf("%w: save session: %v", ErrStorage, err)
	}
	return nil
}

// Session returns the saved session, or nil when nobody is logged in.
func (s *Store) Session(ctx context.Context) (*DeviceSession, error) {
	var sess DeviceSession
	err := s.db.WithContext(ctx).First(&sess, sessionRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load session: %v", ErrStorage, err)
	}
	return &sess, nil
}

// ClearSession logs the operator out. Unsynced sales stay.
func (s *Store) ClearSession(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Delete(&DeviceSession{}, sessionRowID).Error; err != nil {
		return fmt.Errorf("%w: clear session: %v", ErrStorage, err)
	}
	return nil
}
