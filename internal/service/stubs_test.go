package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"clawpos/internal/dto"
	"clawpos/internal/model"
	"clawpos/internal/repository"
	"clawpos/internal/worker"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// ── Stubs ─────────────────────────────────────────────────────────────────────

// stubSaleRepo is an in-memory SaleRepository. It enforces client_id
// uniqueness on Create the way the unique index does.
type stubSaleRepo struct {
	mu       sync.Mutex
	sales    map[uuid.UUID]*model.Sale
	byClient map[string]*model.Sale
	seq      int
	// hideClientOnce makes the next FindByClientID miss, simulating a
	// concurrent upload that commits between lookup and insert.
	hideClientOnce bool
}

func newStubSaleRepo() *stubSaleRepo {
	return &stubSaleRepo{
		sales:    make(map[uuid.UUID]*model.Sale),
		byClient: make(map[string]*model.Sale),
	}
}

func (r *stubSaleRepo) Create(_ context.Context, _ *gorm.DB, s *model.Sale) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byClient[s.ClientID]; dup {
		return gorm.ErrDuplicatedKey
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.CreatedAt = time.Now()
	r.sales[s.ID] = s
	r.byClient[s.ClientID] = s
	return nil
}

func (r *stubSaleRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sales[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return s, nil
}

func (r *stubSaleRepo) FindByClientID(_ context.Context, clientID string) (*model.Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hideClientOnce {
		r.hideClientOnce = false
		return nil, gorm.ErrRecordNotFound
	}
	s, ok := r.byClient[clientID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return s, nil
}

func (r *stubSaleRepo) NextSaleNumber(_ context.Context, _ *gorm.DB) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	return fmt.Sprintf("SALE-%06d", r.seq), nil
}

func (r *stubSaleRepo) List(_ context.Context, _ dto.SaleFilter) ([]model.Sale, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Sale, 0, len(r.sales))
	for _, s := range r.sales {
		out = append(out, *s)
	}
	return out, int64(len(out)), nil
}

func (r *stubSaleRepo) SummarizeSince(_ context.Context, since time.Time) (int64, decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	sum := decimal.Zero
	for _, s := range r.sales {
		if !s.SoldAt.Before(since) {
			n++
			sum = sum.Add(s.Total)
		}
	}
	return n, sum, nil
}

func (r *stubSaleRepo) DB() *gorm.DB { return nil }

var _ repository.SaleRepository = (*stubSaleRepo)(nil)

type stubProductRepo struct {
	products map[uuid.UUID]*model.Product
}

func newStubProductRepo() *stubProductRepo {
	return &stubProductRepo{products: make(map[uuid.UUID]*model.Product)}
}

func (r *stubProductRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Product, error) {
	p, ok := r.products[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return p, nil
}

func (r *stubProductRepo) ListActive(_ context.Context) ([]model.Product, error) {
	var out []model.Product
	for _, p := range r.products {
		if p.Active {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *stubProductRepo) Create(_ context.Context, p *model.Product) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	r.products[p.ID] = p
	return nil
}

var _ repository.ProductRepository = (*stubProductRepo)(nil)

// stubInventoryRepo keeps one warehouse row per product.
type stubInventoryRepo struct {
	rows map[uuid.UUID]*model.Inventory // by product
}

func newStubInventoryRepo() *stubInventoryRepo {
	return &stubInventoryRepo{rows: make(map[uuid.UUID]*model.Inventory)}
}

func (r *stubInventoryRepo) FindWarehouseTx(_ *gorm.DB, productID uuid.UUID) (*model.Inventory, error) {
	inv, ok := r.rows[productID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *inv
	return &cp, nil
}

func (r *stubInventoryRepo) DecrementTx(_ *gorm.DB, id uuid.UUID, qty int, by uuid.UUID) (bool, error) {
	for _, inv := range r.rows {
		if inv.ID == id {
			if inv.CurrentStock < qty {
				return false, nil
			}
			inv.CurrentStock -= qty
			inv.UpdatedBy = &by
			return true, nil
		}
	}
	return false, nil
}

func (r *stubInventoryRepo) Create(_ context.Context, inv *model.Inventory) error {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	r.rows[inv.ProductID] = inv
	return nil
}

var _ repository.InventoryRepository = (*stubInventoryRepo)(nil)

type stubMovementRepo struct {
	created []model.StockMovement
}

func (r *stubMovementRepo) CreateTx(_ *gorm.DB, m *model.StockMovement) error {
	r.created = append(r.created, *m)
	return nil
}

func (r *stubMovementRepo) List(_ context.Context, f repository.StockMovementFilter) ([]model.StockMovement, int64, error) {
	var out []model.StockMovement
	for _, m := range r.created {
		if f.ProductID != nil && m.ProductID != *f.ProductID {
			continue
		}
		if f.Type != "" && m.MovementType != f.Type {
			continue
		}
		out = append(out, m)
	}
	return out, int64(len(out)), nil
}

var _ repository.StockMovementRepository = (*stubMovementRepo)(nil)

type stubJobs struct {
	alerts   []worker.LowStockAlertPayload
	receipts []worker.ReceiptJobPayload
}

func (j *stubJobs) EnqueueLowStockAlert(_ context.Context, p worker.LowStockAlertPayload) error {
	j.alerts = append(j.alerts, p)
	return nil
}

func (j *stubJobs) EnqueueReceipt(_ context.Context, p worker.ReceiptJobPayload) error {
	j.receipts = append(j.receipts, p)
	return nil
}

var _ JobEnqueuer = (*stubJobs)(nil)

// ── Fixture ───────────────────────────────────────────────────────────────────

type saleFixture struct {
	svc       SaleService
	sales     *stubSaleRepo
	products  *stubProductRepo
	inventory *stubInventoryRepo
	movements *stubMovementRepo
	jobs      *stubJobs
}

func newSaleFixture() *saleFixture {
	f := &saleFixture{
		sales:     newStubSaleRepo(),
		products:  newStubProductRepo(),
		inventory: newStubInventoryRepo(),
		movements: &stubMovementRepo{},
		jobs:      &stubJobs{},
	}
	inv := NewInventoryService(f.inventory, f.movements)
	f.svc = NewSaleService(f.sales, f.products, inv, f.jobs, "Claw Arcade")
	return f
}

// seedProduct adds an active product with a warehouse row holding stock units.
func (f *saleFixture) seedProduct(name string, price string, stock, minStock int) *model.Product {
	p := &model.Product{
		ID:       uuid.New(),
		Name:     name,
		Category: "plush_toy",
		Price:    decimal.RequireFromString(price),
		Active:   true,
	}
	_ = f.products.Create(context.Background(), p)
	_ = f.inventory.Create(context.Background(), &model.Inventory{
		ProductID:    p.ID,
		Location:     model.LocationWarehouse,
		CurrentStock: stock,
		MinStock:     minStock,
		MaxStock:     50,
	})
	return p
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func saleReq(clientID string, p *model.Product, qty int, unit, total string) dto.SaleRequest {
	return dto.SaleRequest{
		ClientID:      clientID,
		Items:         []dto.SaleItemRequest{{Product: p.ID.String(), Quantity: qty, UnitPrice: dec(unit)}},
		PaymentMethod: "cash",
		Total:         dec(total),
	}
}

// rawBatch encodes sales the way they arrive in a bulk upload body.
func rawBatch(t *testing.T, sales ...dto.SaleRequest) []json.RawMessage {
	t.Helper()
	out := make([]json.RawMessage, 0, len(sales))
	for _, s := range sales {
		b, err := json.Marshal(s)
		require.NoError(t, err)
		out = append(out, b)
	}
	return out
}
