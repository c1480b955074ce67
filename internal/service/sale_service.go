package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"clawpos/internal/dto"
	"clawpos/internal/infra"
	"clawpos/internal/model"
	"clawpos/internal/repository"
	"clawpos/internal/worker"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	// ErrInvalidSale marks a sale the server will never accept as sent
	// (bad payload, unknown product, total mismatch). Maps to 400.
	ErrInvalidSale = errors.New("invalid sale")
	// ErrSaleNotFound is returned by lookups on an unknown sale id.
	ErrSaleNotFound = errors.New("sale not found")
)

// totalTolerance is the largest accepted gap between the client total and
// Σ unitPrice × quantity.
var totalTolerance = decimal.RequireFromString("0.01")

// JobEnqueuer is the subset of worker.Dispatcher used after a sale commits.
type JobEnqueuer interface {
	EnqueueLowStockAlert(ctx context.Context, p worker.LowStockAlertPayload) error
	EnqueueReceipt(ctx context.Context, p worker.ReceiptJobPayload) error
}

type SaleService interface {
	// CreateSale ingests one sale and reports whether it was created or
	// already existed.
	CreateSale(ctx context.Context, cashierID uuid.UUID, req dto.SaleRequest) (*dto.SaleResponse, string, error)
	// SyncBatch ingests raw bulk entries in order; each one is decoded on its own.
	SyncBatch(ctx context.Context, cashierID uuid.UUID, entries []json.RawMessage) (*dto.SyncBatchResponse, error)
	ListSales(ctx context.Context, filter dto.SaleFilter) (*dto.SaleListResponse, error)
	GetSale(ctx context.Context, id uuid.UUID) (*dto.SaleResponse, error)
	TodaySummary(ctx context.Context) (*dto.SaleSummaryResponse, error)
	// Receipt renders the PDF receipt and returns it with the sale number.
	Receipt(ctx context.Context, id uuid.UUID) ([]byte, string, error)
}

type saleService struct {
	repo        repository.SaleRepository
	productRepo repository.ProductRepository
	inventory   InventoryService
	jobs        JobEnqueuer
	storeName   string
	now         func() time.Time
}

func NewSaleService(
	repo repository.SaleRepository,
	productRepo repository.ProductRepository,
	inventory InventoryService,
	jobs JobEnqueuer,
	storeName string,
) SaleService {
	return &saleService{
		repo:        repo,
		productRepo: productRepo,
		inventory:   inventory,
		jobs:        jobs,
		storeName:   storeName,
		now:         time.Now,
	}
}

// runTx executes fn inside a GORM transaction when db is available,
// or calls fn(nil) directly when db is nil (unit test mode).
func runTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	if db == nil {
		return fn(nil)
	}
	return db.WithContext(ctx).Transaction(fn)
}

// ── CreateSale ────────────────────────────────────────────────────────────────

func (s *saleService) CreateSale(ctx context.Context, cashierID uuid.UUID, req dto.SaleRequest) (*dto.SaleResponse, string, error) {
	if strings.TrimSpace(req.ClientID) == "" {
		req.ClientID = uuid.NewString()
	}
	res, sale, err := s.ingest(ctx, cashierID, req)
	if err != nil {
		return nil, res.Status, err
	}
	if res.Status == dto.SyncStatusAlreadyExists {
		// Reload with items so the caller gets the full canonical record
		if full, ferr := s.repo.FindByID(ctx, sale.ID); ferr == nil {
			sale = full
		}
	}
	return saleToResponse(sale), res.Status, nil
}

// ── SyncBatch ─────────────────────────────────────────────────────────────────
// Every entry is processed independently and in order: one bad sale yields an
// error result for itself and never aborts its siblings.

func (s *saleService) SyncBatch(ctx context.Context, cashierID uuid.UUID, entries []json.RawMessage) (*dto.SyncBatchResponse, error) {
	results := make([]dto.SyncResult, 0, len(entries))
	for _, raw := range entries {
		var entry dto.SaleRequest
		if err := json.Unmarshal(raw, &entry); err != nil {
			results = append(results, dto.SyncResult{
				ClientID: clientIDOf(raw),
				Status:   dto.SyncStatusError,
				Error:    "malformed sale: " + err.Error(),
			})
			continue
		}
		if strings.TrimSpace(entry.ClientID) == "" {
			results = append(results, dto.SyncResult{Status: dto.SyncStatusError, Error: "clientId is required"})
			continue
		}
		res, _, err := s.ingest(ctx, cashierID, entry)
		if err != nil {
			res.Error = err.Error()
		}
		results = append(results, res)
	}
	return &dto.SyncBatchResponse{
		Results: results,
		Message: fmt.Sprintf("Processed %d sales", len(entries)),
	}, nil
}

// clientIDOf pulls the clientId out of an entry that failed to decode as a
// sale, or "" when even that is impossible.
func clientIDOf(raw json.RawMessage) string {
	var head struct {
		ClientID string `json:"clientId"`
	}
	_ = json.Unmarshal(raw, &head)
	return head.ClientID
}

// ── ingest ────────────────────────────────────────────────────────────────────
// Shared by the single and bulk paths:
//   1. client_id already known → already_exists, no side effects
//   2. validate and price items against the catalog
//   3. one TX: nextval sale number, inventory effects, insert sale
//   4. unique violation on client_id (concurrent duplicate) → already_exists
//   5. after commit: low-stock alerts and receipt e-mail, best effort

func (s *saleService) ingest(ctx context.Context, cashierID uuid.UUID, req dto.SaleRequest) (dto.SyncResult, *model.Sale, error) {
	res := dto.SyncResult{ClientID: req.ClientID, Status: dto.SyncStatusError}

	if err := dto.Validate.Struct(req); err != nil {
		return res, nil, fmt.Errorf("%w: %s", ErrInvalidSale, describeFields(dto.FieldErrors(err)))
	}

	if existing, err := s.repo.FindByClientID(ctx, req.ClientID); err == nil {
		res.Status = dto.SyncStatusAlreadyExists
		res.SaleNumber = existing.SaleNumber
		return res, existing, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Error().Err(err).Str("client_id", req.ClientID).Msg("sale lookup failed")
		return res, nil, errors.New("storage error, retry later")
	}

	sale, err := s.buildSale(ctx, cashierID, req)
	if err != nil {
		return res, nil, err
	}

	var lowStock []worker.LowStockAlertPayload
	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		num, err := s.repo.NextSaleNumber(ctx, tx)
		if err != nil {
			return err
		}
		sale.SaleNumber = num

		lowStock, err = s.inventory.ApplySaleTx(ctx, tx, sale, cashierID)
		if err != nil {
			return err
		}
		return s.repo.Create(ctx, tx, sale)
	})
	if errors.Is(txErr, gorm.ErrDuplicatedKey) {
		// Lost the race against a concurrent upload of the same sale
		if existing, err := s.repo.FindByClientID(ctx, req.ClientID); err == nil {
			res.Status = dto.SyncStatusAlreadyExists
			res.SaleNumber = existing.SaleNumber
			return res, existing, nil
		}
	}
	if txErr != nil {
		log.Error().Err(txErr).Str("client_id", req.ClientID).Msg("sale ingest failed")
		return res, nil, errors.New("storage error, retry later")
	}

	log.Info().
		Str("client_id", sale.ClientID).
		Str("sale_number", sale.SaleNumber).
		Str("total", sale.Total.StringFixed(2)).
		Bool("stock_conflict", sale.StockConflict).
		Msg("sale recorded")

	s.afterCommit(ctx, sale, lowStock)

	res.Status = dto.SyncStatusCreated
	res.SaleNumber = sale.SaleNumber
	return res, sale, nil
}

// buildSale resolves products and enforces total == Σ unitPrice × quantity.
// The client unit price wins when present: offline sales are recorded at the
// price the customer paid, even if the catalog changed since.
func (s *saleService) buildSale(ctx context.Context, cashierID uuid.UUID, req dto.SaleRequest) (*model.Sale, error) {
	sale := &model.Sale{
		ID:            uuid.New(),
		ClientID:      req.ClientID,
		PaymentMethod: req.PaymentMethod,
		CashierID:     cashierID,
		SoldAt:        s.now(),
		Status:        "completed",
		CustomerEmail: req.CustomerEmail,
	}
	if req.Timestamp != nil && !req.Timestamp.IsZero() {
		sale.SoldAt = *req.Timestamp
	}
	if req.Machine != nil {
		mid, err := uuid.Parse(*req.Machine)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid machine id", ErrInvalidSale)
		}
		sale.MachineID = &mid
	}

	sum := decimal.Zero
	for _, item := range req.Items {
		pid, err := uuid.Parse(item.Product)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid product id %q", ErrInvalidSale, item.Product)
		}
		p, err := s.productRepo.FindByID(ctx, pid)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: product %s not found", ErrInvalidSale, item.Product)
		}
		if err != nil {
			log.Error().Err(err).Str("product_id", item.Product).Msg("product lookup failed")
			return nil, errors.New("storage error, retry later")
		}

		// prices are stored with two decimals; the line is computed from the
		// stored unit so items always add up to the total
		unit := p.Price.Round(2)
		if item.UnitPrice != nil {
			unit = item.UnitPrice.Round(2)
		}
		line := unit.Mul(decimal.NewFromInt(int64(item.Quantity)))
		sum = sum.Add(line)
		sale.Items = append(sale.Items, model.SaleItem{
			ID:        uuid.New(),
			SaleID:    sale.ID,
			ProductID: pid,
			Quantity:  item.Quantity,
			UnitPrice: unit,
			LineTotal: line,
			Product:   p,
		})
	}

	if req.Total != nil && req.Total.Sub(sum).Abs().GreaterThan(totalTolerance) {
		return nil, fmt.Errorf("%w: total mismatch (sent %s, items add up to %s)",
			ErrInvalidSale, req.Total.StringFixed(2), sum.StringFixed(2))
	}
	sale.Total = sum
	return sale, nil
}

func (s *saleService) afterCommit(ctx context.Context, sale *model.Sale, lowStock []worker.LowStockAlertPayload) {
	if s.jobs == nil {
		return
	}
	for _, alert := range lowStock {
		if err := s.jobs.EnqueueLowStockAlert(ctx, alert); err != nil {
			log.Warn().Err(err).Str("product_id", alert.ProductID).Msg("failed to enqueue low stock alert")
		}
	}
	if sale.CustomerEmail != nil && *sale.CustomerEmail != "" {
		job := worker.ReceiptJobPayload{SaleID: sale.ID.String(), ToEmail: *sale.CustomerEmail}
		if err := s.jobs.EnqueueReceipt(ctx, job); err != nil {
			log.Warn().Err(err).Str("sale_number", sale.SaleNumber).Msg("failed to enqueue receipt")
		}
	}
}

// ── Reads ─────────────────────────────────────────────────────────────────────

func (s *saleService) ListSales(ctx context.Context, filter dto.SaleFilter) (*dto.SaleListResponse, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 || filter.Limit > 200 {
		filter.Limit = 20
	}
	sales, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	resp := &dto.SaleListResponse{
		Sales:       make([]dto.SaleResponse, 0, len(sales)),
		TotalSales:  total,
		TotalPages:  int(math.Ceil(float64(total) / float64(filter.Limit))),
		CurrentPage: filter.Page,
	}
	for i := range sales {
		resp.Sales = append(resp.Sales, *saleToResponse(&sales[i]))
	}
	return resp, nil
}

func (s *saleService) GetSale(ctx context.Context, id uuid.UUID) (*dto.SaleResponse, error) {
	sale, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSaleNotFound
	}
	if err != nil {
		return nil, err
	}
	return saleToResponse(sale), nil
}

func (s *saleService) TodaySummary(ctx context.Context) (*dto.SaleSummaryResponse, error) {
	now := s.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	count, revenue, err := s.repo.SummarizeSince(ctx, midnight)
	if err != nil {
		return nil, err
	}
	avg := decimal.Zero
	if count > 0 {
		avg = revenue.Div(decimal.NewFromInt(count)).Round(2)
	}
	return &dto.SaleSummaryResponse{TotalSales: count, TotalRevenue: revenue, AvgSaleValue: avg}, nil
}

func (s *saleService) Receipt(ctx context.Context, id uuid.UUID) ([]byte, string, error) {
	sale, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", ErrSaleNotFound
	}
	if err != nil {
		return nil, "", err
	}
	pdf, err := infra.RenderReceiptPDF(sale, s.storeName)
	if err != nil {
		return nil, "", err
	}
	return pdf, sale.SaleNumber, nil
}

// ── Mapping ───────────────────────────────────────────────────────────────────

func saleToResponse(s *model.Sale) *dto.SaleResponse {
	resp := &dto.SaleResponse{
		ID:            s.ID.String(),
		SaleNumber:    s.SaleNumber,
		ClientID:      s.ClientID,
		Items:         make([]dto.SaleItemResponse, 0, len(s.Items)),
		PaymentMethod: s.PaymentMethod,
		Total:         s.Total,
		Cashier:       s.CashierID.String(),
		Timestamp:     s.SoldAt.UTC().Format(time.RFC3339),
		Status:        s.Status,
		StockConflict: s.StockConflict,
	}
	if !s.CreatedAt.IsZero() {
		resp.SyncedAt = s.CreatedAt.UTC().Format(time.RFC3339)
	}
	if s.MachineID != nil {
		mid := s.MachineID.String()
		resp.Machine = &mid
	}
	for _, it := range s.Items {
		item := dto.SaleItemResponse{
			Product:   it.ProductID.String(),
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			LineTotal: it.LineTotal,
		}
		if it.Product != nil {
			item.Name = it.Product.Name
		}
		resp.Items = append(resp.Items, item)
	}
	return resp
}

func describeFields(fields map[string]string) string {
	if len(fields) == 0 {
		return "malformed sale"
	}
	parts := make([]string, 0, len(fields))
	for f, tag := range fields {
		parts = append(parts, f+" failed "+tag)
	}
	// map order is random; keep messages stable for the tablet log
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}
