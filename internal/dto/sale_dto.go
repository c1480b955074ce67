package dto

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Per-entry outcomes of the bulk ingest endpoint.
const (
	SyncStatusCreated       = "created"
	SyncStatusAlreadyExists = "already_exists"
	SyncStatusError         = "error"
)

// ─── Filter / List ──────────────────────────────────────────────────────────

// SaleFilter is bound from the query string of GET /v1/sales.
type SaleFilter struct {
	From          string `form:"from"`  // YYYY-MM-DD, inclusive
	To            string `form:"to"`    // YYYY-MM-DD, inclusive
	PaymentMethod string `form:"paymentMethod"`
	Page          int    `form:"page,default=1"   validate:"min=1"`
	Limit         int    `form:"limit,default=20" validate:"min=1,max=200"`
}

type SaleListResponse struct {
	Sales       []SaleResponse `json:"sales"`
	TotalSales  int64          `json:"totalSales"`
	TotalPages  int            `json:"totalPages"`
	CurrentPage int            `json:"currentPage"`
}

// ─── Request DTOs ────────────────────────────────────────────────────────────

type SaleItemRequest struct {
	Product  string `json:"product"  validate:"required,uuid"`
	Quantity int    `json:"quantity" validate:"required,min=1"`
	// UnitPrice is the price the tablet charged; the catalog price is used when absent.
	UnitPrice *decimal.Decimal `json:"unitPrice,omitempty" validate:"omitempty,min=0"`
}

// SaleRequest is one sale as sent by the tablet, either alone (POST /v1/sales)
// or inside a bulk sync batch.
type SaleRequest struct {
	ClientID      string            `json:"clientId"      validate:"omitempty,max=64"`
	Items         []SaleItemRequest `json:"items"         validate:"required,min=1,dive"`
	PaymentMethod string            `json:"paymentMethod" validate:"required,oneof=cash card upi digital_wallet coins"`
	// Total is computed on the tablet; when present it must match the items.
	Total     *decimal.Decimal `json:"total,omitempty"     validate:"omitempty,min=0"`
	Timestamp *time.Time       `json:"timestamp,omitempty"`
	Machine   *string          `json:"machine,omitempty"   validate:"omitempty,uuid"`
	// CustomerEmail: optional; when present a PDF receipt is mailed.
	CustomerEmail *string `json:"customerEmail,omitempty" validate:"omitempty,email"`
}

// SyncBatchRequest holds the queued offline sales of one tablet, in creation
// order, as the tablet sends them.
type SyncBatchRequest struct {
	Sales []SaleRequest `json:"sales" validate:"required,min=1"`
}

// SyncBatchEnvelope is how the server binds a bulk upload: entries stay raw
// and are decoded one by one, so a malformed sale only fails itself.
type SyncBatchEnvelope struct {
	Sales []json.RawMessage `json:"sales" validate:"required,min=1"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type SyncResult struct {
	ClientID   string `json:"clientId"`
	Status     string `json:"status"` // created | already_exists | error
	SaleNumber string `json:"saleNumber,omitempty"`
	Error      string `json:"error,omitempty"`
}

type SyncBatchResponse struct {
	Results []SyncResult `json:"results"`
	Message string       `json:"message"`
}

type SaleItemResponse struct {
	Product   string          `json:"product"`
	Name      string          `json:"name,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

type SaleResponse struct {
	ID            string             `json:"id"`
	SaleNumber    string             `json:"saleNumber"`
	ClientID      string             `json:"clientId"`
	Items         []SaleItemResponse `json:"items"`
	PaymentMethod string             `json:"paymentMethod"`
	Total         decimal.Decimal    `json:"total"`
	Cashier       string             `json:"cashier"`
	Machine       *string            `json:"machine,omitempty"`
	Timestamp     string             `json:"timestamp"`
	Status        string             `json:"status"`
	StockConflict bool               `json:"stockConflict"`
	SyncedAt      string             `json:"syncedAt"`
}

// SaleSummaryResponse aggregates today's completed sales.
type SaleSummaryResponse struct {
	TotalSales   int64           `json:"totalSales"`
	TotalRevenue decimal.Decimal `json:"totalRevenue"`
	AvgSaleValue decimal.Decimal `json:"avgSaleValue"`
}
