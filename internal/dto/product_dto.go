package dto

import "github.com/shopspring/decimal"

type ProductResponse struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Price    decimal.Decimal `json:"price"`
	SKU      *string         `json:"sku,omitempty"`
	Active   bool            `json:"isActive"`
}

type ProductListResponse struct {
	Products []ProductResponse `json:"products"`
}
