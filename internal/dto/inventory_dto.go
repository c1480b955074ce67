package dto

// MovementFilter is bound from the query string of GET /v1/inventory/movements.
type MovementFilter struct {
	Product string `form:"product" validate:"omitempty,uuid"`
	Type    string `form:"type"    validate:"omitempty,oneof=stock_in stock_out transfer adjustment sale"`
	Page    int    `form:"page,default=1"`
	Limit   int    `form:"limit,default=100"`
}

type StockMovementResponse struct {
	ID           string  `json:"id"`
	Product      string  `json:"product"`
	ProductName  string  `json:"productName,omitempty"`
	MovementType string  `json:"movementType"`
	Quantity     int     `json:"quantity"`
	StockBefore  int     `json:"stockBefore"`
	StockAfter   int     `json:"stockAfter"`
	FromLocation string  `json:"fromLocation"`
	ToLocation   string  `json:"toLocation"`
	Reason       string  `json:"reason"`
	Reference    *string `json:"reference,omitempty"`
	CreatedAt    string  `json:"createdAt"`
}

type StockMovementListResponse struct {
	Movements []StockMovementResponse `json:"movements"`
	Total     int64                   `json:"total"`
	Page      int                     `json:"page"`
	Limit     int                     `json:"limit"`
}
