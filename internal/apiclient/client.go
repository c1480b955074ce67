// Package apiclient is the tablet's HTTP client for the sale server.
package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"clawpos/internal/apierror"
	"clawpos/internal/dto"
	"clawpos/internal/localstore"

	"resty.dev/v3"
)

// ErrUnauthorized means the saved token is missing, expired or revoked.
var ErrUnauthorized = errors.New("not authorized, log in again")

// StatusError is a non-2xx answer from the server.
type StatusError struct {
	Status int
	Detail string
	Fields map[string]string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Detail)
}

// Unauthorized reports a refused or expired token.
func (e *StatusError) Unauthorized() bool { return e.Status == http.StatusUnauthorized }

func (e *StatusError) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// Client talks to one server. It is safe for concurrent use.
type Client struct {
	http *resty.Client
}

// New creates a client for baseURL; timeout bounds every request.
func New(baseURL string, timeout time.Duration) *Client {
	rc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "clawpos-tablet")
	return &Client{http: rc}
}

// Close releases idle connections.
func (c *Client) Close() error { return c.http.Close() }

// SetAuthToken sets the bearer token sent with every request.
func (c *Client) SetAuthToken(token string) { c.http.SetAuthToken(token) }

// Ping checks that the server answers its health check. It is the
// connectivity prober.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// Probe satisfies connectivity.Prober.
func (c *Client) Probe(ctx context.Context) error { return c.Ping(ctx) }

// Login exchanges operator credentials for a token. It does not set it.
func (c *Client) Login(ctx context.Context, username, password string) (*dto.LoginResponse, error) {
	var out dto.LoginResponse
	body := dto.LoginRequest{Username: username, Password: password}
	if err := c.do(ctx, http.MethodPost, "/v1/auth/login", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchCatalog downloads the active products.
func (c *Client) FetchCatalog(ctx context.Context) ([]dto.ProductResponse, error) {
	var out dto.ProductListResponse
	if err := c.do(ctx, http.MethodGet, "/v1/products", nil, &out); err != nil {
		return nil, err
	}
	return out.Products, nil
}

// CreateSale uploads one sale. The server answers 201 the first time and 200
// with the stored sale when the client id is already known.
func (c *Client) CreateSale(ctx context.Context, sale localstore.Sale) (*dto.SaleResponse, error) {
	var out dto.SaleResponse
	if err := c.do(ctx, http.MethodPost, "/v1/sales", ToSaleRequest(sale), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SyncSales sends the batch in one bulk request. Results come back in
// request order, one per sale.
func (c *Client) SyncSales(ctx context.Context, sales []localstore.Sale) ([]dto.SyncResult, error) {
	req := dto.SyncBatchRequest{Sales: make([]dto.SaleRequest, 0, len(sales))}
	for _, s := range sales {
		req.Sales = append(req.Sales, ToSaleRequest(s))
	}
	var out dto.SyncBatchResponse
	if err := c.do(ctx, http.MethodPost, "/v1/sync/sales/bulk", req, &out); err != nil {
		return nil, err
	}
	if len(out.Results) != len(sales) {
		return out.Results, fmt.Errorf("bulk sync: %d results for %d sales", len(out.Results), len(sales))
	}
	return out.Results, nil
}

// ToSaleRequest converts a local sale to the wire payload.
func ToSaleRequest(s localstore.Sale) dto.SaleRequest {
	items := make([]dto.SaleItemRequest, 0, len(s.Items))
	for _, it := range s.Items {
		price := it.UnitPrice
		items = append(items, dto.SaleItemRequest{
			Product:   it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: &price,
		})
	}
	total := s.Total
	ts := s.CreatedAt
	return dto.SaleRequest{
		ClientID:      s.ClientID,
		Items:         items,
		PaymentMethod: s.PaymentMethod,
		Total:         &total,
		Timestamp:     &ts,
	}
}

// do runs one request. Success bodies decode into result, error bodies into
// the apierror envelope carried by the returned *StatusError.
func (c *Client) do(ctx context.Context, method, path string, body, result interface{}) error {
	var apiErr apierror.ValidationError
	req := c.http.R().SetContext(ctx).SetError(&apiErr)
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}
	res, err := req.Execute(method, path)
	if err != nil {
		return err
	}
	if res.IsError() {
		return &StatusError{Status: res.StatusCode(), Detail: apiErr.Detail, Fields: apiErr.Fields}
	}
	return nil
}
