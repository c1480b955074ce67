package handler

import (
	"errors"
	"net/http"

	"clawpos/internal/apierror"
	"clawpos/internal/dto"
	"clawpos/internal/middleware"
	"clawpos/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type SalesHandler struct{ svc service.SaleService }

func NewSalesHandler(svc service.SaleService) *SalesHandler { return &SalesHandler{svc: svc} }

// CreateSale godoc
// @Summary      Record one sale
// @Description  Immediate upload right after checkout. Idempotent by clientId: a repeat returns the existing sale with 200.
// @Tags         sales
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body dto.SaleRequest true "Sale"
// @Success      201  {object} dto.SaleResponse
// @Success      200  {object} dto.SaleResponse
// @Failure      400  {object} apierror.APIError
// @Router       /v1/sales [post]
func (h *SalesHandler) CreateSale(c *gin.Context) {
	var req dto.SaleRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, status, err := h.svc.CreateSale(c.Request.Context(), middleware.CallerID(c), req)
	switch {
	case errors.Is(err, service.ErrInvalidSale):
		c.JSON(http.StatusBadRequest, apierror.New(err.Error()))
	case err != nil:
		_ = c.Error(err)
	case status == dto.SyncStatusAlreadyExists:
		c.JSON(http.StatusOK, resp)
	default:
		c.JSON(http.StatusCreated, resp)
	}
}

// SyncSales godoc
// @Summary      Bulk upload of offline sales
// @Description  Ingests every queued sale independently, in order. Each result is created, already_exists or error; the batch itself never fails because of one entry.
// @Tags         sync
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body dto.SyncBatchRequest true "Queued sales"
// @Success      200  {object} dto.SyncBatchResponse
// @Failure      400  {object} apierror.APIError
// @Failure      422  {object} apierror.ValidationError
// @Router       /v1/sync/sales/bulk [post]
func (h *SalesHandler) SyncSales(c *gin.Context) {
	var req dto.SyncBatchEnvelope
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.SyncBatch(c.Request.Context(), middleware.CallerID(c), req.Sales)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListSales godoc
// @Summary      List sales
// @Tags         sales
// @Produce      json
// @Security     BearerAuth
// @Param        from          query string false "YYYY-MM-DD"
// @Param        to            query string false "YYYY-MM-DD"
// @Param        paymentMethod query string false "cash | card | upi | digital_wallet | coins | all"
// @Param        page          query int    false "Page (default 1)"
// @Param        limit         query int    false "Page size (default 20)"
// @Success      200 {object} dto.SaleListResponse
// @Router       /v1/sales [get]
func (h *SalesHandler) ListSales(c *gin.Context) {
	var filter dto.SaleFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New(err.Error()))
		return
	}
	if !validate(c, &filter) {
		return
	}
	resp, err := h.svc.ListSales(c.Request.Context(), filter)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetSale godoc
// @Summary      Get one sale
// @Tags         sales
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Sale UUID"
// @Success      200 {object} dto.SaleResponse
// @Failure      404 {object} apierror.APIError
// @Router       /v1/sales/{id} [get]
func (h *SalesHandler) GetSale(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	resp, err := h.svc.GetSale(c.Request.Context(), id)
	if errors.Is(err, service.ErrSaleNotFound) {
		c.JSON(http.StatusNotFound, apierror.New("Sale not found"))
		return
	}
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Receipt godoc
// @Summary      Download the PDF receipt of a sale
// @Tags         sales
// @Produce      application/pdf
// @Security     BearerAuth
// @Param        id path string true "Sale UUID"
// @Success      200 {file} binary
// @Failure      404 {object} apierror.APIError
// @Router       /v1/sales/{id}/receipt [get]
func (h *SalesHandler) Receipt(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	pdf, saleNumber, err := h.svc.Receipt(c.Request.Context(), id)
	if errors.Is(err, service.ErrSaleNotFound) {
		c.JSON(http.StatusNotFound, apierror.New("Sale not found"))
		return
	}
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.Header("Content-Disposition", `inline; filename="`+saleNumber+`.pdf"`)
	c.Data(http.StatusOK, "application/pdf", pdf)
}

// TodaySummary godoc
// @Summary      Today's sales count, revenue and average ticket
// @Tags         sales
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} dto.SaleSummaryResponse
// @Router       /v1/sales/summary/today [get]
func (h *SalesHandler) TodaySummary(c *gin.Context) {
	resp, err := h.svc.TodaySummary(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("Invalid ID"))
		return uuid.Nil, false
	}
	return id, true
}
