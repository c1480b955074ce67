package handler

import (
	"net/http"

	"clawpos/internal/apierror"
	"clawpos/internal/dto"
	"clawpos/internal/service"

	"github.com/gin-gonic/gin"
)

type InventoryHandler struct{ svc service.InventoryService }

func NewInventoryHandler(svc service.InventoryService) *InventoryHandler {
	return &InventoryHandler{svc: svc}
}

// ListMovements godoc
// @Summary      Stock movement audit trail
// @Tags         inventory
// @Produce      json
// @Security     BearerAuth
// @Param        product query string false "Product UUID"
// @Param        type    query string false "stock_in | stock_out | transfer | adjustment | sale"
// @Param        page    query int    false "Page (default 1)"
// @Param        limit   query int    false "Page size (default 100)"
// @Success      200 {object} dto.StockMovementListResponse
// @Failure      422 {object} apierror.ValidationError
// @Router       /v1/inventory/movements [get]
func (h *InventoryHandler) ListMovements(c *gin.Context) {
	var filter dto.MovementFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New(err.Error()))
		return
	}
	if !validate(c, &filter) {
		return
	}
	resp, err := h.svc.ListMovements(c.Request.Context(), filter)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
