// internal/handlers/order/order_handler.go
package order

import (
	"context"
	"net/http"

	"bloom-payments/internal/domain/order"
	"bloom-payments/internal/pkg/response"
	"bloom-payments/internal/service/orderpayment"

	"github.com/gin-gonic/gin"
)

type SettlementReader interface {
	Settlements(ctx context.Context, orderIDs []string) (map[string]*order.Settlement, error)
}

type OrderHandler struct {
	settlements SettlementReader
}

func NewOrderHandler(settlements SettlementReader) *OrderHandler {
	return &OrderHandler{settlements: settlements}
}

// CheckAdjustment tells the editor whether a changed order total needs a charge or refund
func (h *OrderHandler) CheckAdjustment(c *gin.Context) {
	var req order.AdjustmentCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	check, err := orderpayment.CheckAdjustment(req.OldTotal, req.NewTotal)
	if err != nil {
		response.ValidationError(c, "totals must share a currency", err)
		return
	}

	response.Success(c, http.StatusOK, "adjustment checked", check)
}

// GetSettlement reports what has been collected and refunded against an order
func (h *OrderHandler) GetSettlement(c *gin.Context) {
	id := c.Param("id")

	settlements, err := h.settlements.Settlements(c.Request.Context(), []string{id})
	if err != nil {
		response.FromError(c, "failed to load order settlement", err)
		return
	}

	st, ok := settlements[id]
	if !ok {
		response.NotFound(c, "order not found")
		return
	}

	response.Success(c, http.StatusOK, "order settlement retrieved", gin.H{
		"settlement":     st,
		"payment_status": orderpayment.Status(st),
	})
}
