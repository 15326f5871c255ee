// internal/handlers/transaction/transaction_handler.go
package transaction

import (
	"context"
	"net/http"
	"strings"

	"bloom-payments/internal/domain/payment"
	"bloom-payments/internal/middleware"
	"bloom-payments/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type Service interface {
	ProcessTransaction(ctx context.Context, req payment.TransactionRequest) (*payment.TransactionResult, error)
	GetTransaction(ctx context.Context, id string) (*payment.PaymentTransaction, error)
	SearchTransactions(ctx context.Context, c payment.SearchCriteria) ([]*payment.PaymentTransaction, int64, error)
	CreateRefund(ctx context.Context, originalID string, req payment.RefundRequest) (*payment.PaymentTransaction, error)
}

type TransactionHandler struct {
	transactionService Service
}

func NewTransactionHandler(transactionService Service) *TransactionHandler {
	return &TransactionHandler{
		transactionService: transactionService,
	}
}

// ProcessTransaction runs a checkout
func (h *TransactionHandler) ProcessTransaction(c *gin.Context) {
	var req payment.TransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	// The cashier on the token rings the sale unless the terminal says otherwise
	if req.EmployeeID == "" {
		req.EmployeeID, _ = middleware.GetEmployeeID(c)
	}
	if req.Channel == "" {
		req.Channel = payment.ChannelPOS
	}

	result, err := h.transactionService.ProcessTransaction(c.Request.Context(), req)
	if err != nil {
		// tenders may already be captured; the terminal needs to see which
		if result != nil {
			response.FromError(c, "failed to process transaction", err, result)
			return
		}
		response.FromError(c, "failed to process transaction", err)
		return
	}

	switch {
	case result.Success:
		response.Success(c, http.StatusCreated, "transaction completed", result)
	case result.TransactionID == "":
		response.Error(c, http.StatusBadRequest, "transaction rejected", nil, result)
	case result.Status == payment.StatusProcessing:
		response.Success(c, http.StatusAccepted, "transaction awaiting provider confirmation", result)
	default:
		response.Error(c, http.StatusPaymentRequired, "transaction failed", nil, result)
	}
}

// GetTransaction retrieves a transaction by ID
func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	txn, err := h.transactionService.GetTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, "transaction not found", err)
		return
	}

	response.Success(c, http.StatusOK, "transaction retrieved", txn)
}

// SearchTransactions lists transactions matching the query filters
func (h *TransactionHandler) SearchTransactions(c *gin.Context) {
	var criteria payment.SearchCriteria
	if err := c.ShouldBindQuery(&criteria); err != nil {
		response.ValidationError(c, "invalid query parameters", err)
		return
	}
	if criteria.Limit < 1 || criteria.Limit > maxPageSize {
		criteria.Limit = defaultPageSize
	}
	if criteria.Offset < 0 {
		criteria.Offset = 0
	}
	criteria.Number = strings.TrimSpace(criteria.Number)

	txns, total, err := h.transactionService.SearchTransactions(c.Request.Context(), criteria)
	if err != nil {
		response.FromError(c, "failed to search transactions", err)
		return
	}

	response.Success(c, http.StatusOK, "transactions retrieved", gin.H{
		"transactions": txns,
		"total":        total,
		"limit":        criteria.Limit,
		"offset":       criteria.Offset,
	})
}

// CreateRefund refunds part or all of a completed transaction
func (h *TransactionHandler) CreateRefund(c *gin.Context) {
	var req payment.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	refund, err := h.transactionService.CreateRefund(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.FromError(c, "failed to create refund", err)
		return
	}

	if refund.Status == payment.StatusFailed {
		response.Error(c, http.StatusBadGateway, "refund failed", nil, refund)
		return
	}
	response.Success(c, http.StatusCreated, "refund created", refund)
}
