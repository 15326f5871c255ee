// internal/service/payment/adapter/paypal.go
package adapter

import (
	"context"
	"strings"

	"bloom-payments/internal/domain/payment"
	"bloom-payments/internal/pkg/money"
	"bloom-payments/internal/provider"

	"go.uber.org/zap"
)

type PayPalClients interface {
	PayPalClient(ctx context.Context) (provider.PayPalAPI, error)
}

// PayPalAdapter captures orders the customer already approved in the PayPal flow.
type PayPalAdapter struct {
	clients PayPalClients
	logger  *zap.Logger
}

func NewPayPalAdapter(clients PayPalClients, logger *zap.Logger) *PayPalAdapter {
	return &PayPalAdapter{clients: clients, logger: logger}
}

func (a *PayPalAdapter) Provider() payment.Provider { return payment.ProviderPayPal }

func (a *PayPalAdapter) Supports(req payment.PaymentMethodRequest) bool {
	return req.Type == payment.MethodPayPal && (req.Provider == "" || req.Provider == payment.ProviderPayPal)
}

func (a *PayPalAdapter) ProcessPayment(ctx context.Context, txn Txn, req payment.PaymentMethodRequest) payment.PaymentMethodResult {
	if req.PayPal == nil || strings.TrimSpace(req.PayPal.OrderID) == "" {
		return payment.Failed(req, payment.ProviderPayPal, payment.ErrorValidation, payment.CodeMissingPayPalOrder, "paypal payment requires an order id")
	}

	api, err := a.clients.PayPalClient(ctx)
	if err != nil {
		return providerFailure(req, payment.ProviderPayPal, err)
	}

	capture, err := api.CaptureOrder(ctx, req.PayPal.OrderID)
	if err != nil {
		a.logger.Warn("paypal capture failed",
			zap.String("transaction_id", txn.ID),
			zap.String("order_id", req.PayPal.OrderID),
			zap.Error(err),
		)
		return payment.Failed(req, payment.ProviderPayPal, payment.ErrorProvider, payment.CodePayPalProcessing, err.Error())
	}
	if capture.Status != "COMPLETED" {
		return payment.Failed(req, payment.ProviderPayPal, payment.ErrorProvider, payment.CodePayPalProcessing,
			"paypal order not completed: "+capture.Status)
	}

	txID := capture.CaptureID
	if txID == "" {
		txID = capture.OrderID
	}
	return payment.Captured(req, payment.ProviderPayPal, txID, &payment.Receipt{Reference: req.PayPal.OrderID})
}

func (a *PayPalAdapter) RefundPayment(ctx context.Context, _ Txn, original payment.PaymentMethodResult, amount money.Money) payment.PaymentMethodResult {
	api, err := a.clients.PayPalClient(ctx)
	if err != nil {
		return refundFailure(original, amount, err)
	}

	refundID, err := api.RefundCapture(ctx, original.ProviderTransactionID, amount)
	if err != nil {
		return refundFailure(original, amount, err)
	}
	return refundResult(original, amount, refundID, &payment.Receipt{Reference: original.ProviderTransactionID})
}
