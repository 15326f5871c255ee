// internal/service/payment/adapter/adapter.go
package adapter

import (
	"context"
	"errors"
	"fmt"

	"bloom-payments/internal/domain/customer"
	"bloom-payments/internal/domain/payment"
	"bloom-payments/internal/pkg/money"
	"bloom-payments/internal/provider"
)

// Txn identifies the transaction a tender belongs to. Leg is the tender's
// 1-based position in the checkout.
type Txn struct {
	ID         string
	Number     string
	CustomerID string
	Contact    customer.ContactInfo
	Leg        int
}

// Adapter executes one kind of tender. ProcessPayment never returns an error:
// every failure is encoded on the returned result.
type Adapter interface {
	Provider() payment.Provider
	Supports(req payment.PaymentMethodRequest) bool
	ProcessPayment(ctx context.Context, txn Txn, req payment.PaymentMethodRequest) payment.PaymentMethodResult
}

// Refunder reverses part or all of a previously captured tender. The returned
// result carries a negative amount.
type Refunder interface {
	RefundPayment(ctx context.Context, txn Txn, original payment.PaymentMethodResult, amount money.Money) payment.PaymentMethodResult
}

// CustomerLinker is the slice of the customer linker the card adapters need.
type CustomerLinker interface {
	GetOrCreate(ctx context.Context, p payment.Provider, customerID string, contact customer.ContactInfo) (string, error)
	WithRecovery(ctx context.Context, p payment.Provider, customerID string, contact customer.ContactInfo, op func(ctx context.Context, providerCustomerID string) error) error
}

// providerFailure maps an error from the provider layer onto a FAILED result.
func providerFailure(req payment.PaymentMethodRequest, p payment.Provider, err error) payment.PaymentMethodResult {
	if provider.IsConfigError(err) {
		return payment.Failed(req, p, payment.ErrorProvider, payment.CodeProviderNotConfigured, err.Error())
	}

	var apiErr *provider.APIError
	if errors.As(err, &apiErr) {
		return payment.Failed(req, p, apiErr.Kind(), apiErr.ResultCode(), apiErr.Message)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return payment.Failed(req, p, payment.ErrorNetwork, payment.CodeProviderTimeout, err.Error())
	}
	return payment.Failed(req, p, payment.ErrorSystem, payment.CodeProcessingError, err.Error())
}

func refundResult(original payment.PaymentMethodResult, amount money.Money, refundID string, receipt *payment.Receipt) payment.PaymentMethodResult {
	req := payment.PaymentMethodRequest{Type: original.Type, Amount: amount.Neg()}
	return payment.Captured(req, original.Provider, refundID, receipt)
}

func refundFailure(original payment.PaymentMethodResult, amount money.Money, err error) payment.PaymentMethodResult {
	req := payment.PaymentMethodRequest{Type: original.Type, Amount: amount.Neg()}
	return providerFailure(req, original.Provider, err)
}

// idempotencyKey is stable for one tender of one checkout, so two equal card
// legs in a split bill never share a key.
func idempotencyKey(txn Txn, req payment.PaymentMethodRequest, op string) string {
	return fmt.Sprintf("%s-%d-%s-%s-%d", txn.ID, txn.Leg, req.Type, op, req.Amount.Amount)
}
