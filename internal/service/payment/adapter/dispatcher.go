// internal/service/payment/adapter/dispatcher.go
package adapter

import (
	"context"
	"fmt"

	"bloom-payments/internal/domain/payment"
	"bloom-payments/internal/pkg/money"

	"go.uber.org/zap"
)

// Dispatcher routes each tender to the first registered adapter that accepts it.
// Registration order is the routing priority.
type Dispatcher struct {
	adapters []Adapter
	logger   *zap.Logger
}

func NewDispatcher(logger *zap.Logger, adapters ...Adapter) *Dispatcher {
	return &Dispatcher{adapters: adapters, logger: logger}
}

// Resolve picks the adapter for req. An explicit provider on the request
// restricts the search to that provider.
func (d *Dispatcher) Resolve(req payment.PaymentMethodRequest) (Adapter, bool) {
	for _, a := range d.adapters {
		if req.Provider != "" && a.Provider() != req.Provider {
			continue
		}
		if a.Supports(req) {
			return a, true
		}
	}
	return nil, false
}

// Dispatch executes req. It always returns a result; adapter panics are
// converted into SYSTEM_ERROR failures.
func (d *Dispatcher) Dispatch(ctx context.Context, txn Txn, req payment.PaymentMethodRequest) (result payment.PaymentMethodResult) {
	a, ok := d.Resolve(req)
	if !ok {
		d.logger.Warn("no adapter for payment method",
			zap.String("transaction_id", txn.ID),
			zap.String("type", string(req.Type)),
			zap.String("provider", string(req.Provider)),
		)
		return payment.Failed(req, req.Provider, payment.ErrorProvider, payment.CodeUnsupportedMethod,
			fmt.Sprintf("payment method %s is not supported", req.Type))
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("payment adapter panicked",
				zap.String("transaction_id", txn.ID),
				zap.String("provider", string(a.Provider())),
				zap.Any("panic", r),
			)
			result = payment.Failed(req, a.Provider(), payment.ErrorSystem, payment.CodeSystemError, "payment processing failed unexpectedly")
		}
	}()

	result = a.ProcessPayment(ctx, txn, req)
	if result.Provider == "" {
		result.Provider = a.Provider()
	}
	return result
}

// Refund reverses amount of a captured tender through the adapter that took it.
func (d *Dispatcher) Refund(ctx context.Context, txn Txn, original payment.PaymentMethodResult, amount money.Money) (result payment.PaymentMethodResult) {
	probe := payment.PaymentMethodRequest{Type: original.Type, Provider: original.Provider, Amount: amount}

	var refunder Refunder
	for _, a := range d.adapters {
		if a.Provider() != original.Provider || !a.Supports(probe) {
			continue
		}
		if r, ok := a.(Refunder); ok {
			refunder = r
			break
		}
	}
	if refunder == nil {
		return payment.Failed(payment.PaymentMethodRequest{Type: original.Type, Amount: amount.Neg()}, original.Provider,
			payment.ErrorProvider, payment.CodeUnsupportedMethod, fmt.Sprintf("%s payments cannot be refunded", original.Provider))
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("refund adapter panicked", zap.String("transaction_id", txn.ID), zap.Any("panic", r))
			result = payment.Failed(payment.PaymentMethodRequest{Type: original.Type, Amount: amount.Neg()}, original.Provider,
				payment.ErrorSystem, payment.CodeSystemError, "refund failed unexpectedly")
		}
	}()

	return refunder.RefundPayment(ctx, txn, original, amount)
}
