// internal/service/payment/adapter/offline.go
package adapter

import (
	"context"
	"fmt"
	"strings"

	"bloom-payments/internal/domain/payment"
	"bloom-payments/internal/pkg/money"
)

// OfflineAdapter records tenders handled outside any provider: cash, checks,
// house accounts, COD and named offline methods.
type OfflineAdapter struct{}

func NewOfflineAdapter() *OfflineAdapter {
	return &OfflineAdapter{}
}

func (a *OfflineAdapter) Provider() payment.Provider { return payment.ProviderInternal }

func (a *OfflineAdapter) Supports(req payment.PaymentMethodRequest) bool {
	if req.Provider != "" && req.Provider != payment.ProviderInternal {
		return false
	}
	switch req.Type {
	case payment.MethodCash, payment.MethodCheck, payment.MethodHouseAccount, payment.MethodCOD, payment.MethodOffline:
		return true
	}
	return false
}

func (a *OfflineAdapter) ProcessPayment(_ context.Context, txn Txn, req payment.PaymentMethodRequest) payment.PaymentMethodResult {
	switch req.Type {
	case payment.MethodCash:
		return a.cash(txn, req)
	case payment.MethodCheck:
		receipt := &payment.Receipt{ReceiptNumber: receiptNumber("CHECK", txn)}
		if req.Check != nil {
			receipt.CheckNumber = req.Check.CheckNumber
		}
		return payment.Captured(req, payment.ProviderInternal, receipt.ReceiptNumber, receipt)
	case payment.MethodHouseAccount:
		receipt := &payment.Receipt{ReceiptNumber: receiptNumber("HOUSE", txn)}
		if req.HouseAccount != nil {
			receipt.AccountReference = req.HouseAccount.AccountReference
		}
		return payment.Captured(req, payment.ProviderInternal, receipt.ReceiptNumber, receipt)
	case payment.MethodCOD:
		// settled on delivery, outside this service
		return payment.Pending(req, payment.ProviderInternal, "", &payment.Receipt{ReceiptNumber: receiptNumber("COD", txn)})
	case payment.MethodOffline:
		if req.Offline == nil || strings.TrimSpace(req.Offline.MethodName) == "" {
			return payment.Failed(req, payment.ProviderInternal, payment.ErrorValidation, payment.CodeInvalidPaymentMethod, "offline payment requires a method name")
		}
		receipt := &payment.Receipt{
			ReceiptNumber: receiptNumber("OFFLINE", txn),
			Reference:     strings.TrimSpace(req.Offline.MethodName + " " + req.Offline.Reference),
		}
		return payment.Captured(req, payment.ProviderInternal, receipt.ReceiptNumber, receipt)
	}
	return payment.Failed(req, payment.ProviderInternal, payment.ErrorProvider, payment.CodeUnsupportedMethod,
		fmt.Sprintf("payment method %s is not handled offline", req.Type))
}

func (a *OfflineAdapter) cash(txn Txn, req payment.PaymentMethodRequest) payment.PaymentMethodResult {
	// nothing tendered means zero, never exact change
	tendered := money.Zero(req.Amount.Currency)
	if req.Cash != nil {
		tendered = req.Cash.AmountTendered
		if tendered.Currency == "" {
			tendered.Currency = req.Amount.Currency
		}
	}

	change, err := tendered.Sub(req.Amount)
	if err != nil {
		return payment.Failed(req, payment.ProviderInternal, payment.ErrorValidation, payment.CodeInvalidPaymentMethod, err.Error())
	}
	if change.IsNegative() {
		return payment.Failed(req, payment.ProviderInternal, payment.ErrorValidation, payment.CodeInsufficientCash,
			fmt.Sprintf("cash tendered %s is less than %s", tendered, req.Amount))
	}

	receipt := &payment.Receipt{
		ReceiptNumber:  receiptNumber("CASH", txn),
		AmountTendered: &tendered,
		ChangeDue:      &change,
	}
	return payment.Captured(req, payment.ProviderInternal, receipt.ReceiptNumber, receipt)
}

// RefundPayment records money handed back at the counter.
func (a *OfflineAdapter) RefundPayment(_ context.Context, txn Txn, original payment.PaymentMethodResult, amount money.Money) payment.PaymentMethodResult {
	receipt := &payment.Receipt{
		ReceiptNumber: receiptNumber("REFUND-"+string(original.Type), txn),
		Reference:     original.ProviderTransactionID,
	}
	return refundResult(original, amount, receipt.ReceiptNumber, receipt)
}

func receiptNumber(prefix string, txn Txn) string {
	ref := txn.Number
	if ref == "" {
		ref = txn.ID
	}
	return prefix + "-" + ref
}
