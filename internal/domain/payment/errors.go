package payment

import (
	"fmt"
	"time"

	"bloom-payments/internal/pkg/money"
)

type ErrorKind string

const (
	ErrorValidation        ErrorKind = "VALIDATION_ERROR"
	ErrorProvider          ErrorKind = "PROVIDER_ERROR"
	ErrorNetwork           ErrorKind = "NETWORK_ERROR"
	ErrorInsufficientFunds ErrorKind = "INSUFFICIENT_FUNDS"
	ErrorCardDeclined      ErrorKind = "CARD_DECLINED"
	ErrorGiftCard          ErrorKind = "GIFT_CARD_ERROR"
	ErrorCustomer          ErrorKind = "CUSTOMER_ERROR"
	ErrorSystem            ErrorKind = "SYSTEM_ERROR"
)

// Retryable reports whether the same request may succeed if tried again.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrorProvider, ErrorNetwork, ErrorSystem:
		return true
	}
	return false
}

// Error codes carried on results and TransactionResult errors.
const (
	CodeNoPaymentMethods      = "NO_PAYMENT_METHODS"
	CodeNoCartItems           = "NO_CART_ITEMS"
	CodeAmountMismatch        = "AMOUNT_MISMATCH"
	CodeInvalidPaymentMethod  = "INVALID_PAYMENT_METHOD"
	CodeCustomerRequired      = "CUSTOMER_REQUIRED"
	CodeCustomerResolution    = "CUSTOMER_RESOLUTION_FAILED"
	CodeUnsupportedMethod     = "UNSUPPORTED_PAYMENT_METHOD"
	CodeProcessingError       = "PROCESSING_ERROR"
	CodeProviderNotConfigured = "PROVIDER_NOT_CONFIGURED"
	CodeProviderTimeout       = "PROVIDER_TIMEOUT"
	CodeMissingToken          = "MISSING_PAYMENT_TOKEN"
	CodeCardDeclined          = "CARD_DECLINED"
	CodeInsufficientFunds     = "INSUFFICIENT_FUNDS"
	CodePaymentNotCompleted   = "PAYMENT_NOT_COMPLETED"
	CodeInsufficientCash      = "INSUFFICIENT_CASH"
	CodePayPalProcessing      = "PAYPAL_PROCESSING_ERROR"
	CodeMissingPayPalOrder    = "MISSING_PAYPAL_ORDER_ID"
	CodeGiftCardError         = "GIFT_CARD_ERROR"
	CodeGiftCardActivation    = "GIFT_CARD_ACTIVATION_FAILED"
	CodePaymentFailed         = "PAYMENT_FAILED"
	CodeSystemError           = "SYSTEM_ERROR"
)

// PaymentError is one entry of TransactionResult.Errors.
type PaymentError struct {
	Code              string            `json:"code"`
	Message           string            `json:"message"`
	Kind              ErrorKind         `json:"type"`
	Provider          Provider          `json:"provider,omitempty"`
	PaymentMethodType PaymentMethodType `json:"payment_method_type,omitempty"`
	Amount            *money.Money      `json:"amount,omitempty"`
	Retryable         bool              `json:"is_retryable"`
}

func (e PaymentError) Error() string {
	return e.Code + ": " + e.Message
}

// Captured builds a successful result for req.
func Captured(req PaymentMethodRequest, provider Provider, providerTxID string, receipt *Receipt) PaymentMethodResult {
	return PaymentMethodResult{
		Type:                  req.Type,
		Provider:              provider,
		Amount:                req.Amount,
		Status:                MethodCaptured,
		ProviderTransactionID: providerTxID,
		Receipt:               receipt,
		ProcessedAt:           time.Now(),
	}
}

// Pending builds a result that settles later.
func Pending(req PaymentMethodRequest, provider Provider, providerTxID string, receipt *Receipt) PaymentMethodResult {
	r := Captured(req, provider, providerTxID, receipt)
	r.Status = MethodPending
	return r
}

// Failed builds a FAILED result carrying a typed error.
func Failed(req PaymentMethodRequest, provider Provider, kind ErrorKind, code, message string) PaymentMethodResult {
	return PaymentMethodResult{
		Type:         req.Type,
		Provider:     provider,
		Amount:       req.Amount,
		Status:       MethodFailed,
		ErrorCode:    code,
		ErrorMessage: message,
		ErrorKind:    kind,
		ProcessedAt:  time.Now(),
	}
}

// AsError lifts a failed or pending result into the TransactionResult error
// list. Tender failures are always reported retryable: the caller may resubmit
// the tender with the same or another method.
func (r PaymentMethodResult) AsError() PaymentError {
	amount := r.Amount
	code, kind, msg := r.ErrorCode, r.ErrorKind, r.ErrorMessage
	if r.Status == MethodPending {
		code, kind, msg = CodePaymentNotCompleted, ErrorProvider, fmt.Sprintf("%s payment is pending settlement", r.Type)
	}
	return PaymentError{
		Code:              code,
		Message:           msg,
		Kind:              kind,
		Provider:          r.Provider,
		PaymentMethodType: r.Type,
		Amount:            &amount,
		Retryable:         true,
	}
}
