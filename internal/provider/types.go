// internal/provider/types.go
package provider

import (
	"context"
	"errors"
	"fmt"

	"bloom-payments/internal/domain/customer"
	"bloom-payments/internal/domain/payment"
	"bloom-payments/internal/pkg/money"
)

// ErrResourceMissing matches an APIError reporting that the provider-side
// customer no longer exists.
var ErrResourceMissing = errors.New("provider customer no longer exists")

type Category string

const (
	CategoryCardDeclined      Category = "card_declined"
	CategoryInsufficientFunds Category = "insufficient_funds"
	CategoryInvalidRequest    Category = "invalid_request"
	CategoryResourceMissing   Category = "resource_missing"
	CategoryNetwork           Category = "network"
	CategoryProvider          Category = "provider"
)

// APIError is a provider failure normalized across SDKs.
type APIError struct {
	Provider   payment.Provider
	Category   Category
	Code       string
	Message    string
	HTTPStatus int
	Err        error
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s %s: %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

func (e *APIError) Is(target error) bool {
	return target == ErrResourceMissing && e.Category == CategoryResourceMissing
}

// Kind maps the provider category onto the payment error taxonomy.
func (e *APIError) Kind() payment.ErrorKind {
	switch e.Category {
	case CategoryCardDeclined:
		return payment.ErrorCardDeclined
	case CategoryInsufficientFunds:
		return payment.ErrorInsufficientFunds
	case CategoryInvalidRequest:
		return payment.ErrorValidation
	case CategoryNetwork:
		return payment.ErrorNetwork
	}
	return payment.ErrorProvider
}

// ResultCode is the error code placed on a FAILED result.
func (e *APIError) ResultCode() string {
	switch e.Category {
	case CategoryCardDeclined:
		return payment.CodeCardDeclined
	case CategoryInsufficientFunds:
		return payment.CodeInsufficientFunds
	}
	if e.Code != "" {
		return string(e.Provider) + "_" + e.Code
	}
	return string(e.Provider) + "_ERROR"
}

type ChargeStatus string

const (
	ChargeSucceeded ChargeStatus = "SUCCEEDED"
	ChargePending   ChargeStatus = "PENDING"
	ChargeFailed    ChargeStatus = "FAILED"
)

type ChargeRequest struct {
	Amount         money.Money
	SourceID       string
	CustomerID     string
	IdempotencyKey string
	ReferenceID    string
	Description    string
	OffSession     bool
	SaveCard       bool
	Metadata       map[string]string
}

type Charge struct {
	ID                string
	Status            ChargeStatus
	RawStatus         string
	AuthorizationCode string
	CardBrand         string
	CardLast4         string
}

// CustomerAPI is the customer half of a card provider.
type CustomerAPI interface {
	CreateCustomer(ctx context.Context, contact customer.ContactInfo) (string, error)
	ListCards(ctx context.Context, providerCustomerID string) ([]customer.SavedCard, error)
}

type RefundAPI interface {
	Refund(ctx context.Context, providerTxID string, amount money.Money, idempotencyKey string) (string, error)
}

type StripeAPI interface {
	CustomerAPI
	RefundAPI
	CreateIntent(ctx context.Context, req ChargeRequest) (*Charge, error)
	ConfirmIntent(ctx context.Context, intentID, paymentMethodID string) (*Charge, error)
}

type SquareAPI interface {
	CustomerAPI
	RefundAPI
	CreatePayment(ctx context.Context, req ChargeRequest) (*Charge, error)
}

type PayPalCapture struct {
	OrderID   string
	CaptureID string
	Status    string
}

type PayPalAPI interface {
	CaptureOrder(ctx context.Context, orderID string) (*PayPalCapture, error)
	RefundCapture(ctx context.Context, captureID string, amount money.Money) (string, error)
}
