// internal/domain/payment/dto.go
package payment

import (
	"fmt"
	"strings"
	"time"

	"bloom-payments/internal/pkg/money"
)

type CardDetails struct {
	// Token is a Stripe payment method id, a Square nonce, or a saved card id.
	Token    string `json:"token"`
	Saved    bool   `json:"saved,omitempty"`
	SaveCard bool   `json:"save_card,omitempty"`
}

type CashDetails struct {
	AmountTendered money.Money `json:"amount_tendered"`
}

type CheckDetails struct {
	CheckNumber string `json:"check_number"`
}

type HouseAccountDetails struct {
	AccountReference string `json:"account_reference"`
}

type GiftCardDetails struct {
	CardNumber       string `json:"card_number"`
	VerificationCode string `json:"verification_code,omitempty"`
}

type PayPalDetails struct {
	OrderID string `json:"order_id"`
}

type OfflineDetails struct {
	MethodName string `json:"method_name"`
	Reference  string `json:"reference,omitempty"`
}

// PaymentMethodRequest is one tender. Exactly one detail payload may be set and it
// must match Type.
type PaymentMethodRequest struct {
	Type     PaymentMethodType `json:"type" binding:"required"`
	Amount   money.Money       `json:"amount"`
	Provider Provider          `json:"provider,omitempty"`

	Card         *CardDetails         `json:"card,omitempty"`
	Cash         *CashDetails         `json:"cash,omitempty"`
	Check        *CheckDetails        `json:"check,omitempty"`
	HouseAccount *HouseAccountDetails `json:"house_account,omitempty"`
	GiftCard     *GiftCardDetails     `json:"gift_card,omitempty"`
	PayPal       *PayPalDetails       `json:"paypal,omitempty"`
	Offline      *OfflineDetails      `json:"offline,omitempty"`
}

// Validate enforces the payload shape invariant.
func (r PaymentMethodRequest) Validate() error {
	if !r.Type.Valid() {
		return fmt.Errorf("unknown payment method type %q", r.Type)
	}
	if !r.Amount.IsPositive() {
		return fmt.Errorf("%s amount must be positive", r.Type)
	}

	set := map[string]bool{
		"card":          r.Card != nil,
		"cash":          r.Cash != nil,
		"check":         r.Check != nil,
		"house_account": r.HouseAccount != nil,
		"gift_card":     r.GiftCard != nil,
		"paypal":        r.PayPal != nil,
		"offline":       r.Offline != nil,
	}
	var populated []string
	for name, ok := range set {
		if ok {
			populated = append(populated, name)
		}
	}
	if len(populated) > 1 {
		return fmt.Errorf("%s payment carries more than one detail payload", r.Type)
	}

	want, required := expectedPayload(r.Type)
	if len(populated) == 0 {
		if required {
			return fmt.Errorf("%s payment requires %s details", r.Type, want)
		}
		return nil
	}
	if populated[0] != want {
		return fmt.Errorf("%s payment cannot carry %s details", r.Type, populated[0])
	}
	return nil
}

func expectedPayload(t PaymentMethodType) (name string, required bool) {
	switch {
	case t.IsCard():
		return "card", true
	case t == MethodCash:
		return "cash", true
	case t == MethodCheck:
		return "check", false
	case t == MethodHouseAccount:
		return "house_account", false
	case t == MethodGiftCard || t == MethodStoreCredit:
		return "gift_card", true
	case t == MethodPayPal:
		return "paypal", true
	case t == MethodOffline:
		return "offline", true
	}
	// COD carries nothing
	return "", false
}

type GiftCardRequest struct {
	// CardNumber is set when a pre-printed card is activated at the counter.
	CardNumber     string         `json:"card_number,omitempty"`
	Amount         money.Money    `json:"amount"`
	RecipientName  string         `json:"recipient_name,omitempty"`
	RecipientEmail string         `json:"recipient_email,omitempty"`
	DeliveryMethod DeliveryMethod `json:"delivery_method"`
	Message        string         `json:"message,omitempty"`
}

type CustomerData struct {
	ID        string `json:"id,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// TransactionRequest is one checkout. It is consumed once and never stored as-is.
type TransactionRequest struct {
	Customer         *CustomerData          `json:"customer,omitempty"`
	CreateGuest      bool                   `json:"create_guest_customer,omitempty"`
	PaymentMethods   []PaymentMethodRequest `json:"payment_methods"`
	GiftCards        []GiftCardRequest      `json:"gift_cards,omitempty"`
	Cart             CartSnapshot           `json:"cart"`
	AppliedDiscounts []AppliedDiscount      `json:"applied_discounts,omitempty"`
	OrderIDs         []string               `json:"order_ids,omitempty"`
	EmployeeID       string                 `json:"employee_id,omitempty"`
	Channel          Channel                `json:"channel,omitempty"`
	Notes            string                 `json:"notes,omitempty"`
}

// CustomerID returns the explicit customer reference, if any.
func (r TransactionRequest) CustomerID() string {
	if r.Customer == nil {
		return ""
	}
	return strings.TrimSpace(r.Customer.ID)
}

// TransactionResult is returned to the checkout caller and never persisted.
type TransactionResult struct {
	Success           bool                  `json:"success"`
	TransactionID     string                `json:"transaction_id,omitempty"`
	TransactionNumber string                `json:"transaction_number,omitempty"`
	Status            TransactionStatus     `json:"status,omitempty"`
	CustomerID        string                `json:"customer_id,omitempty"`
	PaymentResults    []PaymentMethodResult `json:"payment_results"`
	GiftCardResults   []GiftCardResult      `json:"gift_card_results"`
	Errors            []PaymentError        `json:"errors"`
	Warnings          []string              `json:"warnings"`
	TotalProcessed    money.Money           `json:"total_processed"`
	TotalFailed       money.Money           `json:"total_failed"`
	ProcessedAt       time.Time             `json:"processed_at"`
	ProcessingTime    time.Duration         `json:"processing_time_ns"`
}

// FailureResult is a TransactionResult for a request that never produced a record.
func FailureResult(currency string, errs ...PaymentError) *TransactionResult {
	return &TransactionResult{
		Success:         false,
		PaymentResults:  []PaymentMethodResult{},
		GiftCardResults: []GiftCardResult{},
		Errors:          errs,
		Warnings:        []string{},
		TotalProcessed:  money.Zero(currency),
		TotalFailed:     money.Zero(currency),
		ProcessedAt:     time.Now(),
	}
}

type RefundRequest struct {
	Amount money.Money `json:"amount"`
	Reason string      `json:"reason" binding:"required"`
}

// SearchCriteria filters the transaction list. Zero values are ignored.
type SearchCriteria struct {
	Number        string              `form:"number"`
	CustomerID    string              `form:"customer_id"`
	EmployeeID    string              `form:"employee_id"`
	Statuses      []TransactionStatus `form:"status"`
	Channel       Channel             `form:"channel"`
	PaymentMethod PaymentMethodType   `form:"payment_method"`
	From          *time.Time          `form:"from" time_format:"2006-01-02"`
	To            *time.Time          `form:"to" time_format:"2006-01-02"`
	MinAmount     *int64              `form:"min_amount"`
	MaxAmount     *int64              `form:"max_amount"`
	Limit         int                 `form:"limit"`
	Offset        int                 `form:"offset"`
}
