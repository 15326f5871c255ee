// internal/domain/payment/entity.go
package payment

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"bloom-payments/internal/pkg/money"
)

// Business policy knobs.
const (
	// AmountTolerance is the largest allowed difference, in minor units, between the
	// sum of tenders and the cart grand total.
	AmountTolerance int64 = 1

	// AdjustmentThreshold is the change in an edited order's total, in minor units,
	// at or above which a payment adjustment is required ($0.50).
	AdjustmentThreshold int64 = 50
)

// Transaction number formatting.
const (
	TransactionPrefix    = "PT"
	RefundPrefix         = "RF"
	FirstSequenceNumber  = int64(10001)
	sequenceNumberDigits = 5
)

type PaymentMethodType string

const (
	MethodCard         PaymentMethodType = "CARD"
	MethodCredit       PaymentMethodType = "CREDIT"
	MethodDebit        PaymentMethodType = "DEBIT"
	MethodCash         PaymentMethodType = "CASH"
	MethodCheck        PaymentMethodType = "CHECK"
	MethodCOD          PaymentMethodType = "COD"
	MethodHouseAccount PaymentMethodType = "HOUSE_ACCOUNT"
	MethodGiftCard     PaymentMethodType = "GIFT_CARD"
	MethodStoreCredit  PaymentMethodType = "STORE_CREDIT"
	MethodPayPal       PaymentMethodType = "PAYPAL"
	MethodOffline      PaymentMethodType = "OFFLINE"
)

func (t PaymentMethodType) IsCard() bool {
	return t == MethodCard || t == MethodCredit || t == MethodDebit
}

// Settles reports whether money actually changes hands when the method is captured.
// House account charges are billed later.
func (t PaymentMethodType) Settles() bool {
	return t != MethodHouseAccount && t != MethodCOD
}

func (t PaymentMethodType) Valid() bool {
	switch t {
	case MethodCard, MethodCredit, MethodDebit, MethodCash, MethodCheck, MethodCOD,
		MethodHouseAccount, MethodGiftCard, MethodStoreCredit, MethodPayPal, MethodOffline:
		return true
	}
	return false
}

type Provider string

const (
	ProviderStripe   Provider = "STRIPE"
	ProviderSquare   Provider = "SQUARE"
	ProviderPayPal   Provider = "PAYPAL"
	ProviderGiftCard Provider = "GIFT_CARD"
	ProviderInternal Provider = "INTERNAL"
)

// DefaultProviderFor returns the provider a method type routes to when no hint is given.
func DefaultProviderFor(t PaymentMethodType, defaultCard Provider) Provider {
	switch {
	case t.IsCard():
		if defaultCard == "" {
			return ProviderStripe
		}
		return defaultCard
	case t == MethodGiftCard || t == MethodStoreCredit:
		return ProviderGiftCard
	case t == MethodPayPal:
		return ProviderPayPal
	}
	return ProviderInternal
}

type MethodStatus string

const (
	MethodPending  MethodStatus = "PENDING"
	MethodCaptured MethodStatus = "CAPTURED"
	MethodFailed   MethodStatus = "FAILED"
)

type TransactionStatus string

const (
	StatusProcessing TransactionStatus = "PROCESSING"
	StatusCompleted  TransactionStatus = "COMPLETED"
	StatusFailed     TransactionStatus = "FAILED"
	StatusCancelled  TransactionStatus = "CANCELLED"
)

func (s TransactionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

type Channel string

const (
	ChannelPOS     Channel = "POS"
	ChannelPhone   Channel = "PHONE"
	ChannelWebsite Channel = "WEBSITE"
)

type GiftCardStatus string

const (
	GiftCardActivated GiftCardStatus = "ACTIVATED"
	GiftCardFailed    GiftCardStatus = "FAILED"
)

type DeliveryMethod string

const (
	DeliveryEmail DeliveryMethod = "EMAIL"
	DeliveryPrint DeliveryMethod = "PRINT"
	DeliveryNone  DeliveryMethod = "NONE"
)

type DeliveryStatus string

const (
	DeliveryPending     DeliveryStatus = "PENDING"
	DeliverySent        DeliveryStatus = "SENT"
	DeliveryFailed      DeliveryStatus = "FAILED"
	DeliveryNotRequired DeliveryStatus = "NOT_REQUIRED"
)

// Receipt carries method specific data printed on the receipt.
type Receipt struct {
	ReceiptNumber    string       `json:"receipt_number,omitempty"`
	CardLast4        string       `json:"card_last4,omitempty"`
	CardBrand        string       `json:"card_brand,omitempty"`
	CheckNumber      string       `json:"check_number,omitempty"`
	AccountReference string       `json:"account_reference,omitempty"`
	Reference        string       `json:"reference,omitempty"`
	AmountTendered   *money.Money `json:"amount_tendered,omitempty"`
	ChangeDue        *money.Money `json:"change_due,omitempty"`
	RemainingBalance *money.Money `json:"remaining_balance,omitempty"`
}

// PaymentMethodResult is the immutable outcome of one tender.
type PaymentMethodResult struct {
	Type                  PaymentMethodType `json:"type"`
	Provider              Provider          `json:"provider"`
	Amount                money.Money       `json:"amount"`
	Status                MethodStatus      `json:"status"`
	ProviderTransactionID string            `json:"provider_transaction_id,omitempty"`
	AuthorizationCode     string            `json:"authorization_code,omitempty"`
	ErrorCode             string            `json:"error_code,omitempty"`
	ErrorMessage          string            `json:"error_message,omitempty"`
	ErrorKind             ErrorKind         `json:"error_kind,omitempty"`
	Receipt               *Receipt          `json:"receipt,omitempty"`
	ProcessedAt           time.Time         `json:"processed_at"`
}

type GiftCardResult struct {
	CardNumber     string         `json:"card_number,omitempty"`
	ActivationCode string         `json:"activation_code,omitempty"`
	Amount         money.Money    `json:"amount"`
	Status         GiftCardStatus `json:"status"`
	DeliveryMethod DeliveryMethod `json:"delivery_method"`
	DeliveryStatus DeliveryStatus `json:"delivery_status"`
	ErrorMessage   string         `json:"error_message,omitempty"`
}

type CartItem struct {
	ProductID string      `json:"product_id"`
	Name      string      `json:"name"`
	Quantity  int         `json:"quantity"`
	UnitPrice money.Money `json:"unit_price"`
	Total     money.Money `json:"total"`
}

type CartSnapshot struct {
	Items      []CartItem  `json:"items"`
	Subtotal   money.Money `json:"subtotal"`
	Discount   money.Money `json:"discount"`
	Tax        money.Money `json:"tax"`
	GrandTotal money.Money `json:"grand_total"`
}

type AppliedDiscount struct {
	Code        string      `json:"code"`
	Description string      `json:"description,omitempty"`
	Amount      money.Money `json:"amount"`
}

// CustomerSnapshot denormalizes the customer at the time of the transaction.
type CustomerSnapshot struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// PaymentTransaction is the durable record of one checkout or refund.
type PaymentTransaction struct {
	ID                string                `json:"id"`
	TransactionNumber string                `json:"transaction_number"`
	CustomerID        string                `json:"customer_id"`
	EmployeeID        string                `json:"employee_id,omitempty"`
	Channel           Channel               `json:"channel"`
	TotalAmount       money.Money           `json:"total_amount"`
	PaymentMethods    []PaymentMethodResult `json:"payment_methods"`
	Status            TransactionStatus     `json:"status"`
	Customer          CustomerSnapshot      `json:"customer"`
	GiftCards         []GiftCardResult      `json:"gift_cards"`
	Cart              CartSnapshot          `json:"cart"`
	AppliedDiscounts  []AppliedDiscount     `json:"applied_discounts,omitempty"`
	OrderIDs          []string              `json:"order_ids,omitempty"`
	RefundOf          string                `json:"refund_of,omitempty"`
	Notes             string                `json:"notes,omitempty"`
	ErrorMessages     []string              `json:"error_messages,omitempty"`
	RetryCount        int                   `json:"retry_count"`
	ProcessedAt       time.Time             `json:"processed_at"`
	CompletedAt       *time.Time            `json:"completed_at,omitempty"`
	ArchivedAt        *time.Time            `json:"archived_at,omitempty"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`

	// AwaitingConfirmation is set once the checkout has run every tender and
	// left the rest to provider webhooks.
	AwaitingConfirmation bool `json:"awaiting_confirmation"`
}

// tenderIndex finds the tender a provider reported on, or -1.
func (t *PaymentTransaction) tenderIndex(p Provider, providerTxID string) int {
	for i, m := range t.PaymentMethods {
		if m.Provider == p && m.ProviderTransactionID == providerTxID {
			return i
		}
	}
	return -1
}

// FormatNumber renders a sequence value, e.g. ("PT", 10001) -> "PT-10001".
func FormatNumber(prefix string, seq int64) string {
	return fmt.Sprintf("%s-%0*d", prefix, sequenceNumberDigits, seq)
}

// ParseNumber extracts the numeric suffix of a "PT-NNNNN" style number.
func ParseNumber(prefix, number string) (int64, error) {
	rest, ok := strings.CutPrefix(number, prefix+"-")
	if !ok || rest == "" {
		return 0, fmt.Errorf("transaction number %q does not start with %s-", number, prefix)
	}
	n, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid transaction number %q: %w", number, err)
	}
	return n, nil
}

// NextNumber computes the number that follows last; an empty last starts the sequence.
func NextNumber(prefix, last string) (string, error) {
	if last == "" {
		return FormatNumber(prefix, FirstSequenceNumber), nil
	}
	n, err := ParseNumber(prefix, last)
	if err != nil {
		return "", err
	}
	return FormatNumber(prefix, n+1), nil
}
