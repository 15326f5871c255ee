// internal/domain/giftcard/entity.go
package giftcard

import (
	"database/sql"
	"errors"
	"time"

	"bloom-payments/internal/pkg/money"
)

var (
	ErrInsufficientBalance = errors.New("insufficient gift card balance")
	ErrCardInactive        = errors.New("gift card is not active")
	ErrCurrencyMismatch    = errors.New("gift card currency does not match")
	ErrCreditExceedsDebit  = errors.New("credit exceeds the redeemed amount")
)

type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusDepleted Status = "DEPLETED"
	StatusInactive Status = "INACTIVE"
)

type Kind string

const (
	KindGiftCard    Kind = "GIFT_CARD"
	KindStoreCredit Kind = "STORE_CREDIT"
)

type GiftCard struct {
	ID                    string         `json:"id" db:"id"`
	CardNumber            string         `json:"card_number" db:"card_number"`
	ActivationCode        string         `json:"-" db:"activation_code"`
	Kind                  Kind           `json:"kind" db:"kind"`
	InitialBalance        money.Money    `json:"initial_balance" db:"initial_balance"`
	Balance               money.Money    `json:"balance" db:"balance"`
	Status                Status         `json:"status" db:"status"`
	PurchasedByCustomerID sql.NullString `json:"purchased_by_customer_id,omitempty" db:"purchased_by_customer_id"`
	RecipientName         sql.NullString `json:"recipient_name,omitempty" db:"recipient_name"`
	RecipientEmail        sql.NullString `json:"recipient_email,omitempty" db:"recipient_email"`
	Message               sql.NullString `json:"message,omitempty" db:"message"`
	TransactionID         sql.NullString `json:"transaction_id,omitempty" db:"transaction_id"`
	CreatedAt             time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at" db:"updated_at"`
}

// Redemption is the outcome of a successful balance debit.
type Redemption struct {
	CardNumber       string      `json:"card_number"`
	Amount           money.Money `json:"amount"`
	RemainingBalance money.Money `json:"remaining_balance"`
	RedemptionID     string      `json:"redemption_id"`
}
