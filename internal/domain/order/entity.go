// internal/domain/order/entity.go
package order

import "bloom-payments/internal/pkg/money"

type Status string

const (
	StatusDraft Status = "DRAFT"
	StatusPaid  Status = "PAID"
)

type PaymentStatus string

const (
	PaymentUnpaid            PaymentStatus = "UNPAID"
	PaymentPartiallyPaid     PaymentStatus = "PARTIALLY_PAID"
	PaymentPaid              PaymentStatus = "PAID"
	PaymentPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
	PaymentRefunded          PaymentStatus = "REFUNDED"
)

// Settlement is what has actually been collected and refunded against one order.
type Settlement struct {
	OrderID         string      `json:"order_id"`
	OrderAmount     money.Money `json:"order_amount"`
	SettledPaid     money.Money `json:"settled_paid"`
	SettledRefunded money.Money `json:"settled_refunded"`
}

type AdjustmentCheckRequest struct {
	OldTotal money.Money `json:"old_total"`
	NewTotal money.Money `json:"new_total"`
}

type AdjustmentCheck struct {
	Required   bool        `json:"required"`
	Difference money.Money `json:"difference"`
	// Direction is "CHARGE" when the customer owes more and "REFUND" otherwise.
	Direction string `json:"direction,omitempty"`
}
