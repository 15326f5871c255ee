// internal/events/events.go
package events

import (
	"context"
	"errors"
	"time"

	"bloom-payments/internal/domain/payment"
	"bloom-payments/internal/pkg/money"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

type Type string

const (
	TransactionCompleted Type = "transaction.completed"
	TransactionFailed    Type = "transaction.failed"
	TransactionPending   Type = "transaction.pending"
	TransactionCancelled Type = "transaction.cancelled"
	RefundCompleted      Type = "refund.completed"
	RefundFailed         Type = "refund.failed"
	OrdersPaid           Type = "orders.paid"
)

// Event is a change to a payment transaction pushed to POS terminals and
// downstream consumers.
type Event struct {
	ID                string                    `json:"id"`
	Type              Type                      `json:"type"`
	TransactionID     string                    `json:"transaction_id"`
	TransactionNumber string                    `json:"transaction_number,omitempty"`
	Status            payment.TransactionStatus `json:"status,omitempty"`
	Amount            money.Money               `json:"amount"`
	CustomerID        string                    `json:"customer_id,omitempty"`
	OrderIDs          []string                  `json:"order_ids,omitempty"`
	Source            string                    `json:"source,omitempty"`
	OccurredAt        time.Time                 `json:"occurred_at"`
}

// ForTransaction builds the event describing t's current status.
func ForTransaction(t *payment.PaymentTransaction, source string) Event {
	return Event{
		ID:                ulid.Make().String(),
		Type:              typeFor(t),
		TransactionID:     t.ID,
		TransactionNumber: t.TransactionNumber,
		Status:            t.Status,
		Amount:            t.TotalAmount,
		CustomerID:        t.CustomerID,
		OrderIDs:          t.OrderIDs,
		Source:            source,
		OccurredAt:        time.Now().UTC(),
	}
}

func typeFor(t *payment.PaymentTransaction) Type {
	refund := t.RefundOf != ""
	switch t.Status {
	case payment.StatusCompleted:
		if refund {
			return RefundCompleted
		}
		return TransactionCompleted
	case payment.StatusFailed:
		if refund {
			return RefundFailed
		}
		return TransactionFailed
	case payment.StatusCancelled:
		return TransactionCancelled
	}
	return TransactionPending
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishLogged publishes e and logs a failure instead of returning it.
// Event delivery never fails the operation that produced the event.
func PublishLogged(ctx context.Context, p Publisher, logger *zap.Logger, e Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, e); err != nil {
		logger.Warn("failed to publish event",
			zap.String("event_type", string(e.Type)),
			zap.String("transaction_id", e.TransactionID),
			zap.Error(err),
		)
	}
}
