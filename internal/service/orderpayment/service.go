// internal/service/orderpayment/service.go
package orderpayment

import (
	"context"
	"fmt"

	"bloom-payments/internal/domain/order"
	"bloom-payments/internal/domain/payment"
	"bloom-payments/internal/pkg/money"

	"go.uber.org/zap"
)

type OrderStore interface {
	MarkPaidIfDraft(ctx context.Context, orderIDs []string) ([]string, error)
	FindTotals(ctx context.Context, orderIDs []string) (map[string]money.Money, error)
	UpdatePaymentStatus(ctx context.Context, orderID string, status order.PaymentStatus) error
}

type TransactionSource interface {
	FindCompletedByOrderIDs(ctx context.Context, orderIDs []string) ([]*payment.PaymentTransaction, error)
}

// Service derives order payment status from the transactions that paid for
// the orders.
type Service struct {
	orders       OrderStore
	transactions TransactionSource
	logger       *zap.Logger
}

func NewService(orders OrderStore, transactions TransactionSource, logger *zap.Logger) *Service {
	return &Service{orders: orders, transactions: transactions, logger: logger}
}

// MarkPaid moves DRAFT orders to PAID and refreshes their payment status.
func (s *Service) MarkPaid(ctx context.Context, orderIDs []string) error {
	if len(orderIDs) == 0 {
		return nil
	}

	updated, err := s.orders.MarkPaidIfDraft(ctx, orderIDs)
	if err != nil {
		return err
	}
	if len(updated) > 0 {
		s.logger.Info("orders marked paid", zap.Strings("order_ids", updated))
	}
	return s.Recalculate(ctx, orderIDs)
}

// Recalculate stores the payment status of each order.
func (s *Service) Recalculate(ctx context.Context, orderIDs []string) error {
	settlements, err := s.Settlements(ctx, orderIDs)
	if err != nil {
		return err
	}

	for _, id := range orderIDs {
		st, ok := settlements[id]
		if !ok {
			continue
		}
		status := Status(st)
		if err := s.orders.UpdatePaymentStatus(ctx, id, status); err != nil {
			return fmt.Errorf("failed to update payment status of order %s: %w", id, err)
		}
		s.logger.Debug("order payment status recalculated",
			zap.String("order_id", id),
			zap.String("status", string(status)),
			zap.String("paid", st.SettledPaid.String()),
			zap.String("refunded", st.SettledRefunded.String()),
		)
	}
	return nil
}

// Settlements replays the completed sales and refunds touching orderIDs in
// creation order. A transaction paying for several orders fills them in the
// order they are listed, each up to its total; a refund drains them the same way.
func (s *Service) Settlements(ctx context.Context, orderIDs []string) (map[string]*order.Settlement, error) {
	txns, err := s.transactions.FindCompletedByOrderIDs(ctx, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load order transactions: %w", err)
	}

	// every order a relevant transaction touches takes part in the allocation
	ids := append([]string(nil), orderIDs...)
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	for _, t := range txns {
		for _, id := range t.OrderIDs {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	totals, err := s.orders.FindTotals(ctx, ids)
	if err != nil {
		return nil, err
	}

	settlements := make(map[string]*order.Settlement, len(totals))
	for id, total := range totals {
		settlements[id] = &order.Settlement{
			OrderID:         id,
			OrderAmount:     total,
			SettledPaid:     money.Zero(total.Currency),
			SettledRefunded: money.Zero(total.Currency),
		}
	}

	for _, t := range txns {
		amount := settledAmount(t)
		for _, id := range t.OrderIDs {
			if amount <= 0 {
				break
			}
			st, ok := settlements[id]
			if !ok || st.OrderAmount.Currency != t.TotalAmount.Currency {
				continue
			}

			if t.RefundOf == "" {
				room := st.OrderAmount.Amount - st.SettledPaid.Amount
				take := min(amount, max(room, 0))
				st.SettledPaid = money.New(st.SettledPaid.Amount+take, st.SettledPaid.Currency)
				amount -= take
				continue
			}

			room := st.SettledPaid.Amount - st.SettledRefunded.Amount
			take := min(amount, max(room, 0))
			st.SettledRefunded = money.New(st.SettledRefunded.Amount+take, st.SettledRefunded.Currency)
			amount -= take
		}
	}
	return settlements, nil
}

// settledAmount is the money that actually moved: captured legs of settling
// methods, as a positive number for sales and refunds alike.
func settledAmount(t *payment.PaymentTransaction) int64 {
	var total int64
	for _, m := range t.PaymentMethods {
		if m.Status != payment.MethodCaptured || !m.Type.Settles() {
			continue
		}
		if m.Amount.Currency != t.TotalAmount.Currency {
			continue
		}
		total += m.Amount.Abs().Amount
	}
	return total
}

// Status maps a settlement onto the order payment status.
func Status(st *order.Settlement) order.PaymentStatus {
	paid, refunded := st.SettledPaid.Amount, st.SettledRefunded.Amount
	switch {
	case paid <= 0:
		return order.PaymentUnpaid
	case refunded >= paid:
		return order.PaymentRefunded
	case refunded > 0:
		return order.PaymentPartiallyRefunded
	case paid >= st.OrderAmount.Amount:
		return order.PaymentPaid
	}
	return order.PaymentPartiallyPaid
}

// CheckAdjustment reports whether editing an order from oldTotal to newTotal
// needs a follow-up charge or refund.
func CheckAdjustment(oldTotal, newTotal money.Money) (order.AdjustmentCheck, error) {
	diff, err := newTotal.Sub(oldTotal)
	if err != nil {
		return order.AdjustmentCheck{}, err
	}

	check := order.AdjustmentCheck{
		Required:   diff.Abs().Amount >= payment.AdjustmentThreshold,
		Difference: diff,
	}
	if check.Required {
		check.Direction = "CHARGE"
		if diff.IsNegative() {
			check.Direction = "REFUND"
		}
	}
	return check, nil
}
