// internal/service/payment/refund.go
package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bloom-payments/internal/domain/payment"
	"bloom-payments/internal/events"
	xerrors "bloom-payments/internal/pkg/errors"
	"bloom-payments/internal/pkg/money"
	"bloom-payments/internal/service/payment/adapter"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// CreateRefund records a refund against a completed transaction and returns the
// money through the providers that took it, newest tender first.
func (s *TransactionService) CreateRefund(ctx context.Context, originalID string, req payment.RefundRequest) (*payment.PaymentTransaction, error) {
	original, err := s.transactions.FindByID(ctx, originalID)
	if err != nil {
		return nil, err
	}

	if original.RefundOf != "" {
		return nil, fmt.Errorf("%w: a refund cannot be refunded", xerrors.ErrInvalidInput)
	}
	if original.Status != payment.StatusCompleted {
		return nil, fmt.Errorf("%w: only completed transactions can be refunded, %s is %s",
			xerrors.ErrInvalidInput, original.TransactionNumber, original.Status)
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, fmt.Errorf("%w: refund reason is required", xerrors.ErrInvalidInput)
	}

	amount := req.Amount
	if amount.Currency == "" {
		amount = money.New(amount.Amount, original.TotalAmount.Currency)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: refund amount must be positive", xerrors.ErrInvalidInput)
	}

	// Cap against what earlier refunds already returned
	refunded, err := s.refundedSoFar(ctx, original)
	if err != nil {
		return nil, err
	}
	remaining, err := original.TotalAmount.Sub(refunded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", xerrors.ErrInvalidInput, err)
	}
	if c, err := amount.Cmp(remaining); err != nil {
		return nil, fmt.Errorf("%w: %v", xerrors.ErrInvalidInput, err)
	} else if c > 0 {
		return nil, fmt.Errorf("%w: refund of %s exceeds refundable balance %s", xerrors.ErrInvalidInput, amount, remaining)
	}

	number, err := s.transactions.NextNumber(ctx, payment.RefundPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate refund number: %w", err)
	}

	refund := &payment.PaymentTransaction{
		ID:                ulid.Make().String(),
		TransactionNumber: number,
		CustomerID:        original.CustomerID,
		EmployeeID:        original.EmployeeID,
		Channel:           original.Channel,
		TotalAmount:       amount.Neg(),
		PaymentMethods:    []payment.PaymentMethodResult{},
		Status:            payment.StatusProcessing,
		Customer:          original.Customer,
		GiftCards:         []payment.GiftCardResult{},
		Cart:              payment.CartSnapshot{Items: []payment.CartItem{}, GrandTotal: amount.Neg()},
		OrderIDs:          original.OrderIDs,
		RefundOf:          original.ID,
		Notes:             fmt.Sprintf("Refund for transaction %s. Reason: %s", original.TransactionNumber, strings.TrimSpace(req.Reason)),
		ProcessedAt:       time.Now(),
	}
	if err := s.transactions.Create(ctx, refund); err != nil {
		return nil, fmt.Errorf("failed to create refund record: %w", err)
	}

	s.logger.Info("refund started",
		zap.String("refund_id", refund.ID),
		zap.String("refund_number", number),
		zap.String("original_number", original.TransactionNumber),
		zap.String("amount", amount.String()),
	)

	at := adapter.Txn{ID: refund.ID, Number: number, CustomerID: original.CustomerID}
	for _, part := range allocateRefund(original.PaymentMethods, refunded, amount) {
		r := s.refundLeg(ctx, at, part.leg, part.amount)
		refund.PaymentMethods = append(refund.PaymentMethods, r)
		s.saveProgress(ctx, refund)
	}

	status := payment.StatusCompleted
	var messages []string
	for _, r := range refund.PaymentMethods {
		if r.Status != payment.MethodCaptured {
			status = payment.StatusFailed
			messages = append(messages, r.AsError().Error())
		}
	}
	if len(refund.PaymentMethods) == 0 {
		status = payment.StatusFailed
		messages = append(messages, "no captured payment is available to refund")
	}

	if err := s.transactions.SaveResults(ctx, refund.ID, refund.PaymentMethods, refund.GiftCards); err != nil {
		return nil, fmt.Errorf("failed to save refund results: %w", err)
	}
	if _, err := s.transactions.TransitionStatus(ctx, refund.ID, status, messages); err != nil {
		return nil, fmt.Errorf("failed to finalize refund: %w", err)
	}
	refund.Status = status
	refund.ErrorMessages = messages

	if status == payment.StatusCompleted && len(refund.OrderIDs) > 0 && s.orders != nil {
		if err := s.orders.Recalculate(ctx, refund.OrderIDs); err != nil {
			s.logger.Warn("failed to recalculate order payment status", zap.String("refund_id", refund.ID), zap.Error(err))
		}
	}

	s.logger.Info("refund finalized",
		zap.String("refund_id", refund.ID),
		zap.String("status", string(status)),
		zap.Int("legs", len(refund.PaymentMethods)),
	)
	events.PublishLogged(ctx, s.publisher, s.logger, events.ForTransaction(refund, "refund"))

	return refund, nil
}

func (s *TransactionService) refundLeg(ctx context.Context, txn adapter.Txn, leg payment.PaymentMethodResult, amount money.Money) payment.PaymentMethodResult {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	done := make(chan payment.PaymentMethodResult, 1)
	go func() {
		done <- s.dispatcher.Refund(callCtx, txn, leg, amount)
	}()

	select {
	case r := <-done:
		return r
	case <-callCtx.Done():
		req := payment.PaymentMethodRequest{Type: leg.Type, Amount: amount.Neg()}
		return payment.Failed(req, leg.Provider, payment.ErrorNetwork, payment.CodeProviderTimeout,
			fmt.Sprintf("%s refund timed out after %s", leg.Type, s.callTimeout))
	}
}

// refundedSoFar sums refunds that completed or are still in flight.
func (s *TransactionService) refundedSoFar(ctx context.Context, original *payment.PaymentTransaction) (money.Money, error) {
	refunds, err := s.transactions.FindRefunds(ctx, original.ID)
	if err != nil {
		return money.Money{}, fmt.Errorf("failed to load refunds: %w", err)
	}

	total := money.Zero(original.TotalAmount.Currency)
	for _, r := range refunds {
		if r.Status == payment.StatusFailed || r.Status == payment.StatusCancelled {
			continue
		}
		if total, err = total.Add(r.TotalAmount.Abs()); err != nil {
			return money.Money{}, err
		}
	}
	return total, nil
}

type refundPart struct {
	leg    payment.PaymentMethodResult
	amount money.Money
}

// allocateRefund spreads amount over the captured legs newest first, skipping
// the share earlier refunds already took in the same order.
func allocateRefund(legs []payment.PaymentMethodResult, alreadyRefunded, amount money.Money) []refundPart {
	skip := alreadyRefunded.Amount
	want := amount.Amount

	var parts []refundPart
	for i := len(legs) - 1; i >= 0 && want > 0; i-- {
		leg := legs[i]
		if leg.Status != payment.MethodCaptured || !leg.Amount.IsPositive() {
			continue
		}

		available := leg.Amount.Amount
		if skip > 0 {
			taken := min(skip, available)
			skip -= taken
			available -= taken
		}
		if available == 0 {
			continue
		}

		take := min(want, available)
		want -= take
		parts = append(parts, refundPart{leg: leg, amount: money.New(take, leg.Amount.Currency)})
	}
	return parts
}
