// internal/service/payment/adapter/giftcard.go
package adapter

import (
	"context"
	"strings"

	"bloom-payments/internal/domain/giftcard"
	"bloom-payments/internal/domain/payment"
	"bloom-payments/internal/pkg/money"

	"go.uber.org/zap"
)

type GiftCardLedger interface {
	Redeem(ctx context.Context, cardNumber string, amount money.Money, transactionID string) (*giftcard.Redemption, error)
	// Credit returns amount to the card debited by redemptionID.
	Credit(ctx context.Context, redemptionID string, amount money.Money, transactionID string) (*giftcard.Redemption, error)
}

// GiftCardAdapter pays with gift card or store credit balances.
type GiftCardAdapter struct {
	ledger GiftCardLedger
	logger *zap.Logger
}

func NewGiftCardAdapter(ledger GiftCardLedger, logger *zap.Logger) *GiftCardAdapter {
	return &GiftCardAdapter{ledger: ledger, logger: logger}
}

func (a *GiftCardAdapter) Provider() payment.Provider { return payment.ProviderGiftCard }

func (a *GiftCardAdapter) Supports(req payment.PaymentMethodRequest) bool {
	if req.Provider != "" && req.Provider != payment.ProviderGiftCard {
		return false
	}
	return req.Type == payment.MethodGiftCard || req.Type == payment.MethodStoreCredit
}

func (a *GiftCardAdapter) ProcessPayment(ctx context.Context, txn Txn, req payment.PaymentMethodRequest) payment.PaymentMethodResult {
	if req.GiftCard == nil || strings.TrimSpace(req.GiftCard.CardNumber) == "" {
		return payment.Failed(req, payment.ProviderGiftCard, payment.ErrorValidation, payment.CodeGiftCardError, "gift card number is required")
	}

	r, err := a.ledger.Redeem(ctx, req.GiftCard.CardNumber, req.Amount, txn.ID)
	if err != nil {
		a.logger.Warn("gift card redemption failed",
			zap.String("transaction_id", txn.ID),
			zap.String("card", maskCard(req.GiftCard.CardNumber)),
			zap.Error(err),
		)
		return payment.Failed(req, payment.ProviderGiftCard, payment.ErrorGiftCard, payment.CodeGiftCardError, err.Error())
	}

	remaining := r.RemainingBalance
	return payment.Captured(req, payment.ProviderGiftCard, r.RedemptionID, &payment.Receipt{
		Reference:        maskCard(r.CardNumber),
		RemainingBalance: &remaining,
	})
}

// RefundPayment puts the amount back on the card it was taken from.
func (a *GiftCardAdapter) RefundPayment(ctx context.Context, txn Txn, original payment.PaymentMethodResult, amount money.Money) payment.PaymentMethodResult {
	r, err := a.ledger.Credit(ctx, original.ProviderTransactionID, amount, txn.ID)
	if err != nil {
		req := payment.PaymentMethodRequest{Type: original.Type, Amount: amount.Neg()}
		return payment.Failed(req, payment.ProviderGiftCard, payment.ErrorGiftCard, payment.CodeGiftCardError, err.Error())
	}

	remaining := r.RemainingBalance
	return refundResult(original, amount, r.RedemptionID, &payment.Receipt{
		Reference:        maskCard(r.CardNumber),
		RemainingBalance: &remaining,
	})
}

func maskCard(number string) string {
	if len(number) <= 4 {
		return number
	}
	return strings.Repeat("*", len(number)-4) + number[len(number)-4:]
}
