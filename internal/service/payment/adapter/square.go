// internal/service/payment/adapter/square.go
package adapter

import (
	"context"
	"strings"

	"bloom-payments/internal/domain/payment"
	"bloom-payments/internal/pkg/money"
	"bloom-payments/internal/provider"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SquareClients interface {
	SquareClient(ctx context.Context) (provider.SquareAPI, error)
}

type SquareAdapter struct {
	clients SquareClients
	linker  CustomerLinker
	logger  *zap.Logger
}

func NewSquareAdapter(clients SquareClients, linker CustomerLinker, logger *zap.Logger) *SquareAdapter {
	return &SquareAdapter{clients: clients, linker: linker, logger: logger}
}

func (a *SquareAdapter) Provider() payment.Provider { return payment.ProviderSquare }

func (a *SquareAdapter) Supports(req payment.PaymentMethodRequest) bool {
	if !req.Type.IsCard() {
		return false
	}
	if req.Provider != "" {
		return req.Provider == payment.ProviderSquare
	}
	return req.Card == nil || !isStripeToken(req.Card.Token)
}

func (a *SquareAdapter) ProcessPayment(ctx context.Context, txn Txn, req payment.PaymentMethodRequest) payment.PaymentMethodResult {
	if req.Card == nil || strings.TrimSpace(req.Card.Token) == "" {
		return payment.Failed(req, payment.ProviderSquare, payment.ErrorValidation, payment.CodeMissingToken, "card payment requires a payment token")
	}

	api, err := a.clients.SquareClient(ctx)
	if err != nil {
		return providerFailure(req, payment.ProviderSquare, err)
	}

	if req.Card.SaveCard {
		a.logger.Debug("square does not store cards during checkout, ignoring save_card",
			zap.String("transaction_id", txn.ID))
	}

	charge := provider.ChargeRequest{
		Amount:         req.Amount,
		SourceID:       req.Card.Token,
		IdempotencyKey: uuid.NewSHA1(uuid.NameSpaceOID, []byte(idempotencyKey(txn, req, "charge"))).String(),
		ReferenceID:    txn.Number,
		Description:    "Payment " + txn.Number,
	}

	var result *provider.Charge
	if isSavedSquareCard(req.Card) {
		err = a.linker.WithRecovery(ctx, payment.ProviderSquare, txn.CustomerID, txn.Contact,
			func(ctx context.Context, remoteID string) error {
				charge.CustomerID = remoteID
				var err error
				result, err = api.CreatePayment(ctx, charge)
				return err
			})
	} else {
		result, err = api.CreatePayment(ctx, charge)
	}
	if err != nil {
		a.logger.Warn("square payment failed",
			zap.String("transaction_id", txn.ID),
			zap.Error(err),
		)
		return providerFailure(req, payment.ProviderSquare, err)
	}

	return chargeResult(req, payment.ProviderSquare, result)
}

func (a *SquareAdapter) RefundPayment(ctx context.Context, txn Txn, original payment.PaymentMethodResult, amount money.Money) payment.PaymentMethodResult {
	api, err := a.clients.SquareClient(ctx)
	if err != nil {
		return refundFailure(original, amount, err)
	}

	key := uuid.NewSHA1(uuid.NameSpaceOID, []byte(txn.ID+"-"+original.ProviderTransactionID)).String()
	refundID, err := api.Refund(ctx, original.ProviderTransactionID, amount, key)
	if err != nil {
		return refundFailure(original, amount, err)
	}
	return refundResult(original, amount, refundID, &payment.Receipt{Reference: original.ProviderTransactionID})
}

func isSavedSquareCard(card *payment.CardDetails) bool {
	return strings.HasPrefix(card.Token, "ccof:") || card.Saved
}
