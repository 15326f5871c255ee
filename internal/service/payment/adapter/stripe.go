// internal/service/payment/adapter/stripe.go
package adapter

import (
	"context"
	"strings"

	"bloom-payments/internal/domain/payment"
	"bloom-payments/internal/pkg/money"
	"bloom-payments/internal/provider"

	"go.uber.org/zap"
)

type StripeClients interface {
	StripeClient(ctx context.Context) (provider.StripeAPI, error)
}

type StripeAdapter struct {
	clients StripeClients
	linker  CustomerLinker
	logger  *zap.Logger
}

func NewStripeAdapter(clients StripeClients, linker CustomerLinker, logger *zap.Logger) *StripeAdapter {
	return &StripeAdapter{clients: clients, linker: linker, logger: logger}
}

func (a *StripeAdapter) Provider() payment.Provider { return payment.ProviderStripe }

func (a *StripeAdapter) Supports(req payment.PaymentMethodRequest) bool {
	if !req.Type.IsCard() {
		return false
	}
	if req.Provider != "" {
		return req.Provider == payment.ProviderStripe
	}
	return req.Card == nil || !isSquareToken(req.Card.Token)
}

func (a *StripeAdapter) ProcessPayment(ctx context.Context, txn Txn, req payment.PaymentMethodRequest) payment.PaymentMethodResult {
	if req.Card == nil || strings.TrimSpace(req.Card.Token) == "" {
		return payment.Failed(req, payment.ProviderStripe, payment.ErrorValidation, payment.CodeMissingToken, "card payment requires a payment token")
	}

	api, err := a.clients.StripeClient(ctx)
	if err != nil {
		return providerFailure(req, payment.ProviderStripe, err)
	}

	charge := provider.ChargeRequest{
		Amount:         req.Amount,
		SourceID:       req.Card.Token,
		IdempotencyKey: idempotencyKey(txn, req, "charge"),
		ReferenceID:    txn.Number,
		Description:    "Payment " + txn.Number,
		Metadata: map[string]string{
			"transaction_id":     txn.ID,
			"transaction_number": txn.Number,
			"customer_id":        txn.CustomerID,
		},
	}

	var result *provider.Charge
	if isSavedStripeCard(req.Card) {
		charge.OffSession = true
		err = a.linker.WithRecovery(ctx, payment.ProviderStripe, txn.CustomerID, txn.Contact,
			func(ctx context.Context, remoteID string) error {
				charge.CustomerID = remoteID
				var err error
				result, err = api.CreateIntent(ctx, charge)
				return err
			})
	} else {
		result, err = a.chargeFreshToken(ctx, api, txn, req, charge)
	}
	if err != nil {
		a.logger.Warn("stripe charge failed",
			zap.String("transaction_id", txn.ID),
			zap.Error(err),
		)
		return providerFailure(req, payment.ProviderStripe, err)
	}

	return chargeResult(req, payment.ProviderStripe, result)
}

func (a *StripeAdapter) chargeFreshToken(ctx context.Context, api provider.StripeAPI, txn Txn, req payment.PaymentMethodRequest, charge provider.ChargeRequest) (*provider.Charge, error) {
	if req.Card.SaveCard && txn.CustomerID != "" {
		remoteID, err := a.linker.GetOrCreate(ctx, payment.ProviderStripe, txn.CustomerID, txn.Contact)
		if err != nil {
			return nil, err
		}
		charge.CustomerID = remoteID
		charge.SaveCard = true
	}

	intent, err := api.CreateIntent(ctx, charge)
	if err != nil {
		return nil, err
	}
	return api.ConfirmIntent(ctx, intent.ID, req.Card.Token)
}

func (a *StripeAdapter) RefundPayment(ctx context.Context, txn Txn, original payment.PaymentMethodResult, amount money.Money) payment.PaymentMethodResult {
	api, err := a.clients.StripeClient(ctx)
	if err != nil {
		return refundFailure(original, amount, err)
	}

	refundID, err := api.Refund(ctx, original.ProviderTransactionID, amount, txn.ID+"-"+original.ProviderTransactionID)
	if err != nil {
		return refundFailure(original, amount, err)
	}
	return refundResult(original, amount, refundID, &payment.Receipt{Reference: original.ProviderTransactionID})
}

// chargeResult converts a provider charge into a tender result.
func chargeResult(req payment.PaymentMethodRequest, p payment.Provider, ch *provider.Charge) payment.PaymentMethodResult {
	receipt := &payment.Receipt{
		CardBrand: ch.CardBrand,
		CardLast4: ch.CardLast4,
	}

	var r payment.PaymentMethodResult
	switch ch.Status {
	case provider.ChargeSucceeded:
		r = payment.Captured(req, p, ch.ID, receipt)
	case provider.ChargePending:
		r = payment.Pending(req, p, ch.ID, receipt)
	default:
		r = payment.Failed(req, p, payment.ErrorProvider, payment.CodePaymentNotCompleted, "payment not completed: "+ch.RawStatus)
		r.ProviderTransactionID = ch.ID
	}
	r.AuthorizationCode = ch.AuthorizationCode
	return r
}

func isSavedStripeCard(card *payment.CardDetails) bool {
	if strings.HasPrefix(card.Token, "card_") {
		return true
	}
	return card.Saved && strings.HasPrefix(card.Token, "pm_")
}

func isSquareToken(token string) bool {
	return strings.HasPrefix(token, "ccof:") || strings.HasPrefix(token, "cnon:")
}

func isStripeToken(token string) bool {
	return strings.HasPrefix(token, "pm_") || strings.HasPrefix(token, "card_") || strings.HasPrefix(token, "tok_")
}
