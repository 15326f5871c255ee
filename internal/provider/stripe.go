// internal/provider/stripe.go
package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"bloom-payments/internal/domain/customer"
	"bloom-payments/internal/domain/payment"
	"bloom-payments/internal/pkg/money"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
)

// StripeClient talks to Stripe through a per-credential client.API so that a
// key rotation never touches the package level stripe.Key.
type StripeClient struct {
	api *client.API
}

func NewStripeClient(secretKey string) *StripeClient {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeClient{api: api}
}

func (c *StripeClient) CreateIntent(ctx context.Context, req ChargeRequest) (*Charge, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(req.Amount.Amount),
		Currency:           stripe.String(strings.ToLower(req.Amount.Currency)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	params.Context = ctx

	if req.SourceID != "" {
		params.PaymentMethod = stripe.String(req.SourceID)
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if req.SaveCard && req.CustomerID != "" {
		params.SetupFutureUsage = stripe.String(string(stripe.PaymentIntentSetupFutureUsageOffSession))
	}
	if req.OffSession {
		params.OffSession = stripe.Bool(true)
		params.Confirm = stripe.Bool(true)
		params.AddExpand("latest_charge")
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := c.api.PaymentIntents.New(params)
	if err != nil {
		return nil, translateStripeError(err)
	}
	return chargeFromIntent(pi), nil
}

func (c *StripeClient) ConfirmIntent(ctx context.Context, intentID, paymentMethodID string) (*Charge, error) {
	params := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(paymentMethodID),
	}
	params.Context = ctx
	params.AddExpand("latest_charge")

	pi, err := c.api.PaymentIntents.Confirm(intentID, params)
	if err != nil {
		return nil, translateStripeError(err)
	}
	return chargeFromIntent(pi), nil
}

func (c *StripeClient) CreateCustomer(ctx context.Context, contact customer.ContactInfo) (string, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	if contact.Name != "" {
		params.Name = stripe.String(contact.Name)
	}
	if contact.Email != "" {
		params.Email = stripe.String(contact.Email)
	}
	if contact.Phone != "" {
		params.Phone = stripe.String(contact.Phone)
	}

	cus, err := c.api.Customers.New(params)
	if err != nil {
		return "", translateStripeError(err)
	}
	return cus.ID, nil
}

func (c *StripeClient) ListCards(ctx context.Context, providerCustomerID string) ([]customer.SavedCard, error) {
	params := &stripe.PaymentMethodListParams{
		Customer: stripe.String(providerCustomerID),
		Type:     stripe.String(string(stripe.PaymentMethodTypeCard)),
	}
	params.Context = ctx

	var cards []customer.SavedCard
	iter := c.api.PaymentMethods.List(params)
	for iter.Next() {
		pm := iter.PaymentMethod()
		if pm.Card == nil {
			continue
		}
		cards = append(cards, customer.SavedCard{
			ID:                 pm.ID,
			Provider:           payment.ProviderStripe,
			ProviderCustomerID: providerCustomerID,
			Brand:              string(pm.Card.Brand),
			Last4:              pm.Card.Last4,
			ExpMonth:           int64(pm.Card.ExpMonth),
			ExpYear:            int64(pm.Card.ExpYear),
			Fingerprint:        pm.Card.Fingerprint,
		})
	}
	if err := iter.Err(); err != nil {
		return nil, translateStripeError(err)
	}
	return cards, nil
}

func (c *StripeClient) Refund(ctx context.Context, providerTxID string, amount money.Money, idempotencyKey string) (string, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(providerTxID),
		Amount:        stripe.Int64(amount.Amount),
	}
	params.Context = ctx
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}

	r, err := c.api.Refunds.New(params)
	if err != nil {
		return "", translateStripeError(err)
	}
	return r.ID, nil
}

func chargeFromIntent(pi *stripe.PaymentIntent) *Charge {
	ch := &Charge{
		ID:        pi.ID,
		RawStatus: string(pi.Status),
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		ch.Status = ChargeSucceeded
	case stripe.PaymentIntentStatusProcessing, stripe.PaymentIntentStatusRequiresCapture:
		ch.Status = ChargePending
	default:
		ch.Status = ChargeFailed
	}

	if lc := pi.LatestCharge; lc != nil {
		ch.AuthorizationCode = lc.AuthorizationCode
		if lc.PaymentMethodDetails != nil && lc.PaymentMethodDetails.Card != nil {
			ch.CardBrand = string(lc.PaymentMethodDetails.Card.Brand)
			ch.CardLast4 = lc.PaymentMethodDetails.Card.Last4
		}
	}
	return ch
}

func translateStripeError(err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		// anything that is not a decoded API error never reached Stripe's API layer
		return &APIError{
			Provider: payment.ProviderStripe,
			Category: CategoryNetwork,
			Message:  err.Error(),
			Err:      err,
		}
	}

	apiErr := &APIError{
		Provider:   payment.ProviderStripe,
		Category:   CategoryProvider,
		Code:       strings.ToUpper(string(se.Code)),
		Message:    se.Msg,
		HTTPStatus: se.HTTPStatusCode,
		Err:        err,
	}

	switch {
	case se.Code == stripe.ErrorCodeResourceMissing && (se.Param == "customer" || strings.Contains(se.Msg, "No such customer")):
		apiErr.Category = CategoryResourceMissing
	case se.Type == stripe.ErrorTypeCard && se.DeclineCode == stripe.DeclineCodeInsufficientFunds:
		apiErr.Category = CategoryInsufficientFunds
	case se.Type == stripe.ErrorTypeCard:
		apiErr.Category = CategoryCardDeclined
	case se.Type == stripe.ErrorTypeInvalidRequest && se.HTTPStatusCode < http.StatusInternalServerError:
		apiErr.Category = CategoryInvalidRequest
	}
	return apiErr
}
