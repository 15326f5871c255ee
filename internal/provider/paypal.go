// internal/provider/paypal.go
package provider

import (
	"context"
	"fmt"

	"bloom-payments/internal/domain/payment"
	"bloom-payments/internal/pkg/money"

	"github.com/plutov/paypal/v4"
)

type PayPalClient struct {
	client *paypal.Client
}

// NewPayPalClient builds a client; the access token is fetched lazily on the
// first API call.
func NewPayPalClient(clientID, secret string, sandbox bool) (*PayPalClient, error) {
	base := paypal.APIBaseLive
	if sandbox {
		base = paypal.APIBaseSandBox
	}

	c, err := paypal.NewClient(clientID, secret, base)
	if err != nil {
		return nil, fmt.Errorf("failed to create paypal client: %w", err)
	}
	return &PayPalClient{client: c}, nil
}

func (c *PayPalClient) CaptureOrder(ctx context.Context, orderID string) (*PayPalCapture, error) {
	resp, err := c.client.CaptureOrder(ctx, orderID, paypal.CaptureOrderRequest{})
	if err != nil {
		return nil, &APIError{
			Provider: payment.ProviderPayPal,
			Category: CategoryProvider,
			Message:  err.Error(),
			Err:      err,
		}
	}

	capture := &PayPalCapture{OrderID: resp.ID, Status: resp.Status}
	for _, pu := range resp.PurchaseUnits {
		if pu.Payments != nil && len(pu.Payments.Captures) > 0 {
			capture.CaptureID = pu.Payments.Captures[0].ID
			break
		}
	}
	return capture, nil
}

func (c *PayPalClient) RefundCapture(ctx context.Context, captureID string, amount money.Money) (string, error) {
	resp, err := c.client.RefundCapture(ctx, captureID, paypal.RefundCaptureRequest{
		Amount: &paypal.Money{
			Currency: amount.Currency,
			Value:    amount.MajorString(),
		},
	})
	if err != nil {
		return "", &APIError{
			Provider: payment.ProviderPayPal,
			Category: CategoryProvider,
			Message:  err.Error(),
			Err:      err,
		}
	}
	return resp.ID, nil
}
