// internal/service/webhook/parse.go
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"bloom-payments/internal/domain/payment"
	xerrors "bloom-payments/internal/pkg/errors"

	"github.com/stripe/stripe-go/v74"
	stripewebhook "github.com/stripe/stripe-go/v74/webhook"
)

// RawEvent is an unverified delivery: the body exactly as received plus the
// provider's signature header.
type RawEvent struct {
	Payload   []byte
	Signature string
}

// notification is a verified event reduced to what reconciliation needs.
type notification struct {
	Provider     payment.Provider
	EventID      string
	EventType    string
	ProviderTxID string
	// Status is empty for events that never move a transaction.
	Status payment.TransactionStatus
	Detail string
}

func parseStripe(raw RawEvent, secret string) (*notification, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: stripe webhook secret is not configured", xerrors.ErrInvalidSignature)
	}

	event, err := stripewebhook.ConstructEvent(raw.Payload, raw.Signature, secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", xerrors.ErrInvalidSignature, err)
	}

	n := &notification{
		Provider:  payment.ProviderStripe,
		EventID:   event.ID,
		EventType: string(event.Type),
	}
	if event.Data == nil {
		return n, nil
	}

	switch n.EventType {
	case "payment_intent.succeeded", "payment_intent.payment_failed", "payment_intent.canceled":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("failed to parse payment intent: %w", err)
		}
		n.ProviderTxID = pi.ID

		switch n.EventType {
		case "payment_intent.succeeded":
			n.Status = payment.StatusCompleted
		case "payment_intent.payment_failed":
			n.Status = payment.StatusFailed
			n.Detail = "stripe reported the payment failed"
			if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
				n.Detail += ": " + pi.LastPaymentError.Msg
			}
		default:
			n.Status = payment.StatusCancelled
			n.Detail = "stripe reported the payment was canceled"
		}

	case "charge.dispute.created":
		var d struct {
			ID            string `json:"id"`
			PaymentIntent string `json:"payment_intent"`
			Reason        string `json:"reason"`
		}
		if err := json.Unmarshal(event.Data.Raw, &d); err != nil {
			return nil, fmt.Errorf("failed to parse dispute: %w", err)
		}
		n.ProviderTxID = d.PaymentIntent
		n.Detail = fmt.Sprintf("dispute %s opened: %s", d.ID, d.Reason)
	}
	return n, nil
}

type squareEvent struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Data    struct {
		ID     string `json:"id"`
		Object struct {
			Payment struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"payment"`
		} `json:"object"`
	} `json:"data"`
}

// SquareSignature is base64(HMAC-SHA256(key, notificationURL + body)).
func SquareSignature(signatureKey, notificationURL string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(signatureKey))
	mac.Write([]byte(notificationURL))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func parseSquare(raw RawEvent, signatureKey, notificationURL string) (*notification, error) {
	if signatureKey == "" {
		return nil, fmt.Errorf("%w: square signature key is not configured", xerrors.ErrInvalidSignature)
	}

	expected := SquareSignature(signatureKey, notificationURL, raw.Payload)
	if raw.Signature == "" || !hmac.Equal([]byte(expected), []byte(raw.Signature)) {
		return nil, xerrors.ErrInvalidSignature
	}

	var e squareEvent
	if err := json.Unmarshal(raw.Payload, &e); err != nil {
		return nil, fmt.Errorf("failed to parse square event: %w", err)
	}

	n := &notification{
		Provider:  payment.ProviderSquare,
		EventID:   e.EventID,
		EventType: e.Type,
	}
	if e.Type != "payment.created" && e.Type != "payment.updated" {
		return n, nil
	}

	p := e.Data.Object.Payment
	n.ProviderTxID = p.ID
	if n.ProviderTxID == "" {
		n.ProviderTxID = e.Data.ID
	}

	switch p.Status {
	case "COMPLETED":
		n.Status = payment.StatusCompleted
	case "FAILED":
		n.Status = payment.StatusFailed
		n.Detail = "square reported the payment failed"
	case "CANCELED":
		n.Status = payment.StatusCancelled
		n.Detail = "square reported the payment was canceled"
	}
	return n, nil
}
