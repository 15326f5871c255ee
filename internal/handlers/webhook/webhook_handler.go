// internal/handlers/webhook/webhook_handler.go
package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"

	"bloom-payments/internal/domain/payment"
	xerrors "bloom-payments/internal/pkg/errors"
	"bloom-payments/internal/pkg/response"
	webhooksvc "bloom-payments/internal/service/webhook"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	StripeSignatureHeader = "Stripe-Signature"
	SquareSignatureHeader = "x-square-hmacsha256-signature"

	maxPayloadBytes = 1 << 20
)

type Reconciler interface {
	HandleProviderWebhookEvent(ctx context.Context, p payment.Provider, raw webhooksvc.RawEvent) error
}

type WebhookHandler struct {
	reconciler Reconciler
	logger     *zap.Logger
}

func NewWebhookHandler(reconciler Reconciler, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler, logger: logger}
}

func (h *WebhookHandler) Stripe(c *gin.Context) {
	h.receive(c, payment.ProviderStripe, StripeSignatureHeader)
}

func (h *WebhookHandler) Square(c *gin.Context) {
	h.receive(c, payment.ProviderSquare, SquareSignatureHeader)
}

// receive hands the raw body to the reconciler. Anything but a 2xx makes the
// provider redeliver, so only bad signatures and storage failures are errors.
func (h *WebhookHandler) receive(c *gin.Context, p payment.Provider, signatureHeader string) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxPayloadBytes))
	if err != nil {
		response.Error(c, http.StatusRequestEntityTooLarge, "webhook payload too large", err)
		return
	}

	err = h.reconciler.HandleProviderWebhookEvent(c.Request.Context(), p, webhooksvc.RawEvent{
		Payload:   payload,
		Signature: c.GetHeader(signatureHeader),
	})
	switch {
	case err == nil:
		response.Success(c, http.StatusOK, "webhook received", gin.H{"received": true})
	case errors.Is(err, xerrors.ErrInvalidSignature):
		response.Error(c, http.StatusBadRequest, "invalid webhook signature", nil)
	case errors.Is(err, xerrors.ErrConflict):
		// refused on purpose; the provider redelivers
		response.Error(c, http.StatusConflict, "payment is still processing, retry later", nil)
	default:
		h.logger.Error("webhook processing failed", zap.String("provider", string(p)), zap.Error(err))
		response.FromError(c, "webhook processing failed", err)
	}
}
