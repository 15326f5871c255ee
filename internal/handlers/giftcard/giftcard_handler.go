// internal/handlers/giftcard/giftcard_handler.go
package giftcard

import (
	"context"
	"net/http"

	"bloom-payments/internal/domain/giftcard"
	"bloom-payments/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

type CardLookup interface {
	Lookup(ctx context.Context, cardNumber string) (*giftcard.GiftCard, error)
}

type GiftCardHandler struct {
	cards CardLookup
}

func NewGiftCardHandler(cards CardLookup) *GiftCardHandler {
	return &GiftCardHandler{cards: cards}
}

// GetBalance answers a balance check at the counter
func (h *GiftCardHandler) GetBalance(c *gin.Context) {
	card, err := h.cards.Lookup(c.Request.Context(), c.Param("number"))
	if err != nil {
		response.FromError(c, "gift card not found", err)
		return
	}

	response.Success(c, http.StatusOK, "gift card retrieved", gin.H{
		"card_number": card.CardNumber,
		"kind":        card.Kind,
		"status":      card.Status,
		"balance":     card.Balance,
	})
}
