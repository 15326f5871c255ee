// internal/handlers/customer/customer.go
package customer

import (
	"context"
	"net/http"
	"strings"

	"bloom-payments/internal/domain/customer"
	"bloom-payments/internal/domain/payment"
	"bloom-payments/internal/pkg/response"
	"bloom-payments/internal/provider"

	"github.com/gin-gonic/gin"
)

type SavedCardLister interface {
	ListSavedCards(ctx context.Context, p payment.Provider, customerID string) ([]customer.SavedCard, error)
}

// cardProviders are the processors that store cards on file
var cardProviders = []payment.Provider{payment.ProviderStripe, payment.ProviderSquare}

type CustomerHandler struct {
	cards SavedCardLister
}

func NewCustomerHandler(cards SavedCardLister) *CustomerHandler {
	return &CustomerHandler{cards: cards}
}

// ListSavedCards returns a customer's cards on file, for one provider or all of them
func (h *CustomerHandler) ListSavedCards(c *gin.Context) {
	customerID := c.Param("id")

	providers := cardProviders
	if raw := strings.TrimSpace(c.Query("provider")); raw != "" {
		p := payment.Provider(strings.ToUpper(raw))
		if p != payment.ProviderStripe && p != payment.ProviderSquare {
			response.Error(c, http.StatusBadRequest, "provider does not store cards", nil)
			return
		}
		providers = []payment.Provider{p}
	}

	cards := []customer.SavedCard{}
	for _, p := range providers {
		found, err := h.cards.ListSavedCards(c.Request.Context(), p, customerID)
		// Without an explicit provider, a processor that is switched off is skipped
		if err != nil && len(providers) > 1 && provider.IsConfigError(err) {
			continue
		}
		if err != nil {
			response.FromError(c, "failed to list saved cards", err)
			return
		}
		cards = append(cards, found...)
	}

	response.Success(c, http.StatusOK, "saved cards retrieved", gin.H{
		"customer_id": customerID,
		"cards":       cards,
		"count":       len(cards),
	})
}
