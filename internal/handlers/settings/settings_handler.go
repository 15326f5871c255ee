// internal/handlers/settings/settings_handler.go
package settings

import (
	"context"
	"net/http"

	"bloom-payments/internal/domain/payment"
	"bloom-payments/internal/domain/settings"
	"bloom-payments/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

type Service interface {
	GetProviderSettings(ctx context.Context, p payment.Provider) (*settings.ProviderSettings, error)
	UpdateProviderSettings(ctx context.Context, p payment.Provider, in settings.UpdateProviderSettingsInput) (*settings.ProviderSettings, error)
	InvalidateProviderCache()
}

type SettingsHandler struct {
	settingsService Service
}

func NewSettingsHandler(settingsService Service) *SettingsHandler {
	return &SettingsHandler{settingsService: settingsService}
}

// GetProviderSettings returns a provider's settings; the secret is never sent back
func (h *SettingsHandler) GetProviderSettings(c *gin.Context) {
	s, err := h.settingsService.GetProviderSettings(c.Request.Context(), payment.Provider(c.Param("provider")))
	if err != nil {
		response.FromError(c, "provider settings not found", err)
		return
	}

	response.Success(c, http.StatusOK, "provider settings retrieved", gin.H{
		"settings":   s,
		"has_secret": s.HasSecret(),
	})
}

// UpdateProviderSettings stores new credentials and drops cached clients
func (h *SettingsHandler) UpdateProviderSettings(c *gin.Context) {
	var in settings.UpdateProviderSettingsInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	s, err := h.settingsService.UpdateProviderSettings(c.Request.Context(), payment.Provider(c.Param("provider")), in)
	if err != nil {
		response.FromError(c, "failed to update provider settings", err)
		return
	}

	response.Success(c, http.StatusOK, "provider settings updated", gin.H{
		"settings":   s,
		"has_secret": s.HasSecret(),
	})
}

// InvalidateProviderCache is called by the settings surface after it writes credentials directly
func (h *SettingsHandler) InvalidateProviderCache(c *gin.Context) {
	h.settingsService.InvalidateProviderCache()
	response.Success(c, http.StatusOK, "provider client cache invalidated", nil)
}
