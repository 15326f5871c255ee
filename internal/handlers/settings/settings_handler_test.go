package settings

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bloom-payments/internal/domain/payment"
	"bloom-payments/internal/domain/settings"
	xerrors "bloom-payments/internal/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSettings struct {
	stored      map[payment.Provider]*settings.ProviderSettings
	invalidated int
	lastInput   settings.UpdateProviderSettingsInput
}

func (m *mockSettings) GetProviderSettings(_ context.Context, p payment.Provider) (*settings.ProviderSettings, error) {
	s, ok := m.stored[p]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return s, nil
}

func (m *mockSettings) UpdateProviderSettings(_ context.Context, p payment.Provider, in settings.UpdateProviderSettingsInput) (*settings.ProviderSettings, error) {
	m.lastInput = in
	s := &settings.ProviderSettings{Provider: p, Enabled: in.Enabled, EncryptedSecret: "enc:" + in.Secret, Environment: in.Environment}
	m.stored[p] = s
	m.invalidated++
	return s, nil
}

func (m *mockSettings) InvalidateProviderCache() { m.invalidated++ }

func newRouter(m *mockSettings) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewSettingsHandler(m)
	r := gin.New()
	r.GET("/settings/providers/:provider", h.GetProviderSettings)
	r.PUT("/settings/providers/:provider", h.UpdateProviderSettings)
	r.POST("/settings/providers/invalidate", h.InvalidateProviderCache)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestUpdateProviderSettingsNeverEchoesSecret(t *testing.T) {
	m := &mockSettings{stored: map[payment.Provider]*settings.ProviderSettings{}}
	w := do(newRouter(m), http.MethodPut, "/settings/providers/STRIPE", `{"enabled": true, "secret": "sk_live_abc", "environment": "production"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "sk_live_abc")
	assert.Contains(t, w.Body.String(), `"has_secret":true`)
	assert.Equal(t, settings.EnvProduction, m.lastInput.Environment)
}

func TestUpdateProviderSettingsRejectsEnvironment(t *testing.T) {
	m := &mockSettings{stored: map[payment.Provider]*settings.ProviderSettings{}}
	w := do(newRouter(m), http.MethodPut, "/settings/providers/STRIPE", `{"enabled": true, "environment": "staging"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, m.invalidated)
}

func TestGetProviderSettingsNotFound(t *testing.T) {
	m := &mockSettings{stored: map[payment.Provider]*settings.ProviderSettings{}}
	assert.Equal(t, http.StatusNotFound, do(newRouter(m), http.MethodGet, "/settings/providers/SQUARE", "").Code)
}

func TestInvalidateProviderCache(t *testing.T) {
	m := &mockSettings{stored: map[payment.Provider]*settings.ProviderSettings{}}
	w := do(newRouter(m), http.MethodPost, "/settings/providers/invalidate", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, m.invalidated)
}
