package order

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bloom-payments/internal/domain/order"
	"bloom-payments/internal/pkg/money"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSettlements map[string]*order.Settlement

func (s staticSettlements) Settlements(_ context.Context, ids []string) (map[string]*order.Settlement, error) {
	out := map[string]*order.Settlement{}
	for _, id := range ids {
		if st, ok := s[id]; ok {
			out[id] = st
		}
	}
	return out, nil
}

func newRouter(s staticSettlements) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewOrderHandler(s)
	r := gin.New()
	r.POST("/orders/adjustment-check", h.CheckAdjustment)
	r.GET("/orders/:id/settlement", h.GetSettlement)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCheckAdjustment(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		code      int
		required  bool
		direction string
	}{
		{"under threshold", `{"old_total": {"amount": 4500, "currency": "CAD"}, "new_total": {"amount": 4549, "currency": "CAD"}}`, http.StatusOK, false, ""},
		{"extra charge", `{"old_total": {"amount": 4500, "currency": "CAD"}, "new_total": {"amount": 5000, "currency": "CAD"}}`, http.StatusOK, true, "CHARGE"},
		{"refund due", `{"old_total": {"amount": 4500, "currency": "CAD"}, "new_total": {"amount": 4450, "currency": "CAD"}}`, http.StatusOK, true, "REFUND"},
		{"currency mismatch", `{"old_total": {"amount": 4500, "currency": "CAD"}, "new_total": {"amount": 4500, "currency": "USD"}}`, http.StatusBadRequest, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(newRouter(nil), http.MethodPost, "/orders/adjustment-check", tt.body)
			require.Equal(t, tt.code, w.Code)
			if tt.code != http.StatusOK {
				return
			}

			var body struct {
				Data order.AdjustmentCheck `json:"data"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.required, body.Data.Required)
			assert.Equal(t, tt.direction, body.Data.Direction)
		})
	}
}

func TestGetSettlement(t *testing.T) {
	s := staticSettlements{"ord_1": {
		OrderID:         "ord_1",
		OrderAmount:     money.New(4500, "CAD"),
		SettledPaid:     money.New(4500, "CAD"),
		SettledRefunded: money.New(1000, "CAD"),
	}}
	r := newRouter(s)

	w := do(r, http.MethodGet, "/orders/ord_1/settlement", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"payment_status":"PARTIALLY_REFUNDED"`)

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/orders/ord_2/settlement", "").Code)
}
