package adapter

import (
	"context"

	"bloom-payments/internal/domain/customer"
	"bloom-payments/internal/domain/giftcard"
	"bloom-payments/internal/domain/payment"
	"bloom-payments/internal/pkg/money"
	"bloom-payments/internal/provider"
)

type mockStripe struct {
	CreateIntentFunc  func(ctx context.Context, req provider.ChargeRequest) (*provider.Charge, error)
	ConfirmIntentFunc func(ctx context.Context, intentID, paymentMethodID string) (*provider.Charge, error)
	RefundFunc        func(ctx context.Context, providerTxID string, amount money.Money, key string) (string, error)

	intents []provider.ChargeRequest
}

func (m *mockStripe) CreateIntent(ctx context.Context, req provider.ChargeRequest) (*provider.Charge, error) {
	m.intents = append(m.intents, req)
	return m.CreateIntentFunc(ctx, req)
}

func (m *mockStripe) ConfirmIntent(ctx context.Context, intentID, paymentMethodID string) (*provider.Charge, error) {
	return m.ConfirmIntentFunc(ctx, intentID, paymentMethodID)
}

func (m *mockStripe) CreateCustomer(context.Context, customer.ContactInfo) (string, error) {
	return "cus_mock", nil
}

func (m *mockStripe) ListCards(context.Context, string) ([]customer.SavedCard, error) {
	return nil, nil
}

func (m *mockStripe) Refund(ctx context.Context, providerTxID string, amount money.Money, key string) (string, error) {
	return m.RefundFunc(ctx, providerTxID, amount, key)
}

type mockSquare struct {
	CreatePaymentFunc func(ctx context.Context, req provider.ChargeRequest) (*provider.Charge, error)
	payments          []provider.ChargeRequest
}

func (m *mockSquare) CreatePayment(ctx context.Context, req provider.ChargeRequest) (*provider.Charge, error) {
	m.payments = append(m.payments, req)
	return m.CreatePaymentFunc(ctx, req)
}

func (m *mockSquare) CreateCustomer(context.Context, customer.ContactInfo) (string, error) {
	return "sqc_mock", nil
}

func (m *mockSquare) ListCards(context.Context, string) ([]customer.SavedCard, error) {
	return nil, nil
}

func (m *mockSquare) Refund(context.Context, string, money.Money, string) (string, error) {
	return "sqr_1", nil
}

type mockClients struct {
	stripe provider.StripeAPI
	square provider.SquareAPI
	paypal provider.PayPalAPI
	err    error
}

func (m mockClients) StripeClient(context.Context) (provider.StripeAPI, error) { return m.stripe, m.err }
func (m mockClients) SquareClient(context.Context) (provider.SquareAPI, error) { return m.square, m.err }
func (m mockClients) PayPalClient(context.Context) (provider.PayPalAPI, error) { return m.paypal, m.err }

// mockLinker hands out remoteIDs in order, one per (re)creation.
type mockLinker struct {
	remoteIDs  []string
	recoveries int
}

func (m *mockLinker) GetOrCreate(context.Context, payment.Provider, string, customer.ContactInfo) (string, error) {
	return m.remoteIDs[0], nil
}

func (m *mockLinker) WithRecovery(ctx context.Context, _ payment.Provider, _ string, _ customer.ContactInfo, op func(ctx context.Context, remoteID string) error) error {
	err := op(ctx, m.remoteIDs[0])
	if err == nil || len(m.remoteIDs) < 2 {
		return err
	}
	m.recoveries++
	return op(ctx, m.remoteIDs[1])
}

type mockPayPal struct {
	CaptureOrderFunc func(ctx context.Context, orderID string) (*provider.PayPalCapture, error)
}

func (m *mockPayPal) CaptureOrder(ctx context.Context, orderID string) (*provider.PayPalCapture, error) {
	return m.CaptureOrderFunc(ctx, orderID)
}

func (m *mockPayPal) RefundCapture(context.Context, string, money.Money) (string, error) {
	return "ppr_1", nil
}

type mockLedger struct {
	RedeemFunc func(ctx context.Context, cardNumber string, amount money.Money, txID string) (*giftcard.Redemption, error)
	CreditFunc func(ctx context.Context, redemptionID string, amount money.Money, txID string) (*giftcard.Redemption, error)
}

func (m *mockLedger) Redeem(ctx context.Context, cardNumber string, amount money.Money, txID string) (*giftcard.Redemption, error) {
	return m.RedeemFunc(ctx, cardNumber, amount, txID)
}

func (m *mockLedger) Credit(ctx context.Context, redemptionID string, amount money.Money, txID string) (*giftcard.Redemption, error) {
	return m.CreditFunc(ctx, redemptionID, amount, txID)
}

type panicAdapter struct{}

func (panicAdapter) Provider() payment.Provider { return payment.ProviderInternal }
func (panicAdapter) Supports(payment.PaymentMethodRequest) bool { return true }
func (panicAdapter) ProcessPayment(context.Context, Txn, payment.PaymentMethodRequest) payment.PaymentMethodResult {
	panic("boom")
}

func cad(cents int64) money.Money { return money.New(cents, "CAD") }

var testTxn = Txn{ID: "txn_1", Number: "PT-10001", CustomerID: "c1", Contact: customer.ContactInfo{Name: "Ada Lovelace"}}
