package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bloom-payments/internal/domain/customer"
	"bloom-payments/internal/domain/payment"
	"bloom-payments/internal/events"
	xerrors "bloom-payments/internal/pkg/errors"
	"bloom-payments/internal/pkg/money"
	"bloom-payments/internal/service/payment/adapter"

	"go.uber.org/zap"
)

// memStore is an in-memory TransactionStore with the same guard semantics as
// the postgres repository.
type memStore struct {
	mu    sync.Mutex
	seq   map[string]int64
	txns  map[string]*payment.PaymentTransaction
	saves int

	nextErr      error
	createErr    error
	onTransition func(t *payment.PaymentTransaction)
}

func newMemStore() *memStore {
	return &memStore{seq: map[string]int64{}, txns: map[string]*payment.PaymentTransaction{}}
}

func (m *memStore) NextNumber(_ context.Context, prefix string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nextErr != nil {
		return "", m.nextErr
	}
	if m.seq[prefix] == 0 {
		m.seq[prefix] = payment.FirstSequenceNumber - 1
	}
	m.seq[prefix]++
	return payment.FormatNumber(prefix, m.seq[prefix]), nil
}

func (m *memStore) Create(_ context.Context, t *payment.PaymentTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.txns[t.ID] = clone(t)
	return nil
}

func (m *memStore) SaveResults(_ context.Context, id string, methods []payment.PaymentMethodResult, giftCards []payment.GiftCardResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.txns[id]
	if !ok {
		return xerrors.ErrNotFound
	}
	m.saves++
	if t.Status != payment.StatusProcessing {
		return fmt.Errorf("%w: transaction %s is no longer processing", xerrors.ErrConflict, id)
	}
	t.PaymentMethods = append([]payment.PaymentMethodResult(nil), methods...)
	t.GiftCards = append([]payment.GiftCardResult(nil), giftCards...)
	return nil
}

func (m *memStore) AwaitConfirmation(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.txns[id]
	if !ok {
		return false, xerrors.ErrNotFound
	}
	if t.Status != payment.StatusProcessing {
		return false, nil
	}
	t.AwaitingConfirmation = true
	return true, nil
}

// ConfirmPayment is what the webhook reconciler calls on the repository.
func (m *memStore) ConfirmPayment(_ context.Context, id string, c payment.Confirmation) (*payment.PaymentTransaction, payment.ConfirmOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.txns[id]
	if !ok {
		return nil, payment.ConfirmIgnored, xerrors.ErrNotFound
	}
	outcome := payment.ApplyConfirmation(t, c, time.Now())
	return clone(t), outcome, nil
}

func (m *memStore) TransitionStatus(_ context.Context, id string, status payment.TransactionStatus, msgs []string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.txns[id]
	if !ok {
		return false, xerrors.ErrNotFound
	}
	if m.onTransition != nil {
		m.onTransition(t)
	}
	if t.Status != payment.StatusProcessing || t.AwaitingConfirmation {
		return false, nil
	}
	t.Status = status
	t.ErrorMessages = append(t.ErrorMessages, msgs...)
	return true, nil
}

func (m *memStore) FindByID(_ context.Context, id string) (*payment.PaymentTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.txns[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return clone(t), nil
}

func (m *memStore) FindByNumber(_ context.Context, number string) (*payment.PaymentTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.txns {
		if t.TransactionNumber == number {
			return clone(t), nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (m *memStore) FindRefunds(_ context.Context, originalID string) ([]*payment.PaymentTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*payment.PaymentTransaction
	for _, t := range m.txns {
		if t.RefundOf == originalID {
			out = append(out, clone(t))
		}
	}
	return out, nil
}

func (m *memStore) Search(context.Context, payment.SearchCriteria) ([]*payment.PaymentTransaction, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*payment.PaymentTransaction
	for _, t := range m.txns {
		out = append(out, clone(t))
	}
	return out, int64(len(out)), nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.txns)
}

func (m *memStore) put(t *payment.PaymentTransaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txns[t.ID] = clone(t)
}

func clone(t *payment.PaymentTransaction) *payment.PaymentTransaction {
	c := *t
	c.PaymentMethods = append([]payment.PaymentMethodResult(nil), t.PaymentMethods...)
	c.GiftCards = append([]payment.GiftCardResult(nil), t.GiftCards...)
	c.ErrorMessages = append([]string(nil), t.ErrorMessages...)
	return &c
}

type mockCustomers struct {
	FindByIDFunc       func(ctx context.Context, id string) (*customer.Customer, error)
	CreateFromDataFunc func(ctx context.Context, data payment.CustomerData) (*customer.Customer, error)

	mu       sync.Mutex
	guests   int
	fromData int
}

func (m *mockCustomers) FindByID(ctx context.Context, id string) (*customer.Customer, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	return &customer.Customer{ID: id, FirstName: "Rose", LastName: "Tyler"}, nil
}

func (m *mockCustomers) CreateGuest(context.Context) (*customer.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.guests++
	return &customer.Customer{ID: "guest_1", FirstName: customer.GuestFirstName, LastName: customer.GuestLastName, Type: customer.TypeWalkIn}, nil
}

func (m *mockCustomers) CreateFromData(ctx context.Context, data payment.CustomerData) (*customer.Customer, error) {
	m.mu.Lock()
	m.fromData++
	m.mu.Unlock()
	if m.CreateFromDataFunc != nil {
		return m.CreateFromDataFunc(ctx, data)
	}
	return &customer.Customer{ID: "cust_new", FirstName: data.FirstName, LastName: data.LastName}, nil
}

type refundCall struct {
	original payment.PaymentMethodResult
	amount   money.Money
}

type fakeDispatcher struct {
	DispatchFunc func(ctx context.Context, txn adapter.Txn, req payment.PaymentMethodRequest) payment.PaymentMethodResult
	RefundFunc   func(ctx context.Context, txn adapter.Txn, original payment.PaymentMethodResult, amount money.Money) payment.PaymentMethodResult

	mu      sync.Mutex
	calls   int
	refunds []refundCall
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, txn adapter.Txn, req payment.PaymentMethodRequest) payment.PaymentMethodResult {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	if d.DispatchFunc != nil {
		return d.DispatchFunc(ctx, txn, req)
	}
	p := payment.DefaultProviderFor(req.Type, "")
	return payment.Captured(req, p, "prov_"+string(req.Type), nil)
}

func (d *fakeDispatcher) Refund(ctx context.Context, txn adapter.Txn, original payment.PaymentMethodResult, amount money.Money) payment.PaymentMethodResult {
	d.mu.Lock()
	d.refunds = append(d.refunds, refundCall{original: original, amount: amount})
	d.mu.Unlock()
	if d.RefundFunc != nil {
		return d.RefundFunc(ctx, txn, original, amount)
	}
	req := payment.PaymentMethodRequest{Type: original.Type, Amount: amount.Neg()}
	return payment.Captured(req, original.Provider, "re_"+original.ProviderTransactionID, nil)
}

type mockActivator struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (m *mockActivator) Activate(_ context.Context, _ adapter.Txn, req payment.GiftCardRequest) payment.GiftCardResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.fail {
		return payment.GiftCardResult{Amount: req.Amount, Status: payment.GiftCardFailed, ErrorMessage: "card stock unavailable"}
	}
	return payment.GiftCardResult{
		CardNumber:     "GC00000001",
		Amount:         req.Amount,
		Status:         payment.GiftCardActivated,
		DeliveryMethod: req.DeliveryMethod,
		DeliveryStatus: payment.DeliveryNotRequired,
	}
}

type mockSettler struct {
	mu           sync.Mutex
	paid         [][]string
	recalculated [][]string
}

func (m *mockSettler) MarkPaid(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paid = append(m.paid, ids)
	return nil
}

func (m *mockSettler) Recalculate(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recalculated = append(m.recalculated, ids)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

type fixture struct {
	store      *memStore
	customers  *mockCustomers
	dispatcher *fakeDispatcher
	activator  *mockActivator
	settler    *mockSettler
	publisher  *recordingPublisher
	svc        *TransactionService
}

func newFixture() *fixture {
	f := &fixture{
		store:      newMemStore(),
		customers:  &mockCustomers{},
		dispatcher: &fakeDispatcher{},
		activator:  &mockActivator{},
		settler:    &mockSettler{},
		publisher:  &recordingPublisher{},
	}
	f.svc = NewTransactionService(f.store, f.customers, f.dispatcher, f.activator, f.settler, f.publisher, zap.NewNop())
	return f
}

func cad(cents int64) money.Money { return money.New(cents, "CAD") }

func cartOf(total int64) payment.CartSnapshot {
	return payment.CartSnapshot{
		Items: []payment.CartItem{
			{ProductID: "roses-dozen", Name: "Dozen Red Roses", Quantity: 1, UnitPrice: cad(total), Total: cad(total)},
		},
		Subtotal:   cad(total),
		Discount:   cad(0),
		Tax:        cad(0),
		GrandTotal: cad(total),
	}
}

func cardMethod(cents int64) payment.PaymentMethodRequest {
	return payment.PaymentMethodRequest{
		Type:   payment.MethodCard,
		Amount: cad(cents),
		Card:   &payment.CardDetails{Token: "pm_card_visa"},
	}
}

func cashMethod(cents, tendered int64) payment.PaymentMethodRequest {
	return payment.PaymentMethodRequest{
		Type:   payment.MethodCash,
		Amount: cad(cents),
		Cash:   &payment.CashDetails{AmountTendered: cad(tendered)},
	}
}

func giftCardMethod(cents int64) payment.PaymentMethodRequest {
	return payment.PaymentMethodRequest{
		Type:     payment.MethodGiftCard,
		Amount:   cad(cents),
		GiftCard: &payment.GiftCardDetails{CardNumber: "GC12345678"},
	}
}

func checkout(total int64, methods ...payment.PaymentMethodRequest) payment.TransactionRequest {
	return payment.TransactionRequest{
		Customer:       &payment.CustomerData{ID: "cust_1"},
		PaymentMethods: methods,
		Cart:           cartOf(total),
		EmployeeID:     "emp_7",
		Channel:        payment.ChannelPOS,
	}
}
