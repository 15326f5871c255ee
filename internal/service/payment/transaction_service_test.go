package payment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"bloom-payments/internal/domain/customer"
	"bloom-payments/internal/domain/payment"
	"bloom-payments/internal/events"
	xerrors "bloom-payments/internal/pkg/errors"
	"bloom-payments/internal/service/payment/adapter"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestProcessTransactionCardCheckout(t *testing.T) {
	f := newFixture()
	f.dispatcher.DispatchFunc = func(_ context.Context, txn adapter.Txn, req payment.PaymentMethodRequest) payment.PaymentMethodResult {
		assert.Equal(t, "cust_1", txn.CustomerID)
		assert.Equal(t, "PT-10001", txn.Number)
		return payment.Captured(req, payment.ProviderStripe, "pi_123", &payment.Receipt{CardBrand: "visa", CardLast4: "4242"})
	}

	req := checkout(4500, cardMethod(4500))
	req.OrderIDs = []string{"ord_1"}

	result, err := f.svc.ProcessTransaction(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, payment.StatusCompleted, result.Status)
	assert.Equal(t, "PT-10001", result.TransactionNumber)
	assert.Equal(t, cad(4500), result.TotalProcessed)
	assert.Equal(t, cad(0), result.TotalFailed)
	assert.Empty(t, result.Errors)
	require.Len(t, result.PaymentResults, 1)
	assert.Equal(t, payment.MethodCaptured, result.PaymentResults[0].Status)

	stored, err := f.store.FindByID(context.Background(), result.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, stored.Status)
	assert.Equal(t, "pi_123", stored.PaymentMethods[0].ProviderTransactionID)
	assert.Equal(t, "emp_7", stored.EmployeeID)
	assert.Equal(t, "Rose", stored.Customer.FirstName)

	assert.Equal(t, [][]string{{"ord_1"}}, f.settler.paid)
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, events.TransactionCompleted, f.publisher.events[0].Type)
}

func TestProcessTransactionCashGivesChange(t *testing.T) {
	f := newFixture()
	dispatcher := adapter.NewDispatcher(zap.NewNop(), adapter.NewOfflineAdapter())
	svc := NewTransactionService(f.store, f.customers, dispatcher, f.activator, f.settler, nil, zap.NewNop())

	result, err := svc.ProcessTransaction(context.Background(), checkout(1500, cashMethod(1500, 2000)))
	require.NoError(t, err)

	require.True(t, result.Success)
	r := result.PaymentResults[0]
	assert.Equal(t, payment.ProviderInternal, r.Provider)
	require.NotNil(t, r.Receipt)
	assert.Equal(t, cad(2000), *r.Receipt.AmountTendered)
	assert.Equal(t, cad(500), *r.Receipt.ChangeDue)
	assert.Equal(t, "CASH-PT-10001", r.Receipt.ReceiptNumber)
}

func TestProcessTransactionInsufficientCash(t *testing.T) {
	f := newFixture()
	dispatcher := adapter.NewDispatcher(zap.NewNop(), adapter.NewOfflineAdapter())
	svc := NewTransactionService(f.store, f.customers, dispatcher, f.activator, f.settler, nil, zap.NewNop())

	result, err := svc.ProcessTransaction(context.Background(), checkout(1500, cashMethod(1500, 1000)))
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, payment.StatusFailed, result.Status)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, payment.CodeInsufficientCash, result.Errors[0].Code)
	assert.True(t, result.Errors[0].Retryable)
}

func TestProcessTransactionMixedTenderKeepsPartialResults(t *testing.T) {
	f := newFixture()
	f.dispatcher.DispatchFunc = func(_ context.Context, _ adapter.Txn, req payment.PaymentMethodRequest) payment.PaymentMethodResult {
		if req.Type == payment.MethodGiftCard {
			return payment.Failed(req, payment.ProviderGiftCard, payment.ErrorGiftCard, payment.CodeGiftCardError, "insufficient gift card balance")
		}
		return payment.Captured(req, payment.ProviderStripe, "pi_mixed", nil)
	}

	req := checkout(4500, cardMethod(3000), giftCardMethod(1500))
	req.OrderIDs = []string{"ord_9"}
	result, err := f.svc.ProcessTransaction(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, payment.StatusFailed, result.Status)
	require.Len(t, result.PaymentResults, 2)
	assert.Equal(t, payment.MethodCaptured, result.PaymentResults[0].Status)
	assert.Equal(t, payment.MethodFailed, result.PaymentResults[1].Status)
	assert.Equal(t, cad(3000), result.TotalProcessed)
	assert.Equal(t, cad(1500), result.TotalFailed)

	require.Len(t, result.Errors, 1)
	assert.Equal(t, payment.ErrorGiftCard, result.Errors[0].Kind)
	assert.True(t, result.Errors[0].Retryable)

	stored, err := f.store.FindByID(context.Background(), result.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusFailed, stored.Status)
	assert.Len(t, stored.PaymentMethods, 2)
	assert.NotEmpty(t, stored.ErrorMessages)
	assert.Empty(t, f.settler.paid)
}

func TestProcessTransactionValidation(t *testing.T) {
	tests := []struct {
		name string
		req  payment.TransactionRequest
		code string
	}{
		{
			name: "no payment methods",
			req:  checkout(4500),
			code: payment.CodeNoPaymentMethods,
		},
		{
			name: "no cart items",
			req: func() payment.TransactionRequest {
				r := checkout(4500, cardMethod(4500))
				r.Cart.Items = nil
				return r
			}(),
			code: payment.CodeNoCartItems,
		},
		{
			name: "amount mismatch",
			req:  checkout(4500, cardMethod(4400)),
			code: payment.CodeAmountMismatch,
		},
		{
			name: "two cents off",
			req:  checkout(4500, cardMethod(4498)),
			code: payment.CodeAmountMismatch,
		},
		{
			name: "card without details",
			req: checkout(4500, payment.PaymentMethodRequest{
				Type:   payment.MethodCard,
				Amount: cad(4500),
			}),
			code: payment.CodeInvalidPaymentMethod,
		},
		{
			name: "zero amount tender",
			req: checkout(4500, cardMethod(4500), payment.PaymentMethodRequest{
				Type: payment.MethodCash,
				Cash: &payment.CashDetails{},
			}),
			code: payment.CodeInvalidPaymentMethod,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			result, err := f.svc.ProcessTransaction(context.Background(), tt.req)
			require.NoError(t, err)

			assert.False(t, result.Success)
			require.NotEmpty(t, result.Errors)
			assert.Equal(t, tt.code, result.Errors[0].Code)
			assert.Equal(t, payment.ErrorValidation, result.Errors[0].Kind)
			assert.False(t, result.Errors[0].Retryable)
			assert.Empty(t, result.TransactionID)
			assert.Zero(t, f.store.count(), "no record is created")
			assert.Zero(t, f.dispatcher.calls)
		})
	}
}

func TestProcessTransactionCurrencyMismatch(t *testing.T) {
	f := newFixture()
	m := cardMethod(4500)
	m.Amount.Currency = "USD"

	result, err := f.svc.ProcessTransaction(context.Background(), checkout(4500, m))
	require.NoError(t, err)

	require.Len(t, result.Errors, 1)
	assert.Equal(t, payment.CodeAmountMismatch, result.Errors[0].Code)
	assert.Zero(t, f.store.count())
}

func TestProcessTransactionWithinTolerance(t *testing.T) {
	f := newFixture()
	result, err := f.svc.ProcessTransaction(context.Background(), checkout(4500, cardMethod(4499)))
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, cad(4499), result.TotalProcessed)
	assert.Equal(t, cad(1), result.TotalFailed)
}

func TestTransactionNumbersStartAtFirstSequence(t *testing.T) {
	f := newFixture()

	first, err := f.svc.ProcessTransaction(context.Background(), checkout(1000, cardMethod(1000)))
	require.NoError(t, err)
	second, err := f.svc.ProcessTransaction(context.Background(), checkout(1000, cardMethod(1000)))
	require.NoError(t, err)

	assert.Equal(t, "PT-10001", first.TransactionNumber)
	assert.Equal(t, "PT-10002", second.TransactionNumber)
}

func TestGetTransactionByIDOrNumber(t *testing.T) {
	f := newFixture()
	result, err := f.svc.ProcessTransaction(context.Background(), checkout(1000, cardMethod(1000)))
	require.NoError(t, err)

	byID, err := f.svc.GetTransaction(context.Background(), result.TransactionID)
	require.NoError(t, err)
	byNumber, err := f.svc.GetTransaction(context.Background(), "PT-10001")
	require.NoError(t, err)
	assert.Equal(t, byID.ID, byNumber.ID)

	_, err = f.svc.GetTransaction(context.Background(), "PT-99999")
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}

func TestConcurrentCheckoutsGetDistinctNumbers(t *testing.T) {
	f := newFixture()
	const n = 25

	var wg sync.WaitGroup
	numbers := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := f.svc.ProcessTransaction(context.Background(), checkout(1000, cardMethod(1000)))
			assert.NoError(t, err)
			numbers[i] = result.TransactionNumber
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	var seqs []int64
	for _, num := range numbers {
		assert.False(t, seen[num], "duplicate number %s", num)
		seen[num] = true
		seq, err := payment.ParseNumber(payment.TransactionPrefix, num)
		require.NoError(t, err)
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	assert.Equal(t, payment.FirstSequenceNumber, seqs[0])
	assert.Equal(t, payment.FirstSequenceNumber+n-1, seqs[n-1])
}

func TestProviderCallTimeout(t *testing.T) {
	f := newFixture()
	f.svc.SetProviderCallTimeout(20 * time.Millisecond)
	f.dispatcher.DispatchFunc = func(ctx context.Context, _ adapter.Txn, req payment.PaymentMethodRequest) payment.PaymentMethodResult {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		return payment.Captured(req, payment.ProviderStripe, "pi_late", nil)
	}

	result, err := f.svc.ProcessTransaction(context.Background(), checkout(4500, cardMethod(4500)))
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, payment.StatusFailed, result.Status)
	r := result.PaymentResults[0]
	assert.Equal(t, payment.MethodFailed, r.Status)
	assert.Equal(t, payment.CodeProviderTimeout, r.ErrorCode)
	assert.Equal(t, payment.ErrorNetwork, r.ErrorKind)
	assert.Equal(t, payment.ProviderStripe, r.Provider)
	assert.True(t, result.Errors[0].Retryable)
}

func TestCashOnDeliveryCannotComplete(t *testing.T) {
	f := newFixture()
	dispatcher := adapter.NewDispatcher(zap.NewNop(), adapter.NewOfflineAdapter())
	svc := NewTransactionService(f.store, f.customers, dispatcher, f.activator, f.settler, nil, zap.NewNop())

	result, err := svc.ProcessTransaction(context.Background(), checkout(3000, payment.PaymentMethodRequest{
		Type:   payment.MethodCOD,
		Amount: cad(3000),
	}))
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, payment.StatusFailed, result.Status)
	assert.Equal(t, payment.MethodPending, result.PaymentResults[0].Status)
	assert.Equal(t, payment.CodePaymentNotCompleted, result.Errors[0].Code)
}

func TestPendingProviderPaymentAwaitsWebhook(t *testing.T) {
	f := newFixture()
	f.dispatcher.DispatchFunc = func(_ context.Context, _ adapter.Txn, req payment.PaymentMethodRequest) payment.PaymentMethodResult {
		return payment.Pending(req, payment.ProviderSquare, "sq_pay_1", nil)
	}

	result, err := f.svc.ProcessTransaction(context.Background(), checkout(2500, cardMethod(2500)))
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, payment.StatusProcessing, result.Status)
	assert.Contains(t, result.Warnings, "payment is awaiting provider confirmation")

	stored, err := f.store.FindByID(context.Background(), result.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusProcessing, stored.Status)
	assert.True(t, stored.AwaitingConfirmation)
	assert.Equal(t, "sq_pay_1", stored.PaymentMethods[0].ProviderTransactionID)
}

func TestWebhookCannotFinishCheckoutStillRunning(t *testing.T) {
	f := newFixture()
	confirm := func(id string, status payment.TransactionStatus) payment.ConfirmOutcome {
		_, outcome, err := f.store.ConfirmPayment(context.Background(), id, payment.Confirmation{
			Provider: payment.ProviderSquare, ProviderTxID: "sq_pay_1", Status: status,
		})
		assert.NoError(t, err)
		return outcome
	}

	var early payment.ConfirmOutcome
	f.dispatcher.DispatchFunc = func(_ context.Context, txn adapter.Txn, req payment.PaymentMethodRequest) payment.PaymentMethodResult {
		if txn.Leg == 1 {
			return payment.Pending(req, payment.ProviderSquare, "sq_pay_1", nil)
		}
		// provider confirms leg 1 while leg 2 is still being charged
		early = confirm(txn.ID, payment.StatusCompleted)
		return payment.Failed(req, payment.ProviderStripe, payment.ErrorCardDeclined, payment.CodeCardDeclined, "card declined")
	}

	result, err := f.svc.ProcessTransaction(context.Background(), checkout(4000, cardMethod(2000), cardMethod(2000)))
	require.NoError(t, err)

	assert.Equal(t, payment.ConfirmInFlight, early)
	assert.False(t, result.Success)
	assert.Equal(t, payment.StatusFailed, result.Status)

	stored, err := f.store.FindByID(context.Background(), result.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusFailed, stored.Status)
	require.Len(t, stored.PaymentMethods, 2, "the declined leg is recorded")
	assert.Equal(t, payment.MethodFailed, stored.PaymentMethods[1].Status)

	// the redelivery lands on a final record and changes nothing
	assert.Equal(t, payment.ConfirmIgnored, confirm(result.TransactionID, payment.StatusCompleted))
	assert.Empty(t, f.settler.paid)
}

func TestTendersGetTheirPositionInTheCheckout(t *testing.T) {
	f := newFixture()
	var legs []int
	f.dispatcher.DispatchFunc = func(_ context.Context, txn adapter.Txn, req payment.PaymentMethodRequest) payment.PaymentMethodResult {
		legs = append(legs, txn.Leg)
		return payment.Captured(req, payment.ProviderStripe, fmt.Sprintf("pi_%d", txn.Leg), nil)
	}

	result, err := f.svc.ProcessTransaction(context.Background(), checkout(4000, cardMethod(2000), cardMethod(2000)))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []int{1, 2}, legs)
}

func TestFinalizeReportsStatusPersistedElsewhere(t *testing.T) {
	f := newFixture()
	f.store.onTransition = func(txn *payment.PaymentTransaction) {
		// finalized by someone else before the checkout got to it
		txn.Status = payment.StatusCompleted
	}

	req := checkout(4500, cardMethod(4500))
	req.OrderIDs = []string{"ord_1"}
	result, err := f.svc.ProcessTransaction(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, payment.StatusCompleted, result.Status)
	assert.Contains(t, result.Warnings, "transaction was already finalized as COMPLETED")
	assert.Empty(t, f.settler.paid, "orders are settled by whoever applied the transition")
	assert.Empty(t, f.publisher.events)
}

func TestCustomerResolution(t *testing.T) {
	tests := []struct {
		name     string
		customer *payment.CustomerData
		guest    bool
		wantID   string
		wantCode string
	}{
		{name: "existing id", customer: &payment.CustomerData{ID: "cust_1"}, wantID: "cust_1"},
		{name: "guest flag", guest: true, wantID: "guest_1"},
		{name: "guest flag wins over data", customer: &payment.CustomerData{FirstName: "Ada"}, guest: true, wantID: "guest_1"},
		{name: "contact data", customer: &payment.CustomerData{FirstName: "Ada", Email: "ada@example.com"}, wantID: "cust_new"},
		{name: "nothing supplied", wantCode: payment.CodeCustomerRequired},
		{name: "empty data", customer: &payment.CustomerData{}, wantCode: payment.CodeCustomerRequired},
		{name: "unknown id", customer: &payment.CustomerData{ID: "missing"}, wantCode: payment.CodeCustomerResolution},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.customers.FindByIDFunc = func(_ context.Context, id string) (*customer.Customer, error) {
				if id == "missing" {
					return nil, xerrors.ErrNotFound
				}
				return &customer.Customer{ID: id}, nil
			}

			req := checkout(1000, cardMethod(1000))
			req.Customer = tt.customer
			req.CreateGuest = tt.guest

			result, err := f.svc.ProcessTransaction(context.Background(), req)
			require.NoError(t, err)

			if tt.wantCode != "" {
				assert.False(t, result.Success)
				require.Len(t, result.Errors, 1)
				assert.Equal(t, tt.wantCode, result.Errors[0].Code)
				assert.Equal(t, payment.ErrorCustomer, result.Errors[0].Kind)
				assert.Zero(t, f.store.count())
				return
			}
			assert.True(t, result.Success)
			assert.Equal(t, tt.wantID, result.CustomerID)
		})
	}
}

func TestStoreOutageIsSystemError(t *testing.T) {
	f := newFixture()
	f.store.nextErr = errors.New("connection refused")

	result, err := f.svc.ProcessTransaction(context.Background(), checkout(1000, cardMethod(1000)))
	require.Error(t, err)
	require.NotNil(t, result)

	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, payment.CodeSystemError, result.Errors[0].Code)
	assert.Equal(t, payment.ErrorSystem, result.Errors[0].Kind)
	assert.Zero(t, f.dispatcher.calls)
}

func TestGiftCardsProcessedIndependently(t *testing.T) {
	t.Run("activated", func(t *testing.T) {
		f := newFixture()
		req := checkout(5000, cardMethod(5000))
		req.GiftCards = []payment.GiftCardRequest{{Amount: cad(5000), DeliveryMethod: payment.DeliveryPrint}}

		result, err := f.svc.ProcessTransaction(context.Background(), req)
		require.NoError(t, err)

		assert.True(t, result.Success)
		require.Len(t, result.GiftCardResults, 1)
		assert.Equal(t, payment.GiftCardActivated, result.GiftCardResults[0].Status)
		assert.Equal(t, 1, f.activator.calls)
	})

	t.Run("payment failed", func(t *testing.T) {
		f := newFixture()
		f.dispatcher.DispatchFunc = func(_ context.Context, _ adapter.Txn, req payment.PaymentMethodRequest) payment.PaymentMethodResult {
			return payment.Failed(req, payment.ProviderStripe, payment.ErrorCardDeclined, payment.CodeCardDeclined, "card declined")
		}
		req := checkout(5000, cardMethod(5000))
		req.GiftCards = []payment.GiftCardRequest{{Amount: cad(5000), DeliveryMethod: payment.DeliveryPrint}}

		result, err := f.svc.ProcessTransaction(context.Background(), req)
		require.NoError(t, err)

		assert.False(t, result.Success)
		assert.Equal(t, payment.StatusFailed, result.Status)
		assert.Equal(t, 1, f.activator.calls)
		assert.Equal(t, payment.GiftCardActivated, result.GiftCardResults[0].Status)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, payment.CodeCardDeclined, result.Errors[0].Code)
		assert.Contains(t, result.Warnings, "1 gift card(s) were activated although a payment failed")
	})

	t.Run("payment pending", func(t *testing.T) {
		f := newFixture()
		f.dispatcher.DispatchFunc = func(_ context.Context, _ adapter.Txn, req payment.PaymentMethodRequest) payment.PaymentMethodResult {
			return payment.Pending(req, payment.ProviderSquare, "sq_pay_1", nil)
		}
		req := checkout(5000, cardMethod(5000))
		req.GiftCards = []payment.GiftCardRequest{{Amount: cad(5000), DeliveryMethod: payment.DeliveryPrint}}

		result, err := f.svc.ProcessTransaction(context.Background(), req)
		require.NoError(t, err)

		assert.Equal(t, payment.StatusProcessing, result.Status)
		assert.Equal(t, 1, f.activator.calls)
		assert.Equal(t, payment.GiftCardActivated, result.GiftCardResults[0].Status)
	})

	t.Run("activation failed", func(t *testing.T) {
		f := newFixture()
		f.activator.fail = true
		req := checkout(5000, cardMethod(5000))
		req.GiftCards = []payment.GiftCardRequest{{Amount: cad(5000), DeliveryMethod: payment.DeliveryPrint}}

		result, err := f.svc.ProcessTransaction(context.Background(), req)
		require.NoError(t, err)

		assert.False(t, result.Success)
		assert.Equal(t, payment.StatusFailed, result.Status)
		assert.Equal(t, payment.CodeGiftCardActivation, result.Errors[0].Code)
	})
}
