package payment

import (
	"testing"
	"time"

	"bloom-payments/internal/pkg/money"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveStatus(t *testing.T) {
	captured := PaymentMethodResult{Status: MethodCaptured}
	failed := PaymentMethodResult{Status: MethodFailed}
	awaiting := PaymentMethodResult{Status: MethodPending, ProviderTransactionID: "pi_1"}
	cod := PaymentMethodResult{Status: MethodPending}

	tests := []struct {
		name    string
		methods []PaymentMethodResult
		cards   []GiftCardResult
		want    TransactionStatus
	}{
		{"all captured", []PaymentMethodResult{captured, captured}, nil, StatusCompleted},
		{"one failed", []PaymentMethodResult{captured, failed}, nil, StatusFailed},
		{"awaiting provider", []PaymentMethodResult{captured, awaiting}, nil, StatusProcessing},
		{"failure beats awaiting", []PaymentMethodResult{awaiting, failed}, nil, StatusFailed},
		{"cash on delivery", []PaymentMethodResult{cod}, nil, StatusFailed},
		{"gift card failed", []PaymentMethodResult{captured}, []GiftCardResult{{Status: GiftCardFailed}}, StatusFailed},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ResolveStatus(tt.methods, tt.cards), tt.name)
	}
}

func awaitingTxn(legs ...PaymentMethodResult) *PaymentTransaction {
	return &PaymentTransaction{
		ID:                   "txn_1",
		TotalAmount:          money.New(4500, "CAD"),
		Status:               StatusProcessing,
		AwaitingConfirmation: true,
		PaymentMethods:       legs,
	}
}

func pendingLeg(p Provider, id string, cents int64) PaymentMethodResult {
	return PaymentMethodResult{Type: MethodCard, Provider: p, Amount: money.New(cents, "CAD"), Status: MethodPending, ProviderTransactionID: id}
}

func TestApplyConfirmation(t *testing.T) {
	now := time.Date(2026, 5, 9, 14, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		txn        func() *PaymentTransaction
		c          Confirmation
		want       ConfirmOutcome
		wantStatus TransactionStatus
		wantLeg    MethodStatus
	}{
		{
			name:       "succeeded completes",
			txn:        func() *PaymentTransaction { return awaitingTxn(pendingLeg(ProviderStripe, "pi_1", 4500)) },
			c:          Confirmation{Provider: ProviderStripe, ProviderTxID: "pi_1", Status: StatusCompleted},
			want:       ConfirmApplied,
			wantStatus: StatusCompleted,
			wantLeg:    MethodCaptured,
		},
		{
			name:       "failed fails the leg",
			txn:        func() *PaymentTransaction { return awaitingTxn(pendingLeg(ProviderSquare, "sq_1", 4500)) },
			c:          Confirmation{Provider: ProviderSquare, ProviderTxID: "sq_1", Status: StatusFailed, Detail: "declined"},
			want:       ConfirmApplied,
			wantStatus: StatusFailed,
			wantLeg:    MethodFailed,
		},
		{
			name:       "canceled",
			txn:        func() *PaymentTransaction { return awaitingTxn(pendingLeg(ProviderStripe, "pi_1", 4500)) },
			c:          Confirmation{Provider: ProviderStripe, ProviderTxID: "pi_1", Status: StatusCancelled},
			want:       ConfirmApplied,
			wantStatus: StatusCancelled,
			wantLeg:    MethodFailed,
		},
		{
			name: "other leg still pending",
			txn: func() *PaymentTransaction {
				return awaitingTxn(pendingLeg(ProviderStripe, "pi_1", 2000), pendingLeg(ProviderStripe, "pi_2", 2500))
			},
			c:          Confirmation{Provider: ProviderStripe, ProviderTxID: "pi_1", Status: StatusCompleted},
			want:       ConfirmApplied,
			wantStatus: StatusProcessing,
			wantLeg:    MethodCaptured,
		},
		{
			name: "checkout still running",
			txn: func() *PaymentTransaction {
				txn := awaitingTxn(pendingLeg(ProviderStripe, "pi_1", 4500))
				txn.AwaitingConfirmation = false
				return txn
			},
			c:          Confirmation{Provider: ProviderStripe, ProviderTxID: "pi_1", Status: StatusCompleted},
			want:       ConfirmInFlight,
			wantStatus: StatusProcessing,
			wantLeg:    MethodPending,
		},
		{
			name: "already final",
			txn: func() *PaymentTransaction {
				txn := awaitingTxn(pendingLeg(ProviderStripe, "pi_1", 4500))
				txn.Status = StatusFailed
				return txn
			},
			c:          Confirmation{Provider: ProviderStripe, ProviderTxID: "pi_1", Status: StatusCompleted},
			want:       ConfirmIgnored,
			wantStatus: StatusFailed,
			wantLeg:    MethodPending,
		},
		{
			name:       "no verdict",
			txn:        func() *PaymentTransaction { return awaitingTxn(pendingLeg(ProviderSquare, "sq_1", 4500)) },
			c:          Confirmation{Provider: ProviderSquare, ProviderTxID: "sq_1", Status: StatusProcessing},
			want:       ConfirmIgnored,
			wantStatus: StatusProcessing,
			wantLeg:    MethodPending,
		},
		{
			name:       "other provider with the same id",
			txn:        func() *PaymentTransaction { return awaitingTxn(pendingLeg(ProviderStripe, "x_1", 4500)) },
			c:          Confirmation{Provider: ProviderSquare, ProviderTxID: "x_1", Status: StatusCompleted},
			want:       ConfirmIgnored,
			wantStatus: StatusProcessing,
			wantLeg:    MethodPending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn := tt.txn()
			got := ApplyConfirmation(txn, tt.c, now)

			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantStatus, txn.Status)
			assert.Equal(t, tt.wantLeg, txn.PaymentMethods[0].Status)
		})
	}
}

func TestApplyConfirmationRecordsOutcome(t *testing.T) {
	now := time.Date(2026, 5, 9, 14, 0, 0, 0, time.UTC)

	done := awaitingTxn(pendingLeg(ProviderStripe, "pi_1", 4500))
	require.Equal(t, ConfirmApplied, ApplyConfirmation(done, Confirmation{Provider: ProviderStripe, ProviderTxID: "pi_1", Status: StatusCompleted}, now))
	assert.False(t, done.AwaitingConfirmation)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, now, *done.CompletedAt)

	declined := awaitingTxn(pendingLeg(ProviderStripe, "pi_1", 4500))
	ApplyConfirmation(declined, Confirmation{Provider: ProviderStripe, ProviderTxID: "pi_1", Status: StatusFailed, Detail: "stripe reported the payment failed"}, now)
	leg := declined.PaymentMethods[0]
	assert.Equal(t, CodePaymentFailed, leg.ErrorCode)
	assert.Equal(t, ErrorProvider, leg.ErrorKind)
	assert.Equal(t, "stripe reported the payment failed", leg.ErrorMessage)
	assert.Equal(t, []string{"stripe reported the payment failed"}, declined.ErrorMessages)
	assert.Nil(t, declined.CompletedAt)

	// the caller's slice is not written through
	legs := []PaymentMethodResult{pendingLeg(ProviderStripe, "pi_1", 4500)}
	shared := awaitingTxn(legs...)
	shared.PaymentMethods = legs
	ApplyConfirmation(shared, Confirmation{Provider: ProviderStripe, ProviderTxID: "pi_1", Status: StatusCompleted}, now)
	assert.Equal(t, MethodPending, legs[0].Status)
}
