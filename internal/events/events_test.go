package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"bloom-payments/internal/domain/payment"
	"bloom-payments/internal/pkg/money"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	events []Event
	err    error
}

func (r *recorder) Publish(_ context.Context, e Event) error {
	r.events = append(r.events, e)
	return r.err
}

type mockSQS struct {
	inputs []*sqs.SendMessageInput
}

func (m *mockSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.inputs = append(m.inputs, in)
	return &sqs.SendMessageOutput{}, nil
}

func TestForTransactionType(t *testing.T) {
	tests := []struct {
		status   payment.TransactionStatus
		refundOf string
		want     Type
	}{
		{payment.StatusCompleted, "", TransactionCompleted},
		{payment.StatusFailed, "", TransactionFailed},
		{payment.StatusProcessing, "", TransactionPending},
		{payment.StatusCancelled, "", TransactionCancelled},
		{payment.StatusCompleted, "orig", RefundCompleted},
		{payment.StatusFailed, "orig", RefundFailed},
	}
	for _, tt := range tests {
		txn := &payment.PaymentTransaction{ID: "t1", Status: tt.status, RefundOf: tt.refundOf}
		assert.Equal(t, tt.want, ForTransaction(txn, "test").Type, "%s refund=%q", tt.status, tt.refundOf)
	}
}

func TestMultiPublishesToAllAndJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	a, b := &recorder{}, &recorder{err: boom}
	err := Multi{a, b}.Publish(context.Background(), Event{Type: OrdersPaid})

	assert.ErrorIs(t, err, boom)
	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
}

func TestSQSPublisherSendsJSONBody(t *testing.T) {
	client := &mockSQS{}
	p := NewSQSPublisher(client, "https://sqs.local/queue")

	e := Event{ID: "e1", Type: TransactionCompleted, TransactionID: "t1", Amount: money.New(4500, "CAD")}
	require.NoError(t, p.Publish(context.Background(), e))
	require.Len(t, client.inputs, 1)

	in := client.inputs[0]
	assert.Equal(t, "https://sqs.local/queue", *in.QueueUrl)
	assert.Equal(t, "transaction.completed", *in.MessageAttributes["event_type"].StringValue)

	var got Event
	require.NoError(t, json.Unmarshal([]byte(*in.MessageBody), &got))
	assert.Equal(t, e.TransactionID, got.TransactionID)
	assert.Equal(t, int64(4500), got.Amount.Amount)
}
