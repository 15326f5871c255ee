package websocket

import (
	"context"
	"errors"
	"testing"
	"time"

	wstypes "bloom-payments/internal/domain/websocket"
	"bloom-payments/internal/events"
	"bloom-payments/internal/pkg/jwt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type verifierFunc func(token string) (*jwt.Claims, error)

func (f verifierFunc) VerifySocketToken(token string) (*jwt.Claims, error) { return f(token) }

func TestAuthenticateClient(t *testing.T) {
	hub := NewHub(verifierFunc(func(token string) (*jwt.Claims, error) {
		if token != "good" {
			return nil, errors.New("token is expired")
		}
		return &jwt.Claims{EmployeeID: "emp_1", Name: "Ivy", Roles: []string{jwt.RoleCashier}}, nil
	}), zap.NewNop())

	auth, err := hub.AuthenticateClient("good")
	require.NoError(t, err)
	assert.Equal(t, "emp_1", auth.EmployeeID)
	assert.Equal(t, "Ivy", auth.Name)

	_, err = hub.AuthenticateClient("stale")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = hub.AuthenticateClient(" ")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestChannelFor(t *testing.T) {
	assert.Equal(t, wstypes.ChannelRefunds, channelFor(events.RefundCompleted))
	assert.Equal(t, wstypes.ChannelRefunds, channelFor(events.RefundFailed))
	assert.Equal(t, wstypes.ChannelTransactions, channelFor(events.TransactionPending))
	assert.Equal(t, wstypes.ChannelTransactions, channelFor(events.OrdersPaid))
}

func TestPublishQueuesUntilFull(t *testing.T) {
	hub := NewHub(nil, zap.NewNop())

	for i := 0; i < cap(hub.broadcast); i++ {
		require.NoError(t, hub.Publish(context.Background(), events.Event{Type: events.TransactionCompleted}))
	}
	assert.ErrorIs(t, hub.Publish(context.Background(), events.Event{}), ErrBroadcastFull)

	msg := <-hub.broadcast
	assert.Equal(t, wstypes.ChannelTransactions, msg.Channel)
	assert.Equal(t, wstypes.EventTypeTransaction, msg.Message.Type)
}

func TestPublishAfterShutdown(t *testing.T) {
	hub := NewHub(nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}

	// fill the queue so only the closed hub can answer
	for len(hub.broadcast) < cap(hub.broadcast) {
		hub.broadcast <- &BroadcastMessage{}
	}
	assert.ErrorIs(t, hub.Publish(context.Background(), events.Event{}), ErrHubClosed)
}

func TestClientSubscriptions(t *testing.T) {
	hub := NewHub(nil, zap.NewNop())
	cashier := NewClient(hub, nil, &ClientAuth{EmployeeID: "emp_1", Roles: []string{jwt.RoleCashier}})
	admin := NewClient(hub, nil, &ClientAuth{EmployeeID: "emp_3", Roles: []string{jwt.RoleAdmin}})

	assert.True(t, cashier.Subscribe(wstypes.ChannelTransactions))
	assert.False(t, cashier.Subscribe(wstypes.ChannelRefunds))
	assert.False(t, cashier.Subscribe("payroll"))
	assert.True(t, admin.Subscribe(wstypes.ChannelRefunds))

	cashier.Unsubscribe(wstypes.ChannelTransactions)
	assert.False(t, cashier.IsSubscribed(wstypes.ChannelTransactions))
}

type lookupHandler struct {
	types []wstypes.EventType
	roles []string
	calls int
}

func (h *lookupHandler) Requests() []wstypes.EventType { return h.types }

func (h *lookupHandler) HandleRequest(context.Context, *Client, *wstypes.WSMessage) error {
	h.calls++
	return nil
}

type tillOnlyHandler struct{ *lookupHandler }

func (h tillOnlyHandler) AllowedRoles() []string { return h.roles }

func TestRegisterHandlerRefusesTakenTypes(t *testing.T) {
	hub := NewHub(nil, zap.NewNop())

	require.NoError(t, hub.RegisterHandler(&lookupHandler{types: []wstypes.EventType{wstypes.EventTypeTransactionGet}}))

	err := hub.RegisterHandler(&lookupHandler{types: []wstypes.EventType{wstypes.EventTypeTransactionGet}})
	assert.ErrorIs(t, err, ErrRequestTaken)

	err = hub.RegisterHandler(&lookupHandler{types: []wstypes.EventType{wstypes.EventTypeSystemAlert, wstypes.EventTypePing}})
	assert.ErrorIs(t, err, ErrRequestTaken)
	handled, _ := hub.HandleClientMessage(context.Background(), &Client{}, wstypes.NewMessage(wstypes.EventTypeSystemAlert, nil))
	assert.False(t, handled, "a refused handler claims none of its types")
}

func TestHandleClientMessageChecksRoles(t *testing.T) {
	hub := NewHub(nil, zap.NewNop())
	h := tillOnlyHandler{&lookupHandler{
		types: []wstypes.EventType{wstypes.EventTypeTransactionGet},
		roles: []string{jwt.RoleCashier, jwt.RoleManager},
	}}
	require.NoError(t, hub.RegisterHandler(h))
	msg := wstypes.NewMessage(wstypes.EventTypeTransactionGet, nil)

	handled, err := hub.HandleClientMessage(context.Background(), &Client{roles: []string{jwt.RoleAdmin}}, msg)
	assert.True(t, handled)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Zero(t, h.calls)

	handled, err = hub.HandleClientMessage(context.Background(), &Client{roles: []string{jwt.RoleManager}}, msg)
	assert.True(t, handled)
	assert.NoError(t, err)
	assert.Equal(t, 1, h.calls)

	handled, err = hub.HandleClientMessage(context.Background(), &Client{}, wstypes.NewMessage(wstypes.EventTypePing, nil))
	assert.False(t, handled)
	assert.NoError(t, err)
}
