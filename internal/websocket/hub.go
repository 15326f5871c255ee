// internal/websocket/hub.go
package websocket

import (
	"context"
	"fmt"
	"strings"
	"sync"

	wstypes "bloom-payments/internal/domain/websocket"
	"bloom-payments/internal/events"
	"bloom-payments/internal/pkg/jwt"

	"go.uber.org/zap"
)

// SocketVerifier checks the token a terminal presents when it connects.
type SocketVerifier interface {
	VerifySocketToken(token string) (*jwt.Claims, error)
}

type Hub struct {
	// Registered clients by employee ID
	clients map[string]map[*Client]bool
	mu      sync.RWMutex

	// Registration/unregistration
	Register   chan *Client
	unregister chan *Client

	// Broadcasting
	broadcast chan *BroadcastMessage

	requests *requestRegistry

	verifier SocketVerifier
	logger   *zap.Logger

	done     chan struct{}
	stopOnce sync.Once
}

type BroadcastMessage struct {
	EmployeeIDs []string
	Channel     wstypes.ChannelType
	Message     *wstypes.WSMessage
}

func NewHub(verifier SocketVerifier, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		Register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		requests:   newRequestRegistry(),
		verifier:   verifier,
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// AuthenticateClient validates the socket token and returns the terminal's identity
func (h *Hub) AuthenticateClient(token string) (*ClientAuth, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrUnauthorized
	}

	claims, err := h.verifier.VerifySocketToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	return &ClientAuth{
		EmployeeID: claims.EmployeeID,
		Name:       claims.Name,
		TokenID:    claims.ID,
		Roles:      claims.Roles,
	}, nil
}

// RegisterHandler makes handler answer its request types. A type can have only
// one handler.
func (h *Hub) RegisterHandler(handler RequestHandler) error {
	return h.requests.add(handler)
}

// HandleClientMessage routes a terminal request to its handler, if any
func (h *Hub) HandleClientMessage(ctx context.Context, client *Client, msg *wstypes.WSMessage) (bool, error) {
	return h.requests.route(ctx, client, msg)
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.BroadcastMessage(msg)
		}
	}
}

// Publish pushes a payment event to every terminal subscribed to its channel.
func (h *Hub) Publish(ctx context.Context, e events.Event) error {
	msg := &BroadcastMessage{
		Channel: channelFor(e.Type),
		Message: wstypes.NewMessage(wstypes.EventTypeTransaction, e),
	}

	select {
	case h.broadcast <- msg:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrBroadcastFull
	}
}

func channelFor(t events.Type) wstypes.ChannelType {
	if t == events.RefundCompleted || t == events.RefundFailed {
		return wstypes.ChannelRefunds
	}
	return wstypes.ChannelTransactions
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.employeeID] == nil {
		h.clients[client.employeeID] = make(map[*Client]bool)
	}
	h.clients[client.employeeID][client] = true

	h.logger.Info("websocket client connected",
		zap.String("employee_id", client.employeeID),
		zap.Int("total", h.totalClients()),
	)

	client.SendMessage(wstypes.NewMessage(wstypes.EventTypeConnected, map[string]interface{}{
		"employee_id": client.employeeID,
		"name":        client.name,
		"roles":       client.roles,
	}))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.clients[client.employeeID]; ok {
		if _, exists := clients[client]; exists {
			delete(clients, client)
			client.Close()

			if len(clients) == 0 {
				delete(h.clients, client.employeeID)
			}

			h.logger.Info("websocket client disconnected",
				zap.String("employee_id", client.employeeID),
				zap.Int("total", h.totalClients()),
			)
		}
	}
}

func (h *Hub) BroadcastMessage(msg *BroadcastMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if msg.EmployeeIDs == nil {
		for _, clients := range h.clients {
			for client := range clients {
				if client.IsSubscribed(msg.Channel) {
					client.SendMessage(msg.Message)
				}
			}
		}
		return
	}

	for _, employeeID := range msg.EmployeeIDs {
		for client := range h.clients[employeeID] {
			if client.IsSubscribed(msg.Channel) {
				client.SendMessage(msg.Message)
			}
		}
	}
}

// BroadcastSystemAlert sends an alert to every terminal on the system channel
func (h *Hub) BroadcastSystemAlert(alert *wstypes.SystemAlertData) {
	msg := &BroadcastMessage{
		Channel: wstypes.ChannelSystem,
		Message: wstypes.NewMessage(wstypes.EventTypeSystemAlert, alert),
	}
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

func (h *Hub) GetConnectedClients(employeeID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[employeeID])
}

func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalClients()
}

// DisconnectEmployee closes every connection held by one employee
func (h *Hub) DisconnectEmployee(employeeID, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[employeeID]
	if !ok {
		return
	}

	msg := wstypes.NewMessage(wstypes.EventTypeDisconnected, map[string]interface{}{
		"reason": reason,
	})
	for client := range clients {
		client.SendMessage(msg)
		client.Close()
	}
	delete(h.clients, employeeID)

	h.logger.Info("disconnected employee sockets",
		zap.String("employee_id", employeeID),
		zap.String("reason", reason),
	)
}

func (h *Hub) totalClients() int {
	total := 0
	for _, clients := range h.clients {
		total += len(clients)
	}
	return total
}

func (h *Hub) shutdown() {
	h.stopOnce.Do(func() { close(h.done) })

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.clients {
		for client := range clients {
			client.Close()
		}
	}
	h.clients = make(map[string]map[*Client]bool)
}
