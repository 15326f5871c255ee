// internal/domain/websocket/types.go
package websocket

import (
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventType represents the real-time message types exchanged with POS terminals
type EventType string

const (
	// Connection events
	EventTypePing         EventType = "ping"
	EventTypePong         EventType = "pong"
	EventTypeConnected    EventType = "connected"
	EventTypeDisconnected EventType = "disconnected"
	EventTypeError        EventType = "error"

	// Transaction events (server -> client)
	EventTypeTransaction EventType = "transaction_event"

	// Transaction lookups (client -> server)
	EventTypeTransactionGet    EventType = "transaction:get"
	EventTypeTransactionStatus EventType = "transaction:status"

	// System events
	EventTypeSystemAlert EventType = "system:alert"

	// Subscription events
	EventTypeSubscribe   EventType = "subscribe"
	EventTypeUnsubscribe EventType = "unsubscribe"
)

// WSMessage is the universal message format
type WSMessage struct {
	Type      EventType              `json:"type"`
	Data      interface{}            `json:"data,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	ID        string                 `json:"id,omitempty"`
}

// ChannelType names a stream a terminal can subscribe to
type ChannelType string

const (
	ChannelTransactions ChannelType = "transactions"
	ChannelRefunds      ChannelType = "refunds"
	ChannelSystem       ChannelType = "system"
)

type SubscribeRequest struct {
	Channels []ChannelType `json:"channels"`
}

type UnsubscribeRequest struct {
	Channels []ChannelType `json:"channels"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// TransactionLookup asks for the current state of one transaction
type TransactionLookup struct {
	TransactionID string `json:"transaction_id"`
}

// TransactionStatusData answers a TransactionLookup
type TransactionStatusData struct {
	TransactionID     string   `json:"transaction_id"`
	TransactionNumber string   `json:"transaction_number"`
	Status            string   `json:"status"`
	Amount            string   `json:"amount"`
	ErrorMessages     []string `json:"error_messages,omitempty"`
}

// SystemAlertData for shop-wide alerts
type SystemAlertData struct {
	Severity string `json:"severity"` // info, warning, critical
	Title    string `json:"title"`
	Message  string `json:"message"`
}

func NewMessage(eventType EventType, data interface{}) *WSMessage {
	return &WSMessage{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
		ID:        ulid.Make().String(),
	}
}

func (m *WSMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ParseMessage(data []byte) (*WSMessage, error) {
	var msg WSMessage
	err := json.Unmarshal(data, &msg)
	return &msg, err
}
