// internal/websocket/handler.go
package websocket

import (
	"context"
	"fmt"
	"sync"

	wstypes "bloom-payments/internal/domain/websocket"
)

// RequestHandler answers requests a POS terminal sends over its socket, such
// as polling a transaction left PROCESSING for a provider webhook.
type RequestHandler interface {
	Requests() []wstypes.EventType
	HandleRequest(ctx context.Context, client *Client, msg *wstypes.WSMessage) error
}

// RoleRestricted is implemented by request handlers that only some staff
// roles may call. A terminal holding none of the roles is refused.
type RoleRestricted interface {
	AllowedRoles() []string
}

// connection-level messages the client answers itself
var reservedRequests = map[wstypes.EventType]bool{
	wstypes.EventTypePing:        true,
	wstypes.EventTypePong:        true,
	wstypes.EventTypeSubscribe:   true,
	wstypes.EventTypeUnsubscribe: true,
}

type requestRegistry struct {
	mu       sync.RWMutex
	handlers map[wstypes.EventType]RequestHandler
}

func newRequestRegistry() *requestRegistry {
	return &requestRegistry{handlers: make(map[wstypes.EventType]RequestHandler)}
}

func (r *requestRegistry) add(h RequestHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range h.Requests() {
		if reservedRequests[t] {
			return fmt.Errorf("%w: %s is handled by the connection", ErrRequestTaken, t)
		}
		if _, taken := r.handlers[t]; taken {
			return fmt.Errorf("%w: %s", ErrRequestTaken, t)
		}
	}
	for _, t := range h.Requests() {
		r.handlers[t] = h
	}
	return nil
}

// route reports false when no handler serves msg.Type.
func (r *requestRegistry) route(ctx context.Context, client *Client, msg *wstypes.WSMessage) (bool, error) {
	r.mu.RLock()
	h, ok := r.handlers[msg.Type]
	r.mu.RUnlock()
	if !ok {
		return false, nil
	}

	if rr, restricted := h.(RoleRestricted); restricted && !client.HasAnyRole(rr.AllowedRoles()...) {
		return true, fmt.Errorf("%w: %s", ErrForbidden, msg.Type)
	}
	return true, h.HandleRequest(ctx, client, msg)
}
