// internal/websocket/errors.go
package websocket

import "errors"

var (
	ErrUnauthorized  = errors.New("unauthorized")
	ErrInvalidToken  = errors.New("invalid token")
	ErrHubClosed     = errors.New("websocket hub is closed")
	ErrBroadcastFull = errors.New("websocket broadcast queue is full")
	ErrRequestTaken  = errors.New("request type already has a handler")
	ErrForbidden     = errors.New("request not allowed for this terminal")
)
