// internal/handlers/websocket/websocket.go
package handlers

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	wstypes "bloom-payments/internal/domain/websocket"
	"bloom-payments/internal/pkg/response"
	ws "bloom-payments/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type WebSocketHandler struct {
	hub      *ws.Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWebSocketHandler accepts connections from allowedOrigins; an empty list
// only admits same-host origins.
func NewWebSocketHandler(hub *ws.Hub, allowedOrigins []string, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.ToLower(strings.TrimRight(o, "/"))] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || set["*"] {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return set[strings.ToLower(u.Scheme+"://"+u.Host)]
	}
}

// HandleConnection authenticates a POS terminal and upgrades it to a websocket
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	token := h.extractToken(c)
	if token == "" {
		response.Error(c, http.StatusUnauthorized, "missing authentication token", nil)
		return
	}

	auth, err := h.hub.AuthenticateClient(token)
	if err != nil {
		h.logger.Warn("websocket authentication failed",
			zap.Error(err),
			zap.String("ip", c.ClientIP()),
		)
		response.Error(c, http.StatusUnauthorized, "authentication failed", nil)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			zap.Error(err),
			zap.String("ip", c.ClientIP()),
		)
		return
	}

	client := ws.NewClient(h.hub, conn, auth)
	h.hub.Register <- client

	h.logger.Info("websocket client authenticated",
		zap.String("employee_id", auth.EmployeeID),
		zap.Strings("roles", auth.Roles),
	)

	go client.WritePump()
	go client.ReadPump()
}

// extractToken reads the query parameter first, since browsers cannot set headers on a socket
func (h *WebSocketHandler) extractToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}

	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return ""
}

// GetStats returns socket connection statistics; ?employee_id narrows to one employee
func (h *WebSocketHandler) GetStats(c *gin.Context) {
	stats := gin.H{
		"total_connections": h.hub.TotalClients(),
		"timestamp":         time.Now(),
	}
	if employeeID := c.Query("employee_id"); employeeID != "" {
		stats["employee_id"] = employeeID
		stats["employee_connections"] = h.hub.GetConnectedClients(employeeID)
	}
	response.Success(c, http.StatusOK, "websocket stats", stats)
}

// BroadcastAlert pushes a shop-wide alert to terminals on the system channel
func (h *WebSocketHandler) BroadcastAlert(c *gin.Context) {
	var alert wstypes.SystemAlertData
	if err := c.ShouldBindJSON(&alert); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}
	if strings.TrimSpace(alert.Message) == "" {
		response.Error(c, http.StatusBadRequest, "alert message is required", nil)
		return
	}
	if alert.Severity == "" {
		alert.Severity = "info"
	}

	h.hub.BroadcastSystemAlert(&alert)
	response.Success(c, http.StatusAccepted, "alert queued", alert)
}

// DisconnectEmployee drops every socket an employee holds, e.g. after their access is revoked
func (h *WebSocketHandler) DisconnectEmployee(c *gin.Context) {
	employeeID := c.Param("employee_id")
	connections := h.hub.GetConnectedClients(employeeID)
	if connections == 0 {
		response.NotFound(c, "no open connections for employee")
		return
	}

	h.hub.DisconnectEmployee(employeeID, c.DefaultQuery("reason", "disconnected by manager"))
	response.Success(c, http.StatusOK, "employee disconnected", gin.H{
		"employee_id":  employeeID,
		"disconnected": connections,
	})
}
