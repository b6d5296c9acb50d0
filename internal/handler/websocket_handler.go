// internal/handler/websocket_handler.go
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"gauge-service/internal/model"
	"gauge-service/internal/utils"
	"gauge-service/pkg/driver"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	writeWait    = 10 * time.Second
	commandLimit = 30 * time.Second
)

// WebSocketHandler streams gauge events to WebSocket clients
type WebSocketHandler struct {
	upgrader    websocket.Upgrader
	connections *ConnectionManager
	gauge       driver.GaugeDriver
	bus         *EventBus
	logger      *utils.ServiceLogger
	done        chan struct{}
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(gauge driver.GaugeDriver, bus *EventBus, allowedOrigins []string, logger *zap.Logger) *WebSocketHandler {
	origins := map[string]bool{}
	for _, o := range allowedOrigins {
		origins[o] = true
	}

	return &WebSocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(origins) == 0 || origin == "" || origins[origin]
			},
		},
		connections: NewConnectionManager(),
		gauge:       gauge,
		bus:         bus,
		logger:      utils.NewServiceLogger(logger, "websocket-handler"),
		done:        make(chan struct{}),
	}
}

// RegisterRoutes registers WebSocket routes
func (h *WebSocketHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/events", h.HandleEventConnection)
}

// Run forwards bus events to the connected clients until ctx is done
func (h *WebSocketHandler) Run(ctx context.Context) {
	defer close(h.done)
	events := h.bus.Subscribe(AllEvents)
	for {
		select {
		case <-ctx.Done():
			h.connections.Close()
			return
		case event := <-events:
			h.BroadcastEvent(event)
		}
	}
}

// Wait blocks until Run has returned
func (h *WebSocketHandler) Wait() {
	<-h.done
}

// HandleEventConnection upgrades the request and registers an event client
func (h *WebSocketHandler) HandleEventConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := &Client{
		ID:          uuid.New().String(),
		Connection:  conn,
		Send:        make(chan []byte, 256),
		UserAgent:   c.Request.UserAgent(),
		RemoteAddr:  c.Request.RemoteAddr,
		ConnectedAt: time.Now(),
	}
	for _, topic := range c.QueryArray("topic") {
		client.Subscribe(topic)
	}

	h.connections.Register(client)
	h.logger.Info("Event WebSocket client connected",
		zap.String("client_id", client.ID),
		zap.String("remote_addr", client.RemoteAddr),
	)

	h.sendMessage(client, &WebSocketMessage{
		Type:      "initial_status",
		Data:      h.gauge.Snapshot(),
		Timestamp: time.Now(),
	})

	go h.handleClientRead(client)
	go h.handleClientWrite(client)
}

func (h *WebSocketHandler) handleClientRead(client *Client) {
	defer func() {
		h.connections.Unregister(client)
		client.Connection.Close()
	}()

	client.Connection.SetReadDeadline(time.Now().Add(pongWait))
	client.Connection.SetPongHandler(func(string) error {
		return client.Connection.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, messageBytes, err := client.Connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("WebSocket read error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
			}
			return
		}

		var message WebSocketMessage
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			h.sendError(client, "invalid message: "+err.Error())
			continue
		}
		h.handleClientMessage(client, &message)
	}
}

func (h *WebSocketHandler) handleClientWrite(client *Client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		client.Connection.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Connection.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.Connection.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Connection.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Error("WebSocket write error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
				return
			}

		case <-ticker.C:
			client.Connection.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *WebSocketHandler) handleClientMessage(client *Client, message *WebSocketMessage) {
	switch message.Type {
	case "subscribe", "unsubscribe":
		topic := stringField(message.Data, "topic")
		if topic == "" {
			h.sendError(client, "topic is required")
			return
		}
		if message.Type == "subscribe" {
			client.Subscribe(topic)
		} else {
			client.Unsubscribe(topic)
		}
		h.sendMessage(client, &WebSocketMessage{
			Type:      message.Type + "d",
			Data:      map[string]interface{}{"topic": topic},
			Timestamp: time.Now(),
			RequestID: message.RequestID,
		})

	case "snapshot":
		h.sendMessage(client, &WebSocketMessage{
			Type:      "snapshot",
			Data:      h.gauge.Snapshot(),
			Timestamp: time.Now(),
			RequestID: message.RequestID,
		})

	case "command":
		name := stringField(message.Data, "name")
		if name == "" {
			h.sendError(client, "command name is required")
			return
		}
		go h.executeCommand(client, message.RequestID, name, stringField(message.Data, "argument"))

	case "ping":
		h.sendMessage(client, &WebSocketMessage{
			Type:      "pong",
			Timestamp: time.Now(),
			RequestID: message.RequestID,
		})

	default:
		h.logger.Warn("Unknown message type",
			zap.String("type", message.Type),
			zap.String("client_id", client.ID),
		)
		h.sendError(client, "unknown message type: "+message.Type)
	}
}

func (h *WebSocketHandler) executeCommand(client *Client, requestID, name, argument string) {
	ctx, cancel := context.WithTimeout(context.Background(), commandLimit)
	defer cancel()

	reply, err := h.gauge.DispatchCommand(ctx, name, argument)
	data := map[string]interface{}{
		"name":    name,
		"success": err == nil,
		"reply":   reply,
	}
	if err != nil {
		data["error"] = err.Error()
		if kind, ok := model.KindOf(err); ok {
			data["kind"] = kind
		}
	}

	h.sendMessage(client, &WebSocketMessage{
		Type:      "command_response",
		Data:      data,
		Timestamp: time.Now(),
		RequestID: requestID,
	})
}

func (h *WebSocketHandler) sendMessage(client *Client, message *WebSocketMessage) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal WebSocket message", zap.Error(err))
		return
	}

	if !h.connections.Send(client, messageBytes) {
		h.logger.Warn("Message dropped",
			zap.String("client_id", client.ID),
			zap.String("type", message.Type),
		)
	}
}

func (h *WebSocketHandler) sendError(client *Client, errorMsg string) {
	h.sendMessage(client, &WebSocketMessage{
		Type:      "error",
		Data:      map[string]interface{}{"error": errorMsg},
		Timestamp: time.Now(),
	})
}

// BroadcastEvent sends a gauge event to every client subscribed to its type
func (h *WebSocketHandler) BroadcastEvent(event model.DeviceEvent) {
	messageBytes, err := json.Marshal(&WebSocketMessage{
		Type:      "gauge_event",
		Data:      event,
		Timestamp: event.Timestamp,
	})
	if err != nil {
		h.logger.Error("Failed to marshal broadcast message", zap.Error(err))
		return
	}

	for _, id := range h.connections.Broadcast(string(event.EventType), messageBytes) {
		h.logger.Warn("Client send channel full during broadcast", zap.String("client_id", id))
	}
}

// GetConnectionStats returns connection statistics
func (h *WebSocketHandler) GetConnectionStats() *ConnectionStats {
	return h.connections.GetStats()
}

func stringField(data interface{}, key string) string {
	m, ok := data.(map[string]interface{})
	if !ok {
		return ""
	}
	s, _ := m[key].(string)
	return s
}
