// internal/handler/websocket_types.go
package handler

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client represents a WebSocket client
type Client struct {
	ID          string          `json:"id"`
	Connection  *websocket.Conn `json:"-"`
	Send        chan []byte     `json:"-"`
	UserAgent   string          `json:"user_agent"`
	RemoteAddr  string          `json:"remote_addr"`
	ConnectedAt time.Time       `json:"connected_at"`

	mu            sync.Mutex
	subscriptions map[string]bool
	closed        bool
}

// Subscribe adds an event type to the client filter
func (c *Client) Subscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscriptions == nil {
		c.subscriptions = make(map[string]bool)
	}
	c.subscriptions[topic] = true
}

// Unsubscribe removes an event type from the client filter
func (c *Client) Unsubscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscriptions, topic)
}

// Wants reports whether the client receives events of the given type.
// A client without subscriptions receives everything.
func (c *Client) Wants(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subscriptions) == 0 || c.subscriptions[topic]
}

// Topics returns the subscribed event types
func (c *Client) Topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	topics := make([]string, 0, len(c.subscriptions))
	for t := range c.subscriptions {
		topics = append(topics, t)
	}
	return topics
}

// WebSocketMessage represents a WebSocket message
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// ConnectionManager manages WebSocket connections
type ConnectionManager struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	stop       chan struct{}
	mutex      sync.RWMutex
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager() *ConnectionManager {
	manager := &ConnectionManager{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
	}

	go manager.run()
	return manager
}

func (cm *ConnectionManager) run() {
	for {
		select {
		case client := <-cm.register:
			cm.mutex.Lock()
			cm.clients[client.ID] = client
			cm.mutex.Unlock()

		case client := <-cm.unregister:
			cm.mutex.Lock()
			if _, ok := cm.clients[client.ID]; ok {
				delete(cm.clients, client.ID)
				client.closed = true
				close(client.Send)
			}
			cm.mutex.Unlock()

		case <-cm.stop:
			cm.mutex.Lock()
			for id, client := range cm.clients {
				delete(cm.clients, id)
				client.closed = true
				close(client.Send)
			}
			cm.mutex.Unlock()
			return
		}
	}
}

// Register registers a new client
func (cm *ConnectionManager) Register(client *Client) {
	select {
	case cm.register <- client:
	case <-cm.stop:
	}
}

// Unregister unregisters a client
func (cm *ConnectionManager) Unregister(client *Client) {
	select {
	case cm.unregister <- client:
	case <-cm.stop:
	}
}

// Close disconnects every client
func (cm *ConnectionManager) Close() {
	close(cm.stop)
}

// Clients returns the connected clients
func (cm *ConnectionManager) Clients() []*Client {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	clients := make([]*Client, 0, len(cm.clients))
	for _, client := range cm.clients {
		clients = append(clients, client)
	}
	return clients
}

// Send queues a payload for one client. It reports false when the client is gone or its buffer is full.
func (cm *ConnectionManager) Send(client *Client, payload []byte) bool {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	if client.closed {
		return false
	}
	select {
	case client.Send <- payload:
		return true
	default:
		return false
	}
}

// Broadcast queues a payload for every client subscribed to topic and returns the clients that were skipped.
// Sends happen under the read lock, which unregister needs exclusively before closing a channel.
func (cm *ConnectionManager) Broadcast(topic string, payload []byte) []string {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	var dropped []string
	for _, client := range cm.clients {
		if !client.Wants(topic) {
			continue
		}
		select {
		case client.Send <- payload:
		default:
			dropped = append(dropped, client.ID)
		}
	}
	return dropped
}

// GetStats returns connection statistics
func (cm *ConnectionManager) GetStats() *ConnectionStats {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	stats := &ConnectionStats{
		TotalConnections: len(cm.clients),
		Clients:          make([]ClientInfo, 0, len(cm.clients)),
	}
	for _, client := range cm.clients {
		stats.Clients = append(stats.Clients, ClientInfo{
			ID:            client.ID,
			RemoteAddr:    client.RemoteAddr,
			ConnectedAt:   client.ConnectedAt,
			Subscriptions: client.Topics(),
		})
	}
	return stats
}

// ClientInfo describes a connected client
type ClientInfo struct {
	ID            string    `json:"id"`
	RemoteAddr    string    `json:"remote_addr"`
	ConnectedAt   time.Time `json:"connected_at"`
	Subscriptions []string  `json:"subscriptions,omitempty"`
}

// ConnectionStats represents connection statistics
type ConnectionStats struct {
	TotalConnections int          `json:"total_connections"`
	Clients          []ClientInfo `json:"clients"`
}
