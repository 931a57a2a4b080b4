package web

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"contest-live-service/logger"
)

// 广播消息类型
const (
	FeedContest    = "contest"
	FeedScoreboard = "scoreboard"
	FeedQueue      = "queue"
	FeedSpotlight  = "spotlight"
	FeedAnalytics  = "analytics"
)

// WSMessage WebSocket 消息结构
type WSMessage struct {
	Type      string      `json:"type"`
	Variant   string      `json:"variant,omitempty"` // 记分板乐观级别
	Timestamp int64       `json:"timestamp,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// Client WebSocket 客户端
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	filters map[string]bool // 订阅的消息类型过滤器
}

// Hub 向所有已连接的转播前端广播派生快照
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan *WSMessage
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// NewHub 创建新的 Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan *WSMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run 运行 Hub
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			logger.Printf("[Hub] Client registered. Total clients: %d", len(h.clients))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			logger.Printf("[Hub] Client unregistered. Total clients: %d", len(h.clients))

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				if !client.shouldReceive(message) {
					continue
				}

				select {
				case client.send <- h.marshalMessage(message):
				default:
					h.mu.RUnlock()
					h.mu.Lock()
					close(client.send)
					delete(h.clients, client)
					h.mu.Unlock()
					h.mu.RLock()
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast 广播一条消息
func (h *Hub) Broadcast(msg *WSMessage) {
	h.broadcast <- msg
}

// marshalMessage 序列化消息
func (h *Hub) marshalMessage(message *WSMessage) []byte {
	data, err := json.Marshal(message)
	if err != nil {
		logger.Errorf("[Hub] Failed to marshal message: %v", err)
		return []byte("{}")
	}
	return data
}

// shouldReceive 检查客户端是否应该接收消息
func (c *Client) shouldReceive(message *WSMessage) bool {
	// 没有设置过滤器则接收所有消息
	if len(c.filters) == 0 {
		return true
	}
	_, ok := c.filters[message.Type]
	return ok
}

// readPump 读取客户端消息
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Errorf("[Hub] WebSocket error: %v", err)
			}
			break
		}

		c.handleMessage(message)
	}
}

// writePump 向客户端写入消息
func (c *Client) writePump() {
	defer func() {
		c.conn.Close()
	}()

	for {
		message, ok := <-c.send
		if !ok {
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}

		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

// handleMessage 处理客户端发送的消息 (设置过滤器等)
func (c *Client) handleMessage(message []byte) {
	var msg map[string]interface{}
	if err := json.Unmarshal(message, &msg); err != nil {
		logger.Errorf("[Hub] Failed to unmarshal client message: %v", err)
		return
	}

	msgType, ok := msg["type"].(string)
	if !ok {
		return
	}

	switch msgType {
	case "subscribe":
		// 订阅特定数据流
		if feeds, ok := msg["feeds"].([]interface{}); ok {
			c.filters = make(map[string]bool)
			for _, f := range feeds {
				if feed, ok := f.(string); ok {
					c.filters[feed] = true
				}
			}
		}
		logger.Printf("[Hub] Client subscribed with filters: %v", c.filters)

	case "unsubscribe":
		c.filters = make(map[string]bool)
		logger.Println("[Hub] Client unsubscribed")
	}
}
