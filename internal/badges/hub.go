package badges

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"reportaciudad/internal/metrics"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Message 推送给客户端的消息
type Message struct {
	Type string `json:"type"`
	Data Counts `json:"data"`
}

// Hub manages badge websocket connections and broadcasts.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Counts
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	last       *Counts
	done       chan struct{}
	logger     *zap.Logger
}

// Client is one connected reviewer.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID string
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Counts, 16),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run 事件循环，ctx 结束时关闭所有连接
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			last := h.last
			h.mu.Unlock()
			metrics.WebsocketClients.Inc()
			h.logger.Info("badge client registered", zap.String("user_id", client.userID))
			// 新连接立即收到最近一次的计数
			if last != nil {
				select {
				case client.send <- encode(*last):
				default:
				}
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				metrics.WebsocketClients.Dec()
			}
			h.mu.Unlock()
			h.logger.Info("badge client unregistered", zap.String("user_id", client.userID))

		case counts := <-h.broadcast:
			payload := encode(counts)
			h.mu.Lock()
			h.last = &counts
			for client := range h.clients {
				select {
				case client.send <- payload:
				default:
					// 客户端消费过慢，断开
					close(client.send)
					delete(h.clients, client)
					metrics.WebsocketClients.Dec()
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues counts for every connected client; never blocks the caller.
func (h *Hub) Broadcast(c Counts) {
	select {
	case h.broadcast <- c:
	default:
		h.logger.Warn("badge broadcast queue full, dropping update")
	}
}

// Serve registers conn and starts its pumps.
func (h *Hub) Serve(conn *websocket.Conn, userID string) {
	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 16),
		userID: userID,
	}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
		metrics.WebsocketClients.Dec()
	}
}

func encode(c Counts) []byte {
	data, _ := json.Marshal(Message{Type: "badges", Data: c})
	return data
}

// readPump 只处理 pong 与关闭，客户端不发送业务消息
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("badge websocket read error", zap.String("user_id", c.userID), zap.Error(err))
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
