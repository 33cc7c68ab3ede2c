package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Nanzhexi/aksmes/pipeline"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
)

// clientMessage 客户端订阅消息 {"type":"subscribe","symbol":"sh600519"}
type clientMessage struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

// progressClient WebSocket客户端
type progressClient struct {
	conn     *websocket.Conn
	send     chan []byte
	clientID string

	mu      sync.RWMutex
	symbols map[string]bool // 为空时接收全部
}

func (c *progressClient) wants(symbol string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.symbols) == 0 || c.symbols[symbol]
}

type outbound struct {
	symbol  string
	payload []byte
}

// ProgressHub 下载进度推送中心，实现 pipeline.ProgressSink
type ProgressHub struct {
	clients    map[*progressClient]bool
	broadcast  chan outbound
	register   chan *progressClient
	unregister chan *progressClient
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewProgressHub 创建进度推送中心
func NewProgressHub() *ProgressHub {
	ctx, cancel := context.WithCancel(context.Background())

	return &ProgressHub{
		clients:    make(map[*progressClient]bool),
		broadcast:  make(chan outbound, 256),
		register:   make(chan *progressClient),
		unregister: make(chan *progressClient),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start 运行推送循环直到Stop
func (h *ProgressHub) Start() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			zap.S().Debugw("progress client connected", "client", client.clientID, "total", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.wants(msg.symbol) {
					continue
				}
				select {
				case client.send <- msg.payload:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()

		case <-h.ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop 停止推送中心
func (h *ProgressHub) Stop() {
	h.cancel()
}

// ClientCount 当前连接数
func (h *ProgressHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish 广播进度事件，队列满时丢弃
func (h *ProgressHub) Publish(e pipeline.ProgressEvent) {
	payload, err := json.Marshal(e)
	if err != nil {
		zap.S().Warnw("marshal progress event failed", "error", err)
		return
	}
	select {
	case h.broadcast <- outbound{symbol: e.Symbol, payload: payload}:
	default:
		zap.S().Warn("progress broadcast queue is full, dropping event")
	}
}

// HandleWebSocket 处理WebSocket连接，?symbol= 可预先订阅
func (h *ProgressHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.S().Warnw("websocket upgrade failed", "error", err)
		return
	}

	client := &progressClient{
		conn:     conn,
		send:     make(chan []byte, 64),
		clientID: uuid.NewString(),
		symbols:  make(map[string]bool),
	}
	if s := r.URL.Query().Get("symbol"); s != "" {
		client.symbols[s] = true
	}

	select {
	case h.register <- client:
	case <-h.ctx.Done():
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(h)
}

// writePump WebSocket写入泵
func (c *progressClient) writePump() {
	ticker := time.NewTicker(pingInterval)
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

// readPump WebSocket读取泵，处理订阅消息
func (c *progressClient) readPump(h *ProgressHub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.ctx.Done():
		}
		c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				zap.S().Debugw("websocket closed", "client", c.clientID, "error", err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		c.mu.Lock()
		switch msg.Type {
		case "subscribe":
			c.symbols[msg.Symbol] = true
		case "unsubscribe":
			delete(c.symbols, msg.Symbol)
		}
		c.mu.Unlock()
	}
}
